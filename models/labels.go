package models

// MatchesSelector reports whether labels satisfy the selector: every selector
// key must be present with an equal value. An empty selector matches nothing.
func MatchesSelector(labels, selector map[string]string) bool {
	if len(selector) == 0 {
		return false
	}
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return true
}
