package models

import "time"

// Resource kinds managed by the control plane.
const (
	KindPod        = "Pod"
	KindReplicaSet = "ReplicaSet"
	KindService    = "Service"
)

// DefaultNamespace is applied whenever a resource omits its namespace.
const DefaultNamespace = "default"

// TypeMeta identifies the schema of a resource.
type TypeMeta struct {
	APIVersion string `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
	Kind       string `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// OwnerReference links a resource to the controller that created it.
// Deleting the owner cascades to everything that references it.
type OwnerReference struct {
	Kind       string `json:"kind" yaml:"kind"`
	Name       string `json:"name" yaml:"name"`
	UID        string `json:"uid" yaml:"uid"`
	Controller bool   `json:"controller,omitempty" yaml:"controller,omitempty"`
}

// ObjectMeta is the common metadata envelope shared by all resources.
type ObjectMeta struct {
	Name              string            `json:"name" yaml:"name"`
	Namespace         string            `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	UID               string            `json:"uid,omitempty" yaml:"uid,omitempty"`
	Labels            map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	OwnerReferences   []OwnerReference  `json:"ownerReferences,omitempty" yaml:"ownerReferences,omitempty"`
	CreationTimestamp time.Time         `json:"creationTimestamp,omitzero" yaml:"creationTimestamp,omitempty"`
	DeletionTimestamp *time.Time        `json:"deletionTimestamp,omitempty" yaml:"deletionTimestamp,omitempty"`
}

// DeepCopy returns a copy sharing no mutable state with the receiver.
func (m ObjectMeta) DeepCopy() ObjectMeta {
	out := m
	out.Labels = copyStringMap(m.Labels)
	if m.OwnerReferences != nil {
		out.OwnerReferences = make([]OwnerReference, len(m.OwnerReferences))
		copy(out.OwnerReferences, m.OwnerReferences)
	}
	if m.DeletionTimestamp != nil {
		ts := *m.DeletionTimestamp
		out.DeletionTimestamp = &ts
	}
	return out
}

// ControllerOwner returns the controlling owner reference, if any.
// A resource has at most one.
func (m ObjectMeta) ControllerOwner() *OwnerReference {
	for i := range m.OwnerReferences {
		if m.OwnerReferences[i].Controller {
			return &m.OwnerReferences[i]
		}
	}
	return nil
}

// IsOwnedBy reports whether the metadata carries an owner reference to uid.
func (m ObjectMeta) IsOwnedBy(uid string) bool {
	for _, ref := range m.OwnerReferences {
		if ref.UID == uid {
			return true
		}
	}
	return false
}

// Condition records an observed fault or state transition on a resource.
type Condition struct {
	Type               string    `json:"type" yaml:"type"`
	Status             string    `json:"status" yaml:"status"`
	Reason             string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Message            string    `json:"message,omitempty" yaml:"message,omitempty"`
	LastTransitionTime time.Time `json:"lastTransitionTime,omitzero" yaml:"lastTransitionTime,omitempty"`
}

// SetCondition replaces the condition with the same type, or appends it.
func SetCondition(conditions []Condition, c Condition) []Condition {
	if c.LastTransitionTime.IsZero() {
		c.LastTransitionTime = time.Now().UTC()
	}
	for i := range conditions {
		if conditions[i].Type == c.Type {
			conditions[i] = c
			return conditions
		}
	}
	return append(conditions, c)
}

// Object is the store-facing view of any resource.
type Object interface {
	GetKind() string
	GetMeta() *ObjectMeta
	DeepCopyObject() Object
}

// Key identifies a resource in the store.
type Key struct {
	Kind      string
	Namespace string
	Name      string
}

func (k Key) String() string {
	return k.Kind + "/" + k.Namespace + "/" + k.Name
}

// KeyFor builds the store key of an object.
func KeyFor(obj Object) Key {
	meta := obj.GetMeta()
	return Key{Kind: obj.GetKind(), Namespace: meta.Namespace, Name: meta.Name}
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyConditions(in []Condition) []Condition {
	if in == nil {
		return nil
	}
	out := make([]Condition, len(in))
	copy(out, in)
	return out
}
