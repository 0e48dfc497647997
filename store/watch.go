package store

import (
	"github.com/picokube/picokube/models"
)

// EventType discriminates store change events.
type EventType string

const (
	Created EventType = "Created"
	Updated EventType = "Updated"
	Deleted EventType = "Deleted"
)

// Event carries a snapshot of the resource after the write committed. Updated
// events also carry the before snapshot.
type Event struct {
	Type   EventType
	Object models.Object
	Old    models.Object
}

// Key returns the store key of the event's object.
func (e Event) Key() models.Key { return models.KeyFor(e.Object) }

const watchBuffer = 256

type subscription struct {
	kind string
	ch   chan Event
}

// Watch returns a feed of Created/Updated/Deleted events for a kind, starting
// with a synthetic Created for every existing object. The returned cancel
// func must be called to release the subscription.
//
// Sends never block: if a watcher falls more than watchBuffer events behind,
// events are dropped. Controllers tolerate this because the periodic tick
// re-enqueues every key.
func (s *Store) Watch(kind string) (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := 0
	for _, byName := range s.objects[kind] {
		existing += len(byName)
	}
	sub := &subscription{kind: kind, ch: make(chan Event, existing+watchBuffer)}
	for _, byName := range s.objects[kind] {
		for _, obj := range byName {
			sub.ch <- Event{Type: Created, Object: obj.DeepCopyObject()}
		}
	}
	s.subs[kind] = append(s.subs[kind], sub)

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[kind]
		for i, candidate := range subs {
			if candidate == sub {
				s.subs[kind] = append(subs[:i], subs[i+1:]...)
				close(sub.ch)
				return
			}
		}
	}
	return sub.ch, cancel
}

// publish delivers an event to all watchers of the object's kind. Callers
// hold mu, which is what serializes events into per-key write order.
func (s *Store) publish(ev Event) {
	kind := ev.Object.GetKind()
	if s.metrics != nil {
		s.metrics.EventsTotal.WithLabelValues(kind, string(ev.Type)).Inc()
	}
	for _, sub := range s.subs[kind] {
		select {
		case sub.ch <- ev:
		default:
			// Watcher is slow; the periodic tick closes the gap.
			if s.metrics != nil {
				s.metrics.EventsDropped.WithLabelValues(kind).Inc()
			}
			s.log.Warn("dropping store event for slow watcher", "kind", kind, "type", ev.Type)
		}
	}
}
