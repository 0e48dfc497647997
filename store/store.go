package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/picokube/picokube/models"
	"github.com/picokube/picokube/observability"
)

// Store is the thread-safe in-memory repository of all resources, keyed by
// (kind, namespace, name). Every read hands out a deep copy, and every write
// publishes an event to watchers after it commits, so an observer never sees
// an event for a state it cannot also read.
//
// Deletion is two-phase: Delete marks the object (and, cascading, everything
// that owner-references it) and emits Deleted events; the finalizing
// controller calls Finalize once external cleanup is done, which removes the
// entry for good.
type Store struct {
	mu      sync.RWMutex
	objects map[string]map[string]map[string]models.Object // kind -> namespace -> name
	subs    map[string][]*subscription                     // kind -> watchers

	log     *slog.Logger
	metrics *observability.Metrics
}

func New(log *slog.Logger, metrics *observability.Metrics) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		objects: make(map[string]map[string]map[string]models.Object),
		subs:    make(map[string][]*subscription),
		log:     log.With("component", "store"),
		metrics: metrics,
	}
	for _, kind := range []string{models.KindPod, models.KindReplicaSet, models.KindService} {
		s.objects[kind] = make(map[string]map[string]models.Object)
	}
	return s
}

func defaulted(namespace string) string {
	if namespace == "" {
		return models.DefaultNamespace
	}
	return namespace
}

// lookup returns the live (uncopied) object. Callers must hold mu.
func (s *Store) lookup(kind, namespace, name string) (models.Object, bool) {
	ns, ok := s.objects[kind]
	if !ok {
		return nil, false
	}
	obj, ok := ns[namespace][name]
	return obj, ok
}

func (s *Store) set(obj models.Object) {
	kind := obj.GetKind()
	meta := obj.GetMeta()
	if s.objects[kind] == nil {
		s.objects[kind] = make(map[string]map[string]models.Object)
	}
	if s.objects[kind][meta.Namespace] == nil {
		s.objects[kind][meta.Namespace] = make(map[string]models.Object)
	}
	s.objects[kind][meta.Namespace][meta.Name] = obj
}

// Create stores a new resource. It assigns the uid and creation timestamp,
// resets server-managed status, and emits a Created event.
func (s *Store) Create(obj models.Object) (models.Object, error) {
	stored := obj.DeepCopyObject()
	meta := stored.GetMeta()
	meta.Namespace = defaulted(meta.Namespace)
	meta.UID = uuid.NewString()
	meta.CreationTimestamp = time.Now().UTC()
	meta.DeletionTimestamp = nil
	resetStatus(stored)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lookup(stored.GetKind(), meta.Namespace, meta.Name); exists {
		return nil, models.NewAlreadyExists(stored.GetKind(), meta.Namespace, meta.Name)
	}
	if err := s.checkOwnerChain(stored); err != nil {
		return nil, err
	}
	s.set(stored)
	s.trackItems(stored.GetKind())
	s.publish(Event{Type: Created, Object: stored.DeepCopyObject()})
	return stored.DeepCopyObject(), nil
}

// Get returns a deep copy of the resource.
func (s *Store) Get(kind, namespace, name string) (models.Object, error) {
	namespace = defaulted(namespace)
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.lookup(kind, namespace, name)
	if !ok {
		return nil, models.NewNotFound(kind, namespace, name)
	}
	return obj.DeepCopyObject(), nil
}

// List returns deep copies of all resources of a kind. An empty namespace
// lists across all namespaces; a non-nil selector filters by label match.
func (s *Store) List(kind, namespace string, selector map[string]string) []models.Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Object
	for ns, byName := range s.objects[kind] {
		if namespace != "" && ns != namespace {
			continue
		}
		for _, obj := range byName {
			if selector != nil && !models.MatchesSelector(obj.GetMeta().Labels, selector) {
				continue
			}
			out = append(out, obj.DeepCopyObject())
		}
	}
	return out
}

// Keys returns the keys of all resources of a kind, marked-deleted included.
func (s *Store) Keys(kind string) []models.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Key
	for ns, byName := range s.objects[kind] {
		for name := range byName {
			out = append(out, models.Key{Kind: kind, Namespace: ns, Name: name})
		}
	}
	return out
}

// Update replaces the spec and labels of an existing resource. Server-managed
// fields (uid, timestamps, status, owner references) are preserved from the
// stored copy.
func (s *Store) Update(obj models.Object) (models.Object, error) {
	incoming := obj.DeepCopyObject()
	meta := incoming.GetMeta()
	meta.Namespace = defaulted(meta.Namespace)

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.lookup(incoming.GetKind(), meta.Namespace, meta.Name)
	if !ok {
		return nil, models.NewNotFound(incoming.GetKind(), meta.Namespace, meta.Name)
	}
	oldMeta := old.GetMeta()
	meta.UID = oldMeta.UID
	meta.CreationTimestamp = oldMeta.CreationTimestamp
	meta.DeletionTimestamp = oldMeta.DeletionTimestamp
	meta.OwnerReferences = oldMeta.DeepCopy().OwnerReferences
	copyStatus(incoming, old)
	if err := s.checkOwnerChain(incoming); err != nil {
		return nil, err
	}
	s.set(incoming)
	s.publish(Event{Type: Updated, Object: incoming.DeepCopyObject(), Old: old.DeepCopyObject()})
	return incoming.DeepCopyObject(), nil
}

// UpdateStatus is the internal controller path: it replaces only the status
// of the stored resource.
func (s *Store) UpdateStatus(obj models.Object) (models.Object, error) {
	incoming := obj.DeepCopyObject()
	meta := incoming.GetMeta()
	meta.Namespace = defaulted(meta.Namespace)

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.lookup(incoming.GetKind(), meta.Namespace, meta.Name)
	if !ok {
		return nil, models.NewNotFound(incoming.GetKind(), meta.Namespace, meta.Name)
	}
	stored := old.DeepCopyObject()
	copyStatus(stored, incoming)
	s.set(stored)
	s.publish(Event{Type: Updated, Object: stored.DeepCopyObject(), Old: old.DeepCopyObject()})
	return stored.DeepCopyObject(), nil
}

// SetOwnerReferences is the internal controller path for adopting or
// releasing an object.
func (s *Store) SetOwnerReferences(kind, namespace, name string, refs []models.OwnerReference) (models.Object, error) {
	namespace = defaulted(namespace)

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.lookup(kind, namespace, name)
	if !ok {
		return nil, models.NewNotFound(kind, namespace, name)
	}
	stored := old.DeepCopyObject()
	stored.GetMeta().OwnerReferences = refs
	if err := s.checkOwnerChain(stored); err != nil {
		return nil, err
	}
	s.set(stored)
	s.publish(Event{Type: Updated, Object: stored.DeepCopyObject(), Old: old.DeepCopyObject()})
	return stored.DeepCopyObject(), nil
}

// Delete marks the resource deleted and emits a Deleted event, then walks the
// ownership graph and marks every dependent the same way. The entries stay in
// the store until the finalizing controllers confirm with Finalize.
func (s *Store) Delete(kind, namespace, name string) error {
	namespace = defaulted(namespace)

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.lookup(kind, namespace, name)
	if !ok || obj.GetMeta().DeletionTimestamp != nil {
		return models.NewNotFound(kind, namespace, name)
	}
	s.markDeleted(obj)
	return nil
}

// markDeleted stamps obj and recursively its dependents. Callers hold mu.
func (s *Store) markDeleted(obj models.Object) {
	now := time.Now().UTC()
	stored := obj.DeepCopyObject()
	stored.GetMeta().DeletionTimestamp = &now
	s.set(stored)
	s.publish(Event{Type: Deleted, Object: stored.DeepCopyObject()})

	uid := stored.GetMeta().UID
	for _, kind := range []string{models.KindPod, models.KindReplicaSet, models.KindService} {
		for _, byName := range s.objects[kind] {
			for _, dep := range byName {
				if dep.GetMeta().DeletionTimestamp == nil && dep.GetMeta().IsOwnedBy(uid) {
					s.markDeleted(dep)
				}
			}
		}
	}
}

// Finalize removes a marked-deleted resource from the store. It emits a final
// Deleted event so waiting controllers re-reconcile without a tick.
func (s *Store) Finalize(kind, namespace, name string) error {
	namespace = defaulted(namespace)

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.lookup(kind, namespace, name)
	if !ok {
		return models.NewNotFound(kind, namespace, name)
	}
	if obj.GetMeta().DeletionTimestamp == nil {
		return models.NewInternal(fmt.Errorf("finalize of %s %s/%s which is not marked deleted", kind, namespace, name))
	}
	delete(s.objects[kind][namespace], name)
	if len(s.objects[kind][namespace]) == 0 {
		delete(s.objects[kind], namespace)
	}
	s.trackItems(kind)
	s.publish(Event{Type: Deleted, Object: obj.DeepCopyObject()})
	s.log.Debug("resource removed", "kind", kind, "namespace", namespace, "name", name)
	return nil
}

// checkOwnerChain rejects ownership cycles. Callers hold mu.
func (s *Store) checkOwnerChain(obj models.Object) error {
	byUID := make(map[string]models.Object)
	for _, nsMap := range s.objects {
		for _, byName := range nsMap {
			for _, o := range byName {
				byUID[o.GetMeta().UID] = o
			}
		}
	}
	seen := map[string]bool{obj.GetMeta().UID: true}
	frontier := obj.GetMeta().OwnerReferences
	for len(frontier) > 0 {
		ref := frontier[0]
		frontier = frontier[1:]
		if seen[ref.UID] {
			return models.NewInternal(fmt.Errorf("ownership cycle through uid %s", ref.UID))
		}
		seen[ref.UID] = true
		if owner, ok := byUID[ref.UID]; ok {
			frontier = append(frontier, owner.GetMeta().OwnerReferences...)
		}
	}
	return nil
}

func (s *Store) trackItems(kind string) {
	if s.metrics == nil {
		return
	}
	n := 0
	for _, byName := range s.objects[kind] {
		n += len(byName)
	}
	s.metrics.StoreItems.WithLabelValues(kind).Set(float64(n))
}

// resetStatus clears server-managed status on create. Pods start Pending.
func resetStatus(obj models.Object) {
	switch o := obj.(type) {
	case *models.Pod:
		o.Status = models.PodStatus{Phase: models.PodPending}
	case *models.ReplicaSet:
		o.Status = models.ReplicaSetStatus{}
	case *models.Service:
		o.Status = models.ServiceStatus{}
	}
}

// copyStatus copies the status of src into dst. Both must be the same kind.
func copyStatus(dst, src models.Object) {
	switch d := dst.(type) {
	case *models.Pod:
		d.Status = src.(*models.Pod).DeepCopy().Status
	case *models.ReplicaSet:
		d.Status = src.(*models.ReplicaSet).DeepCopy().Status
	case *models.Service:
		d.Status = src.(*models.Service).DeepCopy().Status
	}
}
