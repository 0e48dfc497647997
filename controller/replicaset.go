package controller

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/davidmdm/x/xerr"

	"github.com/picokube/picokube/engine"
	"github.com/picokube/picokube/models"
	"github.com/picokube/picokube/store"
)

const nameRetries = 5

// ReplicaSetController keeps the count of selector-matched, owned pods equal
// to spec.replicas. It reaps terminal pods so they always provoke a
// replacement, releases owned pods that stopped matching the selector, and
// cascades deletion to everything it owns.
type ReplicaSetController struct {
	store *store.Store
	log   *slog.Logger
}

func NewReplicaSetController(st *store.Store, log *slog.Logger) *ReplicaSetController {
	if log == nil {
		log = slog.Default()
	}
	return &ReplicaSetController{store: st, log: log.With("controller", "replicaset")}
}

func (c *ReplicaSetController) EngineController() engine.Controller {
	return engine.Controller{
		Name:      "replicaset",
		Kind:      models.KindReplicaSet,
		Reconcile: c.Reconcile,
		Watches: []engine.Watch{
			{Kind: models.KindReplicaSet, Map: func(ev store.Event) []models.Key {
				return []models.Key{ev.Key()}
			}},
			{Kind: models.KindPod, Map: ownerReplicaSets},
		},
	}
}

// ownerReplicaSets maps a pod event to the ReplicaSets that own the pod.
func ownerReplicaSets(ev store.Event) []models.Key {
	meta := ev.Object.GetMeta()
	var keys []models.Key
	for _, ref := range meta.OwnerReferences {
		if ref.Kind == models.KindReplicaSet {
			keys = append(keys, models.Key{
				Kind:      models.KindReplicaSet,
				Namespace: meta.Namespace,
				Name:      ref.Name,
			})
		}
	}
	return keys
}

func (c *ReplicaSetController) Reconcile(_ context.Context, key models.Key) error {
	obj, err := c.store.Get(models.KindReplicaSet, key.Namespace, key.Name)
	if models.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	rs := obj.(*models.ReplicaSet)

	owned := c.ownedPods(rs)

	if rs.Metadata.DeletionTimestamp != nil {
		return c.finalizeDeletion(rs, owned)
	}

	// Release owned pods that no longer match the selector. They are not
	// deleted, only orphaned.
	var errs []error
	matching := owned[:0]
	for _, pod := range owned {
		if pod.Metadata.DeletionTimestamp == nil && !models.MatchesSelector(pod.Metadata.Labels, rs.Spec.Selector) {
			if err := c.release(rs, pod); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		matching = append(matching, pod)
	}

	// Reap terminal pods before counting, so they provoke replacements.
	var active []*models.Pod
	for _, pod := range matching {
		if pod.Metadata.DeletionTimestamp != nil {
			continue
		}
		if pod.Status.Phase.IsTerminal() {
			c.log.Info("reaping terminal pod",
				"replicaset", key.Namespace+"/"+key.Name,
				"pod", pod.Metadata.Name, "phase", pod.Status.Phase)
			if err := c.deletePod(pod); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		active = append(active, pod)
	}

	desired := rs.Spec.Replicas
	switch {
	case len(active) < desired:
		for i := len(active); i < desired; i++ {
			pod, err := c.createPod(rs)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			active = append(active, pod)
		}
	case len(active) > desired:
		sortForDeletion(active)
		for _, victim := range active[:len(active)-desired] {
			if err := c.deletePod(victim); err != nil {
				errs = append(errs, err)
			}
		}
		active = active[len(active)-desired:]
	}

	ready := 0
	for _, pod := range active {
		if pod.Status.Phase == models.PodRunning {
			ready++
		}
	}
	if rs.Status.Replicas != len(active) || rs.Status.ReadyReplicas != ready {
		rs.Status.Replicas = len(active)
		rs.Status.ReadyReplicas = ready
		if _, err := c.store.UpdateStatus(rs); err != nil && !models.IsNotFound(err) {
			errs = append(errs, err)
		}
	}
	return xerr.MultiErrFrom("", errs...)
}

// finalizeDeletion cascades to owned pods and removes the ReplicaSet once
// they are all gone.
func (c *ReplicaSetController) finalizeDeletion(rs *models.ReplicaSet, owned []*models.Pod) error {
	var errs []error
	for _, pod := range owned {
		if pod.Metadata.DeletionTimestamp == nil {
			if err := c.deletePod(pod); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(owned) == 0 {
		err := c.store.Finalize(models.KindReplicaSet, rs.Metadata.Namespace, rs.Metadata.Name)
		if err != nil && !models.IsNotFound(err) {
			errs = append(errs, err)
		}
	}
	return xerr.MultiErrFrom("", errs...)
}

func (c *ReplicaSetController) ownedPods(rs *models.ReplicaSet) []*models.Pod {
	var owned []*models.Pod
	for _, obj := range c.store.List(models.KindPod, rs.Metadata.Namespace, nil) {
		pod := obj.(*models.Pod)
		if pod.Metadata.IsOwnedBy(rs.Metadata.UID) {
			owned = append(owned, pod)
		}
	}
	return owned
}

func (c *ReplicaSetController) createPod(rs *models.ReplicaSet) (*models.Pod, error) {
	template := rs.Spec.Template.DeepCopy()
	var lastErr error
	for attempt := 0; attempt < nameRetries; attempt++ {
		pod := &models.Pod{
			TypeMeta: models.TypeMeta{APIVersion: "v1", Kind: models.KindPod},
			Metadata: models.ObjectMeta{
				Name:      rs.Metadata.Name + "-" + randSuffix(5),
				Namespace: rs.Metadata.Namespace,
				Labels:    template.Metadata.Labels,
				OwnerReferences: []models.OwnerReference{{
					Kind:       models.KindReplicaSet,
					Name:       rs.Metadata.Name,
					UID:        rs.Metadata.UID,
					Controller: true,
				}},
			},
			Spec: template.Spec,
		}
		created, err := c.store.Create(pod)
		if models.IsAlreadyExists(err) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		c.log.Info("created pod",
			"replicaset", rs.Metadata.Namespace+"/"+rs.Metadata.Name,
			"pod", pod.Metadata.Name)
		return created.(*models.Pod), nil
	}
	return nil, lastErr
}

func (c *ReplicaSetController) deletePod(pod *models.Pod) error {
	err := c.store.Delete(models.KindPod, pod.Metadata.Namespace, pod.Metadata.Name)
	if models.IsNotFound(err) {
		return nil
	}
	return err
}

func (c *ReplicaSetController) release(rs *models.ReplicaSet, pod *models.Pod) error {
	refs := make([]models.OwnerReference, 0, len(pod.Metadata.OwnerReferences))
	for _, ref := range pod.Metadata.OwnerReferences {
		if ref.UID != rs.Metadata.UID {
			refs = append(refs, ref)
		}
	}
	c.log.Info("releasing pod that no longer matches selector",
		"replicaset", rs.Metadata.Namespace+"/"+rs.Metadata.Name,
		"pod", pod.Metadata.Name)
	_, err := c.store.SetOwnerReferences(models.KindPod, pod.Metadata.Namespace, pod.Metadata.Name, refs)
	if models.IsNotFound(err) {
		return nil
	}
	return err
}

// sortForDeletion orders scale-down victims first: Pending before Running,
// then the most recently created, ties broken by name. Steady-state replicas
// survive the longest.
func sortForDeletion(pods []*models.Pod) {
	rank := func(p *models.Pod) int {
		if p.Status.Phase == models.PodRunning {
			return 1
		}
		return 0
	}
	sort.SliceStable(pods, func(i, j int) bool {
		a, b := pods[i], pods[j]
		if rank(a) != rank(b) {
			return rank(a) < rank(b)
		}
		if !a.Metadata.CreationTimestamp.Equal(b.Metadata.CreationTimestamp) {
			return a.Metadata.CreationTimestamp.After(b.Metadata.CreationTimestamp)
		}
		return a.Metadata.Name < b.Metadata.Name
	})
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = suffixAlphabet[rand.Intn(len(suffixAlphabet))]
	}
	return string(b)
}
