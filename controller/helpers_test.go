package controller

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/picokube/picokube/models"
	"github.com/picokube/picokube/runtime"
	"github.com/picokube/picokube/store"
)

const (
	waitTimeout  = 5 * time.Second
	pollInterval = 10 * time.Millisecond
)

type testEnv struct {
	store *store.Store
	rt    *runtime.Fake
	log   *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &testEnv{
		store: store.New(log, nil),
		rt:    runtime.NewFake(),
		log:   log,
	}
}

func (env *testEnv) createPod(t *testing.T, name string, labels map[string]string) *models.Pod {
	t.Helper()
	created, err := env.store.Create(&models.Pod{
		TypeMeta: models.TypeMeta{APIVersion: "v1", Kind: models.KindPod},
		Metadata: models.ObjectMeta{Name: name, Labels: labels},
		Spec: models.PodSpec{Containers: []models.Container{
			{Name: "app", Image: "nginx"},
		}},
	})
	require.NoError(t, err)
	return created.(*models.Pod)
}

func (env *testEnv) createReplicaSet(t *testing.T, name string, replicas int, selector map[string]string) *models.ReplicaSet {
	t.Helper()
	created, err := env.store.Create(&models.ReplicaSet{
		TypeMeta: models.TypeMeta{APIVersion: "apps/v1", Kind: models.KindReplicaSet},
		Metadata: models.ObjectMeta{Name: name},
		Spec: models.ReplicaSetSpec{
			Replicas: replicas,
			Selector: selector,
			Template: models.PodTemplate{
				Metadata: models.PodTemplateMeta{Labels: selector},
				Spec: models.PodSpec{Containers: []models.Container{
					{Name: "app", Image: "nginx"},
				}},
			},
		},
	})
	require.NoError(t, err)
	return created.(*models.ReplicaSet)
}

func (env *testEnv) createService(t *testing.T, name string, selector map[string]string, ports []models.ServicePort) *models.Service {
	t.Helper()
	created, err := env.store.Create(&models.Service{
		TypeMeta: models.TypeMeta{APIVersion: "v1", Kind: models.KindService},
		Metadata: models.ObjectMeta{Name: name},
		Spec:     models.ServiceSpec{Selector: selector, Ports: ports},
	})
	require.NoError(t, err)
	return created.(*models.Service)
}

func (env *testEnv) getPod(t *testing.T, name string) *models.Pod {
	t.Helper()
	obj, err := env.store.Get(models.KindPod, models.DefaultNamespace, name)
	require.NoError(t, err)
	return obj.(*models.Pod)
}

func (env *testEnv) listPods(selector map[string]string) []*models.Pod {
	var pods []*models.Pod
	for _, obj := range env.store.List(models.KindPod, models.DefaultNamespace, selector) {
		pods = append(pods, obj.(*models.Pod))
	}
	return pods
}

// reconcilePods runs the pod controller over every pod key three times,
// simulating the engine's event-driven catch-up.
func (env *testEnv) reconcilePods(t *testing.T, c *PodController) {
	t.Helper()
	for i := 0; i < 3; i++ {
		for _, key := range env.store.Keys(models.KindPod) {
			require.NoError(t, c.Reconcile(context.Background(), key))
		}
	}
}
