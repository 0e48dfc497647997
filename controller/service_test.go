package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picokube/picokube/models"
)

func svcKey(name string) models.Key {
	return models.Key{Kind: models.KindService, Namespace: "default", Name: name}
}

func (env *testEnv) runningPod(t *testing.T, c *PodController, name string, labels map[string]string) *models.Pod {
	t.Helper()
	env.createPod(t, name, labels)
	require.NoError(t, c.Reconcile(context.Background(), models.Key{Kind: models.KindPod, Namespace: "default", Name: name}))
	return env.getPod(t, name)
}

func TestServiceProgramsLoadBalancer(t *testing.T) {
	env := newTestEnv(t)
	pc := NewPodController(env.store, env.rt, env.log)
	sc := NewServiceController(env.store, env.rt, env.log)

	pod := env.runningPod(t, pc, "health-1", map[string]string{"app": "health"})
	env.createService(t, "health-service", map[string]string{"app": "health"},
		[]models.ServicePort{{Port: 2000, TargetPort: 5000}})

	require.NoError(t, sc.Reconcile(context.Background(), svcKey("health-service")))

	obj, err := env.store.Get(models.KindService, "default", "health-service")
	require.NoError(t, err)
	svc := obj.(*models.Service)
	require.NotEmpty(t, svc.Status.LoadBalancerID)
	require.Len(t, svc.Status.Endpoints, 1)
	assert.Equal(t, models.Endpoint{IP: pod.Status.PodIP, Port: 5000}, svc.Status.Endpoints[0])

	cfg, ok := env.rt.LB(svc.Status.LoadBalancerID)
	require.True(t, ok)
	assert.Equal(t, svc.Status.Endpoints, cfg.Endpoints)
	assert.Equal(t, 2000, cfg.Ports[0].Port)
}

func TestServiceEndpointsFollowPods(t *testing.T) {
	env := newTestEnv(t)
	pc := NewPodController(env.store, env.rt, env.log)
	sc := NewServiceController(env.store, env.rt, env.log)

	env.createService(t, "health-service", map[string]string{"app": "health"},
		[]models.ServicePort{{Port: 2000, TargetPort: 5000}})
	require.NoError(t, sc.Reconcile(context.Background(), svcKey("health-service")))

	endpoints := func() []models.Endpoint {
		obj, err := env.store.Get(models.KindService, "default", "health-service")
		require.NoError(t, err)
		return obj.(*models.Service).Status.Endpoints
	}
	require.Empty(t, endpoints())

	env.runningPod(t, pc, "health-1", map[string]string{"app": "health"})
	require.NoError(t, sc.Reconcile(context.Background(), svcKey("health-service")))
	require.Len(t, endpoints(), 1)

	env.runningPod(t, pc, "health-2", map[string]string{"app": "health"})
	require.NoError(t, sc.Reconcile(context.Background(), svcKey("health-service")))
	require.Len(t, endpoints(), 2)

	require.NoError(t, env.store.Delete(models.KindPod, "default", "health-1"))
	env.reconcilePods(t, pc)
	require.NoError(t, sc.Reconcile(context.Background(), svcKey("health-service")))
	require.Len(t, endpoints(), 1)
}

func TestServiceIgnoresNonRunningAndNonMatchingPods(t *testing.T) {
	env := newTestEnv(t)
	pc := NewPodController(env.store, env.rt, env.log)
	sc := NewServiceController(env.store, env.rt, env.log)

	env.createPod(t, "pending", map[string]string{"app": "health"}) // never reconciled: stays Pending
	env.runningPod(t, pc, "other", map[string]string{"app": "other"})
	env.createService(t, "health-service", map[string]string{"app": "health"},
		[]models.ServicePort{{Port: 2000, TargetPort: 5000}})

	require.NoError(t, sc.Reconcile(context.Background(), svcKey("health-service")))

	obj, err := env.store.Get(models.KindService, "default", "health-service")
	require.NoError(t, err)
	assert.Empty(t, obj.(*models.Service).Status.Endpoints)
}

func TestServicePortChangeRestartsLoadBalancer(t *testing.T) {
	env := newTestEnv(t)
	sc := NewServiceController(env.store, env.rt, env.log)

	env.createService(t, "web", map[string]string{"app": "web"},
		[]models.ServicePort{{Port: 2000, TargetPort: 5000}})
	require.NoError(t, sc.Reconcile(context.Background(), svcKey("web")))

	obj, err := env.store.Get(models.KindService, "default", "web")
	require.NoError(t, err)
	firstID := obj.(*models.Service).Status.LoadBalancerID

	changed := obj.(*models.Service)
	changed.Spec.Ports = []models.ServicePort{{Port: 3000, TargetPort: 5000}}
	_, err = env.store.Update(changed)
	require.NoError(t, err)

	require.NoError(t, sc.Reconcile(context.Background(), svcKey("web")))

	obj, err = env.store.Get(models.KindService, "default", "web")
	require.NoError(t, err)
	newID := obj.(*models.Service).Status.LoadBalancerID
	assert.NotEqual(t, firstID, newID, "host port binding changed, proxy restarted")
	assert.Equal(t, 1, env.rt.LBCount())

	cfg, ok := env.rt.LB(newID)
	require.True(t, ok)
	assert.Equal(t, 3000, cfg.Ports[0].Port)
}

func TestServiceEndpointOnlyChangeAvoidsRestart(t *testing.T) {
	env := newTestEnv(t)
	pc := NewPodController(env.store, env.rt, env.log)
	sc := NewServiceController(env.store, env.rt, env.log)

	env.createService(t, "web", map[string]string{"app": "web"},
		[]models.ServicePort{{Port: 2000, TargetPort: 5000}})
	require.NoError(t, sc.Reconcile(context.Background(), svcKey("web")))
	starts := env.rt.OpCount("startLoadBalancer")

	env.runningPod(t, pc, "web-1", map[string]string{"app": "web"})
	require.NoError(t, sc.Reconcile(context.Background(), svcKey("web")))

	assert.Equal(t, starts, env.rt.OpCount("startLoadBalancer"))
	assert.Equal(t, 1, env.rt.OpCount("updateLoadBalancer"))
}

func TestServiceDeleteStopsLoadBalancer(t *testing.T) {
	env := newTestEnv(t)
	sc := NewServiceController(env.store, env.rt, env.log)

	env.createService(t, "web", map[string]string{"app": "web"},
		[]models.ServicePort{{Port: 2000}})
	require.NoError(t, sc.Reconcile(context.Background(), svcKey("web")))
	require.Equal(t, 1, env.rt.LBCount())

	require.NoError(t, env.store.Delete(models.KindService, "default", "web"))
	require.NoError(t, sc.Reconcile(context.Background(), svcKey("web")))

	assert.Equal(t, 0, env.rt.LBCount())
	assert.Empty(t, env.store.List(models.KindService, "default", nil))
}

func TestQuiescentReconcileMakesNoMutatingRuntimeCalls(t *testing.T) {
	env := newTestEnv(t)
	pc := NewPodController(env.store, env.rt, env.log)
	rsc := NewReplicaSetController(env.store, env.log)
	sc := NewServiceController(env.store, env.rt, env.log)

	env.createReplicaSet(t, "web", 2, map[string]string{"app": "web"})
	env.createService(t, "web", map[string]string{"app": "web"},
		[]models.ServicePort{{Port: 2000, TargetPort: 5000}})

	// Converge.
	for i := 0; i < 3; i++ {
		require.NoError(t, rsc.Reconcile(context.Background(), rsKey("web")))
		env.reconcilePods(t, pc)
		require.NoError(t, sc.Reconcile(context.Background(), svcKey("web")))
	}

	// Ticks over a quiescent world change nothing in the runtime.
	baseline := env.rt.MutatingOps()
	for i := 0; i < 3; i++ {
		require.NoError(t, rsc.Reconcile(context.Background(), rsKey("web")))
		env.reconcilePods(t, pc)
		require.NoError(t, sc.Reconcile(context.Background(), svcKey("web")))
	}
	assert.Equal(t, baseline, env.rt.MutatingOps())
}
