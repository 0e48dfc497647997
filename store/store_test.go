package store

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picokube/picokube/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func testPod(name string, labels map[string]string) *models.Pod {
	return &models.Pod{
		TypeMeta: models.TypeMeta{APIVersion: "v1", Kind: models.KindPod},
		Metadata: models.ObjectMeta{Name: name, Labels: labels},
		Spec: models.PodSpec{Containers: []models.Container{
			{Name: "app", Image: "nginx"},
		}},
	}
}

func TestCreateAssignsServerFields(t *testing.T) {
	st := newTestStore(t)

	created, err := st.Create(testPod("web", nil))
	require.NoError(t, err)

	pod := created.(*models.Pod)
	assert.NotEmpty(t, pod.Metadata.UID)
	assert.Equal(t, models.DefaultNamespace, pod.Metadata.Namespace)
	assert.False(t, pod.Metadata.CreationTimestamp.IsZero())
	assert.Equal(t, models.PodPending, pod.Status.Phase)
}

func TestCreateAlreadyExists(t *testing.T) {
	st := newTestStore(t)

	_, err := st.Create(testPod("web", nil))
	require.NoError(t, err)
	_, err = st.Create(testPod("web", nil))
	require.Error(t, err)
	assert.True(t, models.IsAlreadyExists(err))
}

func TestGetReturnsDeepCopy(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Create(testPod("web", map[string]string{"app": "web"}))
	require.NoError(t, err)

	first, err := st.Get(models.KindPod, "default", "web")
	require.NoError(t, err)
	first.(*models.Pod).Metadata.Labels["app"] = "mutated"

	second, err := st.Get(models.KindPod, "default", "web")
	require.NoError(t, err)
	assert.Equal(t, "web", second.(*models.Pod).Metadata.Labels["app"])
}

func TestGetNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Get(models.KindPod, "default", "missing")
	require.Error(t, err)
	assert.True(t, models.IsNotFound(err))
}

func TestListWithSelector(t *testing.T) {
	st := newTestStore(t)
	for name, labels := range map[string]map[string]string{
		"web-1": {"app": "web"},
		"web-2": {"app": "web"},
		"db-1":  {"app": "db"},
	} {
		_, err := st.Create(testPod(name, labels))
		require.NoError(t, err)
	}

	assert.Len(t, st.List(models.KindPod, "default", nil), 3)
	assert.Len(t, st.List(models.KindPod, "default", map[string]string{"app": "web"}), 2)
	assert.Empty(t, st.List(models.KindPod, "other", nil))
	assert.Len(t, st.List(models.KindPod, "", nil), 3, "empty namespace lists everything")
}

func TestUpdatePreservesServerFields(t *testing.T) {
	st := newTestStore(t)
	created, err := st.Create(testPod("web", nil))
	require.NoError(t, err)
	pod := created.(*models.Pod)

	// A controller records status.
	pod.Status.Phase = models.PodRunning
	pod.Status.PodIP = "10.89.0.2"
	_, err = st.UpdateStatus(pod)
	require.NoError(t, err)

	// A client replaces the spec and tries to smuggle in status and uid.
	incoming := testPod("web", map[string]string{"app": "v2"})
	incoming.Metadata.UID = "forged"
	incoming.Status.Phase = models.PodFailed
	updated, err := st.Update(incoming)
	require.NoError(t, err)

	got := updated.(*models.Pod)
	assert.Equal(t, pod.Metadata.UID, got.Metadata.UID)
	assert.Equal(t, models.PodRunning, got.Status.Phase)
	assert.Equal(t, "10.89.0.2", got.Status.PodIP)
	assert.Equal(t, "v2", got.Metadata.Labels["app"])
}

func TestUpdateStatusPreservesSpec(t *testing.T) {
	st := newTestStore(t)
	created, err := st.Create(testPod("web", map[string]string{"app": "web"}))
	require.NoError(t, err)

	pod := created.(*models.Pod)
	pod.Metadata.Labels = map[string]string{"app": "forged"}
	pod.Status.Phase = models.PodRunning
	_, err = st.UpdateStatus(pod)
	require.NoError(t, err)

	got, err := st.Get(models.KindPod, "default", "web")
	require.NoError(t, err)
	assert.Equal(t, "web", got.(*models.Pod).Metadata.Labels["app"])
	assert.Equal(t, models.PodRunning, got.(*models.Pod).Status.Phase)
}

func TestUpdateNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Update(testPod("ghost", nil))
	require.Error(t, err)
	assert.True(t, models.IsNotFound(err))
}

func TestDeleteMarksAndFinalizeRemoves(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Create(testPod("web", nil))
	require.NoError(t, err)

	require.NoError(t, st.Delete(models.KindPod, "default", "web"))

	obj, err := st.Get(models.KindPod, "default", "web")
	require.NoError(t, err, "marked object is still readable")
	assert.NotNil(t, obj.GetMeta().DeletionTimestamp)

	// Double delete surfaces NotFound, not an error leak.
	err = st.Delete(models.KindPod, "default", "web")
	require.Error(t, err)
	assert.True(t, models.IsNotFound(err))

	require.NoError(t, st.Finalize(models.KindPod, "default", "web"))
	_, err = st.Get(models.KindPod, "default", "web")
	assert.True(t, models.IsNotFound(err))
}

func TestFinalizeRequiresMark(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Create(testPod("web", nil))
	require.NoError(t, err)
	assert.Error(t, st.Finalize(models.KindPod, "default", "web"))
}

func TestDeleteCascadesThroughOwnerReferences(t *testing.T) {
	st := newTestStore(t)

	created, err := st.Create(&models.ReplicaSet{
		Metadata: models.ObjectMeta{Name: "web-rs"},
		Spec: models.ReplicaSetSpec{
			Replicas: 1,
			Selector: map[string]string{"app": "web"},
		},
	})
	require.NoError(t, err)
	rsUID := created.GetMeta().UID

	pod := testPod("web-rs-abcde", map[string]string{"app": "web"})
	pod.Metadata.OwnerReferences = []models.OwnerReference{
		{Kind: models.KindReplicaSet, Name: "web-rs", UID: rsUID, Controller: true},
	}
	_, err = st.Create(pod)
	require.NoError(t, err)

	orphan := testPod("standalone", map[string]string{"app": "web"})
	_, err = st.Create(orphan)
	require.NoError(t, err)

	require.NoError(t, st.Delete(models.KindReplicaSet, "default", "web-rs"))

	owned, err := st.Get(models.KindPod, "default", "web-rs-abcde")
	require.NoError(t, err)
	assert.NotNil(t, owned.GetMeta().DeletionTimestamp, "owned pod is swept")

	free, err := st.Get(models.KindPod, "default", "standalone")
	require.NoError(t, err)
	assert.Nil(t, free.GetMeta().DeletionTimestamp, "unowned pod is untouched")
}

func TestWatchInitialSyncAndLiveEvents(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Create(testPod("existing", nil))
	require.NoError(t, err)

	events, cancel := st.Watch(models.KindPod)
	defer cancel()

	ev := <-events
	assert.Equal(t, Created, ev.Type)
	assert.Equal(t, "existing", ev.Object.GetMeta().Name)

	_, err = st.Create(testPod("new", nil))
	require.NoError(t, err)
	ev = <-events
	assert.Equal(t, Created, ev.Type)
	assert.Equal(t, "new", ev.Object.GetMeta().Name)

	require.NoError(t, st.Delete(models.KindPod, "default", "new"))
	ev = <-events
	assert.Equal(t, Deleted, ev.Type)
	assert.NotNil(t, ev.Object.GetMeta().DeletionTimestamp)
}

func TestWatchUpdateCarriesBeforeAndAfter(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Create(testPod("web", map[string]string{"v": "1"}))
	require.NoError(t, err)

	events, cancel := st.Watch(models.KindPod)
	defer cancel()
	<-events // initial sync

	incoming := testPod("web", map[string]string{"v": "2"})
	_, err = st.Update(incoming)
	require.NoError(t, err)

	ev := <-events
	require.Equal(t, Updated, ev.Type)
	require.NotNil(t, ev.Old)
	assert.Equal(t, "1", ev.Old.GetMeta().Labels["v"])
	assert.Equal(t, "2", ev.Object.GetMeta().Labels["v"])
}

func TestOwnershipCycleRejected(t *testing.T) {
	st := newTestStore(t)
	created, err := st.Create(testPod("a", nil))
	require.NoError(t, err)

	self := created.(*models.Pod)
	_, err = st.SetOwnerReferences(models.KindPod, "default", "a", []models.OwnerReference{
		{Kind: models.KindPod, Name: "a", UID: self.Metadata.UID},
	})
	assert.Error(t, err)
}

func TestKeysIncludeMarkedDeleted(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Create(testPod("web", nil))
	require.NoError(t, err)
	require.NoError(t, st.Delete(models.KindPod, "default", "web"))

	keys := st.Keys(models.KindPod)
	require.Len(t, keys, 1)
	assert.Equal(t, "web", keys[0].Name)
}
