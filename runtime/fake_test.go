package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picokube/picokube/models"
)

func TestFakeContainerLifecycle(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	network, err := f.EnsureNetwork(ctx)
	require.NoError(t, err)
	assert.Equal(t, NetworkName, network)

	res, err := f.RunContainer(ctx, ContainerConfig{
		Name: "default-web", Image: "nginx", Network: network,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ContainerID)
	assert.NotEmpty(t, res.PodIP)

	st, err := f.Inspect(ctx, res.ContainerID)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)

	// Duplicate names are a conflict, like the real engine.
	_, err = f.RunContainer(ctx, ContainerConfig{Name: "default-web", Image: "nginx"})
	require.Error(t, err)
	assert.Equal(t, NameConflict, ReasonOf(err))

	f.MarkExited("default-web", 2)
	st, err = f.Inspect(ctx, res.ContainerID)
	require.NoError(t, err)
	assert.Equal(t, StateExited, st.State)
	assert.Equal(t, 2, st.ExitCode)

	require.NoError(t, f.StopAndRemove(ctx, res.ContainerID))
	st, err = f.Inspect(ctx, res.ContainerID)
	require.NoError(t, err)
	assert.Equal(t, StateMissing, st.State)

	// Removing again is fine.
	require.NoError(t, f.StopAndRemove(ctx, res.ContainerID))
}

func TestFakeFailureInjection(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	f.SetImagePullError("ghost:latest")
	_, err := f.RunContainer(ctx, ContainerConfig{Name: "a", Image: "ghost:latest"})
	require.Error(t, err)
	assert.Equal(t, ImagePullFailed, ReasonOf(err))

	f.FailNextRuns(1)
	_, err = f.RunContainer(ctx, ContainerConfig{Name: "b", Image: "nginx"})
	require.Error(t, err)
	assert.Equal(t, OtherFailure, ReasonOf(err))

	_, err = f.RunContainer(ctx, ContainerConfig{Name: "b", Image: "nginx"})
	require.NoError(t, err, "transient failures clear")
}

func TestFakeLoadBalancer(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	cfg := LBConfig{
		Name:      "web",
		Namespace: "default",
		Ports:     []models.ServicePort{{Port: 2000, TargetPort: 5000, Protocol: "TCP"}},
		Endpoints: []models.Endpoint{{IP: "10.89.0.2", Port: 5000}},
		Network:   NetworkName,
	}
	id, err := f.StartLoadBalancer(ctx, cfg)
	require.NoError(t, err)

	cfg.Endpoints = append(cfg.Endpoints, models.Endpoint{IP: "10.89.0.3", Port: 5000})
	sameID, err := f.UpdateLoadBalancer(ctx, id, cfg)
	require.NoError(t, err)
	assert.Equal(t, id, sameID, "fake supports live reconfiguration")

	got, ok := f.LB(id)
	require.True(t, ok)
	assert.Len(t, got.Endpoints, 2)

	require.NoError(t, f.StopLoadBalancer(ctx, id))
	_, ok = f.LB(id)
	assert.False(t, ok)
	require.NoError(t, f.StopLoadBalancer(ctx, id))
}

func TestFakePruneOrphans(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	_, err := f.RunContainer(ctx, ContainerConfig{Name: "default-web", Image: "nginx"})
	require.NoError(t, err)
	require.NoError(t, f.PruneOrphans(ctx))
	assert.Equal(t, 0, f.RunningCount())
}

func TestClassifyRuntimeErrors(t *testing.T) {
	assert.Equal(t, ImagePullFailed, classify(`Error: initializing source docker://ghost: manifest unknown`))
	assert.Equal(t, ImagePullFailed, classify(`Error: unable to pull registry.example.com/app`))
	assert.Equal(t, NameConflict, classify(`Error: creating container: name "default-web" is already in use`))
	assert.Equal(t, OtherFailure, classify(`Error: OCI runtime error`))
}

func TestContainerNaming(t *testing.T) {
	assert.Equal(t, "default-web", PodContainerName("default", "web"))
	assert.Equal(t, "default-svc-health", LBContainerName("default", "health"))
}
