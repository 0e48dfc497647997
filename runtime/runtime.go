package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/picokube/picokube/models"
)

// NetworkName is the user-defined bridge network all pods live in.
const NetworkName = "orchestrator-net"

// Runtime labels stamped onto every container the orchestrator creates, so
// external tooling (and the startup sweep) can inventory orchestrator-owned
// containers.
const (
	LabelPod       = "orchestrator/pod"
	LabelNamespace = "orchestrator/namespace"
	LabelService   = "orchestrator/service"
)

// Default per-call timeouts for runtime operations.
const (
	StartTimeout   = 30 * time.Second
	StopTimeout    = 10 * time.Second
	InspectTimeout = 5 * time.Second
)

// ContainerState is the observed state of a container.
type ContainerState string

const (
	StateRunning ContainerState = "running"
	StateExited  ContainerState = "exited"
	StateMissing ContainerState = "missing"
)

// Status is the result of inspecting a container.
type Status struct {
	State    ContainerState
	ExitCode int
}

// RunResult identifies a started container.
type RunResult struct {
	ContainerID string
	PodIP       string
}

// ContainerConfig describes a pod container to start.
type ContainerConfig struct {
	Name    string
	Image   string
	Env     map[string]string
	Labels  map[string]string
	Network string
	Aliases []string
}

// LBConfig describes the L4 proxy container for a Service. The proxy binds
// each service port on the host and forwards to the endpoint set.
type LBConfig struct {
	Name      string
	Namespace string
	Ports     []models.ServicePort
	Endpoints []models.Endpoint
	Network   string
}

// Runtime is the boundary to the external container engine. All calls may
// block on process spawn or network I/O and must never run under the store's
// write lock.
type Runtime interface {
	// EnsureNetwork creates the shared bridge network if needed and returns
	// its name. Idempotent and safe to call from any worker.
	EnsureNetwork(ctx context.Context) (string, error)

	// RunContainer starts a detached container attached to the network and
	// returns its id and in-network IP.
	RunContainer(ctx context.Context, cfg ContainerConfig) (RunResult, error)

	// Inspect reports the container's state.
	Inspect(ctx context.Context, containerID string) (Status, error)

	// StopAndRemove force-removes a container by id or name. Best-effort and
	// idempotent; removing an absent container is not an error.
	StopAndRemove(ctx context.Context, idOrName string) error

	// StartLoadBalancer starts the proxy container for a Service and returns
	// its container id.
	StartLoadBalancer(ctx context.Context, cfg LBConfig) (string, error)

	// UpdateLoadBalancer pushes a new endpoint set, restarting the proxy when
	// the engine has no live reconfiguration channel. Returns the (possibly
	// new) container id.
	UpdateLoadBalancer(ctx context.Context, id string, cfg LBConfig) (string, error)

	// StopLoadBalancer removes the proxy container. Idempotent.
	StopLoadBalancer(ctx context.Context, id string) error

	// PruneOrphans removes every container carrying the orchestrator label
	// prefix. Called once at startup, before the engine runs.
	PruneOrphans(ctx context.Context) error
}

// PodContainerName is the naming convention for pod containers. It keeps
// names partitioned across namespaces and survives adapter restarts.
func PodContainerName(namespace, podName string) string {
	return fmt.Sprintf("%s-%s", namespace, podName)
}

// LBContainerName names the proxy container so the network's auto-DNS makes
// the service reachable by name.
func LBContainerName(namespace, serviceName string) string {
	return fmt.Sprintf("%s-svc-%s", namespace, serviceName)
}

// ErrorReason classifies runtime failures.
type ErrorReason string

const (
	ImagePullFailed ErrorReason = "ImagePullFailed"
	NameConflict    ErrorReason = "NameConflict"
	OtherFailure    ErrorReason = "Other"
)

// Error is a classified runtime failure. ImagePullFailed is fatal for the pod
// that hit it; everything else is retried with backoff.
type Error struct {
	Reason ErrorReason
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("runtime %s: %s: %v", e.Op, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf extracts the classification of a runtime error, defaulting to
// OtherFailure for unclassified errors.
func ReasonOf(err error) ErrorReason {
	var re *Error
	if errors.As(err, &re) {
		return re.Reason
	}
	return OtherFailure
}
