package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/picokube/picokube/models"
)

// FakeContainer is the fake's record of a started container.
type FakeContainer struct {
	ID       string
	Name     string
	IP       string
	Image    string
	Env      map[string]string
	Labels   map[string]string
	Aliases  []string
	State    ContainerState
	ExitCode int
}

// Fake is an in-memory Runtime for tests. It simulates container states,
// classified failures, and load-balancer reconfiguration, and counts every
// call so tests can assert that a quiescent reconcile makes no
// state-changing runtime calls.
type Fake struct {
	mu sync.Mutex

	nextID     int
	nextIP     int
	network    bool
	containers map[string]*FakeContainer // by name
	lbs        map[string]LBConfig       // by container id

	failImages   map[string]bool
	transientErr int

	ops map[string]int
}

func NewFake() *Fake {
	return &Fake{
		containers: make(map[string]*FakeContainer),
		lbs:        make(map[string]LBConfig),
		failImages: make(map[string]bool),
		ops:        make(map[string]int),
	}
}

func (f *Fake) count(op string) { f.ops[op]++ }

func (f *Fake) EnsureNetwork(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("ensureNetwork")
	f.network = true
	return NetworkName, nil
}

func (f *Fake) RunContainer(_ context.Context, cfg ContainerConfig) (RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("runContainer")

	if f.transientErr > 0 {
		f.transientErr--
		return RunResult{}, &Error{Reason: OtherFailure, Op: "run", Err: fmt.Errorf("injected transient failure")}
	}
	if f.failImages[cfg.Image] {
		return RunResult{}, &Error{Reason: ImagePullFailed, Op: "run", Err: fmt.Errorf("image %q not found", cfg.Image)}
	}
	if _, exists := f.containers[cfg.Name]; exists {
		return RunResult{}, &Error{Reason: NameConflict, Op: "run", Err: fmt.Errorf("name %q already in use", cfg.Name)}
	}

	f.nextID++
	f.nextIP++
	c := &FakeContainer{
		ID:      fmt.Sprintf("fake-%06d", f.nextID),
		Name:    cfg.Name,
		IP:      fmt.Sprintf("10.89.0.%d", f.nextIP),
		Image:   cfg.Image,
		Env:     cfg.Env,
		Labels:  cfg.Labels,
		Aliases: cfg.Aliases,
		State:   StateRunning,
	}
	f.containers[cfg.Name] = c
	return RunResult{ContainerID: c.ID, PodIP: c.IP}, nil
}

func (f *Fake) Inspect(_ context.Context, containerID string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("inspect")
	c := f.byIDLocked(containerID)
	if c == nil {
		return Status{State: StateMissing}, nil
	}
	return Status{State: c.State, ExitCode: c.ExitCode}, nil
}

func (f *Fake) StopAndRemove(_ context.Context, idOrName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("stopAndRemove")
	for name, c := range f.containers {
		if c.ID == idOrName || name == idOrName {
			delete(f.containers, name)
			return nil
		}
	}
	delete(f.lbs, idOrName)
	return nil
}

func (f *Fake) StartLoadBalancer(_ context.Context, cfg LBConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("startLoadBalancer")
	f.nextID++
	id := fmt.Sprintf("fake-lb-%06d", f.nextID)
	f.lbs[id] = cloneLBConfig(cfg)
	return id, nil
}

// UpdateLoadBalancer applies the new endpoint set in place; the fake engine
// supports live reconfiguration, so the id is stable.
func (f *Fake) UpdateLoadBalancer(_ context.Context, id string, cfg LBConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("updateLoadBalancer")
	if _, ok := f.lbs[id]; !ok {
		return "", &Error{Reason: OtherFailure, Op: "lb-update", Err: fmt.Errorf("load balancer %q missing", id)}
	}
	f.lbs[id] = cloneLBConfig(cfg)
	return id, nil
}

func (f *Fake) StopLoadBalancer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("stopLoadBalancer")
	delete(f.lbs, id)
	return nil
}

func (f *Fake) PruneOrphans(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("pruneOrphans")
	f.containers = make(map[string]*FakeContainer)
	f.lbs = make(map[string]LBConfig)
	return nil
}

// --- test hooks ---

// SetImagePullError makes every RunContainer of image fail as ImagePullFailed.
func (f *Fake) SetImagePullError(image string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failImages[image] = true
}

// FailNextRuns injects n transient RunContainer failures.
func (f *Fake) FailNextRuns(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transientErr = n
}

// MarkExited flips a running container to exited with the given code.
func (f *Fake) MarkExited(idOrName string, exitCode int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, c := range f.containers {
		if c.ID == idOrName || name == idOrName {
			c.State = StateExited
			c.ExitCode = exitCode
			return true
		}
	}
	return false
}

// RemoveOutOfBand deletes a container as if an operator ran `rm -f` behind
// the orchestrator's back.
func (f *Fake) RemoveOutOfBand(idOrName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, c := range f.containers {
		if c.ID == idOrName || name == idOrName {
			delete(f.containers, name)
			return true
		}
	}
	return false
}

// ContainerByName returns a copy of the named container's record.
func (f *Fake) ContainerByName(name string) (FakeContainer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return FakeContainer{}, false
	}
	return *c, true
}

// RunningCount returns the number of containers in running state.
func (f *Fake) RunningCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.containers {
		if c.State == StateRunning {
			n++
		}
	}
	return n
}

// LB returns the current config of a load balancer.
func (f *Fake) LB(id string) (LBConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.lbs[id]
	return cfg, ok
}

// LBCount returns the number of live load balancers.
func (f *Fake) LBCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lbs)
}

// OpCount returns how often a runtime operation ran.
func (f *Fake) OpCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ops[op]
}

// MutatingOps returns the total count of state-changing runtime calls;
// inspections and network checks are excluded. A reconcile pass over a
// quiescent world must not move this number.
func (f *Fake) MutatingOps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for op, n := range f.ops {
		switch op {
		case "inspect", "ensureNetwork", "pruneOrphans":
		default:
			total += n
		}
	}
	return total
}

func (f *Fake) byIDLocked(id string) *FakeContainer {
	for _, c := range f.containers {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func cloneLBConfig(cfg LBConfig) LBConfig {
	out := cfg
	out.Ports = append([]models.ServicePort(nil), cfg.Ports...)
	out.Endpoints = append([]models.Endpoint(nil), cfg.Endpoints...)
	return out
}
