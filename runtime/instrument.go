package runtime

import (
	"context"

	"github.com/picokube/picokube/observability"
)

// Instrumented wraps a Runtime and counts every operation.
type Instrumented struct {
	Runtime
	Metrics *observability.Metrics
}

func Instrument(rt Runtime, m *observability.Metrics) *Instrumented {
	return &Instrumented{Runtime: rt, Metrics: m}
}

func (i *Instrumented) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	i.Metrics.RuntimeOps.WithLabelValues(op, result).Inc()
}

func (i *Instrumented) EnsureNetwork(ctx context.Context) (string, error) {
	name, err := i.Runtime.EnsureNetwork(ctx)
	i.observe("ensureNetwork", err)
	return name, err
}

func (i *Instrumented) RunContainer(ctx context.Context, cfg ContainerConfig) (RunResult, error) {
	res, err := i.Runtime.RunContainer(ctx, cfg)
	i.observe("runContainer", err)
	return res, err
}

func (i *Instrumented) Inspect(ctx context.Context, containerID string) (Status, error) {
	st, err := i.Runtime.Inspect(ctx, containerID)
	i.observe("inspect", err)
	return st, err
}

func (i *Instrumented) StopAndRemove(ctx context.Context, idOrName string) error {
	err := i.Runtime.StopAndRemove(ctx, idOrName)
	i.observe("stopAndRemove", err)
	return err
}

func (i *Instrumented) StartLoadBalancer(ctx context.Context, cfg LBConfig) (string, error) {
	id, err := i.Runtime.StartLoadBalancer(ctx, cfg)
	i.observe("startLoadBalancer", err)
	return id, err
}

func (i *Instrumented) UpdateLoadBalancer(ctx context.Context, id string, cfg LBConfig) (string, error) {
	newID, err := i.Runtime.UpdateLoadBalancer(ctx, id, cfg)
	i.observe("updateLoadBalancer", err)
	return newID, err
}

func (i *Instrumented) StopLoadBalancer(ctx context.Context, id string) error {
	err := i.Runtime.StopLoadBalancer(ctx, id)
	i.observe("stopLoadBalancer", err)
	return err
}

func (i *Instrumented) PruneOrphans(ctx context.Context) error {
	err := i.Runtime.PruneOrphans(ctx)
	i.observe("pruneOrphans", err)
	return err
}
