package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/picokube/picokube/engine"
	"github.com/picokube/picokube/models"
	"github.com/picokube/picokube/runtime"
	"github.com/picokube/picokube/store"
)

// PodController drives each Pod through its phase machine: it starts the
// container for Pending pods, watches Running ones for exits and drift, and
// finalizes deletion by removing the container before the store entry.
type PodController struct {
	store   *store.Store
	runtime runtime.Runtime
	log     *slog.Logger
}

func NewPodController(st *store.Store, rt runtime.Runtime, log *slog.Logger) *PodController {
	if log == nil {
		log = slog.Default()
	}
	return &PodController{store: st, runtime: rt, log: log.With("controller", "pod")}
}

// EngineController wires the controller's triggers for the engine.
func (c *PodController) EngineController() engine.Controller {
	return engine.Controller{
		Name:      "pod",
		Kind:      models.KindPod,
		Reconcile: c.Reconcile,
		Watches: []engine.Watch{
			{Kind: models.KindPod, Map: func(ev store.Event) []models.Key {
				return []models.Key{ev.Key()}
			}},
		},
	}
}

func (c *PodController) Reconcile(ctx context.Context, key models.Key) error {
	obj, err := c.store.Get(models.KindPod, key.Namespace, key.Name)
	if models.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	pod := obj.(*models.Pod)

	if pod.Metadata.DeletionTimestamp != nil {
		return c.terminate(ctx, pod)
	}

	switch pod.Status.Phase {
	case "", models.PodPending:
		if pod.Status.ContainerID != "" {
			// Started but the phase write raced a restart; fall through to
			// observation.
			return c.observe(ctx, pod)
		}
		return c.start(ctx, pod)
	case models.PodRunning:
		return c.observe(ctx, pod)
	default:
		return nil
	}
}

// start creates the container for a Pending pod.
func (c *PodController) start(ctx context.Context, pod *models.Pod) error {
	network, err := c.runtime.EnsureNetwork(ctx)
	if err != nil {
		return err
	}

	name := runtime.PodContainerName(pod.Metadata.Namespace, pod.Metadata.Name)
	spec := pod.Spec.Containers[0]

	labels := make(map[string]string, len(pod.Metadata.Labels)+2)
	for k, v := range pod.Metadata.Labels {
		labels[k] = v
	}
	labels[runtime.LabelPod] = pod.Metadata.Name
	labels[runtime.LabelNamespace] = pod.Metadata.Namespace

	res, err := c.runtime.RunContainer(ctx, runtime.ContainerConfig{
		Name:    name,
		Image:   spec.Image,
		Env:     spec.Env,
		Labels:  labels,
		Network: network,
		Aliases: []string{pod.Metadata.Name},
	})
	if err != nil {
		switch runtime.ReasonOf(err) {
		case runtime.ImagePullFailed:
			// Fatal for this pod; a controller may create a replacement.
			pod.Status.Phase = models.PodFailed
			pod.Status.Conditions = models.SetCondition(pod.Status.Conditions, models.Condition{
				Type:    "ContainerReady",
				Status:  "False",
				Reason:  string(runtime.ImagePullFailed),
				Message: err.Error(),
			})
			return c.updateStatus(pod)
		case runtime.NameConflict:
			// A stale container holds the name; clear it and retry.
			_ = c.runtime.StopAndRemove(ctx, name)
			return err
		default:
			c.recordTransient(pod, err)
			return err
		}
	}

	pod.Status.Phase = models.PodRunning
	pod.Status.ContainerID = res.ContainerID
	pod.Status.PodIP = res.PodIP
	pod.Status.Conditions = models.SetCondition(pod.Status.Conditions, models.Condition{
		Type: "ContainerReady", Status: "True", Reason: "Started",
	})
	if err := c.updateStatus(pod); models.IsNotFound(err) {
		// The pod vanished while we were starting it; don't leak the container.
		_ = c.runtime.StopAndRemove(ctx, res.ContainerID)
		return nil
	} else if err != nil {
		return err
	}
	c.log.Info("pod running",
		"pod", pod.Metadata.Namespace+"/"+pod.Metadata.Name, "ip", res.PodIP)
	return nil
}

// observe inspects the container behind a Running pod and records exits and
// drift.
func (c *PodController) observe(ctx context.Context, pod *models.Pod) error {
	st, err := c.runtime.Inspect(ctx, pod.Status.ContainerID)
	if err != nil {
		return err
	}

	switch st.State {
	case runtime.StateRunning:
		return nil
	case runtime.StateExited:
		if st.ExitCode == 0 {
			pod.Status.Phase = models.PodSucceeded
			pod.Status.Conditions = models.SetCondition(pod.Status.Conditions, models.Condition{
				Type: "ContainerReady", Status: "False", Reason: "ContainerExited",
			})
		} else {
			pod.Status.Phase = models.PodFailed
			pod.Status.Conditions = models.SetCondition(pod.Status.Conditions, models.Condition{
				Type:    "ContainerReady",
				Status:  "False",
				Reason:  "ContainerExited",
				Message: fmt.Sprintf("container exited with code %d", st.ExitCode),
			})
		}
	case runtime.StateMissing:
		pod.Status.Phase = models.PodFailed
		pod.Status.Conditions = models.SetCondition(pod.Status.Conditions, models.Condition{
			Type:    "ContainerReady",
			Status:  "False",
			Reason:  "ContainerDisappeared",
			Message: "runtime no longer reports the container",
		})
	}
	c.log.Info("pod left running phase",
		"pod", pod.Metadata.Namespace+"/"+pod.Metadata.Name, "phase", pod.Status.Phase)
	return c.updateStatus(pod)
}

// terminate removes the runtime container, then the store entry. Idempotent
// against concurrent cascading sweeps.
func (c *PodController) terminate(ctx context.Context, pod *models.Pod) error {
	target := pod.Status.ContainerID
	if target == "" {
		target = runtime.PodContainerName(pod.Metadata.Namespace, pod.Metadata.Name)
	}
	if err := c.runtime.StopAndRemove(ctx, target); err != nil {
		return err
	}
	err := c.store.Finalize(models.KindPod, pod.Metadata.Namespace, pod.Metadata.Name)
	if models.IsNotFound(err) {
		return nil
	}
	return err
}

// recordTransient surfaces a retryable failure in status.conditions, writing
// only when the condition actually changed so retries don't storm the event
// feed.
func (c *PodController) recordTransient(pod *models.Pod, cause error) {
	cond := models.Condition{
		Type:    "ContainerReady",
		Status:  "False",
		Reason:  string(models.CodeRuntimeTransient),
		Message: cause.Error(),
	}
	for _, existing := range pod.Status.Conditions {
		if existing.Type == cond.Type && existing.Reason == cond.Reason && existing.Message == cond.Message {
			return
		}
	}
	pod.Status.Conditions = models.SetCondition(pod.Status.Conditions, cond)
	_ = c.updateStatus(pod)
}

func (c *PodController) updateStatus(pod *models.Pod) error {
	_, err := c.store.UpdateStatus(pod)
	return err
}
