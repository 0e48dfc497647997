package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/picokube/picokube/models"
	"github.com/picokube/picokube/observability"
	"github.com/picokube/picokube/store"
)

// ReconcileFunc converges one object toward its desired state. It must be
// idempotent: safe to run on an unchanged world, computing actions from a
// comparison of observed and desired state rather than from a diff.
type ReconcileFunc func(ctx context.Context, key models.Key) error

// Watch maps events of some kind onto the keys a controller should wake for.
type Watch struct {
	Kind string
	Map  func(ev store.Event) []models.Key
}

// Controller is a reconcile function plus its trigger set. The engine owns
// all scheduling.
type Controller struct {
	Name      string
	Kind      string // the kind this controller owns; ticked periodically
	Reconcile ReconcileFunc
	Watches   []Watch
}

// Options tune the engine's timing.
type Options struct {
	TickInterval time.Duration // hybrid-trigger tick; must stay at or below 5s
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	GracePeriod  time.Duration // shutdown wait for in-flight reconciles
}

func (o *Options) withDefaults() {
	if o.TickInterval == 0 {
		o.TickInterval = 2 * time.Second
	}
	if o.BackoffBase == 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap == 0 {
		o.BackoffCap = 30 * time.Second
	}
	if o.GracePeriod == 0 {
		o.GracePeriod = 10 * time.Second
	}
}

// Engine multiplexes all controllers: it pumps store events and periodic
// ticks into per-controller keyed queues and runs one worker per controller,
// with per-key exponential backoff on failure.
type Engine struct {
	store   *store.Store
	metrics *observability.Metrics
	log     *slog.Logger
	opts    Options

	controllers []*registered
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     atomic.Bool
}

type registered struct {
	Controller
	queue *workQueue

	mu       sync.Mutex
	failures map[models.Key]int
}

func New(st *store.Store, metrics *observability.Metrics, log *slog.Logger, opts Options) *Engine {
	if log == nil {
		log = slog.Default()
	}
	opts.withDefaults()
	return &Engine{
		store:   st,
		metrics: metrics,
		log:     log.With("component", "engine"),
		opts:    opts,
	}
}

// Register adds a controller. Must be called before Start.
func (e *Engine) Register(c Controller) {
	e.controllers = append(e.controllers, &registered{
		Controller: c,
		queue:      newWorkQueue(),
		failures:   make(map[models.Key]int),
	})
}

// Start launches all pumps and workers. It returns once everything is
// running; reconciliation continues until Stop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	for _, c := range e.controllers {
		for _, w := range c.Watches {
			e.startWatchPump(ctx, c, w)
		}
		e.startTicker(ctx, c)
		e.startWorker(ctx, c)
	}
	e.started.Store(true)
	e.log.Info("engine started", "controllers", len(e.controllers), "tick", e.opts.TickInterval)
}

// Started reports whether the engine is running; the API's health check
// gates on it.
func (e *Engine) Started() bool { return e.started.Load() }

// Stop signals all workers and waits up to the grace period for in-flight
// reconciles to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	for _, c := range e.controllers {
		c.queue.ShutDown()
	}
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(e.opts.GracePeriod):
		e.log.Warn("grace period elapsed, abandoning in-flight reconciles")
	}
	e.started.Store(false)
}

func (e *Engine) startWatchPump(ctx context.Context, c *registered, w Watch) {
	events, cancel := e.store.Watch(w.Kind)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				for _, key := range w.Map(ev) {
					c.queue.Add(key)
				}
			}
		}
	}()
}

func (e *Engine) startTicker(ctx context.Context, c *registered) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.opts.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, key := range e.store.Keys(c.Kind) {
					c.queue.Add(key)
				}
			}
		}
	}()
}

func (e *Engine) startWorker(ctx context.Context, c *registered) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			key, ok := c.queue.Get()
			if !ok {
				return
			}
			e.reconcileOne(ctx, c, key)
			if e.metrics != nil {
				e.metrics.QueueDepth.WithLabelValues(c.Name).Set(float64(c.queue.Len()))
			}
		}
	}()
}

func (e *Engine) reconcileOne(ctx context.Context, c *registered, key models.Key) {
	start := time.Now()
	err := c.Reconcile(ctx, key)
	c.queue.Done(key)

	result := "ok"
	if err != nil {
		result = "error"
	}
	if e.metrics != nil {
		e.metrics.ReconcileTotal.WithLabelValues(c.Name, result).Inc()
		e.metrics.ReconcileDuration.WithLabelValues(c.Name).Observe(time.Since(start).Seconds())
	}

	if err == nil {
		c.mu.Lock()
		delete(c.failures, key)
		c.mu.Unlock()
		return
	}
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	c.failures[key]++
	n := c.failures[key]
	c.mu.Unlock()

	delay := e.backoffDelay(n)
	e.log.Warn("reconcile failed, backing off",
		"controller", c.Name, "key", key.String(), "attempt", n, "delay", delay, "error", err)
	time.AfterFunc(delay, func() {
		if ctx.Err() == nil {
			c.queue.Add(key)
		}
	})
}

func (e *Engine) backoffDelay(failures int) time.Duration {
	delay := e.opts.BackoffBase
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= e.opts.BackoffCap {
			return e.opts.BackoffCap
		}
	}
	if delay > e.opts.BackoffCap {
		delay = e.opts.BackoffCap
	}
	return delay
}
