package controller

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/picokube/picokube/engine"
	"github.com/picokube/picokube/models"
	"github.com/picokube/picokube/runtime"
	"github.com/picokube/picokube/store"
)

// ServiceController derives each Service's endpoint set from the Running
// pods matching its selector and programs the L4 load balancer accordingly.
// Selection is restricted to the Service's own namespace.
type ServiceController struct {
	store   *store.Store
	runtime runtime.Runtime
	log     *slog.Logger

	mu        sync.Mutex
	programmed map[models.Key][]models.ServicePort // ports the live LB binds
}

func NewServiceController(st *store.Store, rt runtime.Runtime, log *slog.Logger) *ServiceController {
	if log == nil {
		log = slog.Default()
	}
	return &ServiceController{
		store:      st,
		runtime:    rt,
		log:        log.With("controller", "service"),
		programmed: make(map[models.Key][]models.ServicePort),
	}
}

func (c *ServiceController) EngineController() engine.Controller {
	return engine.Controller{
		Name:      "service",
		Kind:      models.KindService,
		Reconcile: c.Reconcile,
		Watches: []engine.Watch{
			{Kind: models.KindService, Map: func(ev store.Event) []models.Key {
				return []models.Key{ev.Key()}
			}},
			// Any pod change may move endpoints; wake every service in the
			// pod's namespace and let the reconcile no-op where nothing moved.
			{Kind: models.KindPod, Map: c.servicesInNamespace},
		},
	}
}

func (c *ServiceController) servicesInNamespace(ev store.Event) []models.Key {
	ns := ev.Object.GetMeta().Namespace
	var keys []models.Key
	for _, obj := range c.store.List(models.KindService, ns, nil) {
		keys = append(keys, models.KeyFor(obj))
	}
	return keys
}

func (c *ServiceController) Reconcile(ctx context.Context, key models.Key) error {
	obj, err := c.store.Get(models.KindService, key.Namespace, key.Name)
	if models.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	svc := obj.(*models.Service)

	if svc.Metadata.DeletionTimestamp != nil {
		return c.teardown(ctx, key, svc)
	}

	endpoints := c.computeEndpoints(svc)
	ports := effectivePorts(svc.Spec.Ports)
	cfg := runtime.LBConfig{
		Name:      svc.Metadata.Name,
		Namespace: svc.Metadata.Namespace,
		Ports:     ports,
		Endpoints: endpoints,
		Network:   runtime.NetworkName,
	}

	if svc.Status.LoadBalancerID == "" {
		network, err := c.runtime.EnsureNetwork(ctx)
		if err != nil {
			return err
		}
		cfg.Network = network
		id, err := c.runtime.StartLoadBalancer(ctx, cfg)
		if err != nil {
			return err
		}
		c.setProgrammed(key, ports)
		svc.Status.LoadBalancerID = id
		svc.Status.Endpoints = endpoints
		c.log.Info("load balancer programmed",
			"service", key.Namespace+"/"+key.Name, "endpoints", len(endpoints))
		return c.updateStatus(ctx, svc, id)
	}

	if !portsEqual(c.getProgrammed(key), ports) {
		// The host ports the proxy binds changed; a restart is required.
		if err := c.runtime.StopLoadBalancer(ctx, svc.Status.LoadBalancerID); err != nil {
			return err
		}
		id, err := c.runtime.StartLoadBalancer(ctx, cfg)
		if err != nil {
			return err
		}
		c.setProgrammed(key, ports)
		svc.Status.LoadBalancerID = id
		svc.Status.Endpoints = endpoints
		c.log.Info("load balancer restarted for port change",
			"service", key.Namespace+"/"+key.Name)
		return c.updateStatus(ctx, svc, id)
	}

	if !endpointsEqual(svc.Status.Endpoints, endpoints) {
		id, err := c.runtime.UpdateLoadBalancer(ctx, svc.Status.LoadBalancerID, cfg)
		if err != nil {
			return err
		}
		svc.Status.LoadBalancerID = id
		svc.Status.Endpoints = endpoints
		c.log.Info("endpoints updated",
			"service", key.Namespace+"/"+key.Name, "endpoints", len(endpoints))
		return c.updateStatus(ctx, svc, id)
	}
	return nil
}

// teardown stops the load balancer and removes the store entry. A Service
// owns no pods, so nothing else cascades.
func (c *ServiceController) teardown(ctx context.Context, key models.Key, svc *models.Service) error {
	if svc.Status.LoadBalancerID != "" {
		if err := c.runtime.StopLoadBalancer(ctx, svc.Status.LoadBalancerID); err != nil {
			return err
		}
	}
	c.mu.Lock()
	delete(c.programmed, key)
	c.mu.Unlock()
	err := c.store.Finalize(models.KindService, key.Namespace, key.Name)
	if models.IsNotFound(err) {
		return nil
	}
	return err
}

// computeEndpoints selects Running pods with an IP matching the selector and
// crosses them with the service's target ports. The result is sorted so
// comparisons are stable.
func (c *ServiceController) computeEndpoints(svc *models.Service) []models.Endpoint {
	var endpoints []models.Endpoint
	for _, obj := range c.store.List(models.KindPod, svc.Metadata.Namespace, svc.Spec.Selector) {
		pod := obj.(*models.Pod)
		if pod.Metadata.DeletionTimestamp != nil {
			continue
		}
		if pod.Status.Phase != models.PodRunning || pod.Status.PodIP == "" {
			continue
		}
		for _, port := range svc.Spec.Ports {
			endpoints = append(endpoints, models.Endpoint{
				IP:   pod.Status.PodIP,
				Port: port.Effective().TargetPort,
			})
		}
	}
	sort.Slice(endpoints, func(i, j int) bool {
		if endpoints[i].IP != endpoints[j].IP {
			return endpoints[i].IP < endpoints[j].IP
		}
		return endpoints[i].Port < endpoints[j].Port
	})
	return endpoints
}

func (c *ServiceController) updateStatus(_ context.Context, svc *models.Service, _ string) error {
	_, err := c.store.UpdateStatus(svc)
	if models.IsNotFound(err) {
		return nil
	}
	return err
}

func (c *ServiceController) setProgrammed(key models.Key, ports []models.ServicePort) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programmed[key] = ports
}

func (c *ServiceController) getProgrammed(key models.Key) []models.ServicePort {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.programmed[key]
}

func effectivePorts(ports []models.ServicePort) []models.ServicePort {
	out := make([]models.ServicePort, len(ports))
	for i, p := range ports {
		out[i] = p.Effective()
	}
	return out
}

func portsEqual(a, b []models.ServicePort) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func endpointsEqual(a, b []models.Endpoint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
