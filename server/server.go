package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/picokube/picokube/observability"
	"github.com/picokube/picokube/store"
)

// Readiness gates the health endpoint on the engine having started.
type Readiness interface {
	Started() bool
}

// APIServer is the thin REST adapter onto store operations. It performs no
// controller logic: after a successful write, controllers observe the change
// and converge asynchronously.
type APIServer struct {
	store   *store.Store
	ready   Readiness
	metrics *observability.Metrics
	log     *slog.Logger

	router *mux.Router
	http   *http.Server
}

func NewAPIServer(st *store.Store, ready Readiness, metrics *observability.Metrics, log *slog.Logger) *APIServer {
	if log == nil {
		log = slog.Default()
	}
	s := &APIServer{
		store:   st,
		ready:   ready,
		metrics: metrics,
		log:     log.With("component", "api"),
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *APIServer) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	// Core group: pods and services.
	core := s.router.PathPrefix("/api/v1").Subrouter()
	core.HandleFunc("/pods", s.listPods).Methods("GET")
	core.HandleFunc("/services", s.listServices).Methods("GET")
	core.HandleFunc("/namespaces/{namespace}/pods", s.createPod).Methods("POST")
	core.HandleFunc("/namespaces/{namespace}/pods", s.listPods).Methods("GET")
	core.HandleFunc("/namespaces/{namespace}/pods/{name}", s.getPod).Methods("GET")
	core.HandleFunc("/namespaces/{namespace}/pods/{name}", s.updatePod).Methods("PUT")
	core.HandleFunc("/namespaces/{namespace}/pods/{name}", s.deletePod).Methods("DELETE")
	core.HandleFunc("/namespaces/{namespace}/services", s.createService).Methods("POST")
	core.HandleFunc("/namespaces/{namespace}/services", s.listServices).Methods("GET")
	core.HandleFunc("/namespaces/{namespace}/services/{name}", s.getService).Methods("GET")
	core.HandleFunc("/namespaces/{namespace}/services/{name}", s.updateService).Methods("PUT")
	core.HandleFunc("/namespaces/{namespace}/services/{name}", s.deleteService).Methods("DELETE")

	// Apps group: replicasets.
	apps := s.router.PathPrefix("/api/apps/v1").Subrouter()
	apps.HandleFunc("/replicasets", s.listReplicaSets).Methods("GET")
	apps.HandleFunc("/namespaces/{namespace}/replicasets", s.createReplicaSet).Methods("POST")
	apps.HandleFunc("/namespaces/{namespace}/replicasets", s.listReplicaSets).Methods("GET")
	apps.HandleFunc("/namespaces/{namespace}/replicasets/{name}", s.getReplicaSet).Methods("GET")
	apps.HandleFunc("/namespaces/{namespace}/replicasets/{name}", s.updateReplicaSet).Methods("PUT")
	apps.HandleFunc("/namespaces/{namespace}/replicasets/{name}", s.deleteReplicaSet).Methods("DELETE")
}

// Handler exposes the router for tests.
func (s *APIServer) Handler() http.Handler { return s.router }

// Start begins serving and blocks until the listener fails or Shutdown runs.
func (s *APIServer) Start(port int) error {
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	s.log.Info("api server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *APIServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil && !s.ready.Started() {
		http.Error(w, "engine not started", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`"ok"`))
}
