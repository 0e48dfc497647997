package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/picokube/picokube/models"
)

// validator is implemented by every resource the API accepts.
type validator interface {
	models.Object
	Validate() error
}

func (s *APIServer) create(w http.ResponseWriter, r *http.Request, obj validator) {
	if !decode(w, r, obj) {
		return
	}
	applyPath(obj, r, "")
	if err := obj.Validate(); err != nil {
		writeError(w, err)
		return
	}
	stored, err := s.store.Create(obj)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *APIServer) get(w http.ResponseWriter, r *http.Request, kind string) {
	vars := mux.Vars(r)
	obj, err := s.store.Get(kind, vars["namespace"], vars["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

func (s *APIServer) list(w http.ResponseWriter, r *http.Request, kind string) {
	namespace := mux.Vars(r)["namespace"]
	items := s.store.List(kind, namespace, nil)
	if items == nil {
		items = []models.Object{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"apiVersion": "v1",
		"kind":       kind + "List",
		"items":      items,
	})
}

func (s *APIServer) update(w http.ResponseWriter, r *http.Request, obj validator) {
	if !decode(w, r, obj) {
		return
	}
	applyPath(obj, r, mux.Vars(r)["name"])
	if err := obj.Validate(); err != nil {
		writeError(w, err)
		return
	}
	stored, err := s.store.Update(obj)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *APIServer) delete(w http.ResponseWriter, r *http.Request, kind string) {
	vars := mux.Vars(r)
	if err := s.store.Delete(kind, vars["namespace"], vars["name"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "Success",
		"message": kind + " " + vars["namespace"] + "/" + vars["name"] + " deleted",
	})
}

// Pods.
func (s *APIServer) createPod(w http.ResponseWriter, r *http.Request) { s.create(w, r, &models.Pod{}) }
func (s *APIServer) getPod(w http.ResponseWriter, r *http.Request)    { s.get(w, r, models.KindPod) }
func (s *APIServer) listPods(w http.ResponseWriter, r *http.Request)  { s.list(w, r, models.KindPod) }
func (s *APIServer) updatePod(w http.ResponseWriter, r *http.Request) { s.update(w, r, &models.Pod{}) }
func (s *APIServer) deletePod(w http.ResponseWriter, r *http.Request) { s.delete(w, r, models.KindPod) }

// Services.
func (s *APIServer) createService(w http.ResponseWriter, r *http.Request) {
	s.create(w, r, &models.Service{})
}
func (s *APIServer) getService(w http.ResponseWriter, r *http.Request) {
	s.get(w, r, models.KindService)
}
func (s *APIServer) listServices(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, models.KindService)
}
func (s *APIServer) updateService(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, &models.Service{})
}
func (s *APIServer) deleteService(w http.ResponseWriter, r *http.Request) {
	s.delete(w, r, models.KindService)
}

// ReplicaSets.
func (s *APIServer) createReplicaSet(w http.ResponseWriter, r *http.Request) {
	s.create(w, r, &models.ReplicaSet{})
}
func (s *APIServer) getReplicaSet(w http.ResponseWriter, r *http.Request) {
	s.get(w, r, models.KindReplicaSet)
}
func (s *APIServer) listReplicaSets(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, models.KindReplicaSet)
}
func (s *APIServer) updateReplicaSet(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, &models.ReplicaSet{})
}
func (s *APIServer) deleteReplicaSet(w http.ResponseWriter, r *http.Request) {
	s.delete(w, r, models.KindReplicaSet)
}

func decode(w http.ResponseWriter, r *http.Request, obj models.Object) bool {
	if err := json.NewDecoder(r.Body).Decode(obj); err != nil {
		writeError(w, models.NewValidation("invalid request payload: %v", err))
		return false
	}
	return true
}

// applyPath forces namespace (and, for updates, name) from the URL onto the
// decoded body.
func applyPath(obj models.Object, r *http.Request, name string) {
	meta := obj.GetMeta()
	meta.Namespace = mux.Vars(r)["namespace"]
	if meta.Namespace == "" {
		meta.Namespace = models.DefaultNamespace
	}
	if name != "" {
		meta.Name = name
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := models.CodeInternal
	var se *models.StatusError
	if errors.As(err, &se) {
		code = se.Code
		switch se.Code {
		case models.CodeNotFound:
			status = http.StatusNotFound
		case models.CodeAlreadyExists:
			status = http.StatusConflict
		case models.CodeValidation:
			status = http.StatusBadRequest
		}
	}
	writeJSON(w, status, map[string]string{"error": string(code), "message": err.Error()})
}
