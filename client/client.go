package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/picokube/picokube/models"
)

type Config struct {
	Host string
	Port string
}

// Client talks to a running orchestrator's REST API. Used by the CLI
// subcommands.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == "" {
		cfg.Port = "3000"
	}
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthz reports whether the orchestrator is up and its engine started.
func (c *Client) Healthz() error {
	return c.do(http.MethodGet, "/healthz", nil, nil, http.StatusOK)
}

// Pods.

func (c *Client) CreatePod(pod *models.Pod) (*models.Pod, error) {
	out := &models.Pod{}
	path := fmt.Sprintf("/api/v1/namespaces/%s/pods", namespaced(pod.Metadata.Namespace))
	if err := c.do(http.MethodPost, path, pod, out, http.StatusCreated); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPod(namespace, name string) (*models.Pod, error) {
	out := &models.Pod{}
	path := fmt.Sprintf("/api/v1/namespaces/%s/pods/%s", namespaced(namespace), name)
	if err := c.do(http.MethodGet, path, nil, out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListPods(namespace string) ([]models.Pod, error) {
	path := "/api/v1/pods"
	if namespace != "" {
		path = fmt.Sprintf("/api/v1/namespaces/%s/pods", namespace)
	}
	var out struct {
		Items []models.Pod `json:"items"`
	}
	if err := c.do(http.MethodGet, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) UpdatePod(pod *models.Pod) (*models.Pod, error) {
	out := &models.Pod{}
	path := fmt.Sprintf("/api/v1/namespaces/%s/pods/%s", namespaced(pod.Metadata.Namespace), pod.Metadata.Name)
	if err := c.do(http.MethodPut, path, pod, out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeletePod(namespace, name string) error {
	path := fmt.Sprintf("/api/v1/namespaces/%s/pods/%s", namespaced(namespace), name)
	return c.do(http.MethodDelete, path, nil, nil, http.StatusOK)
}

// Services.

func (c *Client) CreateService(svc *models.Service) (*models.Service, error) {
	out := &models.Service{}
	path := fmt.Sprintf("/api/v1/namespaces/%s/services", namespaced(svc.Metadata.Namespace))
	if err := c.do(http.MethodPost, path, svc, out, http.StatusCreated); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetService(namespace, name string) (*models.Service, error) {
	out := &models.Service{}
	path := fmt.Sprintf("/api/v1/namespaces/%s/services/%s", namespaced(namespace), name)
	if err := c.do(http.MethodGet, path, nil, out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListServices(namespace string) ([]models.Service, error) {
	path := "/api/v1/services"
	if namespace != "" {
		path = fmt.Sprintf("/api/v1/namespaces/%s/services", namespace)
	}
	var out struct {
		Items []models.Service `json:"items"`
	}
	if err := c.do(http.MethodGet, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) UpdateService(svc *models.Service) (*models.Service, error) {
	out := &models.Service{}
	path := fmt.Sprintf("/api/v1/namespaces/%s/services/%s", namespaced(svc.Metadata.Namespace), svc.Metadata.Name)
	if err := c.do(http.MethodPut, path, svc, out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteService(namespace, name string) error {
	path := fmt.Sprintf("/api/v1/namespaces/%s/services/%s", namespaced(namespace), name)
	return c.do(http.MethodDelete, path, nil, nil, http.StatusOK)
}

// ReplicaSets.

func (c *Client) CreateReplicaSet(rs *models.ReplicaSet) (*models.ReplicaSet, error) {
	out := &models.ReplicaSet{}
	path := fmt.Sprintf("/api/apps/v1/namespaces/%s/replicasets", namespaced(rs.Metadata.Namespace))
	if err := c.do(http.MethodPost, path, rs, out, http.StatusCreated); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetReplicaSet(namespace, name string) (*models.ReplicaSet, error) {
	out := &models.ReplicaSet{}
	path := fmt.Sprintf("/api/apps/v1/namespaces/%s/replicasets/%s", namespaced(namespace), name)
	if err := c.do(http.MethodGet, path, nil, out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListReplicaSets(namespace string) ([]models.ReplicaSet, error) {
	path := "/api/apps/v1/replicasets"
	if namespace != "" {
		path = fmt.Sprintf("/api/apps/v1/namespaces/%s/replicasets", namespace)
	}
	var out struct {
		Items []models.ReplicaSet `json:"items"`
	}
	if err := c.do(http.MethodGet, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) UpdateReplicaSet(rs *models.ReplicaSet) (*models.ReplicaSet, error) {
	out := &models.ReplicaSet{}
	path := fmt.Sprintf("/api/apps/v1/namespaces/%s/replicasets/%s", namespaced(rs.Metadata.Namespace), rs.Metadata.Name)
	if err := c.do(http.MethodPut, path, rs, out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteReplicaSet(namespace, name string) error {
	path := fmt.Sprintf("/api/apps/v1/namespaces/%s/replicasets/%s", namespaced(namespace), name)
	return c.do(http.MethodDelete, path, nil, nil, http.StatusOK)
}

func (c *Client) do(method, path string, in, out any, wantStatus int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return decodeError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// decodeError rebuilds the server's typed error from its JSON body.
func decodeError(resp *http.Response) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Message == "" {
		return &models.StatusError{
			Code:    models.CodeInternal,
			Message: fmt.Sprintf("unexpected status %s", resp.Status),
		}
	}
	return &models.StatusError{Code: models.ErrorCode(payload.Error), Message: payload.Message}
}

func namespaced(ns string) string {
	if ns == "" {
		return models.DefaultNamespace
	}
	return ns
}
