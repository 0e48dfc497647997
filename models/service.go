package models

// ServiceTypeClusterIP is the only service type; every service is also
// published on the host at its service port.
const ServiceTypeClusterIP = "ClusterIP"

type ServicePort struct {
	Protocol   string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Port       int    `json:"port" yaml:"port"`
	TargetPort int    `json:"targetPort,omitempty" yaml:"targetPort,omitempty"`
}

// Effective returns the port with defaults applied: TCP protocol and
// targetPort falling back to the service port.
func (p ServicePort) Effective() ServicePort {
	if p.Protocol == "" {
		p.Protocol = "TCP"
	}
	if p.TargetPort == 0 {
		p.TargetPort = p.Port
	}
	return p
}

// Endpoint is a (podIP, targetPort) pair reachable inside the cluster network.
type Endpoint struct {
	IP   string `json:"ip" yaml:"ip"`
	Port int    `json:"port" yaml:"port"`
}

type ServiceSpec struct {
	Selector map[string]string `json:"selector" yaml:"selector"`
	Type     string            `json:"type,omitempty" yaml:"type,omitempty"`
	Ports    []ServicePort     `json:"ports" yaml:"ports"`
}

type ServiceStatus struct {
	Endpoints      []Endpoint  `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	LoadBalancerID string      `json:"loadBalancerID,omitempty" yaml:"loadBalancerID,omitempty"`
	Conditions     []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

type Service struct {
	TypeMeta `json:",inline" yaml:",inline"`
	Metadata ObjectMeta    `json:"metadata" yaml:"metadata"`
	Spec     ServiceSpec   `json:"spec" yaml:"spec"`
	Status   ServiceStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

func (s *Service) GetKind() string      { return KindService }
func (s *Service) GetMeta() *ObjectMeta { return &s.Metadata }

func (s *Service) DeepCopyObject() Object { return s.DeepCopy() }

func (s *Service) DeepCopy() *Service {
	out := *s
	out.Metadata = s.Metadata.DeepCopy()
	out.Spec.Selector = copyStringMap(s.Spec.Selector)
	if s.Spec.Ports != nil {
		out.Spec.Ports = make([]ServicePort, len(s.Spec.Ports))
		copy(out.Spec.Ports, s.Spec.Ports)
	}
	if s.Status.Endpoints != nil {
		out.Status.Endpoints = make([]Endpoint, len(s.Status.Endpoints))
		copy(out.Status.Endpoints, s.Status.Endpoints)
	}
	out.Status.Conditions = copyConditions(s.Status.Conditions)
	return &out
}
