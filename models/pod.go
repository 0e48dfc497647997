package models

// PodPhase is the observed lifecycle phase of a Pod.
type PodPhase string

const (
	PodPending   PodPhase = "Pending"
	PodRunning   PodPhase = "Running"
	PodSucceeded PodPhase = "Succeeded"
	PodFailed    PodPhase = "Failed"
	PodUnknown   PodPhase = "Unknown"
)

// IsTerminal reports whether the phase allows no further runtime interaction.
func (p PodPhase) IsTerminal() bool {
	return p == PodSucceeded || p == PodFailed
}

// Container describes the single container a Pod runs.
type Container struct {
	Name  string            `json:"name" yaml:"name"`
	Image string            `json:"image" yaml:"image"`
	Env   map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

type PodSpec struct {
	Containers []Container `json:"containers" yaml:"containers"`
}

func (s PodSpec) DeepCopy() PodSpec {
	out := PodSpec{}
	if s.Containers != nil {
		out.Containers = make([]Container, len(s.Containers))
		for i, c := range s.Containers {
			c.Env = copyStringMap(c.Env)
			out.Containers[i] = c
		}
	}
	return out
}

type PodStatus struct {
	Phase       PodPhase    `json:"phase,omitempty" yaml:"phase,omitempty"`
	PodIP       string      `json:"podIP,omitempty" yaml:"podIP,omitempty"`
	ContainerID string      `json:"containerID,omitempty" yaml:"containerID,omitempty"`
	Conditions  []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

type Pod struct {
	TypeMeta `json:",inline" yaml:",inline"`
	Metadata ObjectMeta `json:"metadata" yaml:"metadata"`
	Spec     PodSpec    `json:"spec" yaml:"spec"`
	Status   PodStatus  `json:"status,omitempty" yaml:"status,omitempty"`
}

func (p *Pod) GetKind() string      { return KindPod }
func (p *Pod) GetMeta() *ObjectMeta { return &p.Metadata }

func (p *Pod) DeepCopyObject() Object { return p.DeepCopy() }

func (p *Pod) DeepCopy() *Pod {
	out := *p
	out.Metadata = p.Metadata.DeepCopy()
	out.Spec = p.Spec.DeepCopy()
	out.Status.Conditions = copyConditions(p.Status.Conditions)
	return &out
}

// PodTemplate is the embedded template a ReplicaSet stamps new Pods from.
type PodTemplate struct {
	Metadata PodTemplateMeta `json:"metadata" yaml:"metadata"`
	Spec     PodSpec         `json:"spec" yaml:"spec"`
}

type PodTemplateMeta struct {
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

func (t PodTemplate) DeepCopy() PodTemplate {
	return PodTemplate{
		Metadata: PodTemplateMeta{Labels: copyStringMap(t.Metadata.Labels)},
		Spec:     t.Spec.DeepCopy(),
	}
}
