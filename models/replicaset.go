package models

type ReplicaSetSpec struct {
	Replicas int               `json:"replicas" yaml:"replicas"`
	Selector map[string]string `json:"selector" yaml:"selector"`
	Template PodTemplate       `json:"template" yaml:"template"`
}

type ReplicaSetStatus struct {
	Replicas      int         `json:"replicas" yaml:"replicas"`
	ReadyReplicas int         `json:"readyReplicas,omitempty" yaml:"readyReplicas,omitempty"`
	Conditions    []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

type ReplicaSet struct {
	TypeMeta `json:",inline" yaml:",inline"`
	Metadata ObjectMeta       `json:"metadata" yaml:"metadata"`
	Spec     ReplicaSetSpec   `json:"spec" yaml:"spec"`
	Status   ReplicaSetStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

func (r *ReplicaSet) GetKind() string      { return KindReplicaSet }
func (r *ReplicaSet) GetMeta() *ObjectMeta { return &r.Metadata }

func (r *ReplicaSet) DeepCopyObject() Object { return r.DeepCopy() }

func (r *ReplicaSet) DeepCopy() *ReplicaSet {
	out := *r
	out.Metadata = r.Metadata.DeepCopy()
	out.Spec.Selector = copyStringMap(r.Spec.Selector)
	out.Spec.Template = r.Spec.Template.DeepCopy()
	out.Status.Conditions = copyConditions(r.Status.Conditions)
	return &out
}
