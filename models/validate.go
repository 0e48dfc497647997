package models

// Validate checks a Pod definition before it enters the store.
func (p *Pod) Validate() error {
	if p.Metadata.Name == "" {
		return NewValidation("pod name must not be empty")
	}
	if len(p.Spec.Containers) != 1 {
		return NewValidation("pod %q must declare exactly one container, got %d",
			p.Metadata.Name, len(p.Spec.Containers))
	}
	c := p.Spec.Containers[0]
	if c.Name == "" || c.Image == "" {
		return NewValidation("pod %q container must set name and image", p.Metadata.Name)
	}
	return nil
}

// Validate checks a ReplicaSet definition before it enters the store.
func (r *ReplicaSet) Validate() error {
	if r.Metadata.Name == "" {
		return NewValidation("replicaset name must not be empty")
	}
	if r.Spec.Replicas < 0 {
		return NewValidation("replicaset %q replicas must be non-negative, got %d",
			r.Metadata.Name, r.Spec.Replicas)
	}
	if len(r.Spec.Selector) == 0 {
		return NewValidation("replicaset %q selector must have at least one key", r.Metadata.Name)
	}
	for k, v := range r.Spec.Selector {
		if r.Spec.Template.Metadata.Labels[k] != v {
			return NewValidation("replicaset %q template labels do not satisfy selector key %q",
				r.Metadata.Name, k)
		}
	}
	tpl := Pod{Metadata: ObjectMeta{Name: r.Metadata.Name + "-template"}, Spec: r.Spec.Template.Spec}
	if err := tpl.Validate(); err != nil {
		return NewValidation("replicaset %q template invalid: %v", r.Metadata.Name, err)
	}
	return nil
}

// Validate checks a Service definition before it enters the store.
func (s *Service) Validate() error {
	if s.Metadata.Name == "" {
		return NewValidation("service name must not be empty")
	}
	if len(s.Spec.Selector) == 0 {
		return NewValidation("service %q selector must have at least one key", s.Metadata.Name)
	}
	if len(s.Spec.Ports) == 0 {
		return NewValidation("service %q must declare at least one port", s.Metadata.Name)
	}
	for _, p := range s.Spec.Ports {
		if p.Port <= 0 || p.Port > 65535 {
			return NewValidation("service %q port %d out of range", s.Metadata.Name, p.Port)
		}
		if p.TargetPort < 0 || p.TargetPort > 65535 {
			return NewValidation("service %q targetPort %d out of range", s.Metadata.Name, p.TargetPort)
		}
		if p.Protocol != "" && p.Protocol != "TCP" {
			return NewValidation("service %q only supports TCP ports, got %q", s.Metadata.Name, p.Protocol)
		}
	}
	if s.Spec.Type != "" && s.Spec.Type != ServiceTypeClusterIP {
		return NewValidation("service %q has unsupported type %q", s.Metadata.Name, s.Spec.Type)
	}
	return nil
}
