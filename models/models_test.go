package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesSelector(t *testing.T) {
	labels := map[string]string{"app": "web", "tier": "frontend"}

	assert.True(t, MatchesSelector(labels, map[string]string{"app": "web"}))
	assert.True(t, MatchesSelector(labels, map[string]string{"app": "web", "tier": "frontend"}))
	assert.False(t, MatchesSelector(labels, map[string]string{"app": "db"}))
	assert.False(t, MatchesSelector(labels, map[string]string{"app": "web", "zone": "a"}))
	assert.False(t, MatchesSelector(labels, nil), "empty selector matches nothing")
	assert.False(t, MatchesSelector(nil, map[string]string{"app": "web"}))
}

func TestPodDeepCopyIsolation(t *testing.T) {
	pod := &Pod{
		Metadata: ObjectMeta{
			Name:   "web",
			Labels: map[string]string{"app": "web"},
			OwnerReferences: []OwnerReference{
				{Kind: KindReplicaSet, Name: "web-rs", UID: "u1", Controller: true},
			},
		},
		Spec: PodSpec{Containers: []Container{
			{Name: "app", Image: "nginx", Env: map[string]string{"A": "1"}},
		}},
	}

	clone := pod.DeepCopy()
	clone.Metadata.Labels["app"] = "changed"
	clone.Spec.Containers[0].Env["A"] = "2"
	clone.Metadata.OwnerReferences[0].UID = "u2"

	assert.Equal(t, "web", pod.Metadata.Labels["app"])
	assert.Equal(t, "1", pod.Spec.Containers[0].Env["A"])
	assert.Equal(t, "u1", pod.Metadata.OwnerReferences[0].UID)
}

func TestControllerOwner(t *testing.T) {
	meta := ObjectMeta{OwnerReferences: []OwnerReference{
		{Kind: KindReplicaSet, Name: "a", UID: "u1"},
		{Kind: KindReplicaSet, Name: "b", UID: "u2", Controller: true},
	}}
	owner := meta.ControllerOwner()
	require.NotNil(t, owner)
	assert.Equal(t, "u2", owner.UID)
	assert.True(t, meta.IsOwnedBy("u1"))
	assert.False(t, meta.IsOwnedBy("u3"))
}

func TestSetCondition(t *testing.T) {
	conds := SetCondition(nil, Condition{Type: "Ready", Status: "False", Reason: "Starting"})
	conds = SetCondition(conds, Condition{Type: "Ready", Status: "True", Reason: "Started"})
	require.Len(t, conds, 1)
	assert.Equal(t, "True", conds[0].Status)
	assert.False(t, conds[0].LastTransitionTime.IsZero())
}

func TestPodValidate(t *testing.T) {
	valid := Pod{
		Metadata: ObjectMeta{Name: "web"},
		Spec:     PodSpec{Containers: []Container{{Name: "app", Image: "nginx"}}},
	}
	require.NoError(t, valid.Validate())

	empty := Pod{Metadata: ObjectMeta{Name: "web"}}
	err := empty.Validate()
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	two := valid
	two.Spec.Containers = append([]Container{{Name: "a", Image: "i"}}, valid.Spec.Containers...)
	assert.Error(t, two.Validate())

	noImage := Pod{
		Metadata: ObjectMeta{Name: "web"},
		Spec:     PodSpec{Containers: []Container{{Name: "app"}}},
	}
	assert.Error(t, noImage.Validate())
}

func TestReplicaSetValidate(t *testing.T) {
	valid := ReplicaSet{
		Metadata: ObjectMeta{Name: "web"},
		Spec: ReplicaSetSpec{
			Replicas: 3,
			Selector: map[string]string{"app": "web"},
			Template: PodTemplate{
				Metadata: PodTemplateMeta{Labels: map[string]string{"app": "web"}},
				Spec:     PodSpec{Containers: []Container{{Name: "app", Image: "nginx"}}},
			},
		},
	}
	require.NoError(t, valid.Validate())

	negative := valid
	negative.Spec.Replicas = -1
	err := negative.Validate()
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	noSelector := valid
	noSelector.Spec.Selector = nil
	assert.Error(t, noSelector.Validate())

	mismatch := valid
	mismatch.Spec.Template = PodTemplate{
		Metadata: PodTemplateMeta{Labels: map[string]string{"app": "other"}},
		Spec:     valid.Spec.Template.Spec,
	}
	assert.Error(t, mismatch.Validate())
}

func TestServiceValidate(t *testing.T) {
	valid := Service{
		Metadata: ObjectMeta{Name: "web"},
		Spec: ServiceSpec{
			Selector: map[string]string{"app": "web"},
			Ports:    []ServicePort{{Port: 2000, TargetPort: 5000}},
		},
	}
	require.NoError(t, valid.Validate())

	noPorts := valid
	noPorts.Spec.Ports = nil
	assert.Error(t, noPorts.Validate())

	badPort := valid
	badPort.Spec.Ports = []ServicePort{{Port: 70000}}
	assert.Error(t, badPort.Validate())

	udp := valid
	udp.Spec.Ports = []ServicePort{{Port: 53, Protocol: "UDP"}}
	assert.Error(t, udp.Validate())
}

func TestServicePortEffective(t *testing.T) {
	p := ServicePort{Port: 2000}.Effective()
	assert.Equal(t, "TCP", p.Protocol)
	assert.Equal(t, 2000, p.TargetPort)

	q := ServicePort{Port: 2000, TargetPort: 5000, Protocol: "TCP"}.Effective()
	assert.Equal(t, 5000, q.TargetPort)
}
