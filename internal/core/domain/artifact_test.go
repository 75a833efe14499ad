package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTag(t *testing.T) {
	assert.Equal(t, "42", BuildTag(42))
	assert.Equal(t, "1", BuildTag(1))
}

func TestParseBuildTag(t *testing.T) {
	tests := []struct {
		tag  string
		want int64
		ok   bool
	}{
		{"42", 42, true},
		{"0", 0, true},
		{"007", 7, true},
		{"latest", 0, false},
		{"v1", 0, false},
		{"-3", 0, false},
		{"1.2", 0, false},
		{"", 0, false},
		{"99999999999999999999999", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, ok := ParseBuildTag(tt.tag)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServiceSlot_Validate(t *testing.T) {
	slot := ServiceSlot{Service: "web", ContainerName: "web", Port: 3000, ContainerPort: 3000}
	require.NoError(t, slot.Validate())

	bad := slot
	bad.Port = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSlot)

	bad = slot
	bad.ContainerName = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSlot)
}

func TestConfigBundle_Has(t *testing.T) {
	b := ConfigBundle{Values: map[string]string{"API_URL": "https://x", "EMPTY": ""}}
	assert.True(t, b.Has("API_URL"))
	assert.True(t, b.Has("EMPTY"))
	assert.False(t, b.Has("AUTH_TENANT_ID"))
	assert.Equal(t, []string{"API_URL", "EMPTY"}, b.Keys())
}

func TestNewOutcome_Failed(t *testing.T) {
	job, err := NewDeploymentJob(7, "staging", "web", testNow)
	require.NoError(t, err)
	require.NoError(t, job.Transition(JobValidating, testNow))
	job.Warn("w1")
	require.NoError(t, job.Fail(FailureMissingConfig, "missing API_URL", nil, testNow.Add(2*time.Second)))

	o := NewOutcome(job, ServiceSlot{ContainerName: "web", Port: 3000})

	assert.False(t, o.Succeeded())
	assert.Equal(t, int64(7), o.BuildNumber)
	assert.Equal(t, "staging", o.Environment)
	assert.Equal(t, FailureMissingConfig, o.FailureKind)
	assert.Equal(t, JobValidating, o.FailureStage)
	assert.Equal(t, "missing API_URL", o.FailureReason)
	assert.Equal(t, []string{"w1"}, o.Warnings)
	assert.Equal(t, "2s", o.Duration)
	assert.Equal(t, 3000, o.Port)
}

func TestCutoverResult_Advise(t *testing.T) {
	var r CutoverResult
	r.Advise("retire", nil, nil)
	r.Advise("health_probe", &BuildToolError{ExitCode: 1}, []string{"log"})

	assert.Len(t, r.Advisories, 2)
	assert.Equal(t, "retire", r.Warnings()[0])
	assert.Contains(t, r.Warnings()[1], "health_probe:")
}
