package domain

import "time"

// Outcome is the rendered result of a finished job, handed to reporters.
type Outcome struct {
	Environment   string      `json:"environment" yaml:"environment"`
	BuildNumber   int64       `json:"build_number" yaml:"build_number"`
	ArtifactTag   string      `json:"artifact_tag,omitempty" yaml:"artifact_tag,omitempty"`
	ContainerName string      `json:"container_name" yaml:"container_name"`
	Port          int         `json:"port" yaml:"port"`
	Status        JobStatus   `json:"status" yaml:"status"`
	FailureKind   FailureKind `json:"failure_kind,omitempty" yaml:"failure_kind,omitempty"`
	FailureStage  JobStatus   `json:"failure_stage,omitempty" yaml:"failure_stage,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	Logs          []string    `json:"logs,omitempty" yaml:"logs,omitempty"`
	Warnings      []string    `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	StartedAt     time.Time   `json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time   `json:"finished_at" yaml:"finished_at"`
	Duration      string      `json:"duration" yaml:"duration"`
}

// NewOutcome renders a job against the slot it targeted.
func NewOutcome(job *DeploymentJob, slot ServiceSlot) Outcome {
	o := Outcome{
		Environment:   job.Environment,
		BuildNumber:   job.ID,
		ArtifactTag:   job.ArtifactTag,
		ContainerName: slot.ContainerName,
		Port:          slot.Port,
		Status:        job.Status,
		Warnings:      append([]string(nil), job.Warnings...),
		StartedAt:     job.StartedAt,
		Duration:      job.Duration().String(),
	}
	if job.FinishedAt != nil {
		o.FinishedAt = *job.FinishedAt
	}
	if job.Failure != nil {
		o.FailureKind = job.Failure.Kind
		o.FailureStage = job.Failure.Stage
		o.FailureReason = job.Failure.Message
		o.Logs = append([]string(nil), job.Failure.Logs...)
	}
	return o
}

// Succeeded reports whether the job reached JobSucceeded.
func (o Outcome) Succeeded() bool {
	return o.Status == JobSucceeded
}
