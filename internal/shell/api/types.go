package api

import "time"

// =============================================================================
// Request Types
// =============================================================================

// TriggerDeploymentRequest is the request body for starting a deployment.
// A zero build number allocates the next one.
type TriggerDeploymentRequest struct {
	Environment string `json:"environment"`
	BuildNumber int64  `json:"build_number,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// TriggerDeploymentResponse acknowledges an accepted deployment.
type TriggerDeploymentResponse struct {
	JobID       int64  `json:"job_id"`
	Environment string `json:"environment"`
	Status      string `json:"status"`
	Location    string `json:"location"`
}

// JobResponse is the response for job operations.
type JobResponse struct {
	ID          int64            `json:"id"`
	Environment string           `json:"environment"`
	Service     string           `json:"service"`
	Status      string           `json:"status"`
	ArtifactTag string           `json:"artifact_tag,omitempty"`
	Failure     *FailureResponse `json:"failure,omitempty"`
	Warnings    []string         `json:"warnings"`
	StartedAt   time.Time        `json:"started_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
	Duration    string           `json:"duration,omitempty"`
}

// FailureResponse describes why a job failed.
type FailureResponse struct {
	Kind    string   `json:"kind"`
	Stage   string   `json:"stage"`
	Message string   `json:"message"`
	Logs    []string `json:"logs,omitempty"`
}

// ArtifactResponse represents a built image.
type ArtifactResponse struct {
	Service     string    `json:"service"`
	Tag         string    `json:"tag"`
	BuildNumber int64     `json:"build_number"`
	Image       string    `json:"image"`
	ImageID     string    `json:"image_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListJobsResponse is the response for listing jobs.
type ListJobsResponse struct {
	Jobs   []JobResponse `json:"jobs"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ListArtifactsResponse is the response for listing artifacts.
type ListArtifactsResponse struct {
	Artifacts []ArtifactResponse `json:"artifacts"`
	Total     int                `json:"total"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
