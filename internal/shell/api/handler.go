// Package api provides the HTTP surface of the deployment service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artpar/cutover/internal/core/domain"
	"github.com/artpar/cutover/internal/shell/pipeline"
	"github.com/artpar/cutover/internal/shell/store"
)

// =============================================================================
// Dependencies
// =============================================================================

// Trigger starts deployment jobs.
type Trigger interface {
	Start(ctx context.Context, req pipeline.Request) (*pipeline.Execution, error)
}

// History reads past jobs and artifacts.
type History interface {
	GetJob(ctx context.Context, id int64) (*domain.DeploymentJob, error)
	ListJobs(ctx context.Context, opts store.ListOptions) ([]domain.DeploymentJob, error)
	LatestArtifact(ctx context.Context, service string) (*domain.Artifact, error)
	ListArtifacts(ctx context.Context, service string, opts store.ListOptions) ([]domain.Artifact, error)
}

// Pinger reports whether the container runtime is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	trigger Trigger
	history History
	runtime Pinger
	service string
	metrics http.Handler
	logger  *slog.Logger
}

// NewHandler creates a new API handler. metrics may be nil, in which case
// /metrics is not served.
func NewHandler(trigger Trigger, history History, runtime Pinger, service string, metrics http.Handler, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		trigger: trigger,
		history: history,
		runtime: runtime,
		service: service,
		metrics: metrics,
		logger:  l.With("component", "api"),
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.jsonContentType)

		// Health endpoints
		r.Get("/health", h.handleHealth)
		r.Get("/ready", h.handleReady)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/deployments", h.handleTriggerDeployment)

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", h.handleListJobs)
				r.Get("/{id}", h.handleGetJob)
			})

			r.Route("/artifacts", func(r chi.Router) {
				r.Get("/", h.handleListArtifacts)
				r.Get("/latest", h.handleLatestArtifact)
			})
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	// Check database (implicit - if we got here, store was created)
	checks["database"] = "ok"

	if h.runtime != nil {
		if err := h.runtime.Ping(r.Context()); err != nil {
			h.logger.Warn("container runtime not reachable", "error", err)
			checks["docker"] = "failed"
			h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
				Status: "not_ready",
				Checks: checks,
			})
			return
		}
		checks["docker"] = "ok"
	}

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Deployment Handlers
// =============================================================================

func (h *Handler) handleTriggerDeployment(w http.ResponseWriter, r *http.Request) {
	var req TriggerDeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	// The job outlives the request.
	exec, err := h.trigger.Start(context.WithoutCancel(r.Context()), pipeline.Request{
		Environment: req.Environment,
		BuildNumber: req.BuildNumber,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLockContention):
			h.writeError(w, http.StatusConflict, "another deployment job is running", "deployment_in_progress")
		case errors.Is(err, domain.ErrEnvironmentMissing), errors.Is(err, domain.ErrInvalidBuildNumber):
			h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		case errors.Is(err, domain.ErrStaleBuildNumber):
			h.writeError(w, http.StatusConflict, err.Error(), "stale_build_number")
		case errors.Is(err, store.ErrDuplicateID):
			h.writeError(w, http.StatusConflict, "build number already used", "duplicate_build_number")
		default:
			h.logger.Error("failed to start deployment", "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to start deployment", "internal_error")
		}
		return
	}

	location := fmt.Sprintf("/api/v1/jobs/%d", exec.JobID())
	w.Header().Set("Location", location)
	h.writeJSON(w, http.StatusAccepted, TriggerDeploymentResponse{
		JobID:       exec.JobID(),
		Environment: req.Environment,
		Status:      string(domain.JobPending),
		Location:    location,
	})
}

// =============================================================================
// Job Handlers
// =============================================================================

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "job id must be a positive integer", "validation_error")
		return
	}

	job, err := h.history.GetJob(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "job not found", "job_not_found")
			return
		}
		h.logger.Error("failed to get job", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get job", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)

	jobs, err := h.history.ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list jobs", "internal_error")
		return
	}

	resp := ListJobsResponse{
		Jobs:   make([]JobResponse, 0, len(jobs)),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	for i := range jobs {
		resp.Jobs = append(resp.Jobs, jobToResponse(&jobs[i]))
	}
	resp.Total = len(resp.Jobs)

	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Artifact Handlers
// =============================================================================

func (h *Handler) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)

	artifacts, err := h.history.ListArtifacts(r.Context(), h.service, opts)
	if err != nil {
		h.logger.Error("failed to list artifacts", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list artifacts", "internal_error")
		return
	}

	resp := ListArtifactsResponse{
		Artifacts: make([]ArtifactResponse, 0, len(artifacts)),
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	}
	for i := range artifacts {
		resp.Artifacts = append(resp.Artifacts, artifactToResponse(&artifacts[i]))
	}
	resp.Total = len(resp.Artifacts)

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLatestArtifact(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.history.LatestArtifact(r.Context(), h.service)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "no artifact built yet", "artifact_not_found")
			return
		}
		h.logger.Error("failed to get latest artifact", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get latest artifact", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, artifactToResponse(artifact))
}

// =============================================================================
// Helpers
// =============================================================================

func listOptions(r *http.Request) store.ListOptions {
	opts := store.DefaultListOptions()

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}
	return opts.Normalize()
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func jobToResponse(j *domain.DeploymentJob) JobResponse {
	resp := JobResponse{
		ID:          j.ID,
		Environment: j.Environment,
		Service:     j.Service,
		Status:      string(j.Status),
		ArtifactTag: j.ArtifactTag,
		Warnings:    j.Warnings,
		StartedAt:   j.StartedAt,
		UpdatedAt:   j.UpdatedAt,
		FinishedAt:  j.FinishedAt,
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	if j.FinishedAt != nil {
		resp.Duration = j.Duration().String()
	}
	if j.Failure != nil {
		resp.Failure = &FailureResponse{
			Kind:    string(j.Failure.Kind),
			Stage:   string(j.Failure.Stage),
			Message: j.Failure.Message,
			Logs:    j.Failure.Logs,
		}
	}
	return resp
}

func artifactToResponse(a *domain.Artifact) ArtifactResponse {
	return ArtifactResponse{
		Service:     a.Service,
		Tag:         a.Tag,
		BuildNumber: a.BuildNumber,
		Image:       a.Image,
		ImageID:     a.ImageID,
		CreatedAt:   a.CreatedAt,
	}
}
