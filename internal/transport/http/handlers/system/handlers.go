package systemhandler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"branchpay/internal/domain/auth"
	"branchpay/internal/platform/jobs"
	"branchpay/internal/transport/http/api"
	"branchpay/internal/transport/http/middleware"
	"branchpay/internal/transport/http/shared"
)

type JobReader interface {
	Get(ctx context.Context, runID string) (jobs.Run, error)
}

type MetricsSource interface {
	Snapshot() map[string]any
}

// Handler serves background job status and operational counters.
type Handler struct {
	Jobs    JobReader
	Metrics MetricsSource
	Perms   middleware.PermissionStore
}

func NewHandler(jobReader JobReader, metrics MetricsSource, perms middleware.PermissionStore) *Handler {
	return &Handler{Jobs: jobReader, Metrics: metrics, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/jobs/{jobID}", h.handleGetJob)
	if h.Metrics != nil {
		r.With(middleware.RequirePermission(auth.PermSystemAdmin, h.Perms)).Get("/admin/metrics", h.handleMetrics)
	}
}

// handleGetJob returns a job run. Only its starter or a super admin may see
// it; anyone else gets not found.
func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	run, err := h.Jobs.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err == nil && run.ActorID != user.UserID && !user.IsSuperAdmin() {
		err = jobs.ErrRunNotFound
	}
	if err != nil {
		shared.WriteError(w, err, "job_lookup_failed", "failed to load job", requestID)
		return
	}
	api.Success(w, run, requestID)
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	api.Success(w, h.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
}
