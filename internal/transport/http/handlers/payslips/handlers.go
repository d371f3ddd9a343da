package payslipshandler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"branchpay/internal/domain/audit"
	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/payslip"
	"branchpay/internal/platform/jobs"
	"branchpay/internal/transport/http/api"
	"branchpay/internal/transport/http/middleware"
	"branchpay/internal/transport/http/shared"
)

type Service interface {
	Single(ctx context.Context, session auth.Session, periodID, employeeID string, store bool) (payslip.Rendered, error)
	Batch(ctx context.Context, session auth.Session, periodID, branchID string, store bool) (payslip.Rendered, error)
}

type JobQueue interface {
	Enqueue(ctx context.Context, jobType, actorID string, run jobs.RunFunc) (string, error)
}

type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

type Handler struct {
	Service Service
	Jobs    JobQueue
	Audit   Auditor
	Perms   middleware.PermissionStore
}

func NewHandler(service Service, queue JobQueue, auditor Auditor, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Jobs: queue, Audit: auditor, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payslips/periods/{periodID}", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermPayrollRead, h.Perms))
		r.Get("/employees/{employeeID}.pdf", h.handleSingle)
		r.Get("/batch.pdf", h.handleBatch)
	})
}

func (h *Handler) handleSingle(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	rendered, err := h.Service.Single(r.Context(), user, chi.URLParam(r, "periodID"), chi.URLParam(r, "employeeID"), shared.QueryBool(r, "store"))
	if err != nil {
		shared.WriteError(w, err, "payslip_failed", "failed to render payslip", middleware.GetRequestID(r.Context()))
		return
	}
	writePDF(w, rendered)
}

// handleBatch renders every payslip in scope into one PDF. Employees whose
// page failed are listed in X-Payslip-Errors and audited; the rest are still
// delivered. With ?async=true the batch is stored and a job id returned.
func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	periodID := chi.URLParam(r, "periodID")
	branchID := r.URL.Query().Get("branchId")
	if _, err := user.BranchScope(branchID); err != nil {
		shared.WriteError(w, err, "payslip_batch_failed", "failed to render payslips", requestID)
		return
	}
	ip := shared.ClientIP(r)

	if shared.QueryBool(r, "async") {
		if h.Jobs == nil {
			api.Fail(w, http.StatusServiceUnavailable, "jobs_unavailable", "background jobs are not available", requestID)
			return
		}
		jobID, err := h.Jobs.Enqueue(r.Context(), jobs.JobPayslipBatch, user.UserID, func(ctx context.Context) (any, error) {
			rendered, err := h.Service.Batch(ctx, user, periodID, branchID, true)
			if err != nil {
				return nil, err
			}
			h.auditFailures(ctx, user, periodID, branchID, requestID, ip, rendered)
			return rendered, nil
		})
		if err != nil {
			shared.WriteError(w, err, "payslip_batch_failed", "failed to queue payslip batch", requestID)
			return
		}
		api.Accepted(w, map[string]string{"jobId": jobID, "status": jobs.StatusQueued}, requestID)
		return
	}

	rendered, err := h.Service.Batch(r.Context(), user, periodID, branchID, shared.QueryBool(r, "store"))
	if err != nil {
		shared.WriteError(w, err, "payslip_batch_failed", "failed to render payslips", requestID)
		return
	}
	h.auditFailures(r.Context(), user, periodID, branchID, requestID, ip, rendered)
	w.Header().Set("X-Payslip-Pages", strconv.Itoa(rendered.Pages))
	w.Header().Set("X-Payslip-Errors", strconv.Itoa(len(rendered.Errors)))
	writePDF(w, rendered)
}

func (h *Handler) auditFailures(ctx context.Context, user auth.Session, periodID, branchID, requestID, ip string, rendered payslip.Rendered) {
	if h.Audit == nil || len(rendered.Errors) == 0 {
		return
	}
	failed := make([]map[string]string, 0, len(rendered.Errors))
	for _, e := range rendered.Errors {
		failed = append(failed, map[string]string{"employeeId": e.EmployeeID, "error": e.Error()})
	}
	if err := h.Audit.Record(ctx, audit.Entry{
		ActorID:    user.UserID,
		Action:     "payslip.batch.partial",
		EntityType: "payroll_period",
		EntityID:   periodID,
		RequestID:  requestID,
		IP:         ip,
		After:      map[string]any{"branchId": branchID, "pages": rendered.Pages, "failed": failed},
	}); err != nil {
		slog.Warn("audit payslip failures failed", "err", err)
	}
}

func writePDF(w http.ResponseWriter, rendered payslip.Rendered) {
	if rendered.StoredPath != "" {
		w.Header().Set("X-Payslip-Stored", "true")
	}
	api.Attachment(w, api.ContentTypePDF, rendered.Filename, rendered.PDF)
}
