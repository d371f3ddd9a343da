package payrollhandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"branchpay/internal/domain/audit"
	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/payroll"
	"branchpay/internal/platform/jobs"
	"branchpay/internal/transport/http/api"
	"branchpay/internal/transport/http/middleware"
	"branchpay/internal/transport/http/shared"
)

type Service interface {
	ListPeriods(ctx context.Context) ([]payroll.Period, error)
	GetPeriod(ctx context.Context, id string) (payroll.Period, error)
	CreatePeriod(ctx context.Context, name string, start, end time.Time) (payroll.Period, error)
	FinalizePeriod(ctx context.Context, id string) error
	ReopenPeriod(ctx context.Context, session auth.Session, id string) error
	ListRateTables(ctx context.Context) ([]payroll.RateTable, error)
	UpsertRateTable(ctx context.Context, table payroll.RateTable) error
	ResolveRates(ctx context.Context, period payroll.Period, confirm bool) (payroll.RateTable, bool, error)
	ListAdjustments(ctx context.Context, periodID, employeeID string) ([]payroll.Adjustment, error)
	CreateAdjustment(ctx context.Context, session auth.Session, adj payroll.Adjustment) (payroll.Adjustment, error)
	ListRecords(ctx context.Context, session auth.Session, periodID, branchID string) ([]payroll.Record, error)
	Preview(ctx context.Context, session auth.Session, periodID, branchID string) (payroll.Preview, error)
	Generate(ctx context.Context, session auth.Session, periodID string, opts payroll.GenerateOptions, ac payroll.AuditContext) (payroll.RunResult, error)
}

// JobQueue runs work in the background and tracks it in job_runs.
type JobQueue interface {
	Enqueue(ctx context.Context, jobType, actorID string, run jobs.RunFunc) (string, error)
}

type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

type Idempotency interface {
	Check(ctx context.Context, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error)
	Save(ctx context.Context, userID, endpoint, key, requestHash string, response any) error
}

type Handler struct {
	Service     Service
	Jobs        JobQueue
	Audit       Auditor
	Idempotency Idempotency
	Perms       middleware.PermissionStore
}

func NewHandler(service Service, queue JobQueue, auditor Auditor, idem Idempotency, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Jobs: queue, Audit: auditor, Idempotency: idem, Perms: perms}
}

type periodPayload struct {
	Name      string `json:"periodName"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type adjustmentPayload struct {
	EmployeeID  string `json:"employeeId"`
	Kind        string `json:"kind"`
	Amount      any    `json:"amount"`
	Description string `json:"description"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/periods", h.handleListPeriods)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/periods", h.handleCreatePeriod)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/periods/{periodID}", h.handleGetPeriod)
		r.With(middleware.RequirePermission(auth.PermPayrollFinalize, h.Perms)).Post("/periods/{periodID}/finalize", h.handleFinalizePeriod)
		r.With(middleware.RequirePermission(auth.PermPayrollFinalize, h.Perms)).Post("/periods/{periodID}/reopen", h.handleReopenPeriod)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/periods/{periodID}/rates", h.handleResolveRates)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/periods/{periodID}/preview", h.handlePreview)
		r.With(middleware.RequirePermission(auth.PermPayrollRun, h.Perms)).Post("/periods/{periodID}/generate", h.handleGenerate)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/periods/{periodID}/adjustments", h.handleListAdjustments)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/periods/{periodID}/adjustments", h.handleCreateAdjustment)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/periods/{periodID}/records", h.handleListRecords)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/rates", h.handleListRates)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Put("/rates/{year}", h.handleUpsertRates)
	})
}

func (h *Handler) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Service.ListPeriods(r.Context())
	if err != nil {
		shared.WriteError(w, err, "payroll_periods_failed", "failed to list payroll periods", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, periods, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetPeriod(w http.ResponseWriter, r *http.Request) {
	period, err := h.Service.GetPeriod(r.Context(), chi.URLParam(r, "periodID"))
	if err != nil {
		shared.WriteError(w, err, "payroll_period_failed", "failed to load payroll period", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, period, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreatePeriod(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	var payload periodPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	v := shared.NewValidator()
	start, _ := v.Date("startDate", payload.StartDate)
	end, _ := v.Date("endDate", payload.EndDate)
	v.DateOrder("startDate", start, "endDate", end)
	if v.Reject(w, requestID) {
		return
	}

	period, err := h.Service.CreatePeriod(r.Context(), payload.Name, start, end)
	if err != nil {
		shared.WriteError(w, err, "payroll_period_create_failed", "failed to create payroll period", requestID)
		return
	}
	h.audit(r, user, "payroll.period.create", "payroll_period", period.ID, nil, period)
	api.Created(w, period, requestID)
}

func (h *Handler) handleFinalizePeriod(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	periodID := chi.URLParam(r, "periodID")

	idempotencyKey := r.Header.Get(middleware.IdempotencyHeader)
	requestHash := middleware.RequestHash([]byte(periodID))
	if h.replay(w, r, user, "payroll.finalize", idempotencyKey, requestHash) {
		return
	}

	if err := h.Service.FinalizePeriod(r.Context(), periodID); err != nil {
		shared.WriteError(w, err, "payroll_finalize_failed", "failed to finalize payroll", requestID)
		return
	}
	response := map[string]any{"periodId": periodID, "isFinalized": true}
	h.remember(r, user, "payroll.finalize", idempotencyKey, requestHash, response)
	h.audit(r, user, "payroll.finalize", "payroll_period", periodID, map[string]bool{"isFinalized": false}, response)
	api.Success(w, response, requestID)
}

func (h *Handler) handleReopenPeriod(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	periodID := chi.URLParam(r, "periodID")
	if err := h.Service.ReopenPeriod(r.Context(), user, periodID); err != nil {
		shared.WriteError(w, err, "payroll_reopen_failed", "failed to reopen payroll period", requestID)
		return
	}
	response := map[string]any{"periodId": periodID, "isFinalized": false}
	h.audit(r, user, "payroll.reopen", "payroll_period", periodID, map[string]bool{"isFinalized": true}, response)
	api.Success(w, response, requestID)
}

func (h *Handler) handleResolveRates(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	period, err := h.Service.GetPeriod(r.Context(), chi.URLParam(r, "periodID"))
	if err != nil {
		shared.WriteError(w, err, "payroll_rates_failed", "failed to resolve rates", requestID)
		return
	}
	table, prior, err := h.Service.ResolveRates(r.Context(), period, shared.QueryBool(r, "confirmRates"))
	if err != nil {
		shared.WriteError(w, err, "payroll_rates_failed", "failed to resolve rates", requestID)
		return
	}
	api.Success(w, map[string]any{"rates": table, "priorYearRates": prior}, requestID)
}

// handlePreview shows the attendance totals a run would use and who has no
// logs yet.
func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	preview, err := h.Service.Preview(r.Context(), user, chi.URLParam(r, "periodID"), r.URL.Query().Get("branchId"))
	if err != nil {
		shared.WriteError(w, err, "payroll_preview_failed", "failed to build payroll preview", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, preview, middleware.GetRequestID(r.Context()))
}

// handleGenerate runs the payroll pipeline. With ?async=true the run is
// queued and the response carries the job id to poll.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	periodID := chi.URLParam(r, "periodID")
	opts := payroll.GenerateOptions{ConfirmRates: shared.QueryBool(r, "confirmRates")}
	ac := payroll.AuditContext{RequestID: requestID, IP: shared.ClientIP(r)}

	if shared.QueryBool(r, "async") {
		if h.Jobs == nil {
			api.Fail(w, http.StatusServiceUnavailable, "jobs_unavailable", "background jobs are not available", requestID)
			return
		}
		// Fail fast on state problems instead of queueing a doomed job.
		period, err := h.Service.GetPeriod(r.Context(), periodID)
		if err == nil && period.IsFinalized {
			err = payroll.ErrPeriodFinalized
		}
		if err == nil {
			_, _, err = h.Service.ResolveRates(r.Context(), period, opts.ConfirmRates)
		}
		if err != nil {
			shared.WriteError(w, err, "payroll_generate_failed", "failed to generate payroll", requestID)
			return
		}
		jobID, err := h.Jobs.Enqueue(r.Context(), jobs.JobPayrollGenerate, user.UserID, func(ctx context.Context) (any, error) {
			return h.Service.Generate(ctx, user, periodID, opts, ac)
		})
		if err != nil {
			shared.WriteError(w, err, "payroll_generate_failed", "failed to queue payroll generation", requestID)
			return
		}
		api.Accepted(w, map[string]string{"jobId": jobID, "status": jobs.StatusQueued}, requestID)
		return
	}

	idempotencyKey := r.Header.Get(middleware.IdempotencyHeader)
	requestHash := middleware.RequestHash([]byte(periodID + "|" + strconv.FormatBool(opts.ConfirmRates)))
	if h.replay(w, r, user, "payroll.generate", idempotencyKey, requestHash) {
		return
	}

	result, err := h.Service.Generate(r.Context(), user, periodID, opts, ac)
	if err != nil {
		shared.WriteError(w, err, "payroll_generate_failed", "failed to generate payroll", requestID)
		return
	}
	h.remember(r, user, "payroll.generate", idempotencyKey, requestHash, result)
	api.Success(w, result, requestID)
}

func (h *Handler) handleListAdjustments(w http.ResponseWriter, r *http.Request) {
	adjustments, err := h.Service.ListAdjustments(r.Context(), chi.URLParam(r, "periodID"), r.URL.Query().Get("employeeId"))
	if err != nil {
		shared.WriteError(w, err, "payroll_adjustments_failed", "failed to list adjustments", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, adjustments, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateAdjustment(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	var payload adjustmentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	v := shared.NewValidator()
	v.Required("employeeId", payload.EmployeeID, "is required")
	v.Required("kind", payload.Kind, "is required")
	kind := v.Enum("kind", payload.Kind, payroll.AdjustmentKinds, "must be bonus or other_deduction")
	amount := v.Money("amount", payload.Amount, true)
	if v.Reject(w, requestID) {
		return
	}

	adj, err := h.Service.CreateAdjustment(r.Context(), user, payroll.Adjustment{
		PeriodID:    chi.URLParam(r, "periodID"),
		EmployeeID:  strings.TrimSpace(payload.EmployeeID),
		Kind:        kind,
		Amount:      amount,
		Description: payload.Description,
	})
	if err != nil {
		shared.WriteError(w, err, "payroll_adjustment_create_failed", "failed to create adjustment", requestID)
		return
	}
	h.audit(r, user, "payroll.adjustment.create", "payroll_adjustment", adj.ID, nil, adj)
	api.Created(w, adj, requestID)
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	records, err := h.Service.ListRecords(r.Context(), user, chi.URLParam(r, "periodID"), r.URL.Query().Get("branchId"))
	if err != nil {
		shared.WriteError(w, err, "payroll_records_failed", "failed to list payroll records", middleware.GetRequestID(r.Context()))
		return
	}
	records = shared.Page(w, records, shared.ParsePagination(r, 0, 0))
	api.Success(w, records, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListRates(w http.ResponseWriter, r *http.Request) {
	tables, err := h.Service.ListRateTables(r.Context())
	if err != nil {
		shared.WriteError(w, err, "payroll_rates_failed", "failed to list rate tables", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, tables, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpsertRates(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "year", Reason: "must be a number"}})
		return
	}
	var table payroll.RateTable
	if err := json.NewDecoder(r.Body).Decode(&table); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	if table.Year != 0 && table.Year != year {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "effectiveYear", Reason: "must match the year in the path"}})
		return
	}
	table.Year = year
	if err := h.Service.UpsertRateTable(r.Context(), table); err != nil {
		shared.WriteError(w, err, "payroll_rates_save_failed", "failed to save rate table", requestID)
		return
	}
	h.audit(r, user, "payroll.rates.upsert", "payroll_rate_table", strconv.Itoa(year), nil, table)
	api.Success(w, table, requestID)
}

// replay answers from a stored idempotent response when the key was seen.
func (h *Handler) replay(w http.ResponseWriter, r *http.Request, user auth.Session, endpoint, key, requestHash string) bool {
	if key == "" || h.Idempotency == nil {
		return false
	}
	stored, found, err := h.Idempotency.Check(r.Context(), user.UserID, endpoint, key, requestHash)
	if errors.Is(err, middleware.ErrIdempotencyConflict) {
		api.Fail(w, http.StatusConflict, "idempotency_conflict", err.Error(), middleware.GetRequestID(r.Context()))
		return true
	}
	if err != nil {
		slog.Warn("idempotency check failed", "endpoint", endpoint, "err", err)
		return false
	}
	if found {
		api.Success(w, stored, middleware.GetRequestID(r.Context()))
		return true
	}
	return false
}

func (h *Handler) remember(r *http.Request, user auth.Session, endpoint, key, requestHash string, response any) {
	if key == "" || h.Idempotency == nil {
		return
	}
	if err := h.Idempotency.Save(r.Context(), user.UserID, endpoint, key, requestHash, response); err != nil {
		slog.Warn("idempotency save failed", "endpoint", endpoint, "err", err)
	}
}

func (h *Handler) audit(r *http.Request, user auth.Session, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), audit.Entry{
		ActorID:    user.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  middleware.GetRequestID(r.Context()),
		IP:         shared.ClientIP(r),
		Before:     before,
		After:      after,
	}); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}
}
