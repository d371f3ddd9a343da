package attendancehandler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"branchpay/internal/domain/attendance"
	"branchpay/internal/domain/audit"
	"branchpay/internal/domain/auth"
	"branchpay/internal/transport/http/api"
	"branchpay/internal/transport/http/middleware"
	"branchpay/internal/transport/http/shared"
)

type Service interface {
	LoadDay(ctx context.Context, session auth.Session, branchID string, date time.Time) (attendance.DaySheet, error)
	SaveDay(ctx context.Context, session auth.Session, branchID string, date time.Time, entries []attendance.Entry) (attendance.SaveResult, error)
	MarkAllPresent(ctx context.Context, session auth.Session, branchID string, date time.Time) (int, error)
	ImportCSV(ctx context.Context, session auth.Session, r io.Reader) (attendance.ImportResult, error)
}

type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

type Handler struct {
	Service Service
	Audit   Auditor
	Perms   middleware.PermissionStore
}

func NewHandler(service Service, auditor Auditor, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Audit: auditor, Perms: perms}
}

type saveDayPayload struct {
	Entries []attendance.Entry `json:"entries"`
}

type markPresentPayload struct {
	BranchID string `json:"branchId"`
	Date     string `json:"date"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/daily-logs", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAttendanceRead, h.Perms)).Get("/", h.handleLoadDay)
		r.With(middleware.RequirePermission(auth.PermAttendanceWrite, h.Perms)).Put("/", h.handleSaveDay)
		r.With(middleware.RequirePermission(auth.PermAttendanceWrite, h.Perms)).Post("/mark-present", h.handleMarkPresent)
		r.With(middleware.RequirePermission(auth.PermAttendanceWrite, h.Perms)).Post("/import", h.handleImport)
	})
}

func dayParams(w http.ResponseWriter, r *http.Request, branchID, rawDate string) (string, time.Time, bool) {
	v := shared.NewValidator()
	v.Required("branchId", branchID, "is required")
	var date time.Time
	if strings.TrimSpace(rawDate) == "" {
		v.Add("date", "is required")
	} else if d, err := attendance.ParseDate(strings.TrimSpace(rawDate)); err != nil {
		v.Add("date", "must be a valid date in YYYY-MM-DD format")
	} else {
		date = d
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return "", time.Time{}, false
	}
	return strings.TrimSpace(branchID), date, true
}

func (h *Handler) handleLoadDay(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	branchID, date, ok := dayParams(w, r, r.URL.Query().Get("branchId"), r.URL.Query().Get("date"))
	if !ok {
		return
	}
	sheet, err := h.Service.LoadDay(r.Context(), user, branchID, date)
	if err != nil {
		shared.WriteError(w, err, "daily_logs_load_failed", "failed to load daily logs", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, sheet, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSaveDay(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	branchID, date, ok := dayParams(w, r, r.URL.Query().Get("branchId"), r.URL.Query().Get("date"))
	if !ok {
		return
	}
	var payload saveDayPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	if len(payload.Entries) == 0 {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "entries", Reason: "at least one entry is required"}})
		return
	}

	result, err := h.Service.SaveDay(r.Context(), user, branchID, date, payload.Entries)
	if err != nil {
		shared.WriteError(w, err, "daily_logs_save_failed", "failed to save daily logs", requestID)
		return
	}
	h.audit(r, user, "attendance.day.save", branchID+"/"+date.Format(attendance.DateLayout), map[string]any{"saved": result.Saved, "warnings": len(result.Warnings)})
	api.Success(w, result, requestID)
}

func (h *Handler) handleMarkPresent(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	var payload markPresentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	branchID, date, ok := dayParams(w, r, payload.BranchID, payload.Date)
	if !ok {
		return
	}
	n, err := h.Service.MarkAllPresent(r.Context(), user, branchID, date)
	if err != nil {
		shared.WriteError(w, err, "daily_logs_mark_failed", "failed to mark employees present", requestID)
		return
	}
	h.audit(r, user, "attendance.day.mark_present", branchID+"/"+date.Format(attendance.DateLayout), map[string]int{"marked": n})
	api.Success(w, map[string]int{"marked": n}, requestID)
}

// handleImport accepts a raw text/csv body or a multipart upload in "file".
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	var body io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "file", Reason: "csv file is required"}})
			return
		}
		defer file.Close()
		body = file
	}

	result, err := h.Service.ImportCSV(r.Context(), user, body)
	if err != nil {
		shared.WriteError(w, err, "daily_logs_import_failed", "failed to import daily logs", requestID)
		return
	}
	h.audit(r, user, "attendance.import", "", map[string]int{"imported": result.Imported, "skipped": result.Skipped, "warnings": len(result.Warnings)})
	api.Success(w, result, requestID)
}

func (h *Handler) audit(r *http.Request, user auth.Session, action, entityID string, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), audit.Entry{
		ActorID:    user.UserID,
		Action:     action,
		EntityType: "daily_log",
		EntityID:   entityID,
		RequestID:  middleware.GetRequestID(r.Context()),
		IP:         shared.ClientIP(r),
		After:      after,
	}); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}
}
