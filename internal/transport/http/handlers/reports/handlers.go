package reportshandler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"branchpay/internal/domain/audit"
	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/payroll"
	"branchpay/internal/domain/reports"
	"branchpay/internal/transport/http/api"
	"branchpay/internal/transport/http/middleware"
	"branchpay/internal/transport/http/shared"
)

type Service interface {
	Summary(ctx context.Context, session auth.Session, periodID, branchID string) (reports.Summary, error)
	Dashboard(ctx context.Context, session auth.Session, periodID string) (reports.Dashboard, error)
	Register(ctx context.Context, session auth.Session, periodID, branchID string) (reports.Register, error)
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

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports/periods/{periodID}", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermReportsRead, h.Perms))
		r.Get("/summary", h.handleSummary)
		r.Get("/dashboard", h.handleDashboard)
		r.Get("/register.xlsx", h.handleRegisterXLSX)
		r.Get("/register.csv", h.handleRegisterCSV)
	})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	summary, err := h.Service.Summary(r.Context(), user, chi.URLParam(r, "periodID"), r.URL.Query().Get("branchId"))
	if err != nil {
		shared.WriteError(w, err, "report_summary_failed", "failed to build payroll summary", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, summary, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	dashboard, err := h.Service.Dashboard(r.Context(), user, chi.URLParam(r, "periodID"))
	if err != nil {
		shared.WriteError(w, err, "report_dashboard_failed", "failed to build dashboard", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, dashboard, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRegisterXLSX(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	register, err := h.Service.Register(r.Context(), user, chi.URLParam(r, "periodID"), r.URL.Query().Get("branchId"))
	if err != nil {
		shared.WriteError(w, err, "report_export_failed", "failed to export payroll register", requestID)
		return
	}
	buf, err := reports.RegisterXLSX(register.Period, register.Records, register.Branches)
	if err != nil {
		shared.WriteError(w, err, "report_export_failed", "failed to export payroll register", requestID)
		return
	}
	h.exported(r, user, register, "xlsx")
	api.Attachment(w, api.ContentTypeXLSX, registerFilename(register.Period, "xlsx"), buf.Bytes())
}

func (h *Handler) handleRegisterCSV(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	register, err := h.Service.Register(r.Context(), user, chi.URLParam(r, "periodID"), r.URL.Query().Get("branchId"))
	if err != nil {
		shared.WriteError(w, err, "report_export_failed", "failed to export payroll register", requestID)
		return
	}
	var buf bytes.Buffer
	if err := reports.WriteRegisterCSV(&buf, register.Records); err != nil {
		shared.WriteError(w, err, "report_export_failed", "failed to export payroll register", requestID)
		return
	}
	h.exported(r, user, register, "csv")
	api.Attachment(w, api.ContentTypeCSV, registerFilename(register.Period, "csv"), buf.Bytes())
}

func (h *Handler) exported(r *http.Request, user auth.Session, register reports.Register, format string) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), audit.Entry{
		ActorID:    user.UserID,
		Action:     "reports.register.export",
		EntityType: "payroll_period",
		EntityID:   register.Period.ID,
		RequestID:  middleware.GetRequestID(r.Context()),
		IP:         shared.ClientIP(r),
		After:      map[string]any{"format": format, "records": len(register.Records), "branchId": r.URL.Query().Get("branchId")},
	}); err != nil {
		slog.Warn("audit register export failed", "err", err)
	}
}

// registerFilename turns "March 2025" into payroll-register-march-2025.xlsx.
func registerFilename(period payroll.Period, ext string) string {
	slug := strings.Join(strings.Fields(strings.ToLower(period.Name)), "-")
	if slug == "" {
		slug = period.ID
	}
	return "payroll-register-" + slug + "." + ext
}
