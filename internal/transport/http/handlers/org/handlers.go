package orghandler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"branchpay/internal/domain/audit"
	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/org"
	"branchpay/internal/transport/http/api"
	"branchpay/internal/transport/http/middleware"
	"branchpay/internal/transport/http/shared"
)

type Service interface {
	ListBranches(ctx context.Context) ([]org.Branch, error)
	GetBranch(ctx context.Context, id string) (org.Branch, error)
	CreateBranch(ctx context.Context, name, location string) (string, error)
	ListEmployees(ctx context.Context, filter org.EmployeeFilter) ([]org.Employee, error)
	GetEmployee(ctx context.Context, id string) (org.Employee, error)
	CreateEmployee(ctx context.Context, emp org.Employee) (string, error)
	UpdateEmployee(ctx context.Context, id string, emp org.Employee) error
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

type branchPayload struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

type employeePayload struct {
	FullName         string      `json:"fullName"`
	Position         string      `json:"position"`
	BranchID         string      `json:"branchId"`
	BasicPay         any         `json:"basicPay"`
	EmploymentStatus string      `json:"employmentStatus"`
	DateStarted      string      `json:"dateStarted"`
	Contact          org.Contact `json:"contact"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermOrgRead, h.Perms)).Get("/branches", h.handleListBranches)
	r.With(middleware.RequirePermission(auth.PermOrgWrite, h.Perms)).Post("/branches", h.handleCreateBranch)
	r.With(middleware.RequirePermission(auth.PermOrgRead, h.Perms)).Get("/branches/{branchID}", h.handleGetBranch)
	r.With(middleware.RequirePermission(auth.PermOrgRead, h.Perms)).Get("/employees", h.handleListEmployees)
	r.With(middleware.RequirePermission(auth.PermOrgWrite, h.Perms)).Post("/employees", h.handleCreateEmployee)
	r.With(middleware.RequirePermission(auth.PermOrgRead, h.Perms)).Get("/employees/{employeeID}", h.handleGetEmployee)
	r.With(middleware.RequirePermission(auth.PermOrgWrite, h.Perms)).Put("/employees/{employeeID}", h.handleUpdateEmployee)
}

func (h *Handler) handleListBranches(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	branches, err := h.Service.ListBranches(r.Context())
	if err != nil {
		shared.WriteError(w, err, "branch_list_failed", "failed to list branches", middleware.GetRequestID(r.Context()))
		return
	}
	visible := make([]org.Branch, 0, len(branches))
	for _, b := range branches {
		if user.CanAccessBranch(b.ID) {
			visible = append(visible, b)
		}
	}
	api.Success(w, visible, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetBranch(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	branchID := chi.URLParam(r, "branchID")
	if !user.CanAccessBranch(branchID) {
		shared.WriteError(w, auth.ErrBranchForbidden, "branch_get_failed", "failed to load branch", requestID)
		return
	}
	branch, err := h.Service.GetBranch(r.Context(), branchID)
	if err != nil {
		shared.WriteError(w, err, "branch_get_failed", "failed to load branch", requestID)
		return
	}
	api.Success(w, branch, requestID)
}

func (h *Handler) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	var payload branchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	v := shared.NewValidator()
	v.Required("name", payload.Name, "is required")
	if v.Reject(w, requestID) {
		return
	}

	id, err := h.Service.CreateBranch(r.Context(), strings.TrimSpace(payload.Name), strings.TrimSpace(payload.Location))
	if err != nil {
		shared.WriteError(w, err, "branch_create_failed", "failed to create branch", requestID)
		return
	}
	h.audit(r, user, "org.branch.create", "branch", id, payload)
	api.Created(w, map[string]string{"id": id}, requestID)
}

func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	scope, err := user.BranchScope(r.URL.Query().Get("branchId"))
	if err != nil {
		shared.WriteError(w, err, "employee_list_failed", "failed to list employees", requestID)
		return
	}
	status := r.URL.Query().Get("status")
	v := shared.NewValidator()
	v.Enum("status", status, []string{org.EmploymentActive, org.EmploymentInactive}, "must be active or inactive")
	if v.Reject(w, requestID) {
		return
	}

	employees, err := h.Service.ListEmployees(r.Context(), org.EmployeeFilter{BranchIDs: scope, Status: strings.ToLower(status)})
	if err != nil {
		shared.WriteError(w, err, "employee_list_failed", "failed to list employees", requestID)
		return
	}
	employees = shared.Page(w, employees, shared.ParsePagination(r, 0, 1000))
	api.Success(w, employees, requestID)
}

func (h *Handler) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	emp, err := h.Service.GetEmployee(r.Context(), chi.URLParam(r, "employeeID"))
	if err != nil {
		shared.WriteError(w, err, "employee_get_failed", "failed to load employee", requestID)
		return
	}
	if !user.CanAccessBranch(emp.BranchID) {
		shared.WriteError(w, auth.ErrBranchForbidden, "employee_get_failed", "failed to load employee", requestID)
		return
	}
	api.Success(w, emp, requestID)
}

func (h *Handler) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	emp, ok := h.decodeEmployee(w, r)
	if !ok {
		return
	}
	if emp.EmploymentStatus == "" {
		emp.EmploymentStatus = org.EmploymentActive
	}
	id, err := h.Service.CreateEmployee(r.Context(), emp)
	if err != nil {
		shared.WriteError(w, err, "employee_create_failed", "failed to create employee", requestID)
		return
	}
	h.audit(r, user, "org.employee.create", "employee", id, map[string]any{"fullName": emp.FullName, "branchId": emp.BranchID, "position": emp.Position})
	api.Created(w, map[string]string{"id": id}, requestID)
}

func (h *Handler) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "employeeID")
	before, err := h.Service.GetEmployee(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err, "employee_update_failed", "failed to update employee", requestID)
		return
	}
	emp, ok := h.decodeEmployee(w, r)
	if !ok {
		return
	}
	if emp.EmploymentStatus == "" {
		emp.EmploymentStatus = before.EmploymentStatus
	}
	if err := h.Service.UpdateEmployee(r.Context(), id, emp); err != nil {
		shared.WriteError(w, err, "employee_update_failed", "failed to update employee", requestID)
		return
	}
	h.record(r, audit.Entry{
		ActorID:    user.UserID,
		Action:     "org.employee.update",
		EntityType: "employee",
		EntityID:   id,
		Before:     employeeAuditView(before),
		After:      employeeAuditView(emp),
	})
	api.Success(w, map[string]string{"id": id}, requestID)
}

func (h *Handler) decodeEmployee(w http.ResponseWriter, r *http.Request) (org.Employee, bool) {
	requestID := middleware.GetRequestID(r.Context())
	var payload employeePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return org.Employee{}, false
	}

	v := shared.NewValidator()
	v.Required("fullName", payload.FullName, "is required")
	v.Required("branchId", payload.BranchID, "is required")
	v.Required("position", payload.Position, "is required")
	v.Enum("position", payload.Position, org.Positions, "must be a known position")
	v.Enum("employmentStatus", payload.EmploymentStatus, []string{org.EmploymentActive, org.EmploymentInactive}, "must be active or inactive")
	pay := v.Money("basicPay", payload.BasicPay, false)
	var started *time.Time
	if strings.TrimSpace(payload.DateStarted) != "" {
		if d, ok := v.Date("dateStarted", payload.DateStarted); ok {
			started = &d
		}
	}
	if v.Reject(w, requestID) {
		return org.Employee{}, false
	}

	return org.Employee{
		FullName:         strings.TrimSpace(payload.FullName),
		Position:         strings.ToLower(strings.TrimSpace(payload.Position)),
		BranchID:         strings.TrimSpace(payload.BranchID),
		BasicPay:         pay,
		EmploymentStatus: strings.ToLower(strings.TrimSpace(payload.EmploymentStatus)),
		DateStarted:      started,
		Contact:          payload.Contact,
	}, true
}

// employeeAuditView leaves contact details out of the audit trail.
func employeeAuditView(e org.Employee) map[string]any {
	return map[string]any{
		"fullName":         e.FullName,
		"position":         e.Position,
		"branchId":         e.BranchID,
		"basicPay":         e.BasicPay.StringFixed(2),
		"employmentStatus": e.EmploymentStatus,
	}
}

func (h *Handler) audit(r *http.Request, user auth.Session, action, entityType, entityID string, after any) {
	h.record(r, audit.Entry{ActorID: user.UserID, Action: action, EntityType: entityType, EntityID: entityID, After: after})
}

func (h *Handler) record(r *http.Request, entry audit.Entry) {
	if h.Audit == nil {
		return
	}
	entry.RequestID = middleware.GetRequestID(r.Context())
	entry.IP = shared.ClientIP(r)
	if err := h.Audit.Record(r.Context(), entry); err != nil {
		slog.Warn("audit "+entry.Action+" failed", "err", err)
	}
}
