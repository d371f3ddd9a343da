package orghandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchpay/internal/domain/audit"
	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/org"
	"branchpay/internal/transport/http/middleware"
)

type fakeOrg struct {
	branches  []org.Branch
	employees map[string]org.Employee
	filter    org.EmployeeFilter
	created   org.Employee
	updated   org.Employee
}

func newFakeOrg() *fakeOrg {
	return &fakeOrg{
		branches: []org.Branch{{ID: "b1", Name: "Cairo Road"}, {ID: "b2", Name: "Kabwe"}},
		employees: map[string]org.Employee{
			"e1": {ID: "e1", FullName: "Chanda Mulenga", Position: org.PositionCashier, BranchID: "b1", BasicPay: decimal.NewFromInt(4000), EmploymentStatus: org.EmploymentActive},
			"e2": {ID: "e2", FullName: "Bwalya Phiri", Position: org.PositionSecurity, BranchID: "b2", BasicPay: decimal.NewFromInt(3000), EmploymentStatus: org.EmploymentInactive},
		},
	}
}

func (f *fakeOrg) ListBranches(context.Context) ([]org.Branch, error) { return f.branches, nil }

func (f *fakeOrg) GetBranch(_ context.Context, id string) (org.Branch, error) {
	for _, b := range f.branches {
		if b.ID == id {
			return b, nil
		}
	}
	return org.Branch{}, org.ErrBranchNotFound
}

func (f *fakeOrg) CreateBranch(context.Context, string, string) (string, error) { return "b-new", nil }

func (f *fakeOrg) ListEmployees(_ context.Context, filter org.EmployeeFilter) ([]org.Employee, error) {
	f.filter = filter
	return []org.Employee{f.employees["e1"], f.employees["e2"]}, nil
}

func (f *fakeOrg) GetEmployee(_ context.Context, id string) (org.Employee, error) {
	emp, ok := f.employees[id]
	if !ok {
		return org.Employee{}, org.ErrEmployeeNotFound
	}
	return emp, nil
}

func (f *fakeOrg) CreateEmployee(_ context.Context, emp org.Employee) (string, error) {
	f.created = emp
	return "e-new", nil
}

func (f *fakeOrg) UpdateEmployee(_ context.Context, _ string, emp org.Employee) error {
	f.updated = emp
	return nil
}

type recordedAudit struct {
	entries []audit.Entry
}

func (a *recordedAudit) Record(_ context.Context, e audit.Entry) error {
	a.entries = append(a.entries, e)
	return nil
}

var (
	admin   = auth.Session{UserID: "u-admin", Role: auth.RoleSuperAdmin}
	manager = auth.Session{UserID: "u-mgr", Role: auth.RoleBranchManager, BranchIDs: []string{"b1"}}
)

func serve(t *testing.T, h *Handler, session auth.Session, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), session)))
		})
	})
	h.RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, bytes.NewBufferString(body)))
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestManagerSeesOnlyOwnBranches(t *testing.T) {
	h := NewHandler(newFakeOrg(), nil, nil)

	rec := serve(t, h, manager, http.MethodGet, "/branches", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var branches []org.Branch
	decodeData(t, rec, &branches)
	require.Len(t, branches, 1)
	assert.Equal(t, "b1", branches[0].ID)

	rec = serve(t, h, manager, http.MethodGet, "/employees?branchId=b2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, h, manager, http.MethodGet, "/employees/e2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, h, manager, http.MethodPost, "/branches", `{"name":"Ndola"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetBranchChecksScopeThenExistence(t *testing.T) {
	h := NewHandler(newFakeOrg(), nil, nil)

	rec := serve(t, h, manager, http.MethodGet, "/branches/b1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var branch org.Branch
	decodeData(t, rec, &branch)
	assert.Equal(t, "Cairo Road", branch.Name)

	rec = serve(t, h, manager, http.MethodGet, "/branches/b2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, h, admin, http.MethodGet, "/branches/b9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEmployeesScopesAndPages(t *testing.T) {
	svc := newFakeOrg()
	h := NewHandler(svc, nil, nil)

	rec := serve(t, h, manager, http.MethodGet, "/employees?status=Active&limit=1&offset=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"b1"}, svc.filter.BranchIDs)
	assert.Equal(t, org.EmploymentActive, svc.filter.Status)
	assert.Equal(t, "2", rec.Header().Get("X-Total-Count"))

	var employees []org.Employee
	decodeData(t, rec, &employees)
	require.Len(t, employees, 1)
	assert.Equal(t, "e2", employees[0].ID)

	rec = serve(t, h, admin, http.MethodGet, "/employees?status=retired", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "must be active or inactive")
}

func TestCreateEmployeeNormalizesPayload(t *testing.T) {
	svc := newFakeOrg()
	auditor := &recordedAudit{}
	h := NewHandler(svc, auditor, nil)

	body := `{"fullName":"  Mutale Banda ","position":"Cashier","branchId":"b1","basicPay":"K4,500.50","dateStarted":"2024-02-01","contact":{"phone":"+260971000000"}}`
	rec := serve(t, h, admin, http.MethodPost, "/employees", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, "Mutale Banda", svc.created.FullName)
	assert.Equal(t, org.PositionCashier, svc.created.Position)
	assert.True(t, svc.created.BasicPay.Equal(decimal.RequireFromString("4500.5")), svc.created.BasicPay.String())
	assert.Equal(t, org.EmploymentActive, svc.created.EmploymentStatus)
	require.NotNil(t, svc.created.DateStarted)
	assert.Equal(t, "2024-02-01", svc.created.DateStarted.Format("2006-01-02"))

	require.Len(t, auditor.entries, 1)
	assert.Equal(t, "org.employee.create", auditor.entries[0].Action)
	assert.NotContains(t, auditor.entries[0].After, "contact")
}

func TestCreateEmployeeCollectsAllIssues(t *testing.T) {
	h := NewHandler(newFakeOrg(), nil, nil)

	rec := serve(t, h, admin, http.MethodPost, "/employees", `{"position":"pilot","basicPay":-5,"dateStarted":"01/02/2024"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var env struct {
		Error struct {
			Details struct {
				Fields []struct {
					Field string `json:"field"`
				} `json:"fields"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	fields := make([]string, 0, len(env.Error.Details.Fields))
	for _, f := range env.Error.Details.Fields {
		fields = append(fields, f.Field)
	}
	assert.Equal(t, []string{"basicPay", "branchId", "dateStarted", "fullName", "position"}, fields)
}

func TestUpdateEmployeeAuditsBeforeAndAfter(t *testing.T) {
	svc := newFakeOrg()
	auditor := &recordedAudit{}
	h := NewHandler(svc, auditor, nil)

	rec := serve(t, h, admin, http.MethodPut, "/employees/e1", `{"fullName":"Chanda Mulenga","position":"manager","branchId":"b1","basicPay":6000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, org.EmploymentActive, svc.updated.EmploymentStatus)

	require.Len(t, auditor.entries, 1)
	entry := auditor.entries[0]
	assert.Equal(t, "org.employee.update", entry.Action)
	assert.Equal(t, "e1", entry.EntityID)
	assert.Equal(t, "4000.00", entry.Before.(map[string]any)["basicPay"])
	assert.Equal(t, "6000.00", entry.After.(map[string]any)["basicPay"])

	rec = serve(t, h, admin, http.MethodPut, "/employees/missing", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
