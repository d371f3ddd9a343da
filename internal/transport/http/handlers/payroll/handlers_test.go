package payrollhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchpay/internal/domain/attendance"
	"branchpay/internal/domain/audit"
	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/payroll"
	"branchpay/internal/platform/jobs"
	"branchpay/internal/transport/http/middleware"
)

type fakeService struct {
	period      payroll.Period
	needConfirm bool
	finalized   int
	generated   int
	upserted    []payroll.RateTable
	adjustments []payroll.Adjustment
}

func (f *fakeService) ListPeriods(context.Context) ([]payroll.Period, error) {
	return []payroll.Period{f.period}, nil
}

func (f *fakeService) GetPeriod(_ context.Context, id string) (payroll.Period, error) {
	if id != f.period.ID {
		return payroll.Period{}, payroll.ErrPeriodNotFound
	}
	return f.period, nil
}

func (f *fakeService) CreatePeriod(_ context.Context, name string, start, end time.Time) (payroll.Period, error) {
	return payroll.Period{ID: "p-new", Name: name, StartDate: start, EndDate: end}, nil
}

func (f *fakeService) FinalizePeriod(_ context.Context, id string) error {
	if id != f.period.ID {
		return payroll.ErrPeriodNotFound
	}
	f.finalized++
	return nil
}

func (f *fakeService) ReopenPeriod(context.Context, auth.Session, string) error { return nil }

func (f *fakeService) ListRateTables(context.Context) ([]payroll.RateTable, error) {
	return f.upserted, nil
}

func (f *fakeService) UpsertRateTable(_ context.Context, table payroll.RateTable) error {
	f.upserted = append(f.upserted, table)
	return nil
}

func (f *fakeService) ResolveRates(_ context.Context, _ payroll.Period, confirm bool) (payroll.RateTable, bool, error) {
	if f.needConfirm && !confirm {
		return payroll.RateTable{}, false, payroll.ErrRatesNeedConfirmation
	}
	return payroll.RateTable{Year: 2024}, f.needConfirm, nil
}

func (f *fakeService) ListAdjustments(context.Context, string, string) ([]payroll.Adjustment, error) {
	return f.adjustments, nil
}

func (f *fakeService) CreateAdjustment(_ context.Context, _ auth.Session, adj payroll.Adjustment) (payroll.Adjustment, error) {
	adj.ID = "adj-1"
	f.adjustments = append(f.adjustments, adj)
	return adj, nil
}

func (f *fakeService) ListRecords(context.Context, auth.Session, string, string) ([]payroll.Record, error) {
	return []payroll.Record{{PeriodID: f.period.ID, EmployeeID: "e1"}}, nil
}

func (f *fakeService) Preview(_ context.Context, session auth.Session, periodID, branchID string) (payroll.Preview, error) {
	if _, err := session.BranchScope(branchID); err != nil {
		return payroll.Preview{}, err
	}
	if periodID != f.period.ID {
		return payroll.Preview{}, payroll.ErrPeriodNotFound
	}
	return payroll.Preview{
		PeriodID: periodID,
		Rows: []payroll.PreviewRow{{
			PreviewEmployee: payroll.PreviewEmployee{EmployeeID: "e1", FullName: "Chanda Mulenga", BranchID: "b1", BranchName: "Cairo Road"},
			Totals:          attendance.DailyAggregate{EmployeeID: "e1", DaysPresent: 20, DaysLate: 2, TotalFines: decimal.NewFromInt(40)},
		}},
		Missing:      []payroll.PreviewEmployee{{EmployeeID: "e2", FullName: "Bwalya Phiri", BranchID: "b1"}},
		MissingCount: 1,
	}, nil
}

func (f *fakeService) Generate(_ context.Context, _ auth.Session, periodID string, opts payroll.GenerateOptions, _ payroll.AuditContext) (payroll.RunResult, error) {
	if f.needConfirm && !opts.ConfirmRates {
		return payroll.RunResult{}, payroll.ErrRatesNeedConfirmation
	}
	f.generated++
	return payroll.RunResult{PeriodID: periodID, Generated: 3, PriorYearRates: f.needConfirm}, nil
}

type fakeQueue struct {
	ran []any
}

func (q *fakeQueue) Enqueue(ctx context.Context, _, _ string, run jobs.RunFunc) (string, error) {
	out, err := run(ctx)
	if err != nil {
		return "", err
	}
	q.ran = append(q.ran, out)
	return "job-1", nil
}

type fakeAudit struct {
	actions []string
}

func (a *fakeAudit) Record(_ context.Context, e audit.Entry) error {
	a.actions = append(a.actions, e.Action)
	return nil
}

type memoryIdempotency struct {
	saved map[string]json.RawMessage
	hash  map[string]string
}

func (m *memoryIdempotency) Check(_ context.Context, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	k := userID + endpoint + key
	stored, ok := m.saved[k]
	if !ok {
		return nil, false, nil
	}
	if m.hash[k] != requestHash {
		return nil, false, middleware.ErrIdempotencyConflict
	}
	return stored, true, nil
}

func (m *memoryIdempotency) Save(_ context.Context, userID, endpoint, key, requestHash string, response any) error {
	raw, err := json.Marshal(response)
	if err != nil {
		return err
	}
	k := userID + endpoint + key
	m.saved[k] = raw
	m.hash[k] = requestHash
	return nil
}

type fixture struct {
	svc   *fakeService
	queue *fakeQueue
	audit *fakeAudit
	idem  *memoryIdempotency
}

func newFixture() *fixture {
	return &fixture{
		svc:   &fakeService{period: payroll.Period{ID: "period-1", Name: "March 2025"}},
		queue: &fakeQueue{},
		audit: &fakeAudit{},
		idem:  &memoryIdempotency{saved: map[string]json.RawMessage{}, hash: map[string]string{}},
	}
}

func (f *fixture) do(t *testing.T, session auth.Session, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(f.svc, f.queue, f.audit, f.idem, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), session)))
		})
	})
	h.RegisterRoutes(r)

	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

var (
	admin   = auth.Session{UserID: "u-admin", Role: auth.RoleSuperAdmin}
	manager = auth.Session{UserID: "u-mgr", Role: auth.RoleBranchManager, BranchIDs: []string{"b1"}}
)

func TestManagerCannotFinalizeOrGenerate(t *testing.T) {
	f := newFixture()
	for _, target := range []string{"/payroll/periods/period-1/finalize", "/payroll/periods/period-1/generate"} {
		rec := f.do(t, manager, http.MethodPost, target, "", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
	}
	rec := f.do(t, manager, http.MethodGet, "/payroll/periods/period-1/records", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))
	assert.Zero(t, f.svc.finalized)
}

func TestGenerateRequiresRateConfirmation(t *testing.T) {
	f := newFixture()
	f.svc.needConfirm = true

	rec := f.do(t, admin, http.MethodPost, "/payroll/periods/period-1/generate", "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "rates_confirmation_required")
	assert.Contains(t, rec.Body.String(), "confirmRates=true")

	rec = f.do(t, admin, http.MethodPost, "/payroll/periods/period-1/generate?confirmRates=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"priorYearRates":true`)
	assert.Equal(t, 1, f.svc.generated)
}

func TestGenerateAsyncQueuesJob(t *testing.T) {
	f := newFixture()
	rec := f.do(t, admin, http.MethodPost, "/payroll/periods/period-1/generate?async=true", "", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var env struct {
		Data struct {
			JobID  string `json:"jobId"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, "job-1", env.Data.JobID)
	assert.Equal(t, jobs.StatusQueued, env.Data.Status)
	require.Len(t, f.queue.ran, 1)
	assert.Equal(t, 1, f.svc.generated)
}

func TestGenerateAsyncRejectsFinalizedPeriod(t *testing.T) {
	f := newFixture()
	f.svc.period.IsFinalized = true
	rec := f.do(t, admin, http.MethodPost, "/payroll/periods/period-1/generate?async=true", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.queue.ran)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	f := newFixture()
	headers := map[string]string{middleware.IdempotencyHeader: "key-1"}

	first := f.do(t, admin, http.MethodPost, "/payroll/periods/period-1/finalize", "", headers)
	require.Equal(t, http.StatusOK, first.Code)
	second := f.do(t, admin, http.MethodPost, "/payroll/periods/period-1/finalize", "", headers)
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, 1, f.svc.finalized)
	assert.Contains(t, second.Body.String(), `"isFinalized":true`)
	assert.Equal(t, []string{"payroll.finalize"}, f.audit.actions)
}

func TestFinalizeUnknownPeriod(t *testing.T) {
	f := newFixture()
	rec := f.do(t, admin, http.MethodPost, "/payroll/periods/missing/finalize", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreatePeriodValidatesDates(t *testing.T) {
	f := newFixture()
	rec := f.do(t, admin, http.MethodPost, "/payroll/periods", `{"periodName":"April","startDate":"2025-04-30","endDate":"2025-04-01"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")

	rec = f.do(t, admin, http.MethodPost, "/payroll/periods", `{"periodName":"April","startDate":"2025-04-01","endDate":"2025-04-30"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"payroll.period.create"}, f.audit.actions)
}

func TestUpsertRatesYearMustMatchPath(t *testing.T) {
	f := newFixture()
	rec := f.do(t, admin, http.MethodPut, "/payroll/rates/2026", `{"effectiveYear":2025}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.svc.upserted)

	rec = f.do(t, admin, http.MethodPut, "/payroll/rates/2026", `{"extraShiftRate":"160","napsaRate":"0.05"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.svc.upserted, 1)
	assert.Equal(t, 2026, f.svc.upserted[0].Year)
}

func TestCreateAdjustment(t *testing.T) {
	f := newFixture()
	rec := f.do(t, admin, http.MethodPost, "/payroll/periods/period-1/adjustments", `{"employeeId":"e1","kind":"bonus","amount":"-5"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, admin, http.MethodPost, "/payroll/periods/period-1/adjustments", `{"employeeId":"e1","kind":"raise","amount":"10"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, admin, http.MethodPost, "/payroll/periods/period-1/adjustments", `{"employeeId":"e1","kind":"Bonus","amount":"K1,250.50"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.svc.adjustments, 1)
	assert.Equal(t, "bonus", f.svc.adjustments[0].Kind)
	assert.Equal(t, "1250.5", f.svc.adjustments[0].Amount.String())
	assert.Equal(t, "period-1", f.svc.adjustments[0].PeriodID)
}

func TestPreviewListsTotalsAndMissing(t *testing.T) {
	f := newFixture()
	rec := f.do(t, manager, http.MethodGet, "/payroll/periods/period-1/preview", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env struct {
		Data struct {
			Rows []struct {
				EmployeeID string `json:"employeeId"`
				BranchName string `json:"branchName"`
				Totals     struct {
					DaysPresent int    `json:"daysPresent"`
					DaysLate    int    `json:"daysLate"`
					TotalFines  string `json:"totalFines"`
				} `json:"totals"`
			} `json:"rows"`
			MissingCount int `json:"missingCount"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.Len(t, env.Data.Rows, 1)
	assert.Equal(t, "e1", env.Data.Rows[0].EmployeeID)
	assert.Equal(t, "Cairo Road", env.Data.Rows[0].BranchName)
	assert.Equal(t, 20, env.Data.Rows[0].Totals.DaysPresent)
	assert.Equal(t, 2, env.Data.Rows[0].Totals.DaysLate)
	assert.Equal(t, "40", env.Data.Rows[0].Totals.TotalFines)
	assert.Equal(t, 1, env.Data.MissingCount)

	rec = f.do(t, manager, http.MethodGet, "/payroll/periods/period-1/preview?branchId=b2", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, admin, http.MethodGet, "/payroll/periods/missing/preview", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
