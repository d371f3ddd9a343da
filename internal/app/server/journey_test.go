package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchpay/internal/platform/config"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

type journey struct {
	t      *testing.T
	router http.Handler
	token  string
}

func (j *journey) call(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	j.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(j.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if j.token != "" {
		req.Header.Set("Authorization", "Bearer "+j.token)
	}
	rec := httptest.NewRecorder()
	j.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(j.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (j *journey) id(method, path string, body any) string {
	j.t.Helper()
	rec, env := j.call(method, path, body)
	require.Equal(j.t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(j.t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(j.t, out.ID)
	return out.ID
}

func TestPayrollJourney(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	t.Chdir("../../..")

	cfg := config.Config{
		Addr:                    ":0",
		DatabaseURL:             dsn,
		JWTSecret:               "journey-secret",
		Environment:             "test",
		SeedAdminEmail:          "admin@branchpay.test",
		SeedAdminPassword:       "Journey-Pass-1",
		SeedAdminName:           "Journey Admin",
		RunMigrations:           true,
		RunSeed:                 true,
		MaxBodyBytes:            1 << 20,
		RateLimitPerMinute:      1000,
		TokenTTL:                time.Hour,
		PayrollLockTTL:          time.Minute,
		PayslipStorageDir:       t.TempDir(),
		DefaultExtraShiftRate:   decimal.NewFromInt(150),
		DefaultAbsenceDailyRate: decimal.NewFromInt(50),
		MetricsEnabled:          true,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app, err := New(ctx, cfg)
	require.NoError(t, err)
	defer app.Close()

	j := &journey{t: t, router: app.Router}

	rec, env := j.call(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": cfg.SeedAdminEmail, "password": cfg.SeedAdminPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	j.token = login.Token

	suffix := fmt.Sprint(time.Now().UnixNano())
	branchID := j.id(http.MethodPost, "/api/v1/branches", map[string]string{"name": "Journey " + suffix, "location": "Lusaka"})
	employeeID := j.id(http.MethodPost, "/api/v1/employees", map[string]any{
		"fullName": "Journey Cashier", "position": "cashier", "branchId": branchID, "basicPay": "5000",
	})

	rec, _ = j.call(http.MethodPut, "/api/v1/daily-logs?branchId="+branchID+"&date=2025-03-10", map[string]any{
		"entries": []map[string]any{{"employeeId": employeeID, "status": "present", "extraShiftsWorked": 1}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	periodID := j.id(http.MethodPost, "/api/v1/payroll/periods", map[string]string{
		"periodName": "Journey March " + suffix, "startDate": "2025-03-01", "endDate": "2025-03-31",
	})

	rec, _ = j.call(http.MethodPost, "/api/v1/payroll/periods/"+periodID+"/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = j.call(http.MethodGet, "/api/v1/payroll/periods/"+periodID+"/records?branchId="+branchID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var records []struct {
		EmployeeID  string          `json:"employeeId"`
		GrossSalary decimal.Decimal `json:"grossSalary"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, employeeID, records[0].EmployeeID)
	assert.True(t, records[0].GrossSalary.Equal(decimal.NewFromInt(5150)), records[0].GrossSalary.String())

	rec, _ = j.call(http.MethodGet, "/api/v1/payslips/periods/"+periodID+"/batch.pdf?branchId="+branchID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "0", rec.Header().Get("X-Payslip-Errors"))

	rec, _ = j.call(http.MethodGet, "/api/v1/reports/periods/"+periodID+"/register.csv?branchId="+branchID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Journey Cashier")

	rec, _ = j.call(http.MethodPost, "/api/v1/payroll/periods/"+periodID+"/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = j.call(http.MethodPost, "/api/v1/payroll/periods/"+periodID+"/generate", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_state", env.Error.Code)

	rec, _ = j.call(http.MethodGet, "/api/v1/payroll/periods/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = j.call(http.MethodGet, "/api/v1/admin/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot map[string]float64
	require.NoError(t, json.Unmarshal(env.Data, &snapshot))
	assert.GreaterOrEqual(t, snapshot["payrollRunsTotal"], float64(1))
}
