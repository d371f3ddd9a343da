package shared

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"branchpay/internal/domain/attendance"
	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/payroll"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{payroll.ErrPeriodNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", payroll.ErrRunInProgress), http.StatusConflict},
		{fmt.Errorf("%w: 2024 table", payroll.ErrRatesNeedConfirmation), http.StatusConflict},
		{payroll.ErrPeriodFinalized, http.StatusBadRequest},
		{auth.ErrBranchForbidden, http.StatusForbidden},
		{attendance.ErrFutureDate, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteError(rec, tc.err, "op_failed", "operation failed", "req")
		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rec.Code)
		}
	}
}
