package shared

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"

	"branchpay/internal/domain/attendance"
	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/org"
	"branchpay/internal/domain/payroll"
	"branchpay/internal/platform/jobs"
	"branchpay/internal/transport/http/api"
)

// WriteError maps domain errors onto the response envelope. Anything it does
// not recognise is logged and reported as failCode with a 500.
func WriteError(w http.ResponseWriter, err error, failCode, failMessage, requestID string) {
	switch {
	case errors.Is(err, payroll.ErrPeriodNotFound),
		errors.Is(err, payroll.ErrRecordNotFound),
		errors.Is(err, org.ErrBranchNotFound),
		errors.Is(err, org.ErrEmployeeNotFound),
		errors.Is(err, jobs.ErrRunNotFound),
		errors.Is(err, pgx.ErrNoRows):
		api.Fail(w, http.StatusNotFound, "not_found", notFoundMessage(err), requestID)
	case errors.Is(err, auth.ErrBranchForbidden),
		errors.Is(err, auth.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), requestID)
	case errors.Is(err, payroll.ErrRunInProgress):
		api.Fail(w, http.StatusConflict, "conflict", err.Error(), requestID)
	case errors.Is(err, payroll.ErrRatesNeedConfirmation):
		api.FailWithDetails(w, http.StatusConflict, "rates_confirmation_required", err.Error(),
			map[string]any{"retryWith": "confirmRates=true"}, requestID)
	case errors.Is(err, payroll.ErrPeriodFinalized),
		errors.Is(err, payroll.ErrPeriodNotFinalized),
		errors.Is(err, payroll.ErrPeriodNoRecords),
		errors.Is(err, payroll.ErrRatesNotConfigured):
		api.Fail(w, http.StatusBadRequest, "invalid_state", err.Error(), requestID)
	case errors.Is(err, payroll.ErrInvalidPeriodDates),
		errors.Is(err, payroll.ErrInvalidRateTable),
		errors.Is(err, payroll.ErrInvalidAdjustment),
		errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, attendance.ErrInvalidLeaveType),
		errors.Is(err, attendance.ErrInvalidArrival),
		errors.Is(err, attendance.ErrNegativeAmount),
		errors.Is(err, attendance.ErrTooManyShifts),
		errors.Is(err, attendance.ErrFutureDate),
		errors.Is(err, attendance.ErrNotOnBranch),
		errors.Is(err, attendance.ErrInvalidCSV):
		api.FailWithDetails(w, http.StatusBadRequest, "validation_error", err.Error(), nil, requestID)
	default:
		slog.Error(failMessage, "code", failCode, "requestId", requestID, "err", err)
		api.Fail(w, http.StatusInternalServerError, failCode, failMessage, requestID)
	}
}

func notFoundMessage(err error) string {
	if errors.Is(err, pgx.ErrNoRows) {
		return "resource not found"
	}
	return err.Error()
}
