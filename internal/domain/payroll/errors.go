package payroll

import "errors"

var (
	ErrPeriodNotFound        = errors.New("payroll period not found")
	ErrPeriodFinalized       = errors.New("payroll period is finalized")
	ErrPeriodNotFinalized    = errors.New("payroll period is not finalized")
	ErrPeriodNoRecords       = errors.New("payroll period has no payroll records")
	ErrInvalidPeriodDates    = errors.New("period end date must not be before start date")
	ErrRatesNeedConfirmation = errors.New("no rate table for the period year; confirm use of an older table")
	ErrRatesNotConfigured    = errors.New("no payroll rate table configured")
	ErrInvalidRateTable      = errors.New("invalid rate table")
	ErrRunInProgress         = errors.New("payroll generation already running for this period")
	ErrRecordNotFound        = errors.New("payroll record not found")
	ErrInvalidAdjustment     = errors.New("invalid payroll adjustment")
)
