package payroll

import (
	"context"
	"time"
)

type StoreAPI interface {
	ListPeriods(ctx context.Context) ([]Period, error)
	GetPeriod(ctx context.Context, id string) (Period, error)
	CreatePeriod(ctx context.Context, name string, startDate, endDate time.Time) (string, error)
	SetFinalized(ctx context.Context, id string, finalized bool) error
	CountRecords(ctx context.Context, periodID string) (int, error)

	ListRateTables(ctx context.Context) ([]RateTable, error)
	UpsertRateTable(ctx context.Context, table RateTable) error

	ListAdjustments(ctx context.Context, periodID, employeeID string) ([]Adjustment, error)
	CreateAdjustment(ctx context.Context, adj Adjustment) (string, error)

	ReplaceRecords(ctx context.Context, periodID string, records []Record) error
	ListRecords(ctx context.Context, periodID string, filter RecordFilter) ([]Record, error)
	GetRecord(ctx context.Context, periodID, employeeID string) (Record, error)
}
