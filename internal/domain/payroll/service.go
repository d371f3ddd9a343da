package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"branchpay/internal/domain/attendance"
	"branchpay/internal/domain/audit"
	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/org"
	"branchpay/internal/platform/lock"
	"branchpay/internal/platform/metrics"
)

type Roster interface {
	ActiveRoster(ctx context.Context, branchIDs []string) ([]org.Employee, error)
}

type LogSource interface {
	LogsInRange(ctx context.Context, start, end time.Time) ([]attendance.Log, error)
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

type Deps struct {
	Roster  Roster
	Logs    LogSource
	Locker  lock.Locker
	Audit   Auditor
	Metrics *metrics.Collector
	LockTTL time.Duration
}

type Service struct {
	store StoreAPI
	deps  Deps
	now   func() time.Time
}

func NewService(store StoreAPI, deps Deps) *Service {
	if deps.LockTTL <= 0 {
		deps.LockTTL = 2 * time.Minute
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	return &Service{store: store, deps: deps, now: time.Now}
}

func (s *Service) ListPeriods(ctx context.Context) ([]Period, error) {
	return s.store.ListPeriods(ctx)
}

func (s *Service) GetPeriod(ctx context.Context, id string) (Period, error) {
	return s.store.GetPeriod(ctx, id)
}

// CreatePeriod stores an inclusive date window. An empty name defaults to
// the start month, e.g. "March 2025".
func (s *Service) CreatePeriod(ctx context.Context, name string, start, end time.Time) (Period, error) {
	start, end = attendance.Day(start), attendance.Day(end)
	if end.Before(start) {
		return Period{}, ErrInvalidPeriodDates
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = start.Format("January 2006")
	}
	id, err := s.store.CreatePeriod(ctx, name, start, end)
	if err != nil {
		return Period{}, err
	}
	return Period{ID: id, Name: name, StartDate: start, EndDate: end, CreatedAt: s.now()}, nil
}

// FinalizePeriod takes the period's run lock, so it fails with
// ErrRunInProgress while a generation for the period is still running.
func (s *Service) FinalizePeriod(ctx context.Context, id string) error {
	release, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	period, err := s.store.GetPeriod(ctx, id)
	if err != nil {
		return err
	}
	if period.IsFinalized {
		return ErrPeriodFinalized
	}
	n, err := s.store.CountRecords(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPeriodNoRecords
	}
	return s.store.SetFinalized(ctx, id, true)
}

// ReopenPeriod clears the finalized flag. Only a super admin may do this.
func (s *Service) ReopenPeriod(ctx context.Context, session auth.Session, id string) error {
	if !session.IsSuperAdmin() {
		return auth.ErrForbidden
	}
	period, err := s.store.GetPeriod(ctx, id)
	if err != nil {
		return err
	}
	if !period.IsFinalized {
		return ErrPeriodNotFinalized
	}
	return s.store.SetFinalized(ctx, id, false)
}

func (s *Service) ListRateTables(ctx context.Context) ([]RateTable, error) {
	return s.store.ListRateTables(ctx)
}

func (s *Service) UpsertRateTable(ctx context.Context, table RateTable) error {
	if err := table.Validate(); err != nil {
		return err
	}
	return s.store.UpsertRateTable(ctx, table)
}

// ResolveRates picks the rate table for the period's end-date year.
func (s *Service) ResolveRates(ctx context.Context, period Period, confirm bool) (RateTable, bool, error) {
	tables, err := s.store.ListRateTables(ctx)
	if err != nil {
		return RateTable{}, false, fmt.Errorf("list rate tables: %w", err)
	}
	return SelectRates(tables, period.EndDate.Year(), confirm)
}

func (s *Service) ListAdjustments(ctx context.Context, periodID, employeeID string) ([]Adjustment, error) {
	if _, err := s.store.GetPeriod(ctx, periodID); err != nil {
		return nil, err
	}
	return s.store.ListAdjustments(ctx, periodID, employeeID)
}

func (s *Service) CreateAdjustment(ctx context.Context, session auth.Session, adj Adjustment) (Adjustment, error) {
	if !slices.Contains(AdjustmentKinds, adj.Kind) {
		return Adjustment{}, fmt.Errorf("%w: kind must be bonus or other_deduction", ErrInvalidAdjustment)
	}
	if !adj.Amount.IsPositive() {
		return Adjustment{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAdjustment)
	}
	if strings.TrimSpace(adj.EmployeeID) == "" {
		return Adjustment{}, fmt.Errorf("%w: employee is required", ErrInvalidAdjustment)
	}
	if uuid.Validate(adj.EmployeeID) != nil {
		return Adjustment{}, fmt.Errorf("%w: unknown employee", ErrInvalidAdjustment)
	}
	period, err := s.store.GetPeriod(ctx, adj.PeriodID)
	if err != nil {
		return Adjustment{}, err
	}
	if period.IsFinalized {
		return Adjustment{}, ErrPeriodFinalized
	}
	adj.Description = strings.TrimSpace(adj.Description)
	adj.CreatedBy = session.UserID
	id, err := s.store.CreateAdjustment(ctx, adj)
	if err != nil {
		return Adjustment{}, err
	}
	adj.ID = id
	adj.CreatedAt = s.now()
	return adj, nil
}

// ListRecords returns records limited to the caller's branches.
func (s *Service) ListRecords(ctx context.Context, session auth.Session, periodID, branchID string) ([]Record, error) {
	scope, err := session.BranchScope(branchID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetPeriod(ctx, periodID); err != nil {
		return nil, err
	}
	return s.store.ListRecords(ctx, periodID, RecordFilter{BranchIDs: scope})
}

func (s *Service) GetRecord(ctx context.Context, session auth.Session, periodID, employeeID string) (Record, error) {
	r, err := s.store.GetRecord(ctx, periodID, employeeID)
	if err != nil {
		return Record{}, err
	}
	if !session.CanAccessBranch(r.BranchID) {
		return Record{}, auth.ErrBranchForbidden
	}
	return r, nil
}

// AuditContext carries request details for the run's audit event.
type AuditContext struct {
	RequestID string
	IP        string
}

// Generate computes and stores the payroll records of a period. Runs for
// the same period are serialized by a lock; a concurrent attempt fails with
// ErrRunInProgress.
func (s *Service) Generate(ctx context.Context, session auth.Session, periodID string, opts GenerateOptions, ac AuditContext) (RunResult, error) {
	period, err := s.store.GetPeriod(ctx, periodID)
	if err != nil {
		return RunResult{}, err
	}
	if period.IsFinalized {
		return RunResult{}, ErrPeriodFinalized
	}
	rates, prior, err := s.ResolveRates(ctx, period, opts.ConfirmRates)
	if err != nil {
		return RunResult{}, err
	}

	release, err := s.acquire(ctx, periodID)
	if err != nil {
		return RunResult{}, err
	}
	defer release()

	// a finalize may have committed between the first read and the lock
	if period, err = s.store.GetPeriod(ctx, periodID); err != nil {
		return RunResult{}, err
	}
	if period.IsFinalized {
		return RunResult{}, ErrPeriodFinalized
	}

	roster, err := s.deps.Roster.ActiveRoster(ctx, nil)
	if err != nil {
		return RunResult{}, fmt.Errorf("load roster: %w", err)
	}
	logs, err := s.deps.Logs.LogsInRange(ctx, period.StartDate, period.EndDate)
	if err != nil {
		return RunResult{}, fmt.Errorf("load daily logs: %w", err)
	}
	adjustments, err := s.store.ListAdjustments(ctx, periodID, "")
	if err != nil {
		return RunResult{}, fmt.Errorf("load adjustments: %w", err)
	}

	records, result := BuildRecords(period, roster, logs, rates, SumAdjustments(adjustments), s.now().UTC())
	result.PriorYearRates = prior
	if err := s.store.ReplaceRecords(ctx, periodID, records); err != nil {
		if errors.Is(err, ErrPeriodFinalized) {
			return RunResult{}, err
		}
		return RunResult{}, fmt.Errorf("store records: %w", err)
	}

	s.deps.Metrics.PayrollRun(result.Generated)
	slog.Info("payroll generated", "periodId", periodID, "records", result.Generated, "noLogs", result.NoLogs, "flagged", result.Flagged, "ratesYear", result.RatesYear)
	if s.deps.Audit != nil {
		if err := s.deps.Audit.Record(ctx, audit.Entry{
			ActorID:    session.UserID,
			Action:     "payroll.generate",
			EntityType: "payroll_period",
			EntityID:   periodID,
			RequestID:  ac.RequestID,
			IP:         ac.IP,
			After:      result,
		}); err != nil {
			slog.Warn("audit payroll generate failed", "periodId", periodID, "err", err)
		}
	}
	return result, nil
}

// acquire takes the per-period lock shared by generation and finalize.
func (s *Service) acquire(ctx context.Context, periodID string) (func(), error) {
	lease, err := s.deps.Locker.Acquire(ctx, "payroll:"+periodID, s.deps.LockTTL)
	if errors.Is(err, lock.ErrNotObtained) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("acquire payroll lock: %w", err)
	}
	return func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("payroll lock release failed", "periodId", periodID, "err", err)
		}
	}, nil
}
