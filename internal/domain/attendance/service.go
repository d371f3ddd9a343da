package attendance

import (
	"context"
	"fmt"
	"io"
	"time"

	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/org"
)

// Roster supplies the active employees of a set of branches; nil means all.
type Roster interface {
	ActiveRoster(ctx context.Context, branchIDs []string) ([]org.Employee, error)
}

type logStore interface {
	UpsertLogs(ctx context.Context, logs []Log) error
	ListDay(ctx context.Context, branchID string, date time.Time) ([]Log, error)
	LogsInRange(ctx context.Context, start, end time.Time) ([]Log, error)
}

type Service struct {
	store  logStore
	roster Roster
	now    func() time.Time
}

func NewService(store logStore, roster Roster) *Service {
	return &Service{store: store, roster: roster, now: time.Now}
}

// Day truncates t to a UTC calendar date.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(raw string) (time.Time, error) {
	return time.Parse(DateLayout, raw)
}

func (s *Service) checkDate(date time.Time) error {
	if Day(date).After(Day(s.now())) {
		return ErrFutureDate
	}
	return nil
}

func (s *Service) branchRoster(ctx context.Context, session auth.Session, branchID string) ([]org.Employee, error) {
	if !session.CanAccessBranch(branchID) {
		return nil, auth.ErrBranchForbidden
	}
	employees, err := s.roster.ActiveRoster(ctx, []string{branchID})
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	return employees, nil
}

// SaveDay upserts the submitted entries for one branch and date.
func (s *Service) SaveDay(ctx context.Context, session auth.Session, branchID string, date time.Time, entries []Entry) (SaveResult, error) {
	if err := s.checkDate(date); err != nil {
		return SaveResult{}, err
	}
	employees, err := s.branchRoster(ctx, session, branchID)
	if err != nil {
		return SaveResult{}, err
	}
	onBranch := make(map[string]bool, len(employees))
	for _, e := range employees {
		onBranch[e.ID] = true
	}

	var result SaveResult
	byEmployee := map[string]int{}
	var logs []Log
	for _, entry := range entries {
		if !onBranch[entry.EmployeeID] {
			return SaveResult{}, fmt.Errorf("%w: %s", ErrNotOnBranch, entry.EmployeeID)
		}
		log, warnings, err := Normalize(entry)
		if err != nil {
			return SaveResult{}, fmt.Errorf("employee %s: %w", entry.EmployeeID, err)
		}
		log.BranchID = branchID
		log.LogDate = Day(date)
		log.RecordedBy = session.UserID
		result.Warnings = append(result.Warnings, warnings...)
		if i, ok := byEmployee[log.EmployeeID]; ok {
			logs[i] = log
			continue
		}
		byEmployee[log.EmployeeID] = len(logs)
		logs = append(logs, log)
	}

	if err := s.store.UpsertLogs(ctx, logs); err != nil {
		return SaveResult{}, err
	}
	result.Saved = len(logs)
	return result, nil
}

// LoadDay returns the branch roster for date, each row pre-filled from the
// saved log or a default present entry.
func (s *Service) LoadDay(ctx context.Context, session auth.Session, branchID string, date time.Time) (DaySheet, error) {
	employees, err := s.branchRoster(ctx, session, branchID)
	if err != nil {
		return DaySheet{}, err
	}
	saved, err := s.store.ListDay(ctx, branchID, Day(date))
	if err != nil {
		return DaySheet{}, fmt.Errorf("list day: %w", err)
	}
	byEmployee := make(map[string]Log, len(saved))
	for _, l := range saved {
		byEmployee[l.EmployeeID] = l
	}

	sheet := DaySheet{
		BranchID: branchID,
		Date:     Day(date).Format(DateLayout),
		Rows:     make([]SheetRow, 0, len(employees)),
		Counts:   make(map[string]int, len(Statuses)),
	}
	for _, status := range Statuses {
		sheet.Counts[status] = 0
	}
	for _, e := range employees {
		log, ok := byEmployee[e.ID]
		if !ok {
			log = Log{EmployeeID: e.ID, BranchID: branchID, LogDate: Day(date), Status: StatusPresent}
		}
		sheet.Counts[log.Status]++
		sheet.Rows = append(sheet.Rows, SheetRow{
			EmployeeID:    e.ID,
			FullName:      e.FullName,
			Position:      e.Position,
			PositionLabel: org.PositionLabel(e.Position),
			Saved:         ok,
			Log:           log,
		})
	}
	return sheet, nil
}

// MarkAllPresent records present for every active employee of the branch
// without a log on date. Existing logs are left alone.
func (s *Service) MarkAllPresent(ctx context.Context, session auth.Session, branchID string, date time.Time) (int, error) {
	if err := s.checkDate(date); err != nil {
		return 0, err
	}
	employees, err := s.branchRoster(ctx, session, branchID)
	if err != nil {
		return 0, err
	}
	saved, err := s.store.ListDay(ctx, branchID, Day(date))
	if err != nil {
		return 0, fmt.Errorf("list day: %w", err)
	}
	logged := make(map[string]bool, len(saved))
	for _, l := range saved {
		logged[l.EmployeeID] = true
	}
	var logs []Log
	for _, e := range employees {
		if logged[e.ID] {
			continue
		}
		logs = append(logs, Log{
			EmployeeID: e.ID,
			BranchID:   branchID,
			LogDate:    Day(date),
			Status:     StatusPresent,
			RecordedBy: session.UserID,
		})
	}
	if err := s.store.UpsertLogs(ctx, logs); err != nil {
		return 0, err
	}
	return len(logs), nil
}

// ImportCSV loads logs for any branch in the caller's scope. Rows that
// cannot be placed are skipped with a warning; the rest are saved together.
func (s *Service) ImportCSV(ctx context.Context, session auth.Session, r io.Reader) (ImportResult, error) {
	rows, err := ParseCSV(r)
	if err != nil {
		return ImportResult{}, err
	}
	scope, err := session.BranchScope("")
	if err != nil {
		return ImportResult{}, err
	}
	employees, err := s.roster.ActiveRoster(ctx, scope)
	if err != nil {
		return ImportResult{}, fmt.Errorf("load roster: %w", err)
	}
	branchOf := make(map[string]string, len(employees))
	for _, e := range employees {
		branchOf[e.ID] = e.BranchID
	}

	var result ImportResult
	skip := func(row int, employeeID, field, msg string) {
		result.Skipped++
		result.Warnings = append(result.Warnings, Warning{Row: row, EmployeeID: employeeID, Field: field, Message: msg})
	}

	type key struct {
		employee string
		date     time.Time
	}
	seen := map[key]int{}
	var logs []Log
	for _, row := range rows {
		employeeID := row.Entry.EmployeeID
		branchID, ok := branchOf[employeeID]
		if !ok {
			skip(row.Row, employeeID, "employee_id", "unknown or inactive employee")
			continue
		}
		date, err := ParseDate(row.LogDate)
		if err != nil {
			skip(row.Row, employeeID, "log_date", fmt.Sprintf("invalid date %q", row.LogDate))
			continue
		}
		if err := s.checkDate(date); err != nil {
			skip(row.Row, employeeID, "log_date", err.Error())
			continue
		}
		log, warnings, err := Normalize(row.Entry)
		if err != nil {
			skip(row.Row, employeeID, "", err.Error())
			continue
		}
		for _, w := range warnings {
			w.Row = row.Row
			result.Warnings = append(result.Warnings, w)
		}
		log.BranchID = branchID
		log.LogDate = Day(date)
		log.RecordedBy = session.UserID

		k := key{employee: employeeID, date: log.LogDate}
		if i, ok := seen[k]; ok {
			logs[i] = log
			continue
		}
		seen[k] = len(logs)
		logs = append(logs, log)
	}

	if err := s.store.UpsertLogs(ctx, logs); err != nil {
		return ImportResult{}, err
	}
	result.Imported = len(logs)
	return result, nil
}

// LogsInRange returns the logs of an inclusive date window.
func (s *Service) LogsInRange(ctx context.Context, start, end time.Time) ([]Log, error) {
	return s.store.LogsInRange(ctx, Day(start), Day(end))
}
