package payroll

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"branchpay/internal/domain/attendance"
	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/org"
)

type PreviewEmployee struct {
	EmployeeID string `json:"employeeId"`
	FullName   string `json:"fullName"`
	BranchID   string `json:"branchId"`
	BranchName string `json:"branchName"`
}

type PreviewRow struct {
	PreviewEmployee
	Totals attendance.DailyAggregate `json:"totals"`
}

// Preview is the attendance picture a run would see, before anything is
// computed or stored.
type Preview struct {
	PeriodID     string            `json:"periodId"`
	Rows         []PreviewRow      `json:"rows"`
	Missing      []PreviewEmployee `json:"missing"`
	MissingCount int               `json:"missingCount"`
}

// Preview aggregates the period's logs for the active roster within the
// caller's branches. Rows and missing employees are ordered by branch name,
// then full name.
func (s *Service) Preview(ctx context.Context, session auth.Session, periodID, branchID string) (Preview, error) {
	scope, err := session.BranchScope(branchID)
	if err != nil {
		return Preview{}, err
	}
	period, err := s.store.GetPeriod(ctx, periodID)
	if err != nil {
		return Preview{}, err
	}
	roster, err := s.deps.Roster.ActiveRoster(ctx, scope)
	if err != nil {
		return Preview{}, fmt.Errorf("load roster: %w", err)
	}
	logs, err := s.deps.Logs.LogsInRange(ctx, period.StartDate, period.EndDate)
	if err != nil {
		return Preview{}, fmt.Errorf("load daily logs: %w", err)
	}
	return BuildPreview(period.ID, roster, logs), nil
}

func BuildPreview(periodID string, roster []org.Employee, logs []attendance.Log) Preview {
	byID := make(map[string]org.Employee, len(roster))
	ids := make([]string, 0, len(roster))
	for _, e := range roster {
		if e.Active() {
			byID[e.ID] = e
			ids = append(ids, e.ID)
		}
	}
	active := attendance.NewIDSet(ids...)
	aggregates := attendance.Aggregate(logs, active)

	out := Preview{PeriodID: periodID, Rows: []PreviewRow{}, Missing: []PreviewEmployee{}}
	for id, agg := range aggregates {
		out.Rows = append(out.Rows, PreviewRow{PreviewEmployee: previewEmployee(byID[id]), Totals: agg})
	}
	for _, id := range attendance.MissingEmployees(active, aggregates) {
		out.Missing = append(out.Missing, previewEmployee(byID[id]))
	}
	out.MissingCount = len(out.Missing)

	slices.SortFunc(out.Rows, func(a, b PreviewRow) int { return comparePreview(a.PreviewEmployee, b.PreviewEmployee) })
	slices.SortFunc(out.Missing, comparePreview)
	return out
}

func previewEmployee(e org.Employee) PreviewEmployee {
	return PreviewEmployee{EmployeeID: e.ID, FullName: e.FullName, BranchID: e.BranchID, BranchName: e.BranchName}
}

func comparePreview(a, b PreviewEmployee) int {
	return cmp.Or(
		cmp.Compare(a.BranchName, b.BranchName),
		cmp.Compare(a.FullName, b.FullName),
		cmp.Compare(a.EmployeeID, b.EmployeeID),
	)
}
