package reports

import (
	"context"
	"fmt"

	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/org"
	"branchpay/internal/domain/payroll"
)

type RecordSource interface {
	GetPeriod(ctx context.Context, id string) (payroll.Period, error)
	ListRecords(ctx context.Context, session auth.Session, periodID, branchID string) ([]payroll.Record, error)
}

type DirectorySource interface {
	Directory(ctx context.Context) (org.Directory, error)
}

type headcounter interface {
	ActiveHeadcount(ctx context.Context, branchIDs []string) (int, error)
}

type Service struct {
	records   RecordSource
	directory DirectorySource
	store     headcounter
}

func NewService(records RecordSource, directory DirectorySource, store headcounter) *Service {
	return &Service{records: records, directory: directory, store: store}
}

type Summary struct {
	Period   payroll.Period  `json:"period"`
	Branches []BranchSummary `json:"branches"`
	Totals   CompanyTotals   `json:"totals"`
}

// Register is everything an export needs for one period.
type Register struct {
	Period   payroll.Period
	Records  []payroll.Record
	Branches []BranchSummary
}

func (s *Service) load(ctx context.Context, session auth.Session, periodID, branchID string) (payroll.Period, []payroll.Record, []BranchSummary, error) {
	period, err := s.records.GetPeriod(ctx, periodID)
	if err != nil {
		return payroll.Period{}, nil, nil, err
	}
	records, err := s.records.ListRecords(ctx, session, periodID, branchID)
	if err != nil {
		return payroll.Period{}, nil, nil, err
	}
	dir, err := s.directory.Directory(ctx)
	if err != nil {
		return payroll.Period{}, nil, nil, fmt.Errorf("load directory: %w", err)
	}
	return period, records, Summarize(records, dir.BranchName), nil
}

// Summary returns branch summaries and totals within the caller's scope.
func (s *Service) Summary(ctx context.Context, session auth.Session, periodID, branchID string) (Summary, error) {
	period, _, branches, err := s.load(ctx, session, periodID, branchID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Period: period, Branches: branches, Totals: Totals(branches)}, nil
}

func (s *Service) Dashboard(ctx context.Context, session auth.Session, periodID string) (Dashboard, error) {
	period, records, branches, err := s.load(ctx, session, periodID, "")
	if err != nil {
		return Dashboard{}, err
	}
	d := BuildDashboard(period, records, branches)
	scope, err := session.BranchScope("")
	if err != nil {
		return Dashboard{}, err
	}
	if d.ActiveEmployees, err = s.store.ActiveHeadcount(ctx, scope); err != nil {
		return Dashboard{}, fmt.Errorf("active headcount: %w", err)
	}
	return d, nil
}

func (s *Service) Register(ctx context.Context, session auth.Session, periodID, branchID string) (Register, error) {
	period, records, branches, err := s.load(ctx, session, periodID, branchID)
	if err != nil {
		return Register{}, err
	}
	return Register{Period: period, Records: records, Branches: branches}, nil
}
