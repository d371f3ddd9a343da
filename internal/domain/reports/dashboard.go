package reports

import (
	"github.com/shopspring/decimal"

	"branchpay/internal/domain/payroll"
	"branchpay/internal/platform/money"
)

// Dashboard holds the landing page figures for one period.
type Dashboard struct {
	Period          payroll.Period    `json:"period"`
	Employees       int               `json:"employees"`
	ActiveEmployees int               `json:"activeEmployees"`
	Branches        int               `json:"branches"`
	Gross           decimal.Decimal   `json:"gross"`
	Net             decimal.Decimal   `json:"net"`
	NAPSA           decimal.Decimal   `json:"napsa"`
	NHIMA           decimal.Decimal   `json:"nhima"`
	PAYE            decimal.Decimal   `json:"paye"`
	Statutory       decimal.Decimal   `json:"statutory"`
	TopBranch       *BranchSummary    `json:"topBranch,omitempty"`
	Flagged         int               `json:"flagged"`
	NoLogs          int               `json:"noLogs"`
	Display         map[string]string `json:"display"`
}

// BuildDashboard derives the headline figures from a period's records and
// their branch summaries.
func BuildDashboard(period payroll.Period, records []payroll.Record, summaries []BranchSummary) Dashboard {
	totals := Totals(summaries)
	d := Dashboard{
		Period:    period,
		Employees: totals.Employees,
		Branches:  len(summaries),
		Gross:     totals.Gross,
		Net:       totals.Net,
		NAPSA:     totals.NAPSA,
		NHIMA:     totals.NHIMA,
		PAYE:      totals.PAYE,
		Statutory: totals.Statutory(),
	}
	for i := range summaries {
		s := summaries[i]
		if d.TopBranch == nil || s.Net.GreaterThan(d.TopBranch.Net) ||
			(s.Net.Equal(d.TopBranch.Net) && s.Branch < d.TopBranch.Branch) {
			d.TopBranch = &s
		}
	}
	for _, r := range records {
		if len(r.Flags) > 0 {
			d.Flagged++
		}
		if r.DaysLogged == 0 {
			d.NoLogs++
		}
	}
	d.Display = map[string]string{
		"gross":     money.FormatWhole(d.Gross),
		"net":       money.FormatWhole(d.Net),
		"statutory": money.FormatWhole(d.Statutory),
		"paye":      money.FormatWhole(d.PAYE),
	}
	return d
}
