package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"branchpay/internal/domain/payroll"
)

const UnknownBranch = "Unknown"

// BranchSummary totals one branch's records for a period.
type BranchSummary struct {
	BranchID    string          `json:"branchId"`
	Branch      string          `json:"branch"`
	Employees   int             `json:"employees"`
	Gross       decimal.Decimal `json:"gross"`
	Net         decimal.Decimal `json:"net"`
	NAPSA       decimal.Decimal `json:"napsa"`
	NHIMA       decimal.Decimal `json:"nhima"`
	PAYE        decimal.Decimal `json:"paye"`
	Shortages   decimal.Decimal `json:"shortages"`
	Advances    decimal.Decimal `json:"advances"`
	Fines       decimal.Decimal `json:"fines"`
	ExtraShifts decimal.Decimal `json:"extraShifts"`
}

// CompanyTotals is the sum of every branch summary. It carries no branch key.
type CompanyTotals struct {
	Employees   int             `json:"employees"`
	Gross       decimal.Decimal `json:"gross"`
	Net         decimal.Decimal `json:"net"`
	NAPSA       decimal.Decimal `json:"napsa"`
	NHIMA       decimal.Decimal `json:"nhima"`
	PAYE        decimal.Decimal `json:"paye"`
	Shortages   decimal.Decimal `json:"shortages"`
	Advances    decimal.Decimal `json:"advances"`
	Fines       decimal.Decimal `json:"fines"`
	ExtraShifts decimal.Decimal `json:"extraShifts"`
}

func newSummary(branchID, name string) *BranchSummary {
	return &BranchSummary{
		BranchID:    branchID,
		Branch:      name,
		Gross:       decimal.Zero,
		Net:         decimal.Zero,
		NAPSA:       decimal.Zero,
		NHIMA:       decimal.Zero,
		PAYE:        decimal.Zero,
		Shortages:   decimal.Zero,
		Advances:    decimal.Zero,
		Fines:       decimal.Zero,
		ExtraShifts: decimal.Zero,
	}
}

// Summarize groups records by branch id. branchNameOf supplies display
// names; an empty result falls back to Unknown. Output is ordered by
// employee count descending, then name, then id.
func Summarize(records []payroll.Record, branchNameOf func(string) string) []BranchSummary {
	byBranch := map[string]*BranchSummary{}
	for _, r := range records {
		s, ok := byBranch[r.BranchID]
		if !ok {
			name := ""
			if branchNameOf != nil {
				name = branchNameOf(r.BranchID)
			}
			if name == "" {
				name = UnknownBranch
			}
			s = newSummary(r.BranchID, name)
			byBranch[r.BranchID] = s
		}
		s.Employees++
		s.Gross = s.Gross.Add(r.GrossSalary)
		s.Net = s.Net.Add(r.NetSalaryDue)
		s.NAPSA = s.NAPSA.Add(r.NAPSAEmployee)
		s.NHIMA = s.NHIMA.Add(r.NHIMAEmployee)
		s.PAYE = s.PAYE.Add(r.PAYETax)
		s.Shortages = s.Shortages.Add(r.ShortageAmount)
		s.Advances = s.Advances.Add(r.Advances)
		s.Fines = s.Fines.Add(r.Fines)
		s.ExtraShifts = s.ExtraShifts.Add(r.ExtraShiftTotal)
	}

	out := make([]BranchSummary, 0, len(byBranch))
	for _, s := range byBranch {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Employees != out[j].Employees {
			return out[i].Employees > out[j].Employees
		}
		if out[i].Branch != out[j].Branch {
			return out[i].Branch < out[j].Branch
		}
		return out[i].BranchID < out[j].BranchID
	})
	return out
}

// Totals sums branch summaries. The result does not depend on their order.
func Totals(summaries []BranchSummary) CompanyTotals {
	t := CompanyTotals{
		Gross:       decimal.Zero,
		Net:         decimal.Zero,
		NAPSA:       decimal.Zero,
		NHIMA:       decimal.Zero,
		PAYE:        decimal.Zero,
		Shortages:   decimal.Zero,
		Advances:    decimal.Zero,
		Fines:       decimal.Zero,
		ExtraShifts: decimal.Zero,
	}
	for _, s := range summaries {
		t.Employees += s.Employees
		t.Gross = t.Gross.Add(s.Gross)
		t.Net = t.Net.Add(s.Net)
		t.NAPSA = t.NAPSA.Add(s.NAPSA)
		t.NHIMA = t.NHIMA.Add(s.NHIMA)
		t.PAYE = t.PAYE.Add(s.PAYE)
		t.Shortages = t.Shortages.Add(s.Shortages)
		t.Advances = t.Advances.Add(s.Advances)
		t.Fines = t.Fines.Add(s.Fines)
		t.ExtraShifts = t.ExtraShifts.Add(s.ExtraShifts)
	}
	return t
}

func (t CompanyTotals) Statutory() decimal.Decimal {
	return t.NAPSA.Add(t.NHIMA).Add(t.PAYE)
}
