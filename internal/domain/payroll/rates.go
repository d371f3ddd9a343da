package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NAPSA applies the pension rate to gross up to the ceiling. A zero ceiling
// means no cap.
func (t RateTable) NAPSA(gross decimal.Decimal) decimal.Decimal {
	base := gross
	if t.NAPSACeiling.IsPositive() && base.GreaterThan(t.NAPSACeiling) {
		base = t.NAPSACeiling
	}
	return base.Mul(t.NAPSARate)
}

func (t RateTable) NHIMA(gross decimal.Decimal) decimal.Decimal {
	return gross.Mul(t.NHIMARate)
}

// PAYE sums each bracket's slice of taxable multiplied by its rate.
func (t RateTable) PAYE(taxable decimal.Decimal) decimal.Decimal {
	tax := decimal.Zero
	lower := decimal.Zero
	for _, b := range t.PAYEBrackets {
		if !taxable.GreaterThan(lower) {
			break
		}
		upper := taxable
		if b.UpTo != nil && b.UpTo.LessThan(taxable) {
			upper = *b.UpTo
		}
		tax = tax.Add(upper.Sub(lower).Mul(b.Rate))
		if b.UpTo == nil {
			break
		}
		lower = *b.UpTo
	}
	return tax
}

func (t RateTable) Validate() error {
	if t.Year < 2000 || t.Year > 2100 {
		return fmt.Errorf("%w: effective year %d", ErrInvalidRateTable, t.Year)
	}
	for name, v := range map[string]decimal.Decimal{
		"extraShiftRate":   t.ExtraShiftRate,
		"absenceDailyRate": t.AbsenceDailyRate,
		"napsaCeiling":     t.NAPSACeiling,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidRateTable, name)
		}
	}
	one := decimal.NewFromInt(1)
	for name, v := range map[string]decimal.Decimal{"napsaRate": t.NAPSARate, "nhimaRate": t.NHIMARate} {
		if v.IsNegative() || v.GreaterThan(one) {
			return fmt.Errorf("%w: %s must be between 0 and 1", ErrInvalidRateTable, name)
		}
	}
	if len(t.PAYEBrackets) == 0 {
		return fmt.Errorf("%w: at least one PAYE bracket is required", ErrInvalidRateTable)
	}
	lower := decimal.Zero
	for i, b := range t.PAYEBrackets {
		if b.Rate.IsNegative() || b.Rate.GreaterThan(one) {
			return fmt.Errorf("%w: bracket %d rate must be between 0 and 1", ErrInvalidRateTable, i+1)
		}
		last := i == len(t.PAYEBrackets)-1
		if b.UpTo == nil {
			if !last {
				return fmt.Errorf("%w: only the last bracket may be open", ErrInvalidRateTable)
			}
			continue
		}
		if last {
			return fmt.Errorf("%w: the last bracket must be open", ErrInvalidRateTable)
		}
		if !b.UpTo.GreaterThan(lower) {
			return fmt.Errorf("%w: bracket %d must end above %s", ErrInvalidRateTable, i+1, lower)
		}
		lower = *b.UpTo
	}
	return nil
}

// SelectRates picks the table for year. When only older tables exist the
// newest of them is returned if confirm is set; prior reports that case.
func SelectRates(tables []RateTable, year int, confirm bool) (table RateTable, prior bool, err error) {
	var best *RateTable
	for i := range tables {
		t := tables[i]
		if t.Year == year {
			return t, false, nil
		}
		if t.Year < year && (best == nil || t.Year > best.Year) {
			best = &tables[i]
		}
	}
	if best == nil {
		return RateTable{}, false, ErrRatesNotConfigured
	}
	if !confirm {
		return RateTable{}, false, fmt.Errorf("%w: period year %d, latest table %d", ErrRatesNeedConfirmation, year, best.Year)
	}
	return *best, true, nil
}
