package attendance

import (
	"slices"

	"github.com/shopspring/decimal"
)

// DailyAggregate totals one employee's logs over a period. Every log
// increments exactly one day counter, so the counters sum to
// TotalDaysLogged.
type DailyAggregate struct {
	EmployeeID       string          `json:"employeeId"`
	DaysPresent      int             `json:"daysPresent"`
	DaysLate         int             `json:"daysLate"`
	DaysAbsent       int             `json:"daysAbsent"`
	DaysLeave        int             `json:"daysLeave"`
	DaysOff          int             `json:"daysOff"`
	DaysExtraShift   int             `json:"daysExtraShift"`
	TotalExtraShifts int             `json:"totalExtraShifts"`
	TotalShortages   decimal.Decimal `json:"totalShortages"`
	TotalAdvances    decimal.Decimal `json:"totalAdvances"`
	TotalFines       decimal.Decimal `json:"totalFines"`
	TotalDaysLogged  int             `json:"totalDaysLogged"`
}

// StatusDays returns the sum of the day counters.
func (a DailyAggregate) StatusDays() int {
	return a.DaysPresent + a.DaysLate + a.DaysAbsent + a.DaysLeave + a.DaysOff + a.DaysExtraShift
}

// IDSet is a set of employee ids.
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Aggregate folds logs into per-employee totals. Logs for employees outside
// active are ignored, as are logs whose status is not recognised. Employees
// without logs do not appear in the result.
func Aggregate(logs []Log, active IDSet) map[string]DailyAggregate {
	out := make(map[string]DailyAggregate)
	for _, l := range logs {
		if !active.Has(l.EmployeeID) {
			continue
		}
		agg, ok := out[l.EmployeeID]
		if !ok {
			agg = DailyAggregate{
				EmployeeID:     l.EmployeeID,
				TotalShortages: decimal.Zero,
				TotalAdvances:  decimal.Zero,
				TotalFines:     decimal.Zero,
			}
		}
		switch l.Status {
		case StatusPresent:
			agg.DaysPresent++
		case StatusLate:
			agg.DaysLate++
		case StatusAbsent:
			agg.DaysAbsent++
		case StatusLeave:
			agg.DaysLeave++
		case StatusDayOff:
			agg.DaysOff++
		case StatusExtraShift:
			agg.DaysExtraShift++
		default:
			continue
		}
		agg.TotalDaysLogged++
		agg.TotalExtraShifts += EffectiveExtraShifts(l.Status, l.ExtraShiftsWorked)
		agg.TotalShortages = agg.TotalShortages.Add(l.ShortageAmount)
		agg.TotalAdvances = agg.TotalAdvances.Add(l.AdvanceAmount)
		agg.TotalFines = agg.TotalFines.Add(l.FineAmount)
		out[l.EmployeeID] = agg
	}
	return out
}

// MissingEmployees lists active ids with no aggregate, sorted.
func MissingEmployees(active IDSet, aggregates map[string]DailyAggregate) []string {
	var missing []string
	for id := range active {
		if _, ok := aggregates[id]; !ok {
			missing = append(missing, id)
		}
	}
	slices.Sort(missing)
	return missing
}
