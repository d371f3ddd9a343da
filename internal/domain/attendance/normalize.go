package attendance

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"branchpay/internal/platform/money"
)

// MaxExtraShiftsPerDay bounds extraShiftsWorked on a single log.
const MaxExtraShiftsPerDay = 3

var arrivalPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// NormalizeStatus lower-cases a status and accepts "day off" style spelling.
func NormalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}

func ValidStatus(status string) bool {
	return slices.Contains(Statuses, status)
}

// Normalize validates a submitted entry and converts it into a Log. Numeric
// fields that cannot be read become zero and are reported as warnings;
// negative amounts and unknown statuses are errors.
func Normalize(entry Entry) (Log, []Warning, error) {
	var warnings []Warning
	warn := func(field, msg string) {
		warnings = append(warnings, Warning{EmployeeID: entry.EmployeeID, Field: field, Message: msg})
	}

	status := NormalizeStatus(entry.Status)
	if status == "" {
		status = StatusPresent
	}
	if !ValidStatus(status) {
		return Log{}, nil, fmt.Errorf("%w: %q", ErrInvalidStatus, entry.Status)
	}

	log := Log{
		EmployeeID: strings.TrimSpace(entry.EmployeeID),
		Status:     status,
		Comments:   strings.TrimSpace(entry.Comments),
	}

	if status == StatusLeave {
		leaveType := strings.ToLower(strings.TrimSpace(entry.LeaveType))
		if leaveType == "" {
			leaveType = LeaveAnnual
		}
		if !slices.Contains(LeaveTypes, leaveType) {
			return Log{}, nil, fmt.Errorf("%w: %q", ErrInvalidLeaveType, entry.LeaveType)
		}
		log.LeaveType = leaveType
	}

	if arrival := strings.TrimSpace(entry.ArrivalTime); arrival != "" {
		if !arrivalPattern.MatchString(arrival) {
			return Log{}, nil, ErrInvalidArrival
		}
		log.ArrivalTime = arrival
	}

	amounts := []struct {
		field string
		raw   any
		dst   *decimal.Decimal
	}{
		{"shortageAmount", entry.ShortageAmount, &log.ShortageAmount},
		{"advanceAmount", entry.AdvanceAmount, &log.AdvanceAmount},
		{"fineAmount", entry.FineAmount, &log.FineAmount},
	}
	for _, a := range amounts {
		value, ok := money.ParseOrZero(a.raw)
		if !ok {
			warn(a.field, fmt.Sprintf("could not read %v, using 0", a.raw))
		}
		if value.IsNegative() {
			return Log{}, nil, fmt.Errorf("%w: %s", ErrNegativeAmount, a.field)
		}
		*a.dst = money.Round2(value)
	}

	shifts, ok := money.ParseOrZero(entry.ExtraShiftsWorked)
	if !ok {
		warn("extraShiftsWorked", fmt.Sprintf("could not read %v, using 0", entry.ExtraShiftsWorked))
	}
	if shifts.IsNegative() {
		return Log{}, nil, fmt.Errorf("%w: extraShiftsWorked", ErrNegativeAmount)
	}
	if shifts.GreaterThan(decimal.NewFromInt(MaxExtraShiftsPerDay)) {
		return Log{}, nil, fmt.Errorf("%w of %d", ErrTooManyShifts, MaxExtraShiftsPerDay)
	}
	if !shifts.Equal(shifts.Truncate(0)) {
		warn("extraShiftsWorked", "fractional shifts truncated")
	}
	log.ExtraShiftsWorked = int(shifts.IntPart())
	log.ExtraShiftsWorked = EffectiveExtraShifts(log.Status, log.ExtraShiftsWorked)

	return log, warnings, nil
}

// EffectiveExtraShifts applies the one-shift default for extra_shift days
// recorded without a count.
func EffectiveExtraShifts(status string, worked int) int {
	if status == StatusExtraShift && worked <= 0 {
		return 1
	}
	if worked < 0 {
		return 0
	}
	return worked
}
