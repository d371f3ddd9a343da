package attendance

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMalformedAmountBecomesZeroWithWarning(t *testing.T) {
	log, warnings, err := Normalize(Entry{EmployeeID: "e1", Status: "Present", ShortageAmount: "abc", AdvanceAmount: "K1,250.00"})
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, log.Status)
	assert.True(t, log.ShortageAmount.IsZero())
	assert.True(t, log.AdvanceAmount.Equal(decimal.NewFromInt(1250)))
	require.Len(t, warnings, 1)
	assert.Equal(t, "shortageAmount", warnings[0].Field)
}

func TestNormalizeRejectsNegativeAndUnknownStatus(t *testing.T) {
	_, _, err := Normalize(Entry{EmployeeID: "e1", Status: "present", FineAmount: -5.0})
	assert.ErrorIs(t, err, ErrNegativeAmount)

	_, _, err = Normalize(Entry{EmployeeID: "e1", Status: "holiday"})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, _, err = Normalize(Entry{EmployeeID: "e1", Status: "present", ArrivalTime: "8am"})
	assert.ErrorIs(t, err, ErrInvalidArrival)
}

func TestNormalizeLeaveTypeOnlyForLeave(t *testing.T) {
	log, _, err := Normalize(Entry{EmployeeID: "e1", Status: "present", LeaveType: "sick"})
	require.NoError(t, err)
	assert.Empty(t, log.LeaveType)

	log, _, err = Normalize(Entry{EmployeeID: "e1", Status: "leave"})
	require.NoError(t, err)
	assert.Equal(t, LeaveAnnual, log.LeaveType)

	_, _, err = Normalize(Entry{EmployeeID: "e1", Status: "leave", LeaveType: "sabbatical"})
	assert.ErrorIs(t, err, ErrInvalidLeaveType)
}

func TestNormalizeExtraShiftDefaultsAndJSONNumbers(t *testing.T) {
	var entry Entry
	dec := json.NewDecoder(stringsReader(`{"employeeId":"e1","status":"day off","extraShiftsWorked":2,"fineAmount":"10.5"}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&entry))

	log, warnings, err := Normalize(entry)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, StatusDayOff, log.Status)
	assert.Equal(t, 2, log.ExtraShiftsWorked)
	assert.True(t, log.FineAmount.Equal(decimal.RequireFromString("10.50")))

	log, _, err = Normalize(Entry{EmployeeID: "e1", Status: "extra_shift"})
	require.NoError(t, err)
	assert.Equal(t, 1, log.ExtraShiftsWorked)
}

func TestNormalizeBoundsExtraShifts(t *testing.T) {
	for _, raw := range []any{float64(1e20), json.Number("4"), "1e20"} {
		_, _, err := Normalize(Entry{EmployeeID: "e1", Status: "extra_shift", ExtraShiftsWorked: raw})
		assert.ErrorIs(t, err, ErrTooManyShifts, "%v", raw)
	}

	log, _, err := Normalize(Entry{EmployeeID: "e1", Status: "extra_shift", ExtraShiftsWorked: json.Number("3")})
	require.NoError(t, err)
	assert.Equal(t, MaxExtraShiftsPerDay, log.ExtraShiftsWorked)
}
