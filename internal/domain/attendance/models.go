package attendance

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPresent    = "present"
	StatusLate       = "late"
	StatusAbsent     = "absent"
	StatusLeave      = "leave"
	StatusDayOff     = "day_off"
	StatusExtraShift = "extra_shift"
)

var Statuses = []string{StatusPresent, StatusLate, StatusAbsent, StatusLeave, StatusDayOff, StatusExtraShift}

const (
	LeaveAnnual        = "annual"
	LeaveSick          = "sick"
	LeaveMaternity     = "maternity"
	LeavePaternity     = "paternity"
	LeaveCompassionate = "compassionate"
	LeaveUnpaid        = "unpaid"
)

var LeaveTypes = []string{LeaveAnnual, LeaveSick, LeaveMaternity, LeavePaternity, LeaveCompassionate, LeaveUnpaid}

const DateLayout = "2006-01-02"

// Log is one employee's record for one calendar day.
type Log struct {
	EmployeeID        string          `json:"employeeId"`
	BranchID          string          `json:"branchId"`
	LogDate           time.Time       `json:"logDate"`
	Status            string          `json:"status"`
	LeaveType         string          `json:"leaveType,omitempty"`
	ArrivalTime       string          `json:"arrivalTime,omitempty"`
	ShortageAmount    decimal.Decimal `json:"shortageAmount"`
	AdvanceAmount     decimal.Decimal `json:"advanceAmount"`
	FineAmount        decimal.Decimal `json:"fineAmount"`
	ExtraShiftsWorked int             `json:"extraShiftsWorked"`
	Comments          string          `json:"comments,omitempty"`
	RecordedBy        string          `json:"recordedBy,omitempty"`
	UpdatedAt         *time.Time      `json:"updatedAt,omitempty"`
}

// Entry is a log as submitted by a client. Numeric fields accept numbers or
// strings and are resolved by Normalize.
type Entry struct {
	EmployeeID        string `json:"employeeId"`
	Status            string `json:"status"`
	LeaveType         string `json:"leaveType"`
	ArrivalTime       string `json:"arrivalTime"`
	ShortageAmount    any    `json:"shortageAmount"`
	AdvanceAmount     any    `json:"advanceAmount"`
	FineAmount        any    `json:"fineAmount"`
	ExtraShiftsWorked any    `json:"extraShiftsWorked"`
	Comments          string `json:"comments"`
}

// Warning notes a value that was coerced rather than rejected.
type Warning struct {
	EmployeeID string `json:"employeeId,omitempty"`
	Row        int    `json:"row,omitempty"`
	Field      string `json:"field"`
	Message    string `json:"message"`
}

type SheetRow struct {
	EmployeeID    string `json:"employeeId"`
	FullName      string `json:"fullName"`
	Position      string `json:"position"`
	PositionLabel string `json:"positionLabel"`
	Saved         bool   `json:"saved"`
	Log           Log    `json:"log"`
}

// DaySheet is one branch's roster for a date, pre-filled from saved logs.
type DaySheet struct {
	BranchID string         `json:"branchId"`
	Date     string         `json:"date"`
	Rows     []SheetRow     `json:"rows"`
	Counts   map[string]int `json:"counts"`
}

type SaveResult struct {
	Saved    int       `json:"saved"`
	Warnings []Warning `json:"warnings,omitempty"`
}

type ImportResult struct {
	Imported int       `json:"imported"`
	Skipped  int       `json:"skipped"`
	Warnings []Warning `json:"warnings,omitempty"`
}
