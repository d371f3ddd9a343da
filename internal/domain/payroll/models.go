package payroll

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type Period struct {
	ID          string    `json:"id"`
	Name        string    `json:"periodName"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	IsFinalized bool      `json:"isFinalized"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Bracket is one PAYE band. A nil UpTo marks the open top band.
type Bracket struct {
	UpTo *decimal.Decimal `json:"upTo"`
	Rate decimal.Decimal  `json:"rate"`
}

// RateTable holds the business rates for one year. Rates are fractions, so
// 5% is stored as 0.05.
type RateTable struct {
	Year             int             `json:"effectiveYear"`
	ExtraShiftRate   decimal.Decimal `json:"extraShiftRate"`
	AbsenceDailyRate decimal.Decimal `json:"absenceDailyRate"`
	NAPSARate        decimal.Decimal `json:"napsaRate"`
	NAPSACeiling     decimal.Decimal `json:"napsaCeiling"`
	NHIMARate        decimal.Decimal `json:"nhimaRate"`
	PAYEBrackets     []Bracket       `json:"payeBrackets"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

type Adjustment struct {
	ID          string          `json:"id"`
	PeriodID    string          `json:"periodId"`
	EmployeeID  string          `json:"employeeId"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	CreatedBy   string          `json:"createdBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Adjustments are one employee's manual inputs for a period, summed.
type Adjustments struct {
	Bonus           decimal.Decimal
	OtherDeductions decimal.Decimal
	Comments        []string
}

// Record is one employee's payroll outcome for a period. Money fields are
// rounded to 2 dp.
type Record struct {
	ID               string          `json:"id,omitempty"`
	PeriodID         string          `json:"periodId"`
	EmployeeID       string          `json:"employeeId"`
	BranchID         string          `json:"branchId"`
	BasicSalary      decimal.Decimal `json:"basicSalary"`
	GrossSalary      decimal.Decimal `json:"grossSalary"`
	NetSalaryDue     decimal.Decimal `json:"netSalaryDue"`
	NetShortfall     decimal.Decimal `json:"netShortfall"`
	NAPSAEmployee    decimal.Decimal `json:"napsaEmployee"`
	NHIMAEmployee    decimal.Decimal `json:"nhimaEmployee"`
	PAYETax          decimal.Decimal `json:"payeTax"`
	ExtraShiftsCount int             `json:"extraShiftsCount"`
	ExtraShiftTotal  decimal.Decimal `json:"extraShiftTotal"`
	Bonus            decimal.Decimal `json:"bonus"`
	ShortageAmount   decimal.Decimal `json:"shortageAmount"`
	Advances         decimal.Decimal `json:"advances"`
	Fines            decimal.Decimal `json:"fines"`
	AbsentDays       int             `json:"absentDays"`
	AbsenceDeduction decimal.Decimal `json:"absenceDeduction"`
	OtherDeductions  decimal.Decimal `json:"otherDeductions"`
	DaysLogged       int             `json:"daysLogged"`
	Comments         string          `json:"comments"`
	Flags            []string        `json:"flags"`
	RatesYear        int             `json:"ratesYear"`
	GeneratedAt      time.Time       `json:"generatedAt"`

	FullName   string `json:"fullName,omitempty"`
	Position   string `json:"position,omitempty"`
	BranchName string `json:"branchName,omitempty"`
}

func (r Record) HasFlag(flag string) bool {
	return slices.Contains(r.Flags, flag)
}

// StatutoryTotal is NAPSA plus NHIMA plus PAYE.
func (r Record) StatutoryTotal() decimal.Decimal {
	return r.NAPSAEmployee.Add(r.NHIMAEmployee).Add(r.PAYETax)
}

// OtherDeductionsTotal covers every non-statutory deduction.
func (r Record) OtherDeductionsTotal() decimal.Decimal {
	return r.AbsenceDeduction.Add(r.ShortageAmount).Add(r.Advances).Add(r.Fines).Add(r.OtherDeductions)
}

type GenerateOptions struct {
	ConfirmRates bool
}

type RunResult struct {
	PeriodID  string `json:"periodId"`
	Generated int    `json:"generated"`
	WithLogs  int    `json:"withLogs"`
	NoLogs    int    `json:"noLogs"`
	Flagged   int    `json:"flagged"`
	RatesYear int    `json:"ratesYear"`
	// PriorYearRates is set when an older table was applied on confirmation.
	PriorYearRates bool `json:"priorYearRates"`
}

type RecordFilter struct {
	BranchIDs []string
}
