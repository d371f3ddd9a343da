package payslip

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"branchpay/internal/domain/org"
	"branchpay/internal/domain/payroll"
	"branchpay/internal/platform/money"
)

const (
	Title = "PAYSLIP"

	footerLegal = "This payslip is computer generated and does not require a signature. " +
		"Statutory deductions are remitted to NAPSA, NHIMA and ZRA on the employee's behalf."
	footerQuery = "Queries about this payslip should be raised with branch management within 14 days."
)

// Line is one labelled amount on the payslip.
type Line struct {
	Label  string          `json:"label"`
	Value  decimal.Decimal `json:"value"`
	Amount string          `json:"amount"`
}

func line(label string, value decimal.Decimal) Line {
	return Line{Label: label, Value: value, Amount: money.Format(value)}
}

// Document is the fixed-section layout of one employee's payslip.
type Document struct {
	EmployeeID     string    `json:"employeeId"`
	Title          string    `json:"title"`
	PeriodName     string    `json:"periodName"`
	PeriodRange    string    `json:"periodRange"`
	EmployeeName   string    `json:"employeeName"`
	Position       string    `json:"position"`
	Branch         string    `json:"branch"`
	EmployeeRef    string    `json:"employeeRef"`
	Earnings       []Line    `json:"earnings"`
	Gross          Line      `json:"gross"`
	Statutory      []Line    `json:"statutory"`
	StatutoryTotal Line      `json:"statutoryTotal"`
	Other          []Line    `json:"other,omitempty"`
	OtherTotal     *Line     `json:"otherTotal,omitempty"`
	Net            Line      `json:"net"`
	Comments       string    `json:"comments,omitempty"`
	Footer         []string  `json:"footer"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// ShortRef is the first 8 characters of an id in upper case.
func ShortRef(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}

const (
	labelNAPSA = "NAPSA"
	labelNHIMA = "NHIMA"
)

// WithRates adds the applied percentages to the NAPSA and NHIMA labels.
func (d Document) WithRates(rates payroll.RateTable) Document {
	statutory := make([]Line, len(d.Statutory))
	copy(statutory, d.Statutory)
	for i, l := range statutory {
		switch l.Label {
		case labelNAPSA:
			statutory[i].Label = percentLabel(labelNAPSA, rates.NAPSARate)
		case labelNHIMA:
			statutory[i].Label = percentLabel(labelNHIMA, rates.NHIMARate)
		}
	}
	d.Statutory = statutory
	return d
}

func percentLabel(name string, rate decimal.Decimal) string {
	if rate.IsZero() {
		return name
	}
	return fmt.Sprintf("%s (%s%%)", name, rate.Mul(decimal.NewFromInt(100)).Round(2).String())
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// Project lays out a record as a payslip document. Every amount comes from
// the record, so gross and net match it exactly once formatted.
func Project(record payroll.Record, employee org.Employee, branch org.Branch, period payroll.Period, generatedAt time.Time) Document {
	name := employee.FullName
	if name == "" {
		name = record.FullName
	}
	if name == "" {
		name = org.UnknownLabel
	}
	position := employee.Position
	if position == "" {
		position = record.Position
	}
	branchName := branch.Name
	if branchName == "" {
		branchName = org.UnknownLabel
	}

	doc := Document{
		EmployeeID:   record.EmployeeID,
		Title:        Title,
		PeriodName:   period.Name,
		PeriodRange:  fmt.Sprintf("%s to %s", period.StartDate.Format("02 Jan 2006"), period.EndDate.Format("02 Jan 2006")),
		EmployeeName: name,
		Position:     org.PositionLabel(position),
		Branch:       branchName,
		EmployeeRef:  ShortRef(record.EmployeeID),
		GeneratedAt:  generatedAt,
		Footer:       []string{footerLegal, footerQuery},
	}

	doc.Earnings = []Line{
		line("Basic Salary", record.BasicSalary),
		line(fmt.Sprintf("Extra Shifts (%s)", plural(record.ExtraShiftsCount, "shift")), record.ExtraShiftTotal),
		line("Bonus", record.Bonus),
	}
	doc.Gross = line("GROSS SALARY", record.GrossSalary)

	doc.Statutory = []Line{
		line(labelNAPSA, record.NAPSAEmployee),
		line(labelNHIMA, record.NHIMAEmployee),
	}
	if record.PAYETax.IsPositive() {
		doc.Statutory = append(doc.Statutory, line("PAYE", record.PAYETax))
	}
	doc.StatutoryTotal = line("Total Statutory", record.StatutoryTotal())

	others := []Line{
		line(fmt.Sprintf("Absence (%s)", plural(record.AbsentDays, "day")), record.AbsenceDeduction),
		line("Cash Shortage", record.ShortageAmount),
		line("Salary Advance", record.Advances),
		line("Fines", record.Fines),
		line("Other Deductions", record.OtherDeductions),
	}
	for _, l := range others {
		if l.Value.IsPositive() {
			doc.Other = append(doc.Other, l)
		}
	}
	if len(doc.Other) > 0 {
		total := line("Total Other Deductions", record.OtherDeductionsTotal())
		doc.OtherTotal = &total
	}

	doc.Net = line("NET SALARY DUE", record.NetSalaryDue)
	doc.Comments = payroll.ManualComments(record.Comments)
	return doc
}
