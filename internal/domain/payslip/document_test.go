package payslip

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchpay/internal/domain/attendance"
	"branchpay/internal/domain/org"
	"branchpay/internal/domain/payroll"
	"branchpay/internal/platform/money"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testRates() payroll.RateTable {
	top := d("5100")
	return payroll.RateTable{
		Year:             2025,
		ExtraShiftRate:   d("150"),
		AbsenceDailyRate: d("50"),
		NAPSARate:        d("0.05"),
		NAPSACeiling:     d("34164"),
		NHIMARate:        d("0.01"),
		PAYEBrackets:     []payroll.Bracket{{UpTo: &top, Rate: d("0")}, {Rate: d("0.25")}},
	}
}

var (
	testPeriod = payroll.Period{ID: "period-1", Name: "March 2025", StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)}
	testBranch = org.Branch{ID: "b1", Name: "Cairo Road"}
	generated  = time.Date(2025, 4, 2, 8, 30, 0, 0, time.UTC)
)

func testEmployee() org.Employee {
	return org.Employee{ID: "3f2a9c1e-77aa-4d0b-9e4f-0c1d2e3f4a5b", FullName: "Alice Banda", Position: org.PositionCashier, BranchID: "b1", BasicPay: d("5000"), EmploymentStatus: org.EmploymentActive}
}

func TestProjectCleanRecordHidesOptionalSections(t *testing.T) {
	e := testEmployee()
	r := payroll.Compute(e, nil, testRates(), payroll.Adjustments{})
	doc := Project(r, e, testBranch, testPeriod, generated)

	assert.Equal(t, Title, doc.Title)
	assert.Equal(t, "3F2A9C1E", doc.EmployeeRef)
	assert.Equal(t, "Cashier", doc.Position)
	assert.Len(t, doc.Statutory, 2, "PAYE line omitted when zero")
	assert.Empty(t, doc.Other)
	assert.Nil(t, doc.OtherTotal)
	assert.Empty(t, doc.Comments, "generated marker is not shown")
	assert.Equal(t, "K5,000.00", doc.Gross.Amount)
	assert.Equal(t, "K4,700.00", doc.Net.Amount)
}

func TestProjectShowsDeductionsAndComments(t *testing.T) {
	e := testEmployee()
	agg := attendance.DailyAggregate{DaysPresent: 18, DaysAbsent: 2, TotalExtraShifts: 3, TotalShortages: d("200"), TotalDaysLogged: 20}
	r := payroll.Compute(e, &agg, testRates(), payroll.Adjustments{Comments: []string{"Covered stock take"}})
	doc := Project(r, e, testBranch, testPeriod, generated).WithRates(testRates())

	require.Len(t, doc.Statutory, 3)
	assert.Equal(t, "NAPSA (5%)", doc.Statutory[0].Label)
	assert.Equal(t, "NHIMA (1%)", doc.Statutory[1].Label)
	assert.Equal(t, "PAYE", doc.Statutory[2].Label)
	assert.Equal(t, "Extra Shifts (3 shifts)", doc.Earnings[1].Label)

	require.Len(t, doc.Other, 2)
	assert.Equal(t, "Absence (2 days)", doc.Other[0].Label)
	assert.Equal(t, "K100.00", doc.Other[0].Amount)
	assert.Equal(t, "Cash Shortage", doc.Other[1].Label)
	require.NotNil(t, doc.OtherTotal)
	assert.Equal(t, "K300.00", doc.OtherTotal.Amount)
	assert.Equal(t, "Covered stock take", doc.Comments)
}

func TestProjectReproducesRecordFigures(t *testing.T) {
	e := testEmployee()
	e.BasicPay = d("12345.675")
	agg := attendance.DailyAggregate{DaysPresent: 20, TotalExtraShifts: 1, TotalAdvances: d("333.333"), TotalFines: d("0.005"), TotalDaysLogged: 20}
	r := payroll.Compute(e, &agg, testRates(), payroll.Adjustments{Bonus: d("99.999")})
	doc := Project(r, e, testBranch, testPeriod, generated)

	gross, ok := money.ParseOrZero(doc.Gross.Amount)
	require.True(t, ok)
	net, ok := money.ParseOrZero(doc.Net.Amount)
	require.True(t, ok)
	assert.True(t, gross.Equal(r.GrossSalary), "gross %s vs %s", gross, r.GrossSalary)
	assert.True(t, net.Equal(r.NetSalaryDue), "net %s vs %s", net, r.NetSalaryDue)
}

func TestProjectUnknownLabels(t *testing.T) {
	r := payroll.Record{EmployeeID: "abc", Flags: []string{}}
	doc := Project(r, org.Employee{Position: "astronaut"}, org.Branch{}, testPeriod, generated)
	assert.Equal(t, org.UnknownLabel, doc.EmployeeName)
	assert.Equal(t, org.UnknownLabel, doc.Position)
	assert.Equal(t, org.UnknownLabel, doc.Branch)
	assert.Equal(t, "ABC", doc.EmployeeRef)
}
