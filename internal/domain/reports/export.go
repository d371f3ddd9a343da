package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"branchpay/internal/domain/org"
	"branchpay/internal/domain/payroll"
)

const (
	registerSheet = "Register"
	branchesSheet = "Branches"
)

var registerHeaders = []string{
	"Branch", "Employee", "Position", "Basic Salary", "Extra Shifts", "Extra Shift Pay", "Bonus", "Gross Salary",
	"NAPSA", "NHIMA", "PAYE", "Shortages", "Advances", "Fines", "Absent Days", "Absence Deduction",
	"Other Deductions", "Net Salary Due", "Flags", "Comments",
}

var branchHeaders = []string{
	"Branch", "Employees", "Gross", "Net", "NAPSA", "NHIMA", "PAYE", "Shortages", "Advances", "Fines", "Extra Shifts",
}

func registerRow(r payroll.Record) []any {
	return []any{
		r.BranchName, r.FullName, org.PositionLabel(r.Position),
		num(r.BasicSalary), r.ExtraShiftsCount, num(r.ExtraShiftTotal), num(r.Bonus), num(r.GrossSalary),
		num(r.NAPSAEmployee), num(r.NHIMAEmployee), num(r.PAYETax),
		num(r.ShortageAmount), num(r.Advances), num(r.Fines), r.AbsentDays, num(r.AbsenceDeduction),
		num(r.OtherDeductions), num(r.NetSalaryDue), strings.Join(r.Flags, ","), r.Comments,
	}
}

func num(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// RegisterXLSX builds a workbook with the record register and a branch
// summary sheet ending in a totals row.
func RegisterXLSX(period payroll.Period, records []payroll.Record, summaries []BranchSummary) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(registerSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	if _, err := f.NewSheet(branchesSheet); err != nil {
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#1F4E78"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("%s payroll register (%s to %s)", period.Name,
		period.StartDate.Format("2006-01-02"), period.EndDate.Format("2006-01-02"))
	if err := f.SetCellValue(registerSheet, "A1", title); err != nil {
		return nil, err
	}
	if err := writeRow(f, registerSheet, 2, toAny(registerHeaders)); err != nil {
		return nil, err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(registerHeaders))
	_ = f.SetCellStyle(registerSheet, "A2", lastCol+"2", headerStyle)
	for i, r := range records {
		if err := writeRow(f, registerSheet, i+3, registerRow(r)); err != nil {
			return nil, err
		}
	}
	if len(records) > 0 {
		_ = f.SetCellStyle(registerSheet, "D3", fmt.Sprintf("R%d", len(records)+2), moneyStyle)
	}
	_ = f.SetColWidth(registerSheet, "A", "C", 22)
	_ = f.SetColWidth(registerSheet, "D", "R", 14)
	_ = f.SetColWidth(registerSheet, "S", "T", 30)

	if err := writeRow(f, branchesSheet, 1, toAny(branchHeaders)); err != nil {
		return nil, err
	}
	lastCol, _ = excelize.ColumnNumberToName(len(branchHeaders))
	_ = f.SetCellStyle(branchesSheet, "A1", lastCol+"1", headerStyle)
	for i, s := range summaries {
		if err := writeRow(f, branchesSheet, i+2, branchRow(s.Branch, s.Employees, s.Gross, s.Net, s.NAPSA, s.NHIMA, s.PAYE, s.Shortages, s.Advances, s.Fines, s.ExtraShifts)); err != nil {
			return nil, err
		}
	}
	t := Totals(summaries)
	totalsRow := len(summaries) + 2
	if err := writeRow(f, branchesSheet, totalsRow, branchRow("TOTAL", t.Employees, t.Gross, t.Net, t.NAPSA, t.NHIMA, t.PAYE, t.Shortages, t.Advances, t.Fines, t.ExtraShifts)); err != nil {
		return nil, err
	}
	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: 4})
	if err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(branchesSheet, fmt.Sprintf("A%d", totalsRow), fmt.Sprintf("%s%d", lastCol, totalsRow), boldStyle)
	_ = f.SetColWidth(branchesSheet, "A", "A", 24)
	_ = f.SetColWidth(branchesSheet, "B", lastCol, 14)

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

func branchRow(name string, employees int, amounts ...decimal.Decimal) []any {
	row := []any{name, employees}
	for _, a := range amounts {
		row = append(row, num(a))
	}
	return row
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// WriteRegisterCSV writes the register with amounts fixed to 2 dp.
func WriteRegisterCSV(w io.Writer, records []payroll.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(registerHeaders); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.BranchName, r.FullName, org.PositionLabel(r.Position),
			r.BasicSalary.StringFixed(2), strconv.Itoa(r.ExtraShiftsCount), r.ExtraShiftTotal.StringFixed(2),
			r.Bonus.StringFixed(2), r.GrossSalary.StringFixed(2),
			r.NAPSAEmployee.StringFixed(2), r.NHIMAEmployee.StringFixed(2), r.PAYETax.StringFixed(2),
			r.ShortageAmount.StringFixed(2), r.Advances.StringFixed(2), r.Fines.StringFixed(2),
			strconv.Itoa(r.AbsentDays), r.AbsenceDeduction.StringFixed(2),
			r.OtherDeductions.StringFixed(2), r.NetSalaryDue.StringFixed(2),
			strings.Join(r.Flags, ","), r.Comments,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
