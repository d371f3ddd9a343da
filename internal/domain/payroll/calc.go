package payroll

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"branchpay/internal/domain/attendance"
	"branchpay/internal/domain/org"
	"branchpay/internal/platform/money"
)

// Compute derives one employee's record. A nil aggregate is the clean
// payroll path: basic pay with statutory deductions, every adjustment field
// zero. Manual adjustments only apply to employees with logs.
func Compute(employee org.Employee, agg *attendance.DailyAggregate, rates RateTable, inputs Adjustments) Record {
	r := Record{
		EmployeeID:       employee.ID,
		BranchID:         employee.BranchID,
		BasicSalary:      money.Round2(money.NonNegative(employee.BasicPay)),
		Bonus:            decimal.Zero,
		OtherDeductions:  decimal.Zero,
		ExtraShiftTotal:  decimal.Zero,
		ShortageAmount:   decimal.Zero,
		Advances:         decimal.Zero,
		Fines:            decimal.Zero,
		AbsenceDeduction: decimal.Zero,
		NetShortfall:     decimal.Zero,
		RatesYear:        rates.Year,
		FullName:         employee.FullName,
		Position:         employee.Position,
		BranchName:       employee.BranchName,
		Flags:            []string{},
	}

	marker := CommentNoLogs
	if agg != nil {
		marker = CommentFromLogs
		r.Bonus = money.Round2(money.NonNegative(inputs.Bonus))
		r.OtherDeductions = money.Round2(money.NonNegative(inputs.OtherDeductions))
		r.DaysLogged = agg.TotalDaysLogged
		r.ExtraShiftsCount = agg.TotalExtraShifts
		r.ExtraShiftTotal = money.Round2(decimal.NewFromInt(int64(agg.TotalExtraShifts)).Mul(rates.ExtraShiftRate))
		r.AbsentDays = agg.DaysAbsent
		r.AbsenceDeduction = money.Round2(decimal.NewFromInt(int64(agg.DaysAbsent)).Mul(rates.AbsenceDailyRate))
		r.ShortageAmount = money.Round2(agg.TotalShortages)
		r.Advances = money.Round2(agg.TotalAdvances)
		r.Fines = money.Round2(agg.TotalFines)
	}
	comments := []string{marker}
	if agg != nil {
		comments = append(comments, inputs.Comments...)
	}
	r.Comments = strings.Join(comments, commentSeparator)

	r.GrossSalary = r.BasicSalary.Add(r.ExtraShiftTotal).Add(r.Bonus)
	r.NAPSAEmployee = money.Round2(rates.NAPSA(r.GrossSalary))
	r.NHIMAEmployee = money.Round2(rates.NHIMA(r.GrossSalary))
	r.PAYETax = money.Round2(rates.PAYE(r.GrossSalary))

	net := r.GrossSalary.Sub(r.StatutoryTotal()).Sub(r.OtherDeductionsTotal())
	if net.IsNegative() {
		r.NetShortfall = net.Abs()
		net = decimal.Zero
		r.Flags = append(r.Flags, FlagNegativeNetClamped)
	}
	r.NetSalaryDue = net

	if employee.Contact.BankAccountNumber == "" && employee.Contact.MobileMoneyNumber == "" {
		r.Flags = append(r.Flags, FlagMissingPaymentDetails)
	}
	return r
}

// BuildRecords runs Compute for every active employee. Employees without
// logs in the window take the clean payroll path.
func BuildRecords(period Period, roster []org.Employee, logs []attendance.Log, rates RateTable, adjustments map[string]Adjustments, now time.Time) ([]Record, RunResult) {
	active := make([]string, 0, len(roster))
	for _, e := range roster {
		if e.Active() {
			active = append(active, e.ID)
		}
	}
	aggregates := attendance.Aggregate(logs, attendance.NewIDSet(active...))

	result := RunResult{PeriodID: period.ID, RatesYear: rates.Year}
	records := make([]Record, 0, len(active))
	for _, e := range roster {
		if !e.Active() {
			continue
		}
		var agg *attendance.DailyAggregate
		if a, ok := aggregates[e.ID]; ok {
			agg = &a
			result.WithLogs++
		} else {
			result.NoLogs++
		}
		rec := Compute(e, agg, rates, adjustments[e.ID])
		rec.PeriodID = period.ID
		rec.GeneratedAt = now
		if len(rec.Flags) > 0 {
			result.Flagged++
		}
		records = append(records, rec)
	}
	result.Generated = len(records)
	return records, result
}

// SumAdjustments folds manual adjustments per employee.
func SumAdjustments(list []Adjustment) map[string]Adjustments {
	out := make(map[string]Adjustments)
	for _, a := range list {
		cur, ok := out[a.EmployeeID]
		if !ok {
			cur = Adjustments{Bonus: decimal.Zero, OtherDeductions: decimal.Zero}
		}
		switch a.Kind {
		case AdjustmentBonus:
			cur.Bonus = cur.Bonus.Add(a.Amount)
		case AdjustmentOtherDeduction:
			cur.OtherDeductions = cur.OtherDeductions.Add(a.Amount)
		default:
			continue
		}
		if d := strings.TrimSpace(a.Description); d != "" {
			cur.Comments = append(cur.Comments, d)
		}
		out[a.EmployeeID] = cur
	}
	return out
}

// ManualComments strips the generated markers, leaving what a person wrote.
func ManualComments(comments string) string {
	var kept []string
	for _, part := range strings.Split(comments, commentSeparator) {
		part = strings.TrimSpace(part)
		if part == "" || part == CommentFromLogs || part == CommentNoLogs {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, commentSeparator)
}
