package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"branchpay/internal/platform/money"
	"branchpay/internal/platform/querier"
)

const pgForeignKeyViolation = "23503"

type Store struct {
	DB querier.TxQuerier
}

func NewStore(db querier.TxQuerier) *Store {
	return &Store{DB: db}
}

const periodColumns = `id, period_name, start_date, end_date, is_finalized, created_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.Name, &p.StartDate, &p.EndDate, &p.IsFinalized, &p.CreatedAt)
	return p, err
}

func (s *Store) ListPeriods(ctx context.Context) ([]Period, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+periodColumns+` FROM payroll_periods ORDER BY start_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetPeriod(ctx context.Context, id string) (Period, error) {
	if uuid.Validate(id) != nil {
		return Period{}, ErrPeriodNotFound
	}
	p, err := scanPeriod(s.DB.QueryRow(ctx, `SELECT `+periodColumns+` FROM payroll_periods WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrPeriodNotFound
	}
	return p, err
}

func (s *Store) CreatePeriod(ctx context.Context, name string, startDate, endDate time.Time) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO payroll_periods (period_name, start_date, end_date)
    VALUES ($1,$2,$3)
    RETURNING id
  `, name, startDate, endDate).Scan(&id)
	return id, err
}

func (s *Store) SetFinalized(ctx context.Context, id string, finalized bool) error {
	cmd, err := s.DB.Exec(ctx, `
    UPDATE payroll_periods
    SET is_finalized = $2,
        finalized_at = CASE WHEN $2 THEN now() ELSE NULL END
    WHERE id = $1
  `, id, finalized)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (s *Store) CountRecords(ctx context.Context, periodID string) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `SELECT COUNT(1) FROM payroll_records WHERE period_id = $1`, periodID).Scan(&n)
	return n, err
}

func (s *Store) ListRateTables(ctx context.Context) ([]RateTable, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT effective_year, extra_shift_rate::text, absence_daily_rate::text, napsa_rate::text,
           napsa_ceiling::text, nhima_rate::text, paye_brackets, updated_at
    FROM payroll_rate_tables
    ORDER BY effective_year DESC
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateTable
	for rows.Next() {
		var t RateTable
		var shift, absence, napsa, ceiling, nhima string
		var brackets []byte
		if err := rows.Scan(&t.Year, &shift, &absence, &napsa, &ceiling, &nhima, &brackets, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.ExtraShiftRate = money.FromText(shift)
		t.AbsenceDailyRate = money.FromText(absence)
		t.NAPSARate = money.FromText(napsa)
		t.NAPSACeiling = money.FromText(ceiling)
		t.NHIMARate = money.FromText(nhima)
		if err := json.Unmarshal(brackets, &t.PAYEBrackets); err != nil {
			return nil, fmt.Errorf("rate table %d brackets: %w", t.Year, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpsertRateTable(ctx context.Context, t RateTable) error {
	brackets, err := json.Marshal(t.PAYEBrackets)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO payroll_rate_tables (effective_year, extra_shift_rate, absence_daily_rate, napsa_rate, napsa_ceiling, nhima_rate, paye_brackets)
    VALUES ($1,$2::numeric,$3::numeric,$4::numeric,$5::numeric,$6::numeric,$7)
    ON CONFLICT (effective_year) DO UPDATE
    SET extra_shift_rate = EXCLUDED.extra_shift_rate,
        absence_daily_rate = EXCLUDED.absence_daily_rate,
        napsa_rate = EXCLUDED.napsa_rate,
        napsa_ceiling = EXCLUDED.napsa_ceiling,
        nhima_rate = EXCLUDED.nhima_rate,
        paye_brackets = EXCLUDED.paye_brackets,
        updated_at = now()
  `, t.Year, t.ExtraShiftRate.String(), t.AbsenceDailyRate.String(), t.NAPSARate.String(),
		t.NAPSACeiling.String(), t.NHIMARate.String(), brackets)
	return err
}

func (s *Store) ListAdjustments(ctx context.Context, periodID, employeeID string) ([]Adjustment, error) {
	query := `
    SELECT id, period_id, employee_id, kind, amount::text, COALESCE(description, ''), COALESCE(created_by::text, ''), created_at
    FROM payroll_adjustments
    WHERE period_id = $1`
	args := []any{periodID}
	if employeeID != "" {
		args = append(args, employeeID)
		query += " AND employee_id = $2"
	}
	query += " ORDER BY created_at"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Adjustment
	for rows.Next() {
		var a Adjustment
		var amount string
		if err := rows.Scan(&a.ID, &a.PeriodID, &a.EmployeeID, &a.Kind, &amount, &a.Description, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Amount = money.FromText(amount)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CreateAdjustment(ctx context.Context, a Adjustment) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO payroll_adjustments (period_id, employee_id, kind, amount, description, created_by)
    VALUES ($1,$2,$3,$4::numeric,NULLIF($5,''),NULLIF($6,'')::uuid)
    RETURNING id
  `, a.PeriodID, a.EmployeeID, a.Kind, a.Amount.StringFixed(2), a.Description, a.CreatedBy).Scan(&id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return "", fmt.Errorf("%w: unknown period or employee", ErrInvalidAdjustment)
	}
	return id, err
}

// ReplaceRecords upserts the run's records and removes records of
// employees no longer on the roster, in one transaction. The period row is
// locked first so a finalize committed mid-run refuses the write.
func (s *Store) ReplaceRecords(ctx context.Context, periodID string, records []Record) error {
	employeeIDs := make([]string, 0, len(records))
	for _, r := range records {
		employeeIDs = append(employeeIDs, r.EmployeeID)
	}
	return pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		var finalized bool
		err := tx.QueryRow(ctx, `SELECT is_finalized FROM payroll_periods WHERE id = $1 FOR UPDATE`, periodID).Scan(&finalized)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPeriodNotFound
		}
		if err != nil {
			return fmt.Errorf("lock period: %w", err)
		}
		if finalized {
			return ErrPeriodFinalized
		}

		if _, err := tx.Exec(ctx, `
      DELETE FROM payroll_records
      WHERE period_id = $1 AND NOT (employee_id::text = ANY($2))
    `, periodID, employeeIDs); err != nil {
			return fmt.Errorf("prune records: %w", err)
		}
		batch := &pgx.Batch{}
		for _, r := range records {
			batch.Queue(`
        INSERT INTO payroll_records (period_id, employee_id, branch_id,
          basic_salary, gross_salary, net_salary_due, net_shortfall,
          napsa_employee, nhima_employee, paye_tax,
          extra_shifts_count, extra_shift_total, bonus,
          shortage_amount, advances, fines, absent_days, absence_deduction, other_deductions,
          days_logged, comments, flags, rates_year, generated_at)
        VALUES ($1,$2,$3,
          $4::numeric,$5::numeric,$6::numeric,$7::numeric,
          $8::numeric,$9::numeric,$10::numeric,
          $11,$12::numeric,$13::numeric,
          $14::numeric,$15::numeric,$16::numeric,$17,$18::numeric,$19::numeric,
          $20,$21,$22,$23,$24)
        ON CONFLICT (period_id, employee_id) DO UPDATE
        SET branch_id = EXCLUDED.branch_id,
            basic_salary = EXCLUDED.basic_salary,
            gross_salary = EXCLUDED.gross_salary,
            net_salary_due = EXCLUDED.net_salary_due,
            net_shortfall = EXCLUDED.net_shortfall,
            napsa_employee = EXCLUDED.napsa_employee,
            nhima_employee = EXCLUDED.nhima_employee,
            paye_tax = EXCLUDED.paye_tax,
            extra_shifts_count = EXCLUDED.extra_shifts_count,
            extra_shift_total = EXCLUDED.extra_shift_total,
            bonus = EXCLUDED.bonus,
            shortage_amount = EXCLUDED.shortage_amount,
            advances = EXCLUDED.advances,
            fines = EXCLUDED.fines,
            absent_days = EXCLUDED.absent_days,
            absence_deduction = EXCLUDED.absence_deduction,
            other_deductions = EXCLUDED.other_deductions,
            days_logged = EXCLUDED.days_logged,
            comments = EXCLUDED.comments,
            flags = EXCLUDED.flags,
            rates_year = EXCLUDED.rates_year,
            generated_at = EXCLUDED.generated_at
      `,
				periodID, r.EmployeeID, r.BranchID,
				fixed(r.BasicSalary), fixed(r.GrossSalary), fixed(r.NetSalaryDue), fixed(r.NetShortfall),
				fixed(r.NAPSAEmployee), fixed(r.NHIMAEmployee), fixed(r.PAYETax),
				r.ExtraShiftsCount, fixed(r.ExtraShiftTotal), fixed(r.Bonus),
				fixed(r.ShortageAmount), fixed(r.Advances), fixed(r.Fines), r.AbsentDays, fixed(r.AbsenceDeduction), fixed(r.OtherDeductions),
				r.DaysLogged, r.Comments, r.Flags, r.RatesYear, r.GeneratedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert records: %w", err)
		}
		return nil
	})
}

func fixed(d decimal.Decimal) string {
	return money.Round2(d).StringFixed(2)
}

const recordColumns = `
    r.id, r.period_id, r.employee_id, r.branch_id::text,
    r.basic_salary::text, r.gross_salary::text, r.net_salary_due::text, r.net_shortfall::text,
    r.napsa_employee::text, r.nhima_employee::text, r.paye_tax::text,
    r.extra_shifts_count, r.extra_shift_total::text, r.bonus::text,
    r.shortage_amount::text, r.advances::text, r.fines::text, r.absent_days,
    r.absence_deduction::text, r.other_deductions::text,
    r.days_logged, COALESCE(r.comments, ''), r.flags, r.rates_year, r.generated_at,
    COALESCE(e.full_name, ''), COALESCE(e.position, ''), COALESCE(b.name, '')`

const recordJoins = `
    FROM payroll_records r
    LEFT JOIN employees e ON e.id = r.employee_id
    LEFT JOIN branches b ON b.id = r.branch_id`

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	var basic, gross, net, shortfall, napsa, nhima, paye, extra, bonus, shortage, advances, fines, absence, other string
	if err := row.Scan(
		&r.ID, &r.PeriodID, &r.EmployeeID, &r.BranchID,
		&basic, &gross, &net, &shortfall,
		&napsa, &nhima, &paye,
		&r.ExtraShiftsCount, &extra, &bonus,
		&shortage, &advances, &fines, &r.AbsentDays,
		&absence, &other,
		&r.DaysLogged, &r.Comments, &r.Flags, &r.RatesYear, &r.GeneratedAt,
		&r.FullName, &r.Position, &r.BranchName,
	); err != nil {
		return Record{}, err
	}
	r.BasicSalary = money.FromText(basic)
	r.GrossSalary = money.FromText(gross)
	r.NetSalaryDue = money.FromText(net)
	r.NetShortfall = money.FromText(shortfall)
	r.NAPSAEmployee = money.FromText(napsa)
	r.NHIMAEmployee = money.FromText(nhima)
	r.PAYETax = money.FromText(paye)
	r.ExtraShiftTotal = money.FromText(extra)
	r.Bonus = money.FromText(bonus)
	r.ShortageAmount = money.FromText(shortage)
	r.Advances = money.FromText(advances)
	r.Fines = money.FromText(fines)
	r.AbsenceDeduction = money.FromText(absence)
	r.OtherDeductions = money.FromText(other)
	if r.Flags == nil {
		r.Flags = []string{}
	}
	return r, nil
}

// ListRecords returns a period's records sorted by branch then employee name.
func (s *Store) ListRecords(ctx context.Context, periodID string, filter RecordFilter) ([]Record, error) {
	query := `SELECT ` + recordColumns + recordJoins + ` WHERE r.period_id = $1`
	args := []any{periodID}
	if filter.BranchIDs != nil {
		args = append(args, filter.BranchIDs)
		query += " AND r.branch_id::text = ANY($2)"
	}
	query += " ORDER BY b.name NULLS LAST, e.full_name, r.employee_id"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetRecord(ctx context.Context, periodID, employeeID string) (Record, error) {
	if uuid.Validate(periodID) != nil || uuid.Validate(employeeID) != nil {
		return Record{}, ErrRecordNotFound
	}
	r, err := scanRecord(s.DB.QueryRow(ctx, `SELECT `+recordColumns+recordJoins+`
    WHERE r.period_id = $1 AND r.employee_id = $2`, periodID, employeeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return r, err
}
