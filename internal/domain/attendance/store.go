package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"branchpay/internal/platform/money"
	"branchpay/internal/platform/querier"
)

type Store struct {
	DB querier.TxQuerier
}

func NewStore(db querier.TxQuerier) *Store {
	return &Store{DB: db}
}

// UpsertLogs writes logs in one transaction. A second write for the same
// employee and date replaces the first.
func (s *Store) UpsertLogs(ctx context.Context, logs []Log) error {
	if len(logs) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, l := range logs {
			batch.Queue(`
        INSERT INTO daily_logs (employee_id, branch_id, log_date, status, leave_type, arrival_time,
          shortage_amount, advance_amount, fine_amount, extra_shifts_worked, comments, recorded_by)
        VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),$7::numeric,$8::numeric,$9::numeric,$10,NULLIF($11,''),NULLIF($12,'')::uuid)
        ON CONFLICT (employee_id, log_date) DO UPDATE
        SET branch_id = EXCLUDED.branch_id,
            status = EXCLUDED.status,
            leave_type = EXCLUDED.leave_type,
            arrival_time = EXCLUDED.arrival_time,
            shortage_amount = EXCLUDED.shortage_amount,
            advance_amount = EXCLUDED.advance_amount,
            fine_amount = EXCLUDED.fine_amount,
            extra_shifts_worked = EXCLUDED.extra_shifts_worked,
            comments = EXCLUDED.comments,
            recorded_by = EXCLUDED.recorded_by,
            updated_at = now()
      `,
				l.EmployeeID, l.BranchID, l.LogDate, l.Status, l.LeaveType, l.ArrivalTime,
				l.ShortageAmount.StringFixed(2), l.AdvanceAmount.StringFixed(2), l.FineAmount.StringFixed(2),
				l.ExtraShiftsWorked, l.Comments, l.RecordedBy,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert daily logs: %w", err)
		}
		return nil
	})
}

const logColumns = `
    employee_id::text, branch_id::text, log_date, status, COALESCE(leave_type, ''), COALESCE(arrival_time, ''),
    shortage_amount::text, advance_amount::text, fine_amount::text, extra_shifts_worked,
    COALESCE(comments, ''), COALESCE(recorded_by::text, ''), updated_at`

func scanLogs(rows pgx.Rows) ([]Log, error) {
	defer rows.Close()
	var out []Log
	for rows.Next() {
		var l Log
		var shortage, advance, fine string
		var updated time.Time
		if err := rows.Scan(
			&l.EmployeeID, &l.BranchID, &l.LogDate, &l.Status, &l.LeaveType, &l.ArrivalTime,
			&shortage, &advance, &fine, &l.ExtraShiftsWorked,
			&l.Comments, &l.RecordedBy, &updated,
		); err != nil {
			return nil, err
		}
		l.ShortageAmount = money.FromText(shortage)
		l.AdvanceAmount = money.FromText(advance)
		l.FineAmount = money.FromText(fine)
		l.UpdatedAt = &updated
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) ListDay(ctx context.Context, branchID string, date time.Time) ([]Log, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+logColumns+`
    FROM daily_logs
    WHERE branch_id = $1 AND log_date = $2
  `, branchID, date)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

// LogsInRange returns logs with start <= log_date <= end.
func (s *Store) LogsInRange(ctx context.Context, start, end time.Time) ([]Log, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+logColumns+`
    FROM daily_logs
    WHERE log_date BETWEEN $1 AND $2
    ORDER BY log_date, employee_id
  `, start, end)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}
