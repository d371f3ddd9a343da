package org

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"branchpay/internal/platform/money"
	"branchpay/internal/platform/querier"
)

// Sealer protects contact fields at rest.
type Sealer interface {
	EncryptString(value string) ([]byte, error)
	DecryptString(value []byte) (string, error)
}

type Store struct {
	DB     querier.Querier
	Sealer Sealer
}

func NewStore(db querier.Querier, sealer Sealer) *Store {
	return &Store{DB: db, Sealer: sealer}
}

func (s *Store) ListBranches(ctx context.Context) ([]Branch, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, COALESCE(location, ''), created_at
    FROM branches
    ORDER BY name
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Branch
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Location, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) GetBranch(ctx context.Context, id string) (Branch, error) {
	if uuid.Validate(id) != nil {
		return Branch{}, ErrBranchNotFound
	}
	var b Branch
	err := s.DB.QueryRow(ctx, `
    SELECT id, name, COALESCE(location, ''), created_at
    FROM branches
    WHERE id = $1
  `, id).Scan(&b.ID, &b.Name, &b.Location, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Branch{}, ErrBranchNotFound
	}
	return b, err
}

func (s *Store) CreateBranch(ctx context.Context, name, location string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO branches (name, location)
    VALUES ($1, NULLIF($2, ''))
    RETURNING id
  `, name, location).Scan(&id)
	return id, err
}

const employeeColumns = `
    e.id, e.full_name, e.position, e.branch_id::text, COALESCE(b.name, ''),
    e.basic_pay::text, e.employment_status, e.date_started,
    COALESCE(e.phone, ''), COALESCE(e.email, ''), COALESCE(e.bank_name, ''),
    e.mobile_money_enc, e.bank_account_enc, e.nrc_enc, e.tpin_enc,
    e.created_at, e.updated_at`

func (s *Store) scanEmployee(row pgx.Row) (Employee, error) {
	var e Employee
	var basicPay string
	var mobileEnc, bankEnc, nrcEnc, tpinEnc []byte
	if err := row.Scan(
		&e.ID, &e.FullName, &e.Position, &e.BranchID, &e.BranchName,
		&basicPay, &e.EmploymentStatus, &e.DateStarted,
		&e.Contact.Phone, &e.Contact.Email, &e.Contact.BankName,
		&mobileEnc, &bankEnc, &nrcEnc, &tpinEnc,
		&e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return Employee{}, err
	}
	e.BasicPay = money.FromText(basicPay)
	e.PositionLabel = PositionLabel(e.Position)
	if e.BranchName == "" {
		e.BranchName = UnknownLabel
	}
	e.Contact.MobileMoneyNumber = s.open(mobileEnc)
	e.Contact.BankAccountNumber = s.open(bankEnc)
	e.Contact.NRCNumber = s.open(nrcEnc)
	e.Contact.TPIN = s.open(tpinEnc)
	return e, nil
}

func (s *Store) open(sealed []byte) string {
	if len(sealed) == 0 || s.Sealer == nil {
		return ""
	}
	plain, err := s.Sealer.DecryptString(sealed)
	if err != nil {
		slog.Warn("contact field decrypt failed", "err", err)
		return ""
	}
	return plain
}

func (s *Store) seal(value string) ([]byte, error) {
	if value == "" || s.Sealer == nil {
		return nil, nil
	}
	return s.Sealer.EncryptString(value)
}

func (s *Store) ListEmployees(ctx context.Context, filter EmployeeFilter) ([]Employee, error) {
	query := `SELECT ` + employeeColumns + `
    FROM employees e
    LEFT JOIN branches b ON e.branch_id = b.id
    WHERE 1=1`
	var args []any
	if filter.BranchIDs != nil {
		args = append(args, filter.BranchIDs)
		query += fmt.Sprintf(" AND e.branch_id::text = ANY($%d)", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND e.employment_status = $%d", len(args))
	}
	query += " ORDER BY b.name, e.full_name"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		e, err := s.scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetEmployee(ctx context.Context, id string) (Employee, error) {
	if uuid.Validate(id) != nil {
		return Employee{}, ErrEmployeeNotFound
	}
	row := s.DB.QueryRow(ctx, `SELECT `+employeeColumns+`
    FROM employees e
    LEFT JOIN branches b ON e.branch_id = b.id
    WHERE e.id = $1`, id)
	e, err := s.scanEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrEmployeeNotFound
	}
	return e, err
}

type sealedContact struct {
	mobile, bank, nrc, tpin []byte
}

func (s *Store) sealContact(c Contact) (sealedContact, error) {
	var out sealedContact
	var err error
	if out.mobile, err = s.seal(c.MobileMoneyNumber); err != nil {
		return out, err
	}
	if out.bank, err = s.seal(c.BankAccountNumber); err != nil {
		return out, err
	}
	if out.nrc, err = s.seal(c.NRCNumber); err != nil {
		return out, err
	}
	out.tpin, err = s.seal(c.TPIN)
	return out, err
}

func (s *Store) CreateEmployee(ctx context.Context, emp Employee) (string, error) {
	sealed, err := s.sealContact(emp.Contact)
	if err != nil {
		return "", err
	}
	var id string
	err = s.DB.QueryRow(ctx, `
    INSERT INTO employees (full_name, position, branch_id, basic_pay, employment_status, date_started,
      phone, email, bank_name, mobile_money_enc, bank_account_enc, nrc_enc, tpin_enc)
    VALUES ($1,$2,$3,$4::numeric,$5,$6,NULLIF($7,''),NULLIF($8,''),NULLIF($9,''),$10,$11,$12,$13)
    RETURNING id
  `,
		strings.TrimSpace(emp.FullName), emp.Position, emp.BranchID, emp.BasicPay.StringFixed(2), emp.EmploymentStatus, emp.DateStarted,
		emp.Contact.Phone, emp.Contact.Email, emp.Contact.BankName,
		sealed.mobile, sealed.bank, sealed.nrc, sealed.tpin,
	).Scan(&id)
	return id, err
}

func (s *Store) UpdateEmployee(ctx context.Context, id string, emp Employee) error {
	sealed, err := s.sealContact(emp.Contact)
	if err != nil {
		return err
	}
	cmd, err := s.DB.Exec(ctx, `
    UPDATE employees
    SET full_name = $1,
        position = $2,
        branch_id = $3,
        basic_pay = $4::numeric,
        employment_status = $5,
        date_started = $6,
        phone = NULLIF($7,''),
        email = NULLIF($8,''),
        bank_name = NULLIF($9,''),
        mobile_money_enc = $10,
        bank_account_enc = $11,
        nrc_enc = $12,
        tpin_enc = $13,
        updated_at = now()
    WHERE id = $14
  `,
		strings.TrimSpace(emp.FullName), emp.Position, emp.BranchID, emp.BasicPay.StringFixed(2), emp.EmploymentStatus, emp.DateStarted,
		emp.Contact.Phone, emp.Contact.Email, emp.Contact.BankName,
		sealed.mobile, sealed.bank, sealed.nrc, sealed.tpin, id,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEmployeeNotFound
	}
	return nil
}
