package reports

import (
	"context"

	"branchpay/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

// ActiveHeadcount counts active employees, optionally limited to branches.
func (s *Store) ActiveHeadcount(ctx context.Context, branchIDs []string) (int, error) {
	query := "SELECT COUNT(1) FROM employees WHERE employment_status = 'active'"
	args := []any{}
	if branchIDs != nil {
		query += " AND branch_id::text = ANY($1)"
		args = append(args, branchIDs)
	}
	var n int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
