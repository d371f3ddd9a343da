package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/payroll"
	"branchpay/internal/platform/config"
)

// SeedRateYear is the year whose statutory table ships with a fresh install.
const SeedRateYear = 2025

func Seed(ctx context.Context, pool *Pool, cfg config.Config) error {
	if err := ensurePermissions(ctx, pool); err != nil {
		return err
	}

	roleIDs, err := ensureRoles(ctx, pool)
	if err != nil {
		return err
	}

	if err := ensureRolePermissions(ctx, pool, roleIDs); err != nil {
		return err
	}

	if err := ensureAdminUser(ctx, pool, roleIDs[auth.RoleSuperAdmin], cfg.SeedAdminEmail, cfg.SeedAdminPassword, cfg.SeedAdminName); err != nil {
		return err
	}

	return ensureRateTable(ctx, payroll.NewStore(pool), DefaultRateTable(cfg))
}

// DefaultRateTable is the statutory table for SeedRateYear with the
// configured house rates.
func DefaultRateTable(cfg config.Config) payroll.RateTable {
	bracket := func(upTo string, rate string) payroll.Bracket {
		b := payroll.Bracket{Rate: decimal.RequireFromString(rate)}
		if upTo != "" {
			limit := decimal.RequireFromString(upTo)
			b.UpTo = &limit
		}
		return b
	}
	return payroll.RateTable{
		Year:             SeedRateYear,
		ExtraShiftRate:   cfg.DefaultExtraShiftRate,
		AbsenceDailyRate: cfg.DefaultAbsenceDailyRate,
		NAPSARate:        decimal.RequireFromString("0.05"),
		NAPSACeiling:     decimal.RequireFromString("34164.00"),
		NHIMARate:        decimal.RequireFromString("0.01"),
		PAYEBrackets: []payroll.Bracket{
			bracket("5100", "0"),
			bracket("7100", "0.20"),
			bracket("9200", "0.30"),
			bracket("", "0.37"),
		},
	}
}

func ensurePermissions(ctx context.Context, pool *Pool) error {
	for _, perm := range auth.DefaultPermissions {
		_, err := pool.Exec(ctx, "INSERT INTO permissions (key) VALUES ($1) ON CONFLICT (key) DO NOTHING", perm)
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureRoles(ctx context.Context, pool *Pool) (map[string]string, error) {
	roleIDs := map[string]string{}
	for roleName := range auth.RolePermissions {
		var id string
		err := pool.QueryRow(ctx, `
    INSERT INTO roles (name) VALUES ($1)
    ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
    RETURNING id::text
  `, roleName).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("ensure role %s: %w", roleName, err)
		}
		roleIDs[roleName] = id
	}
	return roleIDs, nil
}

func ensureRolePermissions(ctx context.Context, pool *Pool, roleIDs map[string]string) error {
	permMap := map[string]string{}
	rows, err := pool.Query(ctx, "SELECT id::text, key FROM permissions")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, key string
		if err := rows.Scan(&id, &key); err != nil {
			return err
		}
		permMap[key] = id
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for roleName, perms := range auth.RolePermissions {
		roleID := roleIDs[roleName]
		for _, permKey := range perms {
			permID, ok := permMap[permKey]
			if !ok {
				return errors.New("permission not found: " + permKey)
			}
			_, err := pool.Exec(ctx, "INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", roleID, permID)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func ensureAdminUser(ctx context.Context, pool *Pool, roleID, email, password, name string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return nil
	}

	var id string
	err := pool.QueryRow(ctx, "SELECT id::text FROM users WHERE lower(email) = lower($1)", email).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, "INSERT INTO users (email, display_name, password_hash, role_id) VALUES ($1, $2, $3, $4)", email, name, hash, roleID)
	return err
}

// ensureRateTable stores the default table only when that year has none, so
// an edited table survives restarts.
func ensureRateTable(ctx context.Context, store *payroll.Store, table payroll.RateTable) error {
	existing, err := store.ListRateTables(ctx)
	if err != nil {
		return err
	}
	for _, t := range existing {
		if t.Year == table.Year {
			return nil
		}
	}
	if err := table.Validate(); err != nil {
		return fmt.Errorf("default rate table: %w", err)
	}
	return store.UpsertRateTable(ctx, table)
}
