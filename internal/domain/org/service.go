package org

import (
	"context"
	"fmt"
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

func (s *Service) ListBranches(ctx context.Context) ([]Branch, error) {
	return s.store.ListBranches(ctx)
}

func (s *Service) GetBranch(ctx context.Context, id string) (Branch, error) {
	return s.store.GetBranch(ctx, id)
}

func (s *Service) CreateBranch(ctx context.Context, name, location string) (string, error) {
	return s.store.CreateBranch(ctx, name, location)
}

func (s *Service) ListEmployees(ctx context.Context, filter EmployeeFilter) ([]Employee, error) {
	return s.store.ListEmployees(ctx, filter)
}

func (s *Service) GetEmployee(ctx context.Context, id string) (Employee, error) {
	return s.store.GetEmployee(ctx, id)
}

func (s *Service) CreateEmployee(ctx context.Context, emp Employee) (string, error) {
	if _, err := s.store.GetBranch(ctx, emp.BranchID); err != nil {
		return "", err
	}
	return s.store.CreateEmployee(ctx, emp)
}

func (s *Service) UpdateEmployee(ctx context.Context, id string, emp Employee) error {
	if _, err := s.store.GetBranch(ctx, emp.BranchID); err != nil {
		return err
	}
	return s.store.UpdateEmployee(ctx, id, emp)
}

// ActiveRoster returns active employees, optionally limited to branches.
func (s *Service) ActiveRoster(ctx context.Context, branchIDs []string) ([]Employee, error) {
	return s.store.ListEmployees(ctx, EmployeeFilter{BranchIDs: branchIDs, Status: EmploymentActive})
}

// Directory loads every branch and employee for name resolution.
func (s *Service) Directory(ctx context.Context) (Directory, error) {
	branches, err := s.store.ListBranches(ctx)
	if err != nil {
		return Directory{}, fmt.Errorf("list branches: %w", err)
	}
	employees, err := s.store.ListEmployees(ctx, EmployeeFilter{})
	if err != nil {
		return Directory{}, fmt.Errorf("list employees: %w", err)
	}
	return NewDirectory(branches, employees), nil
}
