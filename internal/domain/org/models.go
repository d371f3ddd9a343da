package org

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EmploymentActive   = "active"
	EmploymentInactive = "inactive"
)

type Branch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"createdAt"`
}

type Contact struct {
	Phone             string `json:"phone"`
	Email             string `json:"email"`
	MobileMoneyNumber string `json:"mobileMoneyNumber,omitempty"`
	BankName          string `json:"bankName,omitempty"`
	BankAccountNumber string `json:"bankAccountNumber,omitempty"`
	NRCNumber         string `json:"nrcNumber,omitempty"`
	TPIN              string `json:"tpin,omitempty"`
}

type Employee struct {
	ID               string          `json:"id"`
	FullName         string          `json:"fullName"`
	Position         string          `json:"position"`
	PositionLabel    string          `json:"positionLabel"`
	BranchID         string          `json:"branchId"`
	BranchName       string          `json:"branchName,omitempty"`
	BasicPay         decimal.Decimal `json:"basicPay"`
	EmploymentStatus string          `json:"employmentStatus"`
	DateStarted      *time.Time      `json:"dateStarted,omitempty"`
	Contact          Contact         `json:"contact"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func (e Employee) Active() bool {
	return e.EmploymentStatus == EmploymentActive
}

type EmployeeFilter struct {
	BranchIDs []string
	Status    string
}

// Directory resolves display names for records that only carry ids.
type Directory struct {
	branches  map[string]string
	employees map[string]Employee
}

func NewDirectory(branches []Branch, employees []Employee) Directory {
	d := Directory{branches: map[string]string{}, employees: map[string]Employee{}}
	for _, b := range branches {
		d.branches[b.ID] = b.Name
	}
	for _, e := range employees {
		d.employees[e.ID] = e
	}
	return d
}

func (d Directory) BranchName(id string) string {
	if name, ok := d.branches[id]; ok && name != "" {
		return name
	}
	return UnknownLabel
}

func (d Directory) Employee(id string) (Employee, bool) {
	e, ok := d.employees[id]
	return e, ok
}

func (d Directory) EmployeeName(id string) string {
	if e, ok := d.employees[id]; ok && e.FullName != "" {
		return e.FullName
	}
	return UnknownLabel
}
