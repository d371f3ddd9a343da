package shared

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"branchpay/internal/platform/money"
	"branchpay/internal/transport/http/api"
)

type ValidationIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Validator collects field issues so a payload is rejected once with all of
// them.
type Validator struct {
	issues []ValidationIssue
}

func NewValidator() *Validator {
	return &Validator{issues: make([]ValidationIssue, 0, 4)}
}

func (v *Validator) Add(field, reason string) {
	if v == nil {
		return
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return
	}
	v.issues = append(v.issues, ValidationIssue{Field: strings.TrimSpace(field), Reason: reason})
}

func (v *Validator) Required(field, value, reason string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, reason)
	}
}

// Enum checks value case-insensitively against allowed and returns it
// normalized. Empty values pass; pair with Required when needed.
func (v *Validator) Enum(field, value string, allowed []string, reason string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" || slices.Contains(allowed, normalized) {
		return normalized
	}
	v.Add(field, reason)
	return normalized
}

func (v *Validator) Date(field, raw string) (time.Time, bool) {
	parsed, err := ParseDate(strings.TrimSpace(raw))
	if err != nil || parsed.IsZero() {
		v.Add(field, "must be a valid date in YYYY-MM-DD format")
		return time.Time{}, false
	}
	return parsed, true
}

func (v *Validator) DateOrder(startField string, start time.Time, endField string, end time.Time) {
	if start.IsZero() || end.IsZero() {
		return
	}
	if end.Before(start) {
		v.Add(startField, "must be on or before "+endField)
		v.Add(endField, "must be on or after "+startField)
	}
}

// Money reads an amount given as a JSON number or a string like "K1,250.00"
// and rounds it to 2 dp. Negative amounts are rejected; zero is rejected too
// when positive is set.
func (v *Validator) Money(field string, raw any, positive bool) decimal.Decimal {
	amount, ok := money.ParseOrZero(raw)
	switch {
	case !ok:
		v.Add(field, "must be a number")
	case positive && !amount.IsPositive():
		v.Add(field, "must be a positive number")
	case amount.IsNegative():
		v.Add(field, "must not be negative")
	}
	return money.Round2(amount)
}

func (v *Validator) HasIssues() bool {
	return v != nil && len(v.issues) > 0
}

// Issues returns the collected issues sorted by field, then reason.
func (v *Validator) Issues() []ValidationIssue {
	if v == nil || len(v.issues) == 0 {
		return nil
	}
	out := slices.Clone(v.issues)
	slices.SortStableFunc(out, func(a, b ValidationIssue) int {
		if c := strings.Compare(a.Field, b.Field); c != 0 {
			return c
		}
		return strings.Compare(a.Reason, b.Reason)
	})
	return out
}

func (v *Validator) Reject(w http.ResponseWriter, requestID string) bool {
	if !v.HasIssues() {
		return false
	}
	FailValidation(w, requestID, v.Issues())
	return true
}

func FailValidation(w http.ResponseWriter, requestID string, issues []ValidationIssue) {
	api.FailWithDetails(w, http.StatusBadRequest, "validation_error", "payload validation failed", map[string]any{"fields": issues}, requestID)
}
