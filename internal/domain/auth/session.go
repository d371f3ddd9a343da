package auth

import "slices"

// Session is the authenticated caller for one request. It is built by the
// auth middleware from token claims and passed down explicitly.
type Session struct {
	UserID    string
	Email     string
	RoleID    string
	Role      string
	SessionID string
	BranchIDs []string
}

func (s Session) IsSuperAdmin() bool {
	return s.Role == RoleSuperAdmin
}

func (s Session) CanAccessBranch(branchID string) bool {
	if s.IsSuperAdmin() {
		return true
	}
	return branchID != "" && slices.Contains(s.BranchIDs, branchID)
}

// BranchScope returns the branch ids a query must be limited to. A nil
// slice means every branch. A requested branch outside the caller's scope
// yields ErrBranchForbidden.
func (s Session) BranchScope(requested string) ([]string, error) {
	if requested != "" {
		if !s.CanAccessBranch(requested) {
			return nil, ErrBranchForbidden
		}
		return []string{requested}, nil
	}
	if s.IsSuperAdmin() {
		return nil, nil
	}
	if len(s.BranchIDs) == 0 {
		return nil, ErrBranchForbidden
	}
	return slices.Clone(s.BranchIDs), nil
}
