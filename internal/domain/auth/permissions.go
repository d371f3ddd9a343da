package auth

const (
	RoleSuperAdmin    = "super_admin"
	RoleBranchManager = "branch_manager"
)

const (
	PermOrgRead         = "org.read"
	PermOrgWrite        = "org.write"
	PermAttendanceRead  = "attendance.read"
	PermAttendanceWrite = "attendance.write"
	PermPayrollRead     = "payroll.read"
	PermPayrollWrite    = "payroll.write"
	PermPayrollRun      = "payroll.run"
	PermPayrollFinalize = "payroll.finalize"
	PermReportsRead     = "reports.read"
	PermAuditRead       = "audit.read"
	PermSystemAdmin     = "admin.system"
)

var DefaultPermissions = []string{
	PermOrgRead,
	PermOrgWrite,
	PermAttendanceRead,
	PermAttendanceWrite,
	PermPayrollRead,
	PermPayrollWrite,
	PermPayrollRun,
	PermPayrollFinalize,
	PermReportsRead,
	PermAuditRead,
	PermSystemAdmin,
}

var RolePermissions = map[string][]string{
	RoleBranchManager: {
		PermOrgRead,
		PermAttendanceRead,
		PermAttendanceWrite,
		PermPayrollRead,
		PermReportsRead,
	},
	RoleSuperAdmin: DefaultPermissions,
}

// RoleHasPermission answers from the built-in role table. The database copy
// seeded from it is authoritative at runtime.
func RoleHasPermission(role, permission string) bool {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}
