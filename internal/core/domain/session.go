package domain

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSupervisor Role = "SUPERVISOR"
	RoleOperator   Role = "OPERATOR"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSupervisor || r == RoleOperator
}

// Session identifies the caller of an operation. Authentication happens
// outside this module; the session is handed in explicitly.
type Session struct {
	UserID string
	Role   Role
}

func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}
