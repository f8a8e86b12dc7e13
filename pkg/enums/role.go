package enums

// Role is the caller role carried in access tokens.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleSeller Role = "seller"
)

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleSeller
}
