package enums

// UserRole gates access to staff-only routes.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleStaff    UserRole = "staff"
)

var userRoles = closed[UserRole]{"user role", []UserRole{UserRoleCustomer, UserRoleStaff}}

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool { return userRoles.has(r) }

func ParseUserRole(value string) (UserRole, error) {
	return userRoles.parse(value)
}
