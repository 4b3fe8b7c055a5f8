package domain

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleStaff || r == RoleAdmin
}

// Privileged roles may act on any appointment and are not bound by
// customer-facing deadlines.
func (r Role) Privileged() bool {
	return r == RoleStaff || r == RoleAdmin
}

// Actor is the authenticated principal performing a booking operation.
type Actor struct {
	ID   string
	Role Role
}

// MayActOn reports whether the actor may operate on an appointment owned
// by customerID.
func (a Actor) MayActOn(customerID string) bool {
	return a.Role.Privileged() || a.ID == customerID
}
