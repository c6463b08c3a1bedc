package domain

// Role classifies the traced supply-chain parties. Patients are outside the
// traced-entity set; sales to them are recorded locally only.
type Role string

const (
	RoleManufacturer Role = "manufacturer"
	RoleSupplier     Role = "supplier"
	RolePharmacy     Role = "pharmacy"
)

// Actor is the verified request identity supplied by the authentication
// collaborator. Core services trust these fields and layer their own
// role and ownership checks on top.
type Actor struct {
	ID            string
	Role          Role
	WalletAddress string
	Location      string
}

// HasRole reports whether the actor holds one of the required roles.
func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
