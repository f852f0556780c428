package types

// Role is a user's membership role within one space.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleOwner  Role = "owner"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleOwner:  3,
}

// AtLeast reports whether r meets the given minimum role. Unknown roles
// rank below viewer.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}
