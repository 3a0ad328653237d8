package rbac

// Role names. Keep these stable; they are part of the auth contract.
const (
	RoleUser    = "user"    // payer: spends coins on calls
	RoleCreator = "creator" // payee: earns coins from calls
	RoleAdmin   = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
