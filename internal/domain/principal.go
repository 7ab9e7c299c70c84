package domain

// Principal is an authenticated caller.
type Principal struct {
	Subject string
	Role    Role
}
