package types

// Permissions maps a module name to the actions allowed on it.
type Permissions map[string][]string

// Allows reports whether action is granted on module. A missing module
// grants nothing.
func (p Permissions) Allows(module, action string) bool {
	for _, a := range p[module] {
		if a == action {
			return true
		}
	}
	return false
}

// Principal is the authenticated identity attached to a request. It is
// rebuilt on every validated request and never cached.
type Principal struct {
	PublicUser
	Permissions Permissions `json:"permissions"`

	// SessionID is the public id of the session the request was made with.
	SessionID int64 `json:"-"`
}
