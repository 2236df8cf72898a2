package adminsdk

// RouteMeta is the protection metadata a view declares: roles are any-of,
// permissions are all-of.
type RouteMeta struct {
	Roles       []string
	Permissions []string
}

// Guard is the boolean predicate the navigation layer consults before
// entering a protected view.
type Guard struct {
	session *SessionManager
}

func NewGuard(session *SessionManager) Guard {
	return Guard{session: session}
}

// Allowed reports whether the current session may enter a view with the
// given metadata. It requires an authenticated state backed by a token that
// is still outside the expiry margin.
func (g Guard) Allowed(meta RouteMeta) bool {
	if !g.session.IsAuthenticated() || !g.session.IsTokenValid() {
		return false
	}
	if len(meta.Roles) > 0 && !g.session.HasAnyRole(meta.Roles...) {
		return false
	}
	for _, p := range meta.Permissions {
		if !g.session.HasPermission(p) {
			return false
		}
	}
	return true
}
