package jwtx

import "time"

// Identity is the user profile derived from an accepted access token. It is
// recomputed whenever the token is replaced and must never outlive it.
type Identity struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Username    string          `json:"username"`
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	Roles       map[string]bool `json:"roles"`
	Permissions map[string]bool `json:"permissions"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// Identity derives the user profile from the claims.
func (c *Claims) Identity() *Identity {
	return &Identity{
		ID:          c.Subject,
		Email:       c.Email,
		Username:    c.Username,
		FirstName:   c.GivenName,
		LastName:    c.FamilyName,
		Roles:       toSet(c.Roles),
		Permissions: toSet(c.Permissions),
		ExpiresAt:   c.Expiry(),
	}
}

func toSet(values StringList) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// HasRole reports whether the identity carries the role. A nil identity has
// no roles; membership checks never fail, they answer false.
func (i *Identity) HasRole(role string) bool {
	return i != nil && i.Roles[role]
}

// HasAnyRole reports whether the identity carries at least one of the roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	if i == nil {
		return false
	}
	for _, r := range roles {
		if i.Roles[r] {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether the identity carries every one of the roles.
func (i *Identity) HasAllRoles(roles ...string) bool {
	if i == nil {
		return false
	}
	for _, r := range roles {
		if !i.Roles[r] {
			return false
		}
	}
	return true
}

// HasPermission reports whether the identity carries the permission.
func (i *Identity) HasPermission(permission string) bool {
	return i != nil && i.Permissions[permission]
}

// DisplayName returns a human-readable name for the identity.
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	switch {
	case i.FirstName != "" && i.LastName != "":
		return i.FirstName + " " + i.LastName
	case i.Username != "":
		return i.Username
	default:
		return i.Email
	}
}
