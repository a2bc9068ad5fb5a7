package accounts

// Principal is the identity attached to a request for authorization
// purposes: either an authenticated user or the anonymous placeholder. It is
// request scoped and never persisted.
type Principal struct {
	User     *User
	Features []Feature
}

// AnonymousPrincipal returns the placeholder identity for requests without a
// session.
func AnonymousPrincipal() *Principal {
	return &Principal{Features: AnonymousFeatures()}
}

// UserPrincipal wraps an authenticated user.
func UserPrincipal(user *User) *Principal {
	return &Principal{User: user, Features: user.Features}
}

// Authenticated reports whether the principal carries a real user.
func (p *Principal) Authenticated() bool {
	return p != nil && p.User != nil
}

// Can reports whether the principal's feature set grants the required
// feature. Flat set containment only.
func (p *Principal) Can(feature Feature) bool {
	if p == nil {
		return false
	}
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}
