package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Feature is a flat capability string granted to a user. Authorization is
// plain set membership, there is no hierarchy or wildcard expansion.
type Feature = string

const (
	// FeatureReadActivationToken lets the holder consume activation tokens
	FeatureReadActivationToken Feature = "read:activation_token"
	// FeatureCreateSession lets the holder log in
	FeatureCreateSession Feature = "create:session"
	// FeatureReadSession lets the holder inspect and revoke its own session
	FeatureReadSession Feature = "read:session"
	// FeatureCreateUser lets the holder register a new account
	FeatureCreateUser Feature = "create:user"
)

// DefaultUserFeatures is the feature set assigned on registration.
func DefaultUserFeatures() []Feature {
	return []Feature{FeatureReadActivationToken}
}

// ActivatedUserFeatures replaces the default set once the account activates.
// The transition is one way: the new set no longer carries
// read:activation_token so a second activation fails the gate.
func ActivatedUserFeatures() []Feature {
	return []Feature{FeatureCreateSession, FeatureReadSession}
}

// AnonymousFeatures is the minimal set granted to requests without a session.
func AnonymousFeatures() []Feature {
	return []Feature{FeatureReadActivationToken, FeatureCreateSession, FeatureCreateUser}
}

// User is the account model. Password always holds a bcrypt digest, never
// cleartext.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string     `bun:"username,notnull" json:"username,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Password      string     `bun:"password,notnull" json:"password,omitempty"`
	Features      []Feature  `bun:"features,notnull" json:"features"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasFeature reports whether the user currently holds the given feature.
func (u *User) HasFeature(feature Feature) bool {
	if u == nil {
		return false
	}
	for _, f := range u.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Session is a server side login session. Token is the only secret ever
// surfaced to the client; the row id is not guessable from it. A session is
// valid iff expires_at > now, revocation reuses the same predicate by moving
// expires_at into the past.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Valid reports whether the session is still alive at the given instant.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.ExpiresAt.After(now)
}

// ActivationToken gates account activation. Valid iff used_at IS NULL and
// expires_at > now; consumption sets used_at exactly once.
type ActivationToken struct {
	bun.BaseModel `bun:"table:user_activation_tokens,alias:uat"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Used reports whether the token was already consumed.
func (t *ActivationToken) Used() bool {
	return t != nil && t.UsedAt != nil
}
