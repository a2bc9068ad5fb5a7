package accounts

import (
	goerrors "github.com/goliatone/go-errors"
)

// metadataActionKey carries the client facing remediation hint that the HTTP
// boundary copies into the error body's "action" field.
const metadataActionKey = "action"

const (
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeNoActiveSession    = "NO_ACTIVE_SESSION"
	textCodeUsernameTaken      = "USERNAME_TAKEN"
	textCodeEmailTaken         = "EMAIL_TAKEN"
	textCodeUserNotFound       = "USER_NOT_FOUND"
	textCodeTokenNotFound      = "ACTIVATION_TOKEN_NOT_FOUND"
	textCodeMissingFeature     = "MISSING_FEATURE"
	textCodeInvalidPayload     = "INVALID_PAYLOAD"
)

// ErrInvalidCredentials is returned for both unknown email and wrong
// password so the response never tells the two cases apart.
var ErrInvalidCredentials = goerrors.New("Invalid authentication data.", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized).
	WithMetadata(map[string]any{
		metadataActionKey: "Check that the email and password are correct.",
	})

// ErrNoActiveSession is the error for requests whose session cookie is
// missing, expired, or revoked.
var ErrNoActiveSession = goerrors.New("User does not have an active session.", goerrors.CategoryAuth).
	WithTextCode(textCodeNoActiveSession).
	WithCode(goerrors.CodeUnauthorized).
	WithMetadata(map[string]any{
		metadataActionKey: "Verify that the user is signed in and try again.",
	})

// ErrUsernameTaken signals a case-insensitive username collision.
var ErrUsernameTaken = goerrors.New("The username is already in use.", goerrors.CategoryValidation).
	WithTextCode(textCodeUsernameTaken).
	WithCode(goerrors.CodeBadRequest).
	WithMetadata(map[string]any{
		metadataActionKey: "Use another username for this operation.",
	})

// ErrEmailTaken signals a case-insensitive email collision.
var ErrEmailTaken = goerrors.New("The email is already in use.", goerrors.CategoryValidation).
	WithTextCode(textCodeEmailTaken).
	WithCode(goerrors.CodeBadRequest).
	WithMetadata(map[string]any{
		metadataActionKey: "Use another email for this operation.",
	})

// ErrUserNotFound is returned by username/email/id lookups with no match.
var ErrUserNotFound = goerrors.New("The requested username was not found.", goerrors.CategoryNotFound).
	WithTextCode(textCodeUserNotFound).
	WithCode(goerrors.CodeNotFound).
	WithMetadata(map[string]any{
		metadataActionKey: "Check that the username is spelled correctly.",
	})

// ErrActivationTokenNotFound covers unknown, expired, and already consumed
// activation tokens; the validity predicate makes them indistinguishable.
var ErrActivationTokenNotFound = goerrors.New("The activation token was not found or is no longer valid.", goerrors.CategoryNotFound).
	WithTextCode(textCodeTokenNotFound).
	WithCode(goerrors.CodeNotFound).
	WithMetadata(map[string]any{
		metadataActionKey: "Request a new activation link and try again.",
	})

// NewValidationError wraps payload parsing and validation failures. The
// message is safe to echo to the client.
func NewValidationError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryValidation).
		WithTextCode(textCodeInvalidPayload).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			metadataActionKey: "Adjust the data sent and try again.",
		})
}

// NewMissingFeatureError builds the Forbidden error raised when a principal
// lacks the feature a route or operation requires. The remediation hint
// names the missing feature.
func NewMissingFeatureError(feature Feature) *goerrors.Error {
	return goerrors.New("You do not have permission to perform this action.", goerrors.CategoryAuthz).
		WithTextCode(textCodeMissingFeature).
		WithCode(goerrors.CodeForbidden).
		WithMetadata(map[string]any{
			metadataActionKey: `Check that your account holds the "` + feature + `" feature.`,
			"required_feature": feature,
		})
}

// sentinelWithMeta returns a request scoped copy of a package sentinel
// carrying extra metadata. The copy keeps the sentinel as its cause so
// errors.Is still matches, and the shared value is never mutated.
func sentinelWithMeta(sentinel *goerrors.Error, meta map[string]any) *goerrors.Error {
	err := sentinel.Clone()
	err.Source = sentinel
	return err.WithMetadata(meta)
}

// IsUnauthorized reports whether err maps to a 401 at the boundary. The
// error handler uses it to decide when to clear the session cookie.
func IsUnauthorized(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Code == goerrors.CodeUnauthorized
}
