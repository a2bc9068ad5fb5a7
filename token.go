package accounts

import (
	"crypto/rand"
	"encoding/hex"

	goerrors "github.com/goliatone/go-errors"
)

// sessionTokenBytes is the entropy of an opaque session token. 48 random
// bytes hex encode to 96 characters, far beyond brute force reach.
const sessionTokenBytes = 48

// NewSessionToken generates a cryptographically random opaque token. The
// token has no decodable structure; validation always requires the server
// side row lookup.
func NewSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to generate session token")
	}
	return hex.EncodeToString(buf), nil
}
