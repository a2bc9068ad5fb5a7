// Package accounts provides session based authentication and account
// management primitives (opaque server side sessions, stateful repositories,
// HTTP controller) plus the activation flow new accounts go through.
//
// Account lifecycle:
//   - Registration creates a user with the read:activation_token feature and
//     issues a short lived, single use activation token. Until activation the
//     account cannot log in.
//   - Consuming the token (PATCH /activations/:token_id) replaces the feature
//     set with create:session and read:session. The transition is one way:
//     the activated set no longer carries read:activation_token.
//
// Sessions:
//   - Login stores an opaque random token in the sessions table and hands it
//     to the client in the session_id cookie. Every authenticated request
//     renews the session (sliding expiration) and refreshes the cookie.
//   - Logout moves expires_at into the past; the token dies immediately.
//     Validity is the predicate expires_at > now, so revoked and expired
//     sessions are indistinguishable.
//
// Authorization:
//   - Feature checks are flat set membership on the request Principal.
//     Requests without a session act as the anonymous principal, which may
//     register, log in, and activate accounts.
package accounts
