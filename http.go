package accounts

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "session_id"

// invalidCookieValue replaces the token when the cookie is cleared so stale
// clients never resend a token that looks plausible.
const invalidCookieValue = "invalid"

// apiError is the wire shape every failed request carries.
type apiError struct {
	Name       string `json:"name"`
	Message    string `json:"message"`
	Action     string `json:"action"`
	StatusCode int    `json:"status_code"`
}

func internalAPIError() apiError {
	return apiError{
		Name:       "InternalServerError",
		Message:    "An unexpected internal error occurred.",
		Action:     "Contact support.",
		StatusCode: fiber.StatusInternalServerError,
	}
}

// newAPIError maps any error to the client facing body. Rich errors carry
// their own message and remediation hint; everything unrecognized collapses
// to a generic 500 so internals never leak.
func newAPIError(err error) apiError {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		switch fiberErr.Code {
		case fiber.StatusBadRequest:
			return apiError{
				Name:       "ValidationError",
				Message:    "The request data is invalid.",
				Action:     "Adjust the data sent and try again.",
				StatusCode: fiber.StatusBadRequest,
			}
		case fiber.StatusNotFound:
			return apiError{
				Name:       "NotFoundError",
				Message:    "This resource was not found.",
				Action:     "Check that the requested path is correct.",
				StatusCode: fiber.StatusNotFound,
			}
		case fiber.StatusMethodNotAllowed:
			return apiError{
				Name:       "MethodNotAllowedError",
				Message:    "Method not allowed for this endpoint.",
				Action:     "Check that the HTTP method sent is valid for this endpoint.",
				StatusCode: fiber.StatusMethodNotAllowed,
			}
		}
		return internalAPIError()
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return internalAPIError()
	}

	action, _ := richErr.Metadata[metadataActionKey].(string)
	if action == "" {
		action = defaultAction(richErr.Code)
	}

	switch richErr.Code {
	case goerrors.CodeBadRequest:
		return apiError{
			Name:       "ValidationError",
			Message:    richErr.Message,
			Action:     action,
			StatusCode: fiber.StatusBadRequest,
		}
	case goerrors.CodeUnauthorized:
		return apiError{
			Name:       "UnauthorizedError",
			Message:    richErr.Message,
			Action:     action,
			StatusCode: fiber.StatusUnauthorized,
		}
	case goerrors.CodeForbidden:
		return apiError{
			Name:       "ForbiddenError",
			Message:    richErr.Message,
			Action:     action,
			StatusCode: fiber.StatusForbidden,
		}
	case goerrors.CodeNotFound:
		return apiError{
			Name:       "NotFoundError",
			Message:    richErr.Message,
			Action:     action,
			StatusCode: fiber.StatusNotFound,
		}
	}

	return internalAPIError()
}

func defaultAction(code int) string {
	switch code {
	case goerrors.CodeBadRequest:
		return "Adjust the data sent and try again."
	case goerrors.CodeUnauthorized:
		return "Verify that the user is signed in and try again."
	case goerrors.CodeForbidden:
		return "Check that your account has permission to perform this action."
	case goerrors.CodeNotFound:
		return "Check that the requested resource exists."
	}
	return "Contact support."
}

// NewErrorHandler builds the fiber error handler rendering every failure as
// an apiError body. Any 401 also clears the session cookie so dead tokens do
// not keep coming back.
func NewErrorHandler(logger Logger, secureCookies bool) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx, err error) error {
		body := newAPIError(err)

		if IsUnauthorized(err) {
			clearSessionCookie(c, secureCookies)
		}

		if body.StatusCode >= fiber.StatusInternalServerError {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				logger.Error("request failed",
					"path", c.Path(),
					"error", richErr.Message,
					"category", string(richErr.Category),
					"details", print.MaybePrettyJSON(richErr.Metadata),
				)
			} else {
				logger.Error("request failed", "path", c.Path(), "error", err.Error())
			}
		}

		return c.Status(body.StatusCode).JSON(body)
	}
}

func setSessionCookie(c *fiber.Ctx, session *Session, ttl time.Duration, secure bool) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: "Lax",
	})
}

func clearSessionCookie(c *fiber.Ctx, secure bool) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    invalidCookieValue,
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Now().Add(-time.Hour * 24 * 365),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: "Lax",
	})
}
