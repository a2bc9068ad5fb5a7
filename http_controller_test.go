package accounts_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func setupApp(t *testing.T, opts ...accounts.ManagerOption) (*fiber.App, accounts.RepositoryManager, *bun.DB) {
	t.Helper()

	db := setupDB(t)
	repo := accounts.NewRepositoryManager(db, opts...)

	migrations, err := fs.Sub(accounts.GetMigrationsFS(), "data/sql/migrations/sqlite")
	require.NoError(t, err)

	app := fiber.New(fiber.Config{
		ErrorHandler: accounts.NewErrorHandler(nil, false),
	})
	accounts.RegisterRoutes(app, accounts.NewController(repo, db,
		accounts.WithMigrationSource(migrations),
	))

	return app, repo, db
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload any, cookies ...*http.Cookie) (*http.Response, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	decoded := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}

	return resp, decoded
}

func getCookie(resp *http.Response, name string) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func registerPayload(username, email string) map[string]any {
	return map[string]any{
		"username": username,
		"email":    email,
		"password": "sup3r-secret",
	}
}

func pendingActivationToken(t *testing.T, db *bun.DB) *accounts.ActivationToken {
	t.Helper()
	token := new(accounts.ActivationToken)
	err := db.NewSelect().Model(token).
		Where("used_at IS NULL").
		Order("created_at DESC").
		Limit(1).
		Scan(context.Background())
	require.NoError(t, err)
	return token
}

func TestRegisterActivateLoginFlow(t *testing.T) {
	app, _, db := setupApp(t)

	// registration
	resp, body := doJSON(t, app, fiber.MethodPost, "/api/v1/users", registerPayload("peperone", "pepe.rone@example.com"))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "peperone", body["username"])
	assert.Equal(t, []any{accounts.FeatureReadActivationToken}, body["features"])
	assert.NotEqual(t, "sup3r-secret", body["password"])

	// login before activation is forbidden
	resp, body = doJSON(t, app, fiber.MethodPost, "/api/v1/sessions", map[string]any{
		"email": "pepe.rone@example.com", "password": "sup3r-secret",
	})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "ForbiddenError", body["name"])

	// activation
	token := pendingActivationToken(t, db)
	resp, body = doJSON(t, app, fiber.MethodPatch, "/api/v1/activations/"+token.ID.String(), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotNil(t, body["used_at"])

	// the token is single use
	resp, body = doJSON(t, app, fiber.MethodPatch, "/api/v1/activations/"+token.ID.String(), nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NotFoundError", body["name"])

	// login
	resp, body = doJSON(t, app, fiber.MethodPost, "/api/v1/sessions", map[string]any{
		"email": "pepe.rone@example.com", "password": "sup3r-secret",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["token"])

	cookie := getCookie(resp, accounts.SessionCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, body["token"], cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)

	// current user
	resp, body = doJSON(t, app, fiber.MethodGet, "/api/v1/user", nil, cookie)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "peperone", body["username"])
	assert.Equal(t,
		"no-store, no-cache, must-revalidate, max-age=0",
		resp.Header.Get(fiber.HeaderCacheControl),
	)

	// logout revokes immediately and clears the cookie
	resp, _ = doJSON(t, app, fiber.MethodDelete, "/api/v1/sessions", nil, cookie)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	cleared := getCookie(resp, accounts.SessionCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, "invalid", cleared.Value)

	// the revoked token no longer works
	resp, body = doJSON(t, app, fiber.MethodGet, "/api/v1/user", nil, cookie)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UnauthorizedError", body["name"])

	cleared = getCookie(resp, accounts.SessionCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, "invalid", cleared.Value)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	app, _, _ := setupApp(t)

	resp, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/users", registerPayload("first", "pepe.rone@example.com"))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, app, fiber.MethodPost, "/api/v1/users", registerPayload("second", "Pepe.Rone@EXAMPLE.com"))
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ValidationError", body["name"])
	assert.Equal(t, "The email is already in use.", body["message"])
	assert.Equal(t, float64(fiber.StatusBadRequest), body["status_code"])
}

func TestRegisterInvalidPayload(t *testing.T) {
	app, _, _ := setupApp(t)

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"missing email", map[string]any{"username": "peperone", "password": "sup3r-secret"}},
		{"bad email", map[string]any{"username": "peperone", "email": "nope", "password": "sup3r-secret"}},
		{"short password", map[string]any{"username": "peperone", "email": "a@b.com", "password": "nope"}},
		{"bad username", map[string]any{"username": "pepe rone!", "email": "a@bb.com", "password": "sup3r-secret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, app, fiber.MethodPost, "/api/v1/users", tt.payload)
			require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "ValidationError", body["name"])
		})
	}
}

func TestLoginFailuresShareOneBody(t *testing.T) {
	app, repo, _ := setupApp(t)
	ctx := context.Background()

	user := createTestUser(t, repo.Users(), "peperone")
	_, err := repo.Users().SetFeatures(ctx, user.ID, accounts.ActivatedUserFeatures())
	require.NoError(t, err)

	resp1, body1 := doJSON(t, app, fiber.MethodPost, "/api/v1/sessions", map[string]any{
		"email": "peperone@example.com", "password": "not-the-secret",
	})
	resp2, body2 := doJSON(t, app, fiber.MethodPost, "/api/v1/sessions", map[string]any{
		"email": "nobody@example.com", "password": "whatever",
	})

	require.Equal(t, fiber.StatusUnauthorized, resp1.StatusCode)
	require.Equal(t, fiber.StatusUnauthorized, resp2.StatusCode)
	assert.Equal(t, body1, body2)
	assert.Equal(t, "UnauthorizedError", body1["name"])
}

func TestUserShow(t *testing.T) {
	app, repo, _ := setupApp(t)

	createTestUser(t, repo.Users(), "PepeRone")

	// lookup is case insensitive, stored casing comes back
	resp, body := doJSON(t, app, fiber.MethodGet, "/api/v1/users/peperone", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "PepeRone", body["username"])

	resp, body = doJSON(t, app, fiber.MethodGet, "/api/v1/users/nobody", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NotFoundError", body["name"])
}

func TestUserUpdateCollisionOverHTTP(t *testing.T) {
	app, repo, _ := setupApp(t)

	createTestUser(t, repo.Users(), "first")
	createTestUser(t, repo.Users(), "second")

	resp, body := doJSON(t, app, fiber.MethodPatch, "/api/v1/users/second", map[string]any{
		"username": "First",
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ValidationError", body["name"])
	assert.Equal(t, "The username is already in use.", body["message"])
}

func TestUserUpdateEmptyPatch(t *testing.T) {
	app, repo, _ := setupApp(t)

	createTestUser(t, repo.Users(), "peperone")

	resp, body := doJSON(t, app, fiber.MethodPatch, "/api/v1/users/peperone", map[string]any{})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ValidationError", body["name"])
}

func TestExpiredSessionClearsCookie(t *testing.T) {
	// a tiny TTL so the session dies between requests
	db := setupDB(t)
	repo := accounts.NewRepositoryManager(db, accounts.WithSessionsRepository(
		accounts.NewSessionsRepository(db, accounts.WithSessionTTL(50*time.Millisecond)),
	))
	app := fiber.New(fiber.Config{
		ErrorHandler: accounts.NewErrorHandler(nil, false),
	})
	accounts.RegisterRoutes(app, accounts.NewController(repo, db))

	ctx := context.Background()
	user := createTestUser(t, repo.Users(), "peperone")
	_, err := repo.Users().SetFeatures(ctx, user.ID, accounts.ActivatedUserFeatures())
	require.NoError(t, err)

	session, err := repo.Sessions().Issue(ctx, user.ID)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	resp, body := doJSON(t, app, fiber.MethodGet, "/api/v1/user", nil, &http.Cookie{
		Name:  accounts.SessionCookieName,
		Value: session.Token,
	})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UnauthorizedError", body["name"])

	cleared := getCookie(resp, accounts.SessionCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, "invalid", cleared.Value)
}

func TestAnonymousCannotUseSessionRoutes(t *testing.T) {
	app, _, _ := setupApp(t)

	resp, body := doJSON(t, app, fiber.MethodGet, "/api/v1/user", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UnauthorizedError", body["name"])

	resp, body = doJSON(t, app, fiber.MethodDelete, "/api/v1/sessions", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UnauthorizedError", body["name"])
}

func TestUnknownRoute(t *testing.T) {
	app, _, _ := setupApp(t)

	resp, body := doJSON(t, app, fiber.MethodGet, "/api/v1/nope", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NotFoundError", body["name"])
	assert.Equal(t, float64(fiber.StatusNotFound), body["status_code"])
}

func TestActivationBadTokenID(t *testing.T) {
	app, _, _ := setupApp(t)

	resp, body := doJSON(t, app, fiber.MethodPatch, "/api/v1/activations/not-a-uuid", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ValidationError", body["name"])
}

func TestMigrationsEndpoint(t *testing.T) {
	app, _, _ := setupApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/migrations", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var migrations []map[string]any
	require.NoError(t, json.Unmarshal(raw, &migrations))
	require.NotEmpty(t, migrations)

	for _, m := range migrations {
		assert.NotEmpty(t, m["name"])
		assert.Contains(t, []any{"applied", "pending"}, m["status"])
	}

	// the test schema is created outside the migrator, so nothing is applied
	assert.Equal(t, "pending", migrations[0]["status"])
}

func TestStatusEndpoint(t *testing.T) {
	app, _, _ := setupApp(t)

	resp, body := doJSON(t, app, fiber.MethodGet, "/api/v1/status", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.NotEmpty(t, body["updated_at"])

	deps, ok := body["dependencies"].(map[string]any)
	require.True(t, ok)
	dbStatus, ok := deps["database"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, dbStatus["version"])
}
