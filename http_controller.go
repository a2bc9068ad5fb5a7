package accounts

import (
	"fmt"
	"io/fs"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Controller is the JSON API surface. All routes live under /api/v1 and run
// behind the principal injection middleware.
type Controller struct {
	Debug         bool
	Logger        Logger
	Repo          RepositoryManager
	DB            *bun.DB
	Auther        *Authenticator
	Register      *RegisterUserHandler
	Activate      *ActivateUserHandler
	SecureCookies bool
	// Migrations holds the SQL migration files for the active dialect so the
	// migrations endpoint can report their status.
	Migrations fs.FS
}

type ControllerOption func(*Controller) *Controller

func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithSecureCookies(secure bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.SecureCookies = secure
		return c
	}
}

func WithDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

// WithMigrationSource points the controller at the migration files for the
// active dialect.
func WithMigrationSource(source fs.FS) ControllerOption {
	return func(c *Controller) *Controller {
		c.Migrations = source
		return c
	}
}

func WithActivationNotifier(notifier *ActivationNotifier) ControllerOption {
	return func(c *Controller) *Controller {
		c.Register.notifier = notifier
		return c
	}
}

func NewController(repo RepositoryManager, db *bun.DB, opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger:   defLogger{},
		Repo:     repo,
		DB:       db,
		Auther:   NewAuthenticator(repo),
		Register: NewRegisterUserHandler(repo, nil),
		Activate: NewActivateUserHandler(repo),
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in accounts controller...")
	}

	c.Auther.WithLogger(c.Logger)
	c.Register.WithLogger(c.Logger)

	return c
}

// RegisterRoutes mounts the API on the given app.
func RegisterRoutes(app *fiber.App, controller *Controller) {
	api := app.Group("/api/v1", controller.WithPrincipal)

	api.Post("/users", controller.RequireFeature(FeatureCreateUser), controller.UserCreate)
	api.Get("/users/:username", controller.UserShow)
	api.Patch("/users/:username", controller.UserUpdate)

	api.Post("/sessions", controller.RequireFeature(FeatureCreateSession), controller.SessionCreate)
	api.Delete("/sessions", controller.RequireSession, controller.RequireFeature(FeatureReadSession), controller.SessionDestroy)

	api.Get("/user", controller.RequireSession, controller.RequireFeature(FeatureReadSession), controller.CurrentUser)

	api.Patch("/activations/:token_id", controller.RequireFeature(FeatureReadActivationToken), controller.ActivationConsume)

	api.Get("/migrations", controller.MigrationsIndex)
	api.Get("/status", controller.Status)
}

// WithPrincipal resolves the session cookie into a principal stored on the
// request context. No cookie means anonymous; a cookie holding a dead token
// fails the request outright, the error handler clears the cookie.
func (a *Controller) WithPrincipal(c *fiber.Ctx) error {
	token := c.Cookies(SessionCookieName)
	if token == "" || token == invalidCookieValue {
		c.SetUserContext(WithPrincipal(c.UserContext(), AnonymousPrincipal()))
		return c.Next()
	}

	session, user, err := a.Auther.ResolveToken(c.UserContext(), token)
	if err != nil {
		return err
	}

	ctx := WithPrincipal(c.UserContext(), UserPrincipal(user))
	ctx = WithSession(ctx, session)
	c.SetUserContext(ctx)

	// resolution slid expires_at forward; keep the cookie in step
	setSessionCookie(c, session, a.Repo.Sessions().TTL(), a.SecureCookies)

	return c.Next()
}

// RequireSession rejects requests that did not resolve to a live session.
func (a *Controller) RequireSession(c *fiber.Ctx) error {
	if _, ok := SessionFromContext(c.UserContext()); !ok {
		return ErrNoActiveSession
	}
	return c.Next()
}

// RequireFeature guards a route behind a feature of the current principal.
func (a *Controller) RequireFeature(feature Feature) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !Can(c.UserContext(), feature) {
			return NewMissingFeatureError(feature)
		}
		return c.Next()
	}
}

// UserCreatePayload is the registration body
type UserCreatePayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r UserCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 30), is.Alphanumeric),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
	)
}

func (a *Controller) UserCreate(c *fiber.Ctx) error {
	payload := new(UserCreatePayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("user create parse payload", "error", err)
		return NewValidationError("Invalid request body.")
	}

	if err := payload.Validate(); err != nil {
		return NewValidationError(err.Error())
	}

	var res *RegisterUserResponse
	msg := RegisterUserMessage{
		Username: payload.Username,
		Email:    payload.Email,
		Password: payload.Password,
		OnResponse: func(r *RegisterUserResponse) {
			res = r
		},
	}

	if err := a.Register.Execute(c.UserContext(), msg); err != nil {
		return err
	}

	if a.Debug {
		fmt.Println("======= USER REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(res.User))
		fmt.Println("============================")
	}

	return c.Status(fiber.StatusCreated).JSON(res.User)
}

func (a *Controller) UserShow(c *fiber.Ctx) error {
	user, err := a.Repo.Users().FindOneByUsername(c.UserContext(), c.Params("username"))
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// UserUpdatePayload carries the mutable fields, all optional.
type UserUpdatePayload struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// Validate will run validation rules
func (r UserUpdatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.NilOrNotEmpty, validation.Length(3, 30), is.Alphanumeric),
		validation.Field(&r.Email, validation.NilOrNotEmpty, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.NilOrNotEmpty, validation.Length(8, 72)),
	)
}

func (a *Controller) UserUpdate(c *fiber.Ctx) error {
	payload := new(UserUpdatePayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("user update parse payload", "error", err)
		return NewValidationError("Invalid request body.")
	}

	if err := payload.Validate(); err != nil {
		return NewValidationError(err.Error())
	}

	patch := UserPatch{
		Username: payload.Username,
		Email:    payload.Email,
		Password: payload.Password,
	}

	if patch.Empty() {
		return NewValidationError("At least one field must be provided.")
	}

	user, err := a.Repo.Users().UpdateByUsername(c.UserContext(), c.Params("username"), patch)
	if err != nil {
		return err
	}

	return c.JSON(user)
}

// SessionCreatePayload is the login body
type SessionCreatePayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r SessionCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *Controller) SessionCreate(c *fiber.Ctx) error {
	payload := new(SessionCreatePayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("session create parse payload", "error", err)
		return NewValidationError("Invalid request body.")
	}

	if err := payload.Validate(); err != nil {
		return NewValidationError(err.Error())
	}

	session, err := a.Auther.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return err
	}

	setSessionCookie(c, session, a.Repo.Sessions().TTL(), a.SecureCookies)

	return c.Status(fiber.StatusCreated).JSON(session)
}

func (a *Controller) SessionDestroy(c *fiber.Ctx) error {
	session, _ := SessionFromContext(c.UserContext())

	expired, err := a.Auther.Logout(c.UserContext(), session)
	if err != nil {
		return err
	}

	clearSessionCookie(c, a.SecureCookies)

	return c.JSON(expired)
}

// CurrentUser echoes the authenticated user. The middleware already renewed
// the session and refreshed the cookie; the response must never be cached.
func (a *Controller) CurrentUser(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "no-store, no-cache, must-revalidate, max-age=0")

	principal, _ := PrincipalFromContext(c.UserContext())
	if !principal.Authenticated() {
		return ErrNoActiveSession
	}

	return c.JSON(principal.User)
}

func (a *Controller) ActivationConsume(c *fiber.Ctx) error {
	tokenID, err := uuid.Parse(c.Params("token_id"))
	if err != nil {
		return NewValidationError("The activation token id must be a valid UUID.")
	}

	var res *ActivateUserResponse
	msg := ActivateUserMessage{
		TokenID: tokenID,
		OnResponse: func(r *ActivateUserResponse) {
			res = r
		},
	}

	if err := a.Activate.Execute(c.UserContext(), msg); err != nil {
		return err
	}

	return c.JSON(res.Token)
}

// MigrationStatus describes one migration file and whether it has run.
type MigrationStatus struct {
	Name       string     `json:"name"`
	GroupID    int64      `json:"group_id"`
	MigratedAt *time.Time `json:"migrated_at"`
	Status     string     `json:"status"`
}

// MigrationsIndex lists every known migration with its applied/pending
// status, read from the migrator bookkeeping table.
func (a *Controller) MigrationsIndex(c *fiber.Ctx) error {
	migrations := migrate.NewMigrations()
	if a.Migrations != nil {
		if err := migrations.Discover(a.Migrations); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to discover migrations")
		}
	}

	migrator := migrate.NewMigrator(a.DB, migrations)
	if err := migrator.Init(c.UserContext()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to init migrator")
	}

	known, err := migrator.MigrationsWithStatus(c.UserContext())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read migration status")
	}

	out := make([]MigrationStatus, 0, len(known))
	for _, m := range known {
		item := MigrationStatus{
			Name:    m.String(),
			GroupID: m.GroupID,
			Status:  "pending",
		}
		if m.IsApplied() {
			migratedAt := m.MigratedAt
			item.MigratedAt = &migratedAt
			item.Status = "applied"
		}
		out = append(out, item)
	}

	return c.JSON(out)
}

// StatusResponse is the health document for GET /status.
type StatusResponse struct {
	UpdatedAt    time.Time          `json:"updated_at"`
	Dependencies StatusDependencies `json:"dependencies"`
}

type StatusDependencies struct {
	Database DatabaseStatus `json:"database"`
}

type DatabaseStatus struct {
	Version           string `json:"version"`
	MaxConnections    int    `json:"max_connections"`
	OpenedConnections int    `json:"opened_connections"`
}

func (a *Controller) Status(c *fiber.Ctx) error {
	var version string
	if err := a.DB.QueryRowContext(c.UserContext(), "SELECT sqlite_version()").Scan(&version); err != nil {
		a.Logger.Error("status version query", "error", err)
		return err
	}

	stats := a.DB.Stats()

	return c.JSON(StatusResponse{
		UpdatedAt: time.Now(),
		Dependencies: StatusDependencies{
			Database: DatabaseStatus{
				Version:           version,
				MaxConnections:    stats.MaxOpenConnections,
				OpenedConnections: stats.OpenConnections,
			},
		},
	})
}
