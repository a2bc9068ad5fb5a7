package main

import (
	"context"
	"database/sql"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type App struct {
	config *accounts.Config
	bunDB  *bun.DB
	repo   accounts.RepositoryManager
	logger *glog.BaseLogger
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	cfg, err := accounts.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	lvl := glog.Debug
	if cfg.App.Production() {
		lvl = glog.Info
	}

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(lvl),
		glog.WithName("accounts"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	app := &App{
		config: cfg,
		logger: lgr,
	}

	ctx := context.Background()

	if err := WithPersistence(ctx, app); err != nil {
		lgr.Error("persistence setup failed", "error", err)
		os.Exit(1)
	}

	srv, err := WithHTTPServer(app)
	if err != nil {
		lgr.Error("http setup failed", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := srv.Listen(cfg.HTTP.Addr); err != nil {
			lgr.Error("server stopped", "error", err)
		}
	}()

	lgr.Info("accounts service listening", "addr", cfg.HTTP.Addr)

	WaitExitSignal()

	if err := srv.Shutdown(); err != nil {
		lgr.Error("shutdown error", "error", err)
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := sql.Open(sqliteshim.ShimName, app.config.Persistence.GetDSN())
	if err != nil {
		return err
	}

	persistence.RegisterModel((*accounts.User)(nil))
	persistence.RegisterModel((*accounts.Session)(nil))
	persistence.RegisterModel((*accounts.ActivationToken)(nil))

	dialect := sqlitedialect.New()
	client, err := persistence.New(app.config.Persistence, db, dialect)
	if err != nil {
		return err
	}

	client.SetLogger(app.GetLogger("persistence"))

	migrationsFS, err := fs.Sub(accounts.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return err
	}

	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)

	if err := client.ValidateDialects(ctx); err != nil {
		return err
	}

	if err := client.Migrate(ctx); err != nil {
		return err
	}

	app.bunDB = client.DB()
	app.repo = accounts.NewRepositoryManager(client.DB(),
		accounts.WithSessionsRepository(accounts.NewSessionsRepository(
			client.DB(),
			accounts.WithSessionTTL(app.config.Session.TTL),
		)),
		accounts.WithActivationTokensRepository(accounts.NewActivationTokensRepository(
			client.DB(),
			accounts.WithActivationTokenTTL(app.config.Session.ActivationTTL),
		)),
	)
	app.repo.MustValidate()

	return nil
}

func WithHTTPServer(app *App) (*fiber.App, error) {
	cfg := app.config

	var mailer accounts.Mailer
	if cfg.SMTP.Enabled() {
		mailer = accounts.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
	} else {
		mailer = accounts.NewLogMailer(app.GetLogger("mailer"))
	}

	notifier, err := accounts.NewActivationNotifier(mailer, cfg.HTTP.Origin, cfg.SMTP.From)
	if err != nil {
		return nil, err
	}

	srv := fiber.New(fiber.Config{
		AppName:               "accounts",
		ErrorHandler:          accounts.NewErrorHandler(app.GetLogger("http"), cfg.App.Production()),
		DisableStartupMessage: cfg.App.Production(),
	})

	migrationSource, err := fs.Sub(accounts.GetMigrationsFS(), "data/sql/migrations/"+cfg.Persistence.GetDriver())
	if err != nil {
		return nil, err
	}

	controller := accounts.NewController(app.repo, app.bunDB,
		accounts.WithControllerLogger(app.GetLogger("ctrl")),
		accounts.WithSecureCookies(cfg.App.Production()),
		accounts.WithDebug(cfg.App.Debug),
		accounts.WithActivationNotifier(notifier),
		accounts.WithMigrationSource(migrationSource),
	)

	accounts.RegisterRoutes(srv, controller)

	return srv, nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
