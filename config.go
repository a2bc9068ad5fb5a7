package accounts

import (
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
)

// Config is the full service configuration, parsed from the environment.
type Config struct {
	App         AppConfig         `envPrefix:"APP_"`
	HTTP        HTTPConfig        `envPrefix:"HTTP_"`
	Persistence PersistenceConfig `envPrefix:"DB_"`
	SMTP        SMTPConfig        `envPrefix:"SMTP_"`
	Session     SessionConfig     `envPrefix:"SESSION_"`
}

type AppConfig struct {
	Env      string `env:"ENV" envDefault:"development"`
	Debug    bool   `env:"DEBUG"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`
}

// Production reports whether the service runs with production hardening,
// which currently only controls the Secure cookie flag.
func (a AppConfig) Production() bool {
	return a.Env == "production"
}

type HTTPConfig struct {
	Addr   string `env:"ADDR" envDefault:":3000"`
	Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`
}

type PersistenceConfig struct {
	Driver                string `env:"DRIVER" envDefault:"sqlite"`
	DSN                   string `env:"DSN" envDefault:"file:accounts.db?cache=shared"`
	Debug                 bool   `env:"DEBUG"`
	PingTimeoutExpression string `env:"PING_TIMEOUT" envDefault:"5s"`
}

func (p PersistenceConfig) GetDriver() string {
	return p.Driver
}

func (p PersistenceConfig) GetDSN() string {
	return p.DSN
}

// GetServer satisfies the persistence client's Config interface; for DSN
// based drivers the server is the DSN itself.
func (p PersistenceConfig) GetServer() string {
	return p.DSN
}

func (p PersistenceConfig) GetOtelIdentifier() string {
	return ""
}

func (p PersistenceConfig) GetDebug() bool {
	return p.Debug
}

func (p PersistenceConfig) GetPingTimeout() time.Duration {
	dur, err := time.ParseDuration(p.PingTimeoutExpression)
	if err != nil {
		return 5 * time.Second
	}
	return dur
}

type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM" envDefault:"no-reply@localhost"`
}

// Enabled reports whether a relay is configured; without one the service
// falls back to the logging mailer.
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

type SessionConfig struct {
	TTL           time.Duration `env:"TTL" envDefault:"720h"`
	ActivationTTL time.Duration `env:"ACTIVATION_TTL" envDefault:"15m"`
}

// LoadConfig parses the configuration from the process environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to parse environment configuration")
	}
	return cfg, nil
}
