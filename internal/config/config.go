package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	Database    Database

	VAPID  VAPID  `envPrefix:"VAPID_"`
	Push   Push   `envPrefix:"PUSH_"`
	Orders Orders `envPrefix:"ORDER_"`
	Staff  Staff  `envPrefix:"STAFF_"`
	AMQP   AMQP   `envPrefix:"AMQP_"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host        string   `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port        string   `env:"HTTP_PORT" envDefault:"8080"`
	APIVersion  string   `env:"API_VERSION" envDefault:"v1"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
}

type Database struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"`
	URL    string `env:"DATABASE_URL" envDefault:"orders.db"`
}

// VAPID identifies this server to push services.
type VAPID struct {
	PublicKey  string `env:"PUBLIC_KEY"`
	PrivateKey string `env:"PRIVATE_KEY"`
	Subject    string `env:"SUBJECT" envDefault:"mailto:kitchen@example.com"`
}

type Push struct {
	TTL            int           `env:"TTL" envDefault:"60"`
	Urgency        string        `env:"URGENCY" envDefault:"high"`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"30s"`
	MaxConcurrency int           `env:"MAX_CONCURRENCY" envDefault:"16"`
}

type Orders struct {
	TaxRate            decimal.Decimal `env:"TAX_RATE" envDefault:"0.08"`
	EnforceTransitions bool            `env:"ENFORCE_TRANSITIONS" envDefault:"false"`
}

// Staff guards the mutating order routes. An empty secret leaves them open.
type Staff struct {
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
}

type AMQP struct {
	URL      string `env:"URL"`
	Exchange string `env:"EXCHANGE" envDefault:"order_status_fanout"`
}

func (h HTTPServer) Address() string {
	return h.Host + ":" + h.Port
}

func (e Environment) IsProduction() bool {
	return e.Name == "production" || e.Name == "prod"
}

// Load reads an optional .env file into the process environment and parses
// it into a Config.
func Load() (*Config, error) {
	// a missing .env is fine outside development
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Push.MaxConcurrency < 1 {
		return errors.New("PUSH_MAX_CONCURRENCY must be at least 1")
	}
	if c.Orders.TaxRate.IsNegative() {
		return errors.New("ORDER_TAX_RATE must not be negative")
	}
	return nil
}

// ValidateVAPID is only required by commands that deliver push messages.
func (c *Config) ValidateVAPID() error {
	if c.VAPID.PublicKey == "" || c.VAPID.PrivateKey == "" {
		return errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY are required")
	}
	return nil
}
