package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	log "github.com/sirupsen/logrus"
)

// Config is the wizard front-end (Telegram bot + checkout server) configuration.
type Config struct {
	TelegramToken string

	BackendURL     string
	RequestTimeout time.Duration

	PaymentProvider  string
	PaymentKeyID     string
	PaymentKeySecret string
	CheckoutTTL      time.Duration

	SessionTTL time.Duration

	HTTPAddr      string
	BasePublicURL string

	LogLevel log.Level

	Catalog Catalog
}

type botEnv struct {
	TelegramToken    string        `env:"TELEGRAM_BOT_TOKEN"`
	BackendURL       string        `env:"BACKEND_URL" envDefault:"http://localhost:8081"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	PaymentProvider  string        `env:"PAYMENT_PROVIDER" envDefault:"stub"`
	PaymentKeyID     string        `env:"PAYMENT_KEY_ID" envDefault:"rzp_test_stub"`
	PaymentKeySecret string        `env:"PAYMENT_KEY_SECRET" envDefault:"change-me"`
	CheckoutTTL      time.Duration `env:"CHECKOUT_TTL" envDefault:"15m"`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"2h"`
	HTTPAddr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	BasePublicURL    string        `env:"BASE_PUBLIC_URL"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	Catalog          catalogEnv
}

func FromEnv() (Config, error) {
	var raw botEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	catalog, err := raw.Catalog.build()
	if err != nil {
		return Config{}, err
	}
	level, err := log.ParseLevel(raw.LogLevel)
	if err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	c := Config{
		TelegramToken:    strings.TrimSpace(raw.TelegramToken),
		BackendURL:       strings.TrimRight(strings.TrimSpace(raw.BackendURL), "/"),
		RequestTimeout:   raw.RequestTimeout,
		PaymentProvider:  strings.TrimSpace(raw.PaymentProvider),
		PaymentKeyID:     strings.TrimSpace(raw.PaymentKeyID),
		PaymentKeySecret: strings.TrimSpace(raw.PaymentKeySecret),
		CheckoutTTL:      raw.CheckoutTTL,
		SessionTTL:       raw.SessionTTL,
		HTTPAddr:         strings.TrimSpace(raw.HTTPAddr),
		BasePublicURL:    strings.TrimRight(strings.TrimSpace(raw.BasePublicURL), "/"),
		LogLevel:         level,
		Catalog:          catalog,
	}
	return c, c.validate()
}

func (c Config) validate() error {
	var problems []string
	if c.TelegramToken == "" {
		problems = append(problems, "TELEGRAM_BOT_TOKEN is empty")
	}
	if c.BackendURL == "" {
		problems = append(problems, "BACKEND_URL is empty")
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, "REQUEST_TIMEOUT must be positive")
	}
	if c.PaymentKeySecret == "" {
		problems = append(problems, "PAYMENT_KEY_SECRET is empty")
	}
	if c.CheckoutTTL <= 0 {
		problems = append(problems, "CHECKOUT_TTL must be positive")
	}
	if c.SessionTTL < time.Second {
		problems = append(problems, "SESSION_TTL must be at least 1s")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(problems, ", "))
	}
	return nil
}

// PublicURL is the externally reachable base of the checkout server.
func (c Config) PublicURL() string {
	if c.BasePublicURL != "" {
		return c.BasePublicURL
	}
	addr := c.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

// Storage drivers understood by the backend.
const (
	StorageMemory   = "memory"
	StorageSheets   = "sheets"
	StoragePostgres = "postgres"
)

// Backend is the registration/payment API configuration.
type Backend struct {
	HTTPAddr string
	Storage  string

	SpreadsheetID            string
	GoogleServiceAccountJSON string

	Database DatabaseConfig

	PaymentKeySecret string

	LogLevel log.Level

	Catalog Catalog
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	Username string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" envDefault:"pjc"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Name, d.SSLMode)
}

type backendEnv struct {
	HTTPAddr                 string `env:"BACKEND_HTTP_ADDR" envDefault:":8081"`
	Storage                  string `env:"STORAGE_DRIVER" envDefault:"memory"`
	SpreadsheetID            string `env:"GOOGLE_SHEETS_SPREADSHEET_ID"`
	GoogleServiceAccountJSON string `env:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	PaymentKeySecret         string `env:"PAYMENT_KEY_SECRET" envDefault:"change-me"`
	LogLevel                 string `env:"LOG_LEVEL" envDefault:"info"`
	Database                 DatabaseConfig
	Catalog                  catalogEnv
}

func BackendFromEnv() (Backend, error) {
	var raw backendEnv
	if err := env.Parse(&raw); err != nil {
		return Backend{}, fmt.Errorf("parse env: %w", err)
	}
	catalog, err := raw.Catalog.build()
	if err != nil {
		return Backend{}, err
	}
	level, err := log.ParseLevel(raw.LogLevel)
	if err != nil {
		return Backend{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	b := Backend{
		HTTPAddr:                 strings.TrimSpace(raw.HTTPAddr),
		Storage:                  strings.ToLower(strings.TrimSpace(raw.Storage)),
		SpreadsheetID:            strings.TrimSpace(raw.SpreadsheetID),
		GoogleServiceAccountJSON: strings.TrimSpace(raw.GoogleServiceAccountJSON),
		Database:                 raw.Database,
		PaymentKeySecret:         strings.TrimSpace(raw.PaymentKeySecret),
		LogLevel:                 level,
		Catalog:                  catalog,
	}
	return b, b.validate()
}

func (b Backend) validate() error {
	var problems []string
	switch b.Storage {
	case StorageMemory:
	case StorageSheets:
		if b.SpreadsheetID == "" {
			problems = append(problems, "GOOGLE_SHEETS_SPREADSHEET_ID is required for sheets storage")
		}
		if b.GoogleServiceAccountJSON == "" {
			problems = append(problems, "GOOGLE_SERVICE_ACCOUNT_JSON is required for sheets storage")
		}
	case StoragePostgres:
		if b.Database.Username == "" {
			problems = append(problems, "DB_USER is required for postgres storage")
		}
	default:
		problems = append(problems, "unknown STORAGE_DRIVER "+b.Storage)
	}
	if b.PaymentKeySecret == "" {
		problems = append(problems, "PAYMENT_KEY_SECRET is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(problems, ", "))
	}
	return nil
}
