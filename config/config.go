package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// RabbitURL may be empty, in which case domain events are not published
	// and no consumers are started.
	RabbitURL string

	AppURL   string
	Currency string

	PaymentAPIURL           string
	PaymentSecretKey        string
	PaymentWebhookSecret    string
	PaymentWebhookTolerance time.Duration

	BillingAPIURL    string
	BillingAPIKey    string
	BillingPlansFile string

	TicketSigningSecret string

	ExternalTimeout    time.Duration
	ExternalMaxRetries uint

	// SweepInterval of zero disables the stalled line item sweeper.
	SweepInterval time.Duration
	SweepGrace    time.Duration
	SweepBatch    int

	LogLevel  string
	LogFormat string
}

// Load reads an optional env file and then the process environment.
// Values already present in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "checkout_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RabbitURL: os.Getenv("RABBITMQ_URL"),

		AppURL:   strings.TrimRight(getEnv("APP_URL", "http://localhost:3000"), "/"),
		Currency: strings.ToLower(getEnv("CURRENCY", "usd")),

		PaymentAPIURL:        strings.TrimRight(getEnv("PAYMENT_API_URL", "https://api.stripe.com"), "/"),
		PaymentSecretKey:     os.Getenv("PAYMENT_SECRET_KEY"),
		PaymentWebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),

		BillingAPIURL:    strings.TrimRight(os.Getenv("BILLING_API_URL"), "/"),
		BillingAPIKey:    os.Getenv("BILLING_API_KEY"),
		BillingPlansFile: os.Getenv("BILLING_PLANS_FILE"),

		TicketSigningSecret: os.Getenv("TICKET_SIGNING_SECRET"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.PaymentWebhookTolerance, err = getDuration("PAYMENT_WEBHOOK_TOLERANCE", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ExternalTimeout, err = getDuration("EXTERNAL_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	retries, err := strconv.ParseUint(getEnv("EXTERNAL_MAX_RETRIES", "3"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("EXTERNAL_MAX_RETRIES: %w", err)
	}
	cfg.ExternalMaxRetries = uint(retries)
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepGrace, err = getDuration("SWEEP_GRACE", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepBatch, err = strconv.Atoi(getEnv("SWEEP_BATCH", "100")); err != nil {
		return nil, fmt.Errorf("SWEEP_BATCH: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	for _, kv := range [][2]string{
		{"PAYMENT_SECRET_KEY", c.PaymentSecretKey},
		{"PAYMENT_WEBHOOK_SECRET", c.PaymentWebhookSecret},
		{"TICKET_SIGNING_SECRET", c.TicketSigningSecret},
	} {
		if kv[1] == "" {
			missing = append(missing, kv[0])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.ExternalMaxRetries == 0 {
		return errors.New("EXTERNAL_MAX_RETRIES must be at least 1")
	}
	if c.SweepInterval < 0 || c.SweepGrace < 0 {
		return errors.New("SWEEP_INTERVAL and SWEEP_GRACE must not be negative")
	}
	if c.SweepBatch < 1 {
		return errors.New("SWEEP_BATCH must be at least 1")
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
