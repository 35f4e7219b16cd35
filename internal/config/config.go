// Package config loads and validates application configuration from
// environment variables using viper.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the API server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64

	// PaymentServiceURL is the payment service base URL. When empty the API
	// authorizes against an in-process simulator.
	PaymentServiceURL string

	// PaymentFailureRate is the simulator's decline probability in [0, 1].
	PaymentFailureRate float64

	// PaymentRetries is how many extra authorize attempts are made after an
	// upstream failure. Every attempt reuses the same idempotency key.
	PaymentRetries int

	// UpstreamTimeout bounds each remote call. Defaults to 5s.
	UpstreamTimeout time.Duration

	// LockTTL is the lease on a Redis booking lock. It is renewed while held.
	LockTTL time.Duration

	// LockWait bounds how long a reservation queues for its car's lock.
	// Defaults to 5s.
	LockWait time.Duration

	// RedisURL enables the distributed per-car lock. Empty means an
	// in-process lock, which is only correct for a single replica.
	RedisURL string

	// RabbitMQURL enables rental event publishing. Empty means events are
	// logged and dropped.
	RabbitMQURL string

	// EventsExchange is the topic exchange rental events are published to.
	EventsExchange string

	// CompensationSchedule is the cron spec for retrying pending compensations.
	CompensationSchedule string

	// MigrateOnStart runs the goose migrations before serving.
	MigrateOnStart bool
}

// PaymentsConfig holds the configuration of the standalone payment service.
type PaymentsConfig struct {
	Port               string
	LogLevel           string
	PaymentFailureRate float64
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set and any
// values that cannot be parsed.
func Load() (Config, error) {
	v := newViper(map[string]any{
		"PORT":                  "8080",
		"LOG_LEVEL":             "info",
		"CORS_ORIGINS":          "http://localhost:5173",
		"MAX_BODY_BYTES":        "1048576",
		"PAYMENT_SERVICE_URL":   "",
		"PAYMENT_FAILURE_RATE":  "0.1",
		"PAYMENT_RETRIES":       "1",
		"UPSTREAM_TIMEOUT":      "5s",
		"LOCK_TTL":              "30s",
		"LOCK_WAIT":             "5s",
		"REDIS_URL":             "",
		"RABBITMQ_URL":          "",
		"EVENTS_EXCHANGE":       "rental_events",
		"COMPENSATION_SCHEDULE": "@every 1m",
		"MIGRATE_ON_START":      "true",
		"DATABASE_URL":          "",
	})

	p := parser{v: v}
	cfg := Config{
		Port:                 v.GetString("PORT"),
		DatabaseURL:          v.GetString("DATABASE_URL"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		CORSOrigins:          splitCSV(v.GetString("CORS_ORIGINS")),
		MaxBodyBytes:         int64(p.int("MAX_BODY_BYTES")),
		PaymentServiceURL:    strings.TrimSpace(v.GetString("PAYMENT_SERVICE_URL")),
		PaymentFailureRate:   p.rate("PAYMENT_FAILURE_RATE"),
		PaymentRetries:       p.int("PAYMENT_RETRIES"),
		UpstreamTimeout:      p.duration("UPSTREAM_TIMEOUT"),
		LockTTL:              p.duration("LOCK_TTL"),
		LockWait:             p.duration("LOCK_WAIT"),
		RedisURL:             strings.TrimSpace(v.GetString("REDIS_URL")),
		RabbitMQURL:          strings.TrimSpace(v.GetString("RABBITMQ_URL")),
		EventsExchange:       v.GetString("EVENTS_EXCHANGE"),
		CompensationSchedule: v.GetString("COMPENSATION_SCHEDULE"),
		MigrateOnStart:       p.bool("MIGRATE_ON_START"),
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	if len(p.invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variables: %s", strings.Join(p.invalid, "; "))
	}
	return cfg, nil
}

// LoadPayments reads the payment service configuration.
func LoadPayments() (PaymentsConfig, error) {
	v := newViper(map[string]any{
		"PORT":                 "8083",
		"LOG_LEVEL":            "info",
		"PAYMENT_FAILURE_RATE": "0.1",
	})

	p := parser{v: v}
	cfg := PaymentsConfig{
		Port:               v.GetString("PORT"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		PaymentFailureRate: p.rate("PAYMENT_FAILURE_RATE"),
	}
	if len(p.invalid) > 0 {
		return PaymentsConfig{}, fmt.Errorf("invalid environment variables: %s", strings.Join(p.invalid, "; "))
	}
	return cfg, nil
}

// newViper returns an isolated viper instance reading the environment, with
// the given defaults. Empty variables count as unset.
func newViper(defaults map[string]any) *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// parser converts string settings, collecting every failure so a single
// error can name them all.
type parser struct {
	v       *viper.Viper
	invalid []string
}

func (p *parser) fail(key, want string) {
	p.invalid = append(p.invalid, fmt.Sprintf("%s=%q is not %s", key, p.v.GetString(key), want))
}

func (p *parser) int(key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(p.v.GetString(key)))
	if err != nil || n < 0 {
		p.fail(key, "a non-negative integer")
		return 0
	}
	return n
}

func (p *parser) rate(key string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(p.v.GetString(key)), 64)
	if err != nil || f < 0 || f > 1 {
		p.fail(key, "a number between 0 and 1")
		return 0
	}
	return f
}

func (p *parser) duration(key string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(p.v.GetString(key)))
	if err != nil || d <= 0 {
		p.fail(key, "a positive duration")
		return 0
	}
	return d
}

func (p *parser) bool(key string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(p.v.GetString(key)))
	if err != nil {
		p.fail(key, "a boolean")
		return false
	}
	return b
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
