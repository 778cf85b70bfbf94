package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	PostgresURL     string
	Port            string
	Env             string
	ServiceVersion  string
	OTLPEndpoint    string
	KafkaBrokers    []string
	EmailServiceURL string
	MigrationsPath  string
	ShutdownTimeout time.Duration
}

// Load reads the environment. Values a binary cannot run without are
// checked separately with Require.
func Load(defaultPort string) *Config {
	cfg := &Config{
		PostgresURL:     os.Getenv("POSTGRES_URL"),
		Port:            getenv("PORT", defaultPort),
		Env:             getenv("ENVIRONMENT", "development"),
		ServiceVersion:  getenv("SERVICE_VERSION", "0.1.0"),
		OTLPEndpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		EmailServiceURL: os.Getenv("EMAIL_SERVICE_URL"),
		MigrationsPath:  getenv("MIGRATIONS_PATH", "file://migrations"),
		ShutdownTimeout: 10 * time.Second,
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if raw := os.Getenv("SHUTDOWN_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.ShutdownTimeout = d
		}
	}

	return cfg
}

// Require fails on the first named environment variable that is empty.
func (c *Config) Require(names ...string) error {
	for _, name := range names {
		var set bool
		switch name {
		case "POSTGRES_URL":
			set = c.PostgresURL != ""
		case "KAFKA_BROKERS":
			set = len(c.KafkaBrokers) > 0
		case "EMAIL_SERVICE_URL":
			set = c.EmailServiceURL != ""
		default:
			set = os.Getenv(name) != ""
		}
		if !set {
			return fmt.Errorf("%s environment variable is required", name)
		}
	}
	return nil
}

func getenv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
