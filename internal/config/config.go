package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig is the full configuration surface of the pipeline.
type AppConfig struct {
	// SourceURL is the station-map page the scraper fetches.
	SourceURL string

	// SyncBaseURL is the external system of record; empty disables sync.
	SyncBaseURL string

	// DatabaseURL selects the Postgres store; empty falls back to the
	// in-memory store.
	DatabaseURL string

	// FetchInterval controls how often a snapshot cycle runs.
	FetchInterval time.Duration

	// SyncInterval controls how often the sync queue drains.
	SyncInterval time.Duration

	// BucketResolution is the time-of-day bucket width for aggregation.
	BucketResolution time.Duration

	// RetentionDays is the raw snapshot retention age.
	RetentionDays int

	// ReportingTZ governs capture timestamps, weekend classification,
	// and month boundaries.
	ReportingTZ *time.Location

	HTTPTimeout time.Duration
	Port        string
	MetricsPort string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{}

	cfg.SourceURL = getenvDefault("SOURCE_URL", "https://www.veturilo.waw.pl/mapa-stacji/")
	cfg.SyncBaseURL = os.Getenv("SYNC_BASE_URL")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	var err error
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", "10m"); err != nil {
		return nil, err
	}
	if cfg.SyncInterval, err = getenvDuration("SYNC_INTERVAL", "10m"); err != nil {
		return nil, err
	}
	if cfg.BucketResolution, err = getenvDuration("BUCKET_RESOLUTION", "10m"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}

	cfg.RetentionDays = getenvInt("RETENTION_DAYS", 10)

	tzName := getenvDefault("REPORTING_TIMEZONE", "Europe/Warsaw")
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid REPORTING_TIMEZONE: %w", err)
	}
	cfg.ReportingTZ = tz

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.MetricsPort = getenvDefault("METRICS_PORT", "9090")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
