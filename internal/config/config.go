// Package config loads client settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store kinds.
const (
	StoreBBolt    = "bbolt"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds everything needed to build a client.
type Config struct {
	APIURL         string
	DataDir        string
	Store          string
	PostgresDSN    string
	LogLevel       string
	LogFormat      string
	WarningLead    time.Duration
	RequestTimeout time.Duration
	Listen         string
}

// Load reads DOCSESSION_* environment variables, falling back to defaults.
func Load() Config {
	return Config{
		APIURL:         readString("DOCSESSION_API_URL", "http://127.0.0.1:8000"),
		DataDir:        readString("DOCSESSION_DATA_DIR", defaultDataDir()),
		Store:          readString("DOCSESSION_STORE", StoreBBolt),
		PostgresDSN:    os.Getenv("DOCSESSION_POSTGRES_DSN"),
		LogLevel:       readString("DOCSESSION_LOG_LEVEL", "info"),
		LogFormat:      readString("DOCSESSION_LOG_FORMAT", "text"),
		WarningLead:    readDuration("DOCSESSION_WARNING_LEAD", 60*time.Second),
		RequestTimeout: readDuration("DOCSESSION_REQUEST_TIMEOUT", 30*time.Second),
		Listen:         readString("DOCSESSION_LISTEN", "127.0.0.1:8787"),
	}
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("config: API URL is required")
	}
	switch c.Store {
	case StoreBBolt:
		if c.DataDir == "" {
			return errors.New("config: data dir is required for the bbolt store")
		}
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("config: postgres store requires DOCSESSION_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if c.WarningLead <= 0 {
		return fmt.Errorf("config: warning lead must be positive, got %s", c.WarningLead)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: request timeout must be positive, got %s", c.RequestTimeout)
	}
	return nil
}

// SessionDBPath is the bbolt file holding the persisted session.
func (c Config) SessionDBPath() string {
	return filepath.Join(c.DataDir, "session.db")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docsession"
	}
	return filepath.Join(home, ".docsession")
}

func readString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
