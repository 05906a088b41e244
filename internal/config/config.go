// Package config reads the service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Common
	Env      string
	LogLevel string
	// HTTP
	Addr           string
	RequestTimeout time.Duration
	// Store
	Driver  string
	DSN     string
	Migrate bool
	// Pump
	PumpName             string
	AutoCommit           bool
	AllowThreadMigration bool
	HistoryCapacity      int
	// Metrics
	MetricsPollInterval time.Duration
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func boolDef(s string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return b
}

// Load reads environment variables and applies defaults.
func Load() Config {
	return Config{
		Env:                  getEnv("ENV", "local"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		Addr:                 getEnv("HTTP_ADDR", ":8080"),
		RequestTimeout:       time.Duration(atoiDef(getEnv("REQUEST_TIMEOUT_MS", "3000"), 3000)) * time.Millisecond,
		Driver:               getEnv("STORE_DRIVER", "bolt"),
		DSN:                  getEnv("STORE_DSN", "file:data/records.boltdb"),
		Migrate:              boolDef(getEnv("STORE_MIGRATE", "true"), true),
		PumpName:             getEnv("PUMP_NAME", "records"),
		AutoCommit:           boolDef(getEnv("PUMP_AUTO_COMMIT", "false"), false),
		AllowThreadMigration: boolDef(getEnv("PUMP_ALLOW_THREAD_MIGRATION", "false"), false),
		HistoryCapacity:      atoiDef(getEnv("PUMP_HISTORY_CAPACITY", "100"), 100),
		MetricsPollInterval:  time.Duration(atoiDef(getEnv("METRICS_POLL_MS", "1000"), 1000)) * time.Millisecond,
	}
}
