// Package config loads settings from the environment. Command-line flags
// are applied on top of these by the CLI.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultEndpoint is the executor's websocket address.
const DefaultEndpoint = "ws://localhost:8000/ws/execute"

// Client holds settings for the execution client.
type Client struct {
	Endpoint      string
	TemplatesPath string
	LogLevel      string
	LogFormat     string
}

// Server holds settings for the reference executor.
type Server struct {
	Port        int
	WorkDir     string
	RunTimeout  time.Duration
	AllowOrigin string
	LogLevel    string
	LogFormat   string
}

// LoadClient returns client settings from LIVECODE_* variables.
func LoadClient() Client {
	cfg := Client{
		Endpoint: DefaultEndpoint,
		LogLevel: "warn",
	}

	if v := os.Getenv("LIVECODE_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("LIVECODE_TEMPLATES"); v != "" {
		cfg.TemplatesPath = v
	}
	if v := os.Getenv("LIVECODE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LIVECODE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// LoadServer returns executor settings. Malformed numbers and durations
// keep their defaults.
func LoadServer() Server {
	cfg := Server{
		Port:        8000,
		WorkDir:     filepath.Join(os.TempDir(), "code_execution"),
		RunTimeout:  10 * time.Second,
		AllowOrigin: "http://localhost:3000",
		LogLevel:    "info",
	}

	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("LIVECODE_WORK_DIR"); v != "" {
		cfg.WorkDir = v
	}
	if v := os.Getenv("LIVECODE_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RunTimeout = d
		}
	}
	if v := os.Getenv("LIVECODE_ALLOW_ORIGIN"); v != "" {
		cfg.AllowOrigin = v
	}
	if v := os.Getenv("LIVECODE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LIVECODE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}
