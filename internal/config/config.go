// Package config reads cepsnap defaults from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds the defaults CLI flags start from.
type Config struct {
	LogLevel     string `env:"LOG_LEVEL" envDefault:"warn"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"text"`
	RulesDir     string `env:"RULES_DIR" envDefault:"testdata/rules"`
	ScenariosDir string `env:"SCENARIOS_DIR" envDefault:"testdata/scenarios"`
	Metrics      bool   `env:"METRICS" envDefault:"false"`
}

// Prefix is prepended to every variable name.
const Prefix = "CEPSNAP_"

// Load reads configuration from CEPSNAP_* environment variables.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()
	return parse()
}

// LoadFiles is Load with explicit dotenv files. Missing files are an error.
func LoadFiles(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return parse()
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("config: %sLOG_FORMAT must be text or json, got %q", Prefix, cfg.LogFormat)
	}
	return cfg, nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("config: log level %q: %w", s, err)
	}
	return l, nil
}

// NewLogger builds a text or JSON slog logger writing to w.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: l}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("config: unknown log format %q", format)
	}
}
