// Package config loads the service configuration from config.yaml with
// environment variable overrides (TRIAGE_ prefix).
package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig      `koanf:"server"`
	Storage    StorageConfig     `koanf:"storage"`
	Classifier ClassifierConfig  `koanf:"classifier"`
	Routing    RoutingConfig     `koanf:"routing"`
	Severity   map[string]string `koanf:"severity"`
	Thresholds ThresholdConfig   `koanf:"thresholds"`
}

type ServerConfig struct {
	Port           int     `koanf:"port"`
	TimeoutSeconds float64 `koanf:"timeout_seconds"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// ClassifierConfig selects and tunes the classification backend.
// Backend is resolved once at startup; callers never branch on it per call.
type ClassifierConfig struct {
	Backend        string  `koanf:"backend"` // hosted, local
	Model          string  `koanf:"model"`
	BaseURL        string  `koanf:"base_url"`
	APIKey         string  `koanf:"api_key"`
	TimeoutSeconds float64 `koanf:"timeout_seconds"`
	MaxRetries     int     `koanf:"max_retries"`
	MaxInputTokens int     `koanf:"max_input_tokens"`
}

// RoutingConfig carries the escalation vocabulary the action router matches
// intents against.
type RoutingConfig struct {
	EscalationIntents []string `koanf:"escalation_intents"`
}

// ThresholdConfig holds the numeric limits the agents flag against.
type ThresholdConfig struct {
	HighValueInvoice float64 `koanf:"high_value_invoice"`
	HighRiskScore    float64 `koanf:"high_risk_score"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml if present, applies TRIAGE_-prefixed environment
// overrides, and fills in defaults.
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Environment variables override file values. TRIAGE_CLASSIFIER__BACKEND
	// maps to classifier.backend.
	if err := k.Load(env.Provider("TRIAGE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "TRIAGE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Classifier.APIKey = substituteEnvVars(cfg.Classifier.APIKey)

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                   8080,
		"server.timeout_seconds":        60.0,
		"storage.type":                  "sqlite",
		"storage.sqlite.path":           "./data/triage.db",
		"classifier.backend":            "hosted",
		"classifier.timeout_seconds":    30.0,
		"classifier.max_retries":        1,
		"classifier.max_input_tokens":   2000,
		"thresholds.high_value_invoice": 10000.0,
		"thresholds.high_risk_score":    80.0,
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
	if !k.Exists("routing.escalation_intents") {
		k.Set("routing.escalation_intents", []string{"complaint", "refund_request", "fraud_risk"})
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
