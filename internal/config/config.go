package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AutoMap configures the optional remote mapping service.
type AutoMap struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config is the service configuration.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	DatabaseURL     string        `yaml:"database_url"`
	AppEnv          string        `yaml:"app_env"`
	JWTSecret       string        `yaml:"jwt_secret"`
	CatalogPath     string        `yaml:"catalog_path"`
	CaseSeedPath    string        `yaml:"case_seed_path"`
	AutoMap         AutoMap       `yaml:"automap"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	DefaultTenantID string        `yaml:"default_tenant_id"`
	MaxBodyBytes    int           `yaml:"max_body_bytes"`
}

// Load builds the configuration from defaults, the YAML file named by
// APP_CONFIG and environment overrides, in that order.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:        ":8080",
		AppEnv:          "development",
		AutoMap:         AutoMap{Timeout: 10 * time.Second},
		SessionTTL:      24 * time.Hour,
		DefaultTenantID: "tenant-demo",
		MaxBodyBytes:    32 << 20,
	}

	if path := os.Getenv("APP_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.AppEnv = getenvDefault("APP_ENV", cfg.AppEnv)
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.JWTSecret))
	cfg.CatalogPath = getenvDefault("CATALOG_PATH", cfg.CatalogPath)
	cfg.CaseSeedPath = getenvDefault("CASE_SEED_PATH", cfg.CaseSeedPath)
	cfg.AutoMap.BaseURL = getenvDefault("AUTOMAP_BASE_URL", cfg.AutoMap.BaseURL)
	cfg.AutoMap.Token = getenvDefault("AUTOMAP_TOKEN", cfg.AutoMap.Token)
	cfg.AutoMap.Timeout = getenvDuration("AUTOMAP_TIMEOUT", cfg.AutoMap.Timeout)
	cfg.SessionTTL = getenvDuration("SESSION_TTL", cfg.SessionTTL)
	cfg.DefaultTenantID = getenvDefault("TENANT_ID", cfg.DefaultTenantID)
	cfg.MaxBodyBytes = getenvIntDefault("MAX_BODY_BYTES", cfg.MaxBodyBytes)

	return cfg, cfg.Validate()
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: http_addr required")
	}
	if strings.TrimSpace(c.DefaultTenantID) == "" {
		return errors.New("config: default_tenant_id required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: session_ttl must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("config: max_body_bytes must be positive")
	}
	if c.AutoMap.BaseURL != "" && c.AutoMap.Timeout <= 0 {
		return errors.New("config: automap.timeout must be positive")
	}
	return nil
}

// Production reports whether the service runs with production settings.
func (c Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
