package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "PODIUM"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabasePath       = "podium.db"
	defaultLogLevel           = "info"
	defaultAuthTimeoutSeconds = 5
	defaultPersistSeconds     = 15
	defaultReadLimitBytes     = 1 << 20
	defaultIdleSeconds        = 300
)

// AppConfig captures runtime configuration for the sync service.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	LogLevel        string
	AuthAudience    string
	AuthJWKSURL     string
	AuthIssuers     []string
	AuthTimeout     time.Duration
	PersistInterval time.Duration
	ReadLimitBytes  int64
	IdleTimeout     time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.timeout_seconds", defaultAuthTimeoutSeconds)
	configViper.SetDefault("persist.interval_seconds", defaultPersistSeconds)
	configViper.SetDefault("sync.read_limit_bytes", defaultReadLimitBytes)
	configViper.SetDefault("sync.idle_timeout_seconds", defaultIdleSeconds)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		AuthAudience:    configViper.GetString("auth.audience"),
		AuthJWKSURL:     configViper.GetString("auth.jwks_url"),
		AuthIssuers:     configViper.GetStringSlice("auth.allowed_issuers"),
		AuthTimeout:     time.Duration(configViper.GetInt("auth.timeout_seconds")) * time.Second,
		PersistInterval: time.Duration(configViper.GetInt("persist.interval_seconds")) * time.Second,
		ReadLimitBytes:  configViper.GetInt64("sync.read_limit_bytes"),
		IdleTimeout:     time.Duration(configViper.GetInt("sync.idle_timeout_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.AuthAudience) == "" {
		return fmt.Errorf("auth.audience is required")
	}
	if strings.TrimSpace(c.AuthJWKSURL) == "" {
		return fmt.Errorf("auth.jwks_url is required")
	}
	if c.AuthTimeout <= 0 {
		return fmt.Errorf("auth.timeout_seconds must be positive")
	}
	if c.PersistInterval <= 0 {
		return fmt.Errorf("persist.interval_seconds must be positive")
	}
	return nil
}
