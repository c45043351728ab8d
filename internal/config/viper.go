// Package config provides Viper-based hierarchical configuration management
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Remote driver names accepted by remote.driver.
const (
	RemoteMemory = "memory"
	RemoteSQLite = "sqlite"
	RemoteMySQL  = "mysql"
)

// Config represents the complete application configuration
type Config struct {
	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	CSV struct {
		Delimiter string `mapstructure:"delimiter" yaml:"delimiter"`
	} `mapstructure:"csv" yaml:"csv"`

	Data struct {
		Directory string `mapstructure:"directory" yaml:"directory"`
		LocalDB   string `mapstructure:"local_db" yaml:"local_db"`
	} `mapstructure:"data" yaml:"data"`

	Remote struct {
		Driver string `mapstructure:"driver" yaml:"driver"`
		DSN    string `mapstructure:"dsn" yaml:"-"`
	} `mapstructure:"remote" yaml:"remote"`

	Sync struct {
		ProbeAddress  string        `mapstructure:"probe_address" yaml:"probe_address"`
		ProbeInterval time.Duration `mapstructure:"probe_interval" yaml:"probe_interval"`
		ProbeTimeout  time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
		RemoteTimeout time.Duration `mapstructure:"remote_timeout" yaml:"remote_timeout"`
		RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
	} `mapstructure:"sync" yaml:"sync"`

	Trash struct {
		Retention     time.Duration `mapstructure:"retention" yaml:"retention"`
		SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	} `mapstructure:"trash" yaml:"trash"`

	Recurring struct {
		HorizonMonths int `mapstructure:"horizon_months" yaml:"horizon_months"`
	} `mapstructure:"recurring" yaml:"recurring"`

	Currency struct {
		Default string        `mapstructure:"default" yaml:"default"`
		RateURL string        `mapstructure:"rate_url" yaml:"rate_url"`
		Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	} `mapstructure:"currency" yaml:"currency"`

	Categories struct {
		SeedFile string `mapstructure:"seed_file" yaml:"seed_file"`
	} `mapstructure:"categories" yaml:"categories"`

	Auth struct {
		User        string `mapstructure:"user" yaml:"user"`
		Token       string `mapstructure:"token" yaml:"-"`
		TokenSecret string `mapstructure:"token_secret" yaml:"-"` // Never serialize secrets
	} `mapstructure:"auth" yaml:"auth"`
}

// InitializeConfig initializes Viper configuration with hierarchical loading
func InitializeConfig() (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Config file locations
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.xpense")
	v.AddConfigPath(".xpense")
	v.AddConfigPath(".")

	// 3. Environment variables
	v.SetEnvPrefix("XPENSE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 4. Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	// 5. Secrets have short env names of their own
	if err := v.BindEnv("auth.token_secret", "XPENSE_TOKEN_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind XPENSE_TOKEN_SECRET: %w", err)
	}
	if err := v.BindEnv("remote.dsn", "XPENSE_REMOTE_DSN", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind remote dsn: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Currency.Default = strings.ToUpper(strings.TrimSpace(config.Currency.Default))
	config.Remote.Driver = strings.ToLower(strings.TrimSpace(config.Remote.Driver))

	// 6. Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns the built-in configuration without reading files or the
// environment.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return &config
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("csv.delimiter", ",")

	v.SetDefault("data.directory", "")
	v.SetDefault("data.local_db", "xpense.db")

	v.SetDefault("remote.driver", RemoteSQLite)
	v.SetDefault("remote.dsn", "xpense-remote.db")

	v.SetDefault("sync.probe_address", "")
	v.SetDefault("sync.probe_interval", "15s")
	v.SetDefault("sync.probe_timeout", "3s")
	v.SetDefault("sync.remote_timeout", "15s")
	v.SetDefault("sync.retry_interval", "30s")

	v.SetDefault("trash.retention", "72h")
	v.SetDefault("trash.sweep_interval", "1m")

	v.SetDefault("recurring.horizon_months", 12)

	v.SetDefault("currency.default", "USD")
	v.SetDefault("currency.rate_url", "https://open.er-api.com/v6/latest")
	v.SetDefault("currency.timeout", "10s")

	v.SetDefault("categories.seed_file", "")

	v.SetDefault("auth.user", "")
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.token_secret", "")
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	if _, err := logrus.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}

	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", config.Log.Format)
	}

	if len(config.CSV.Delimiter) != 1 {
		return fmt.Errorf("CSV delimiter must be a single character, got: %s", config.CSV.Delimiter)
	}

	switch config.Remote.Driver {
	case RemoteMemory:
	case RemoteSQLite, RemoteMySQL:
		if config.Remote.DSN == "" {
			return fmt.Errorf("remote.dsn required for driver %s", config.Remote.Driver)
		}
	default:
		return fmt.Errorf("invalid remote driver: %s (must be 'memory', 'sqlite' or 'mysql')", config.Remote.Driver)
	}

	if config.Sync.ProbeInterval < time.Second {
		return fmt.Errorf("sync.probe_interval must be at least 1s, got: %s", config.Sync.ProbeInterval)
	}
	if config.Sync.RetryInterval < time.Second {
		return fmt.Errorf("sync.retry_interval must be at least 1s, got: %s", config.Sync.RetryInterval)
	}
	if config.Sync.ProbeTimeout <= 0 || config.Sync.RemoteTimeout <= 0 {
		return fmt.Errorf("sync timeouts must be positive")
	}

	if config.Trash.Retention <= 0 {
		return fmt.Errorf("trash.retention must be positive, got: %s", config.Trash.Retention)
	}
	if config.Trash.SweepInterval < time.Second {
		return fmt.Errorf("trash.sweep_interval must be at least 1s, got: %s", config.Trash.SweepInterval)
	}

	if config.Recurring.HorizonMonths < 1 || config.Recurring.HorizonMonths > 120 {
		return fmt.Errorf("recurring.horizon_months must be between 1 and 120, got: %d", config.Recurring.HorizonMonths)
	}

	if len(config.Currency.Default) != 3 {
		return fmt.Errorf("currency.default must be a 3-letter code, got: %s", config.Currency.Default)
	}

	if config.Auth.Token != "" && config.Auth.TokenSecret == "" {
		return fmt.Errorf("XPENSE_TOKEN_SECRET required when auth.token is set")
	}

	return nil
}

// ConfigureLoggingFromConfig configures logging based on the Config struct
func ConfigureLoggingFromConfig(config *Config) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(strings.ToLower(config.Log.Level))
	if err != nil {
		logger.Warnf("Invalid log level '%s', using 'info'", config.Log.Level)
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if strings.ToLower(config.Log.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
