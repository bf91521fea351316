package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the API server configuration
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Iris           IrisConfig           `mapstructure:"iris"`
	Chains         ChainsConfig         `mapstructure:"chains"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Poller         PollerConfig         `mapstructure:"poller"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Wallet         WalletConfig         `mapstructure:"wallet"`
	Alerts         AlertsConfig         `mapstructure:"alerts"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Shutdown       ShutdownConfig       `mapstructure:"shutdown"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// IrisConfig contains CCTP attestation service settings
type IrisConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ChainsConfig points at the source chain registry
type ChainsConfig struct {
	// RegistryFile optionally overrides the built-in testnet registry.
	RegistryFile string `mapstructure:"registry_file"`
	// EnsRPCURL is the endpoint used for best-effort donor name resolution.
	EnsRPCURL string `mapstructure:"ens_rpc_url"`
}

// ReconciliationConfig contains batch sweeper settings
type ReconciliationConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	SweepLimit int           `mapstructure:"sweep_limit"`
}

// PollerConfig contains per-transaction poller settings
type PollerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// AuthConfig contains streamer token verification settings
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// WalletConfig contains wallet-as-a-service settings
type WalletConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKeyEnv      string        `mapstructure:"api_key_env"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertsConfig contains alert stream settings
type AlertsConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	SubscriberBuffer  int           `mapstructure:"subscriber_buffer"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	// Write timeout stays disabled: the alert stream holds its response open
	// for the lifetime of the overlay connection.
	viper.SetDefault("server.write_timeout", "0")
	viper.SetDefault("server.idle_timeout", "60s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "donations")

	// Iris defaults (Circle sandbox)
	viper.SetDefault("iris.base_url", "https://iris-api-sandbox.circle.com")
	viper.SetDefault("iris.request_timeout", "15s")

	// Reconciliation defaults
	viper.SetDefault("reconciliation.interval", "5m")
	viper.SetDefault("reconciliation.sweep_limit", 20)

	// Poller defaults
	viper.SetDefault("poller.interval", "5s")
	viper.SetDefault("poller.max_attempts", 120)

	// Wallet defaults
	viper.SetDefault("wallet.base_url", "https://api.circle.com")
	viper.SetDefault("wallet.api_key_env", "CIRCLE_API_KEY")
	viper.SetDefault("wallet.request_timeout", "30s")

	// Alerts defaults
	viper.SetDefault("alerts.heartbeat_interval", "30s")
	viper.SetDefault("alerts.subscriber_buffer", 16)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_port", 9090)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")

	// Shutdown defaults
	viper.SetDefault("shutdown.timeout", "30s")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Iris.BaseURL == "" {
		return fmt.Errorf("iris.base_url is required")
	}
	if config.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if config.Poller.MaxAttempts <= 0 {
		return fmt.Errorf("poller.max_attempts must be positive")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
