package config

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

// Config represents the bridge engine configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Bridge     BridgeConfig     `mapstructure:"bridge"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Security   SecurityConfig   `mapstructure:"security"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
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

// BridgeConfig contains settlement policy knobs.
// These are operator policy, not constants: the stale-transaction cutoff and
// retry budgets in particular get tuned per deployment.
type BridgeConfig struct {
	AdapterTimeout        time.Duration `mapstructure:"adapter_timeout" default:"30s"`
	StalePendingThreshold time.Duration `mapstructure:"stale_pending_threshold" default:"15m"`
	SweepInterval         time.Duration `mapstructure:"sweep_interval" default:"5m"`
	MaxStorageRetries     int           `mapstructure:"max_storage_retries" default:"3"`
	RefundMaxRetries      int           `mapstructure:"refund_max_retries" default:"5"`
	RefundRetryDelay      time.Duration `mapstructure:"refund_retry_delay" default:"2s"`
	HistoryLimit          int           `mapstructure:"history_limit" default:"100"`
}

// ChainConfig contains external EVM chain adapter settings
type ChainConfig struct {
	RPCURL             string `mapstructure:"rpc_url"`
	ChainID            int64  `mapstructure:"chain_id"`
	TokenContract      string `mapstructure:"token_contract"`
	MinterPrivateKey   string `mapstructure:"minter_private_key"`
	ConfirmationBlocks uint64 `mapstructure:"confirmation_blocks"`
	GasLimit           uint64 `mapstructure:"gas_limit"`
}

// SecurityConfig contains security monitor settings
type SecurityConfig struct {
	CriticalTripThreshold int           `mapstructure:"critical_trip_threshold" default:"3"`
	CriticalTripWindow    time.Duration `mapstructure:"critical_trip_window" default:"1h"`
	RepeatedFailureCount  int           `mapstructure:"repeated_failure_count" default:"3"`
	EventRetention        time.Duration `mapstructure:"event_retention" default:"24h"`
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
	if err := defaults.Set(&config); err != nil {
		return nil, fmt.Errorf("failed to apply struct defaults: %w", err)
	}
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
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "semilla_bridge")

	// Chain defaults
	viper.SetDefault("chain.confirmation_blocks", 12)
	viper.SetDefault("chain.gas_limit", 300000)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_port", 9090)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if config.Security.CriticalTripThreshold <= 0 {
		return fmt.Errorf("security.critical_trip_threshold must be positive")
	}
	if config.Security.CriticalTripWindow <= 0 {
		return fmt.Errorf("security.critical_trip_window must be positive")
	}
	if config.Bridge.AdapterTimeout <= 0 {
		return fmt.Errorf("bridge.adapter_timeout must be positive")
	}
	// A zero retry budget would skip the refund entirely.
	if config.Bridge.RefundMaxRetries < 1 {
		return fmt.Errorf("bridge.refund_max_retries must be at least 1")
	}
	if config.Security.EventRetention < 24*time.Hour {
		return fmt.Errorf("security.event_retention must be at least 24h")
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
