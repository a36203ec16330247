package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete agent configuration.
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Governor configuration
	Governor GovernorConfig `mapstructure:"governor"`

	// Application configuration
	App AppConfig `mapstructure:"app"`
}

// ServerConfig holds the HTTP config-surface server configuration.
type ServerConfig struct {
	// Addr is the listen address of the config API
	Addr string `mapstructure:"addr"`

	// ShutdownTimeout is the timeout for server shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig holds the prometheus endpoint configuration.
type MetricsConfig struct {
	// Addr is the listen address of the metrics endpoint
	Addr string `mapstructure:"addr"`
}

// GovernorConfig holds the initial control-loop tunables. All of them stay
// writable at runtime through the config API.
type GovernorConfig struct {
	// Enabled arms the control loop at startup
	Enabled bool `mapstructure:"enabled"`

	// DelayMS is the tick period in milliseconds
	DelayMS uint32 `mapstructure:"delay_ms"`

	// StartupDelay postpones the very first tick
	StartupDelay time.Duration `mapstructure:"startup_delay"`

	// MinCores is the floor on the online core count
	MinCores uint32 `mapstructure:"min_cores"`

	// MaxCores is the ceiling on the online core count; 0 means all present
	MaxCores uint32 `mapstructure:"max_cores"`

	// UpThresholdPct is the saturation threshold in percent of the max rate
	UpThresholdPct uint32 `mapstructure:"up_threshold_pct"`

	// DownThresholdPct is the idle threshold in percent of the max rate
	DownThresholdPct uint32 `mapstructure:"down_threshold_pct"`

	// CycleUp is the consecutive saturated ticks required before scaling up
	CycleUp uint32 `mapstructure:"cycle_up"`

	// CycleDown is the consecutive idle ticks required before scaling down
	CycleDown uint32 `mapstructure:"cycle_down"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	// LogLevel is the zap log level
	LogLevel string `mapstructure:"log_level"`
}

// Load loads configuration from files and environment.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureViper(v)

	if err := readConfigs(v); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configs: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func configureViper(v *viper.Viper) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/autosmp/")

	v.AutomaticEnv()
	v.SetEnvPrefix("AUTOSMP")
}

func readConfigs(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// defaults and environment variables still apply without a file
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read configs file: %w", err)
		}
	}
	return nil
}

// validateConfig rejects malformed tunables at the boundary so the control
// loop never sees them.
func validateConfig(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}

	g := &cfg.Governor
	if g.DelayMS == 0 {
		return fmt.Errorf("governor.delay_ms must be greater than 0")
	}
	if g.MinCores < 1 {
		return fmt.Errorf("governor.min_cores must be at least 1")
	}
	if g.MaxCores != 0 && g.MaxCores < g.MinCores {
		return fmt.Errorf("governor.max_cores must be at least governor.min_cores")
	}
	if g.UpThresholdPct > 100 {
		return fmt.Errorf("governor.up_threshold_pct must be between 0 and 100")
	}
	if g.DownThresholdPct > 100 {
		return fmt.Errorf("governor.down_threshold_pct must be between 0 and 100")
	}
	if g.DownThresholdPct >= g.UpThresholdPct {
		return fmt.Errorf("governor.down_threshold_pct must be below governor.up_threshold_pct")
	}
	if g.CycleUp < 1 {
		return fmt.Errorf("governor.cycle_up must be at least 1")
	}
	if g.CycleDown < 1 {
		return fmt.Errorf("governor.cycle_down must be at least 1")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Metrics defaults
	v.SetDefault("metrics.addr", ":10001")

	// Governor defaults
	v.SetDefault("governor.enabled", true)
	v.SetDefault("governor.delay_ms", 100)
	v.SetDefault("governor.startup_delay", 20*time.Second)
	v.SetDefault("governor.min_cores", 1)
	v.SetDefault("governor.max_cores", 0)
	v.SetDefault("governor.up_threshold_pct", 90)
	v.SetDefault("governor.down_threshold_pct", 60)
	v.SetDefault("governor.cycle_up", 1)
	v.SetDefault("governor.cycle_down", 1)

	// App defaults
	v.SetDefault("app.log_level", "info")
}
