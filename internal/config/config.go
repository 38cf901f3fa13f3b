// ABOUTME: Configuration for the coordinator and participant commands
// ABOUTME: Defaults, viper loading from flags/env/file, and validation
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harperreed/berkeley-go/internal/logging"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. BERKELEY_CYCLE_PERIOD
const EnvPrefix = "BERKELEY"

// LoggingConfig controls log output
type LoggingConfig struct {
	// File is the JSON log file; empty disables file logging
	File string `mapstructure:"file"`
	// Debug enables verbose (V(1)) logs
	Debug bool `mapstructure:"debug"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// MaxAgeDays is how long rotated files are kept (default: 28)
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// Logging converts to a logging.Config writing to console (nil for file only)
func (l LoggingConfig) Logging(console io.Writer) logging.Config {
	return logging.Config{
		Console:    console,
		File:       l.File,
		Debug:      l.Debug,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
	}
}

// CoordinatorConfig configures the coordinator command
type CoordinatorConfig struct {
	Port                 int           `mapstructure:"port"`
	WSPort               int           `mapstructure:"ws_port"` // 0 disables the WebSocket listener
	Name                 string        `mapstructure:"name"`
	CyclePeriod          time.Duration `mapstructure:"cycle_period"`
	SendTimeout          time.Duration `mapstructure:"send_timeout"`
	BroadcastConcurrency int           `mapstructure:"broadcast_concurrency"`
	MDNS                 bool          `mapstructure:"mdns"`
	MetricsAddr          string        `mapstructure:"metrics_addr"`
	TUI                  bool          `mapstructure:"tui"`
	Logging              LoggingConfig `mapstructure:"logging"`
}

// ParticipantConfig configures the participant command
type ParticipantConfig struct {
	// Coordinator is host:port; empty means discover via mDNS
	Coordinator     string        `mapstructure:"coordinator"`
	Transport       string        `mapstructure:"transport"`
	Name            string        `mapstructure:"name"`
	ReportPeriod    time.Duration `mapstructure:"report_period"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	CyclePeriod     time.Duration `mapstructure:"cycle_period"`
	DiscoverTimeout time.Duration `mapstructure:"discover_timeout"`
	TUI             bool          `mapstructure:"tui"`
	Logging         LoggingConfig `mapstructure:"logging"`
}

func defaultLogging(file string) LoggingConfig {
	return LoggingConfig{
		File:       file,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// DefaultCoordinator returns the coordinator defaults
func DefaultCoordinator() *CoordinatorConfig {
	return &CoordinatorConfig{
		Port:                 8080,
		CyclePeriod:          10 * time.Second,
		SendTimeout:          2 * time.Second,
		BroadcastConcurrency: 8,
		Logging:              defaultLogging("berkeley-coordinator.log"),
	}
}

// DefaultParticipant returns the participant defaults
func DefaultParticipant() *ParticipantConfig {
	return &ParticipantConfig{
		Transport:       "tcp",
		ReportPeriod:    5 * time.Second,
		ConnectTimeout:  5 * time.Second,
		CyclePeriod:     10 * time.Second,
		DiscoverTimeout: 10 * time.Second,
		Logging:         defaultLogging("berkeley-participant.log"),
	}
}

// New returns a viper instance reading BERKELEY_* environment variables and,
// if configFile is set, that file
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	}
	return v, nil
}

func setLoggingDefaults(v *viper.Viper, l LoggingConfig) {
	v.SetDefault("logging.file", l.File)
	v.SetDefault("logging.debug", l.Debug)
	v.SetDefault("logging.max_size_mb", l.MaxSizeMB)
	v.SetDefault("logging.max_backups", l.MaxBackups)
	v.SetDefault("logging.max_age_days", l.MaxAgeDays)
}

// SetCoordinatorDefaults registers coordinator defaults with v
func SetCoordinatorDefaults(v *viper.Viper) {
	d := DefaultCoordinator()
	v.SetDefault("port", d.Port)
	v.SetDefault("ws_port", d.WSPort)
	v.SetDefault("name", d.Name)
	v.SetDefault("cycle_period", d.CyclePeriod)
	v.SetDefault("send_timeout", d.SendTimeout)
	v.SetDefault("broadcast_concurrency", d.BroadcastConcurrency)
	v.SetDefault("mdns", d.MDNS)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("tui", d.TUI)
	setLoggingDefaults(v, d.Logging)
}

// SetParticipantDefaults registers participant defaults with v
func SetParticipantDefaults(v *viper.Viper) {
	d := DefaultParticipant()
	v.SetDefault("coordinator", d.Coordinator)
	v.SetDefault("transport", d.Transport)
	v.SetDefault("name", d.Name)
	v.SetDefault("report_period", d.ReportPeriod)
	v.SetDefault("connect_timeout", d.ConnectTimeout)
	v.SetDefault("cycle_period", d.CyclePeriod)
	v.SetDefault("discover_timeout", d.DiscoverTimeout)
	v.SetDefault("tui", d.TUI)
	setLoggingDefaults(v, d.Logging)
}

// LoadCoordinator reads the coordinator configuration from v and validates it
func LoadCoordinator(v *viper.Viper) (*CoordinatorConfig, error) {
	var cfg CoordinatorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// LoadParticipant reads the participant configuration from v and validates it
func LoadParticipant(v *viper.Viper) (*ParticipantConfig, error) {
	var cfg ParticipantConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// ListenAddr is the TCP listen address for Port
func (c *CoordinatorConfig) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// WebSocketAddr is the WebSocket listen address, or "" when disabled
func (c *CoordinatorConfig) WebSocketAddr() string {
	if c.WSPort == 0 {
		return ""
	}
	return fmt.Sprintf(":%d", c.WSPort)
}
