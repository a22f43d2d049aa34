// Package config holds the driver configuration and the per-side bound
// device state persisted between runs. When addresses are present at
// startup, discovery is skipped entirely.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// SideConfig is the persisted identity of one earpiece.
type SideConfig struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
	Paired  bool   `yaml:"paired"`
}

// Bound reports whether an address was persisted for this side.
func (s SideConfig) Bound() bool {
	return s.Address != ""
}

// Config holds application configuration.
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	// Connection behavior.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" default:"8s"`
	ReconnectAttempts int           `yaml:"reconnect_attempts" default:"3"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay" default:"1s"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" default:"20s"`
	ScanTimeout       time.Duration `yaml:"scan_timeout" default:"15s"`

	// Discovery name patterns distinguishing the two sides.
	LeftNamePattern  string `yaml:"left_name_pattern" default:"_L_"`
	RightNamePattern string `yaml:"right_name_pattern" default:"_R_"`

	// Bound devices (auto-populated by discovery; clear to force a rescan).
	Left  SideConfig `yaml:"left"`
	Right SideConfig `yaml:"right"`

	path string `yaml:"-"`
}

// DefaultConfig returns configuration with default values applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "g1ctl.yaml"
	}
	return filepath.Join(home, ".config", "g1ctl", "config.yaml")
}

// Load reads configuration from path, creating a defaulted file when none
// exists. An empty path selects DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if saveErr := cfg.Save(); saveErr != nil {
			return nil, saveErr
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration back to its load path.
func (c *Config) Save() error {
	if c.path == "" {
		c.path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write config %q: %w", c.path, err)
	}
	return nil
}

// ClearBinding forgets both bound devices, forcing rediscovery and
// re-pairing on the next connect.
func (c *Config) ClearBinding() {
	c.Left = SideConfig{}
	c.Right = SideConfig{}
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
