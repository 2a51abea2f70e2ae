// Package config loads the YAML runtime configuration for the feed
// handler, recovery client, capture writer, dashboard and metrics.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Feed      FeedConfig      `yaml:"feed"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
	Capture   CaptureConfig   `yaml:"capture"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// FeedConfig selects the frame source: live multicast groups or a
// captured file replay.
type FeedConfig struct {
	Mode      string           `yaml:"mode"` // "multicast" or "replay"
	Multicast []MulticastGroup `yaml:"multicast"`
	Replay    ReplayConfig     `yaml:"replay"`
	Buffer    int              `yaml:"buffer"`
}

type MulticastGroup struct {
	Group     string `yaml:"group"`
	Port      int    `yaml:"port"`
	Interface string `yaml:"interface"`
}

type ReplayConfig struct {
	Path string        `yaml:"path"`
	Pace time.Duration `yaml:"pace"` // delay between frames, 0 = flat out
}

type RecoveryServer struct {
	IP        string `yaml:"ip"`
	Port      int    `yaml:"port"`
	SessionID uint16 `yaml:"session_id"`
	Password  uint64 `yaml:"password"`
}

type RecoveryConfig struct {
	Primary           *RecoveryServer `yaml:"primary"`
	Backup            *RecoveryServer `yaml:"backup"`
	RecvTimeout       time.Duration   `yaml:"recv_timeout"`
	ReconnectDelay    time.Duration   `yaml:"reconnect_delay"`
	RequestsPerSecond float64         `yaml:"requests_per_second"`
	Buffer            int             `yaml:"buffer"`
}

// Enabled reports whether any recovery endpoint is configured.
func (r RecoveryConfig) Enabled() bool {
	return r.Primary != nil || r.Backup != nil
}

type CaptureConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Directory     string        `yaml:"directory"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Depth         int           `yaml:"depth"`
	S3            S3Config      `yaml:"s3"`
}

type S3Config struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type MetricsConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Region    string        `yaml:"region"`
	Namespace string        `yaml:"namespace"`
	Interval  time.Duration `yaml:"interval"`
}

// Load reads and validates the configuration file, filling defaults for
// anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Feed.Mode == "" {
		c.Feed.Mode = "multicast"
	}
	if c.Feed.Buffer <= 0 {
		c.Feed.Buffer = 4096
	}
	if c.Recovery.RecvTimeout <= 0 {
		c.Recovery.RecvTimeout = time.Second
	}
	if c.Recovery.ReconnectDelay <= 0 {
		c.Recovery.ReconnectDelay = 5 * time.Second
	}
	if c.Capture.BatchSize <= 0 {
		c.Capture.BatchSize = 500
	}
	if c.Capture.FlushInterval <= 0 {
		c.Capture.FlushInterval = time.Minute
	}
	if c.Capture.Depth <= 0 {
		c.Capture.Depth = 5
	}
	if c.Capture.Directory == "" {
		c.Capture.Directory = "data"
	}
	if c.Dashboard.Address == "" {
		c.Dashboard.Address = "127.0.0.1:8088"
	}
	if c.Dashboard.RefreshInterval <= 0 {
		c.Dashboard.RefreshInterval = time.Second
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "TaifexFlow"
	}
	if c.Metrics.Interval <= 0 {
		c.Metrics.Interval = time.Minute
	}
}

func (c *Config) Validate() error {
	switch c.Feed.Mode {
	case "multicast":
		if len(c.Feed.Multicast) == 0 {
			return fmt.Errorf("feed mode multicast requires at least one group")
		}
		for i, g := range c.Feed.Multicast {
			if g.Group == "" || g.Port <= 0 || g.Port > 65535 {
				return fmt.Errorf("multicast group %d is incomplete", i)
			}
		}
	case "replay":
		if c.Feed.Replay.Path == "" {
			return fmt.Errorf("feed mode replay requires a path")
		}
	default:
		return fmt.Errorf("unknown feed mode %q", c.Feed.Mode)
	}

	for name, srv := range map[string]*RecoveryServer{
		"primary": c.Recovery.Primary,
		"backup":  c.Recovery.Backup,
	} {
		if srv == nil {
			continue
		}
		if srv.IP == "" || srv.Port <= 0 || srv.Port > 65535 {
			return fmt.Errorf("recovery %s server is incomplete", name)
		}
	}

	if c.Capture.S3.Enabled && c.Capture.S3.Bucket == "" {
		return fmt.Errorf("capture s3 requires a bucket")
	}
	return nil
}
