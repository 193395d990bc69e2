package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Settings are the runtime knobs shared by the router and host commands.
// Node topology lives in the node files under ConfigDir, not here.
type Settings struct {
	ConfigDir      string `mapstructure:"config_dir"`
	Listen         string `mapstructure:"listen"`
	Port           uint16 `mapstructure:"port"`
	DefaultTTL     uint8  `mapstructure:"default_ttl"`
	RouteCacheSize int    `mapstructure:"route_cache_size"`

	Log     LogSettings     `mapstructure:"log"`
	Metrics MetricsSettings `mapstructure:"metrics"`
	Capture CaptureSettings `mapstructure:"capture"`
}

type LogSettings struct {
	Level string `mapstructure:"level"`
	// File enables a rotating log file next to the console output.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

type CaptureSettings struct {
	// File is a pcap path; empty disables capture.
	File string `mapstructure:"file"`
}

// NewViper returns a viper instance with defaults and VNET_* environment
// overrides applied. Command line flags can be bound to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("config_dir", DefaultConfigDir)
	v.SetDefault("listen", "")
	v.SetDefault("port", DefaultPort)
	v.SetDefault("default_ttl", DefaultTTL)
	v.SetDefault("route_cache_size", DefaultRouteCacheSize)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9618")
	v.SetDefault("metrics.path", DefaultMetricsPath)

	v.SetDefault("capture.file", "")

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	return v
}

// Load reads the optional settings file at path into v and unmarshals the
// result. An empty path uses defaults, environment and bound flags only.
func Load(v *viper.Viper, path string) (*Settings, error) {
	if path != "" {
		filename := filepath.Base(path)
		ext := filepath.Ext(filename)
		v.SetConfigName(strings.TrimSuffix(filename, ext))
		v.SetConfigType(strings.TrimPrefix(ext, "."))
		v.AddConfigPath(filepath.Dir(path))

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.DefaultTTL == 0 {
		s.DefaultTTL = DefaultTTL
	}
	return &s, nil
}

// ListenAddr is the local UDP address a node binds: the explicit listen
// setting, or every interface on the configured port.
func (s *Settings) ListenAddr() string {
	if s.Listen != "" {
		return s.Listen
	}
	return fmt.Sprintf("0.0.0.0:%d", s.Port)
}
