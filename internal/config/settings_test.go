package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, DefaultConfigDir, s.ConfigDir)
	assert.Equal(t, uint16(DefaultPort), s.Port)
	assert.Equal(t, uint8(DefaultTTL), s.DefaultTTL)
	assert.Equal(t, DefaultRouteCacheSize, s.RouteCacheSize)
	assert.Equal(t, "info", s.Log.Level)
	assert.False(t, s.Metrics.Enabled)
	assert.Equal(t, "0.0.0.0:1618", s.ListenAddr())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vnet.yaml")
	yaml := `
config_dir: /etc/vnet
port: 2000
log:
  level: debug
  file: /tmp/router.log
metrics:
  enabled: true
  listen: 127.0.0.1:9000
capture:
  file: /tmp/router.pcap
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("VNET_DEFAULT_TTL", "32")
	t.Setenv("VNET_LOG_LEVEL", "warn")

	s, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/vnet", s.ConfigDir)
	assert.Equal(t, uint16(2000), s.Port)
	assert.Equal(t, uint8(32), s.DefaultTTL)
	assert.Equal(t, "warn", s.Log.Level)
	assert.Equal(t, "/tmp/router.log", s.Log.File)
	assert.True(t, s.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9000", s.Metrics.Listen)
	assert.Equal(t, DefaultMetricsPath, s.Metrics.Path)
	assert.Equal(t, "/tmp/router.pcap", s.Capture.File)
	assert.Equal(t, "0.0.0.0:2000", s.ListenAddr())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestBindFlagsOverride(t *testing.T) {
	v := NewViper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(fs, v))
	require.NoError(t, fs.Parse([]string{"--config-dir", "nodes", "--log-level", "debug"}))
	t.Setenv("VNET_CONFIG_DIR", "from-env")

	s, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "nodes", s.ConfigDir)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, uint16(DefaultPort), s.Port)
}
