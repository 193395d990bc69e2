package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtual-router/internal/config"
)

func TestLevelFallback(t *testing.T) {
	l := NewWithOutput(config.LogSettings{Level: "loud"}, &bytes.Buffer{})
	assert.Equal(t, log.InfoLevel, l.GetLevel())

	l = NewWithOutput(config.LogSettings{Level: "debug"}, &bytes.Buffer{})
	assert.Equal(t, log.DebugLevel, l.GetLevel())
}

func TestComponentFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput(config.LogSettings{Level: "info"}, &buf)
	hook := test.NewLocal(l.Logger)

	l.Component("router").Info("up")

	require.Len(t, hook.Entries, 1)
	e := hook.LastEntry()
	assert.Equal(t, "router", e.Data["prefix"])
	assert.Equal(t, l.Instance(), e.Data["instance"])
	assert.Contains(t, buf.String(), "router")
	assert.Contains(t, buf.String(), "up")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	l := NewWithOutput(config.LogSettings{Level: "info", File: path, MaxSizeMB: 1}, &bytes.Buffer{})
	l.Component("host").Warn("gateway silent")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "gateway silent")
}
