package main

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webkvm/internal/config"
	"webkvm/internal/session"
)

func TestViewerURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"127.0.0.1:8090", "http://127.0.0.1:8090/"},
		{"0.0.0.0:8090", "http://127.0.0.1:8090/"},
		{"[::]:9000", "http://127.0.0.1:9000/"},
		{"192.168.1.4:80", "http://192.168.1.4:80/"},
	}
	for _, tt := range tests {
		addr, err := net.ResolveTCPAddr("tcp", tt.addr)
		assert.NoError(t, err)
		assert.Equal(t, tt.want, viewerURL(addr), tt.addr)
	}
}

func TestStatusLine(t *testing.T) {
	assert.Equal(t, "reloading", statusLine(session.Status{}))
	line := statusLine(session.Status{
		Session:        "abc",
		SessionStarted: time.Now().Add(-2 * time.Minute),
		Locked:         true,
		Cycles:         12,
		BytesReceived:  1500,
	})
	assert.Equal(t, "locked, 12 frames, 1.5 kB, up 2 minutes", line)
}

func TestConfigSavePersistsFlags(t *testing.T) {
	level := logrus.GetLevel()
	t.Cleanup(func() {
		logrus.SetLevel(level)
		flags = rootFlags{}
		rootCmd.SetArgs(nil)
	})

	path := filepath.Join(t.TempDir(), "webkvm", "config.json")
	rootCmd.SetArgs([]string{
		"config", "save",
		"--config", path,
		"--device", "http://192.168.1.10/",
		"--log-level", "debug",
		"--listen", "0.0.0.0:9000",
		"--no-tray",
	})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel(), "log level follows the config")

	m := config.NewManagerAt(path)
	require.NoError(t, m.Load())
	cfg := m.Get()
	assert.Equal(t, "http://192.168.1.10/", cfg.Device.BaseURL)
	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, "0.0.0.0:9000", cfg.Viewer.Listen)
	assert.False(t, cfg.General.Tray)
	assert.True(t, cfg.Viewer.OpenBrowser)
}

func TestApplyLogLevel(t *testing.T) {
	level := logrus.GetLevel()
	t.Cleanup(func() { logrus.SetLevel(level) })

	applyLogLevel("warn")
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	applyLogLevel("loud")
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel(), "a bad level keeps the current one")
}
