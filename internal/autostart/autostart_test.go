//go:build !windows

package autostart

import (
	"os"
	"runtime"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandLine(t *testing.T) {
	e := Entry{Executable: "/opt/web kvm/webkvm", Args: []string{"--no-browser", "--device", "http://10.0.0.5/"}}
	assert.Equal(t, `"/opt/web kvm/webkvm" --no-browser --device http://10.0.0.5/`, e.CommandLine())
}

func TestEnableDisable(t *testing.T) {
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	t.Setenv("HOME", t.TempDir())

	e := Entry{Executable: "/usr/local/bin/webkvm", Args: []string{"--no-browser"}}
	assert.False(t, IsEnabled())
	require.NoError(t, Enable(e))
	assert.True(t, IsEnabled())

	path, _, err := itemPath()
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	if runtime.GOOS == "darwin" {
		assert.Contains(t, string(data), "<string>--no-browser</string>")
	} else {
		assert.Contains(t, string(data), "Exec=/usr/local/bin/webkvm --no-browser")
	}

	require.NoError(t, Disable())
	assert.False(t, IsEnabled())
	require.NoError(t, Disable(), "disabling twice is fine")
}
