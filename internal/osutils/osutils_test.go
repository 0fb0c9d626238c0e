package osutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenPort(t *testing.T) {
	tests := []struct {
		addr     string
		port     int
		loopback bool
	}{
		{"127.0.0.1:8090", 8090, true},
		{"localhost:80", 80, true},
		{"[::1]:9000", 9000, true},
		{"0.0.0.0:8090", 8090, false},
		{":8090", 8090, false},
		{"192.168.1.4:1234", 1234, false},
	}
	for _, tt := range tests {
		port, loopback, err := ListenPort(tt.addr)
		require.NoError(t, err, tt.addr)
		assert.Equal(t, tt.port, port, tt.addr)
		assert.Equal(t, tt.loopback, loopback, tt.addr)
	}

	_, _, err := ListenPort("8090")
	assert.Error(t, err)
	_, _, err = ListenPort("host:http")
	assert.Error(t, err)
}

func TestAllowViewerLoopback(t *testing.T) {
	assert.NoError(t, AllowViewer("127.0.0.1:8090"))
	assert.Error(t, AllowViewer("nonsense"))
}
