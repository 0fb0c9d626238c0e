// Package config provides configuration management for the KVM client.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary
	log  = logrus.WithField("pkg", "config")
)

// ErrInvalid is returned by Validate for unusable settings
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	// Device describes the KVM board's CGI backend
	Device DeviceConfig `json:"device"`

	// Poll contains the poller timings
	Poll PollConfig `json:"poll"`

	// Viewer configures the local viewer page
	Viewer ViewerConfig `json:"viewer"`

	// Hotkeys contains local shortcuts matched against captured keys
	Hotkeys HotkeyConfig `json:"hotkeys"`

	// General contains general application settings
	General GeneralConfig `json:"general"`
}

// DeviceConfig describes the device endpoints
type DeviceConfig struct {
	// BaseURL is the URL the cgi-bin paths are resolved against
	BaseURL string `json:"base_url"`

	// MouseTimeout bounds one uplink request
	MouseTimeout Duration `json:"mouse_timeout"`

	// ImageTimeout bounds one channel image request
	ImageTimeout Duration `json:"image_timeout"`

	// ImageExt is sent as the ext query parameter of image requests
	ImageExt string `json:"image_ext"`
}

// PollConfig contains the fixed poller intervals
type PollConfig struct {
	MouseInterval Duration `json:"mouse_interval"`
	VideoInterval Duration `json:"video_interval"`

	// StallTimeout is how long a video cycle may take before a reload
	StallTimeout Duration `json:"stall_timeout"`
}

// ViewerConfig configures the viewer HTTP server
type ViewerConfig struct {
	// Listen is the viewer address (e.g. "127.0.0.1:8090")
	Listen string `json:"listen"`

	// OpenBrowser opens the viewer page on start
	OpenBrowser bool `json:"open_browser"`
}

// HotkeyConfig contains local shortcuts
type HotkeyConfig struct {
	// Release exits pointer lock (e.g. "Ctrl+Alt+Q")
	Release string `json:"release,omitempty"`

	// Reload rebuilds the session (e.g. "Ctrl+Alt+R")
	Reload string `json:"reload,omitempty"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// LogLevel is a logrus level name
	LogLevel string `json:"log_level"`

	// Tray shows the system tray icon
	Tray bool `json:"tray"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			BaseURL:      "http://192.168.1.10/",
			MouseTimeout: Duration(time.Second),
			ImageTimeout: Duration(time.Second),
			ImageExt:     ".jpeg",
		},
		Poll: PollConfig{
			MouseInterval: Duration(time.Millisecond),
			VideoInterval: Duration(time.Millisecond),
			StallTimeout:  Duration(1000 * time.Millisecond),
		},
		Viewer: ViewerConfig{
			Listen:      "127.0.0.1:8090",
			OpenBrowser: true,
		},
		Hotkeys: HotkeyConfig{
			Release: "Ctrl+Alt+Q",
			Reload:  "Ctrl+Alt+R",
		},
		General: GeneralConfig{
			LogLevel: "info",
			Tray:     true,
		},
	}
}

// Validate checks that the configuration can drive a session
func (c *Config) Validate() error {
	u, err := url.Parse(c.Device.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Wrapf(ErrInvalid, "device.base_url %q must be an absolute URL", c.Device.BaseURL)
	}
	if c.Poll.MouseInterval <= 0 || c.Poll.VideoInterval <= 0 {
		return errors.Wrap(ErrInvalid, "poll intervals must be positive")
	}
	if c.Poll.StallTimeout <= 0 {
		return errors.Wrap(ErrInvalid, "poll.stall_timeout must be positive")
	}
	if c.Viewer.Listen == "" {
		return errors.Wrap(ErrInvalid, "viewer.listen is empty")
	}
	if _, err := logrus.ParseLevel(c.General.LogLevel); err != nil {
		return errors.Wrapf(ErrInvalid, "general.log_level: %v", err)
	}
	return nil
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()
}

// NewManager creates a manager for the default config file location
func NewManager() (*Manager, error) {
	configPath, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(configPath), nil
}

// NewManagerAt creates a manager for the config file at path
func NewManagerAt(path string) *Manager {
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}
}

// DefaultPath returns ~/.config/webkvm/config.json
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "locate home directory")
	}
	return filepath.Join(home, ".config", "webkvm", "config.json"), nil
}

// Path returns the config file path
func (m *Manager) Path() string {
	return m.configPath
}

// Load reads the configuration from disk. A missing file keeps defaults.
func (m *Manager) Load() error {
	m.mu.Lock()
	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		return errors.Wrapf(err, "read %s", m.configPath)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		m.mu.Unlock()
		return errors.Wrapf(err, "parse %s", m.configPath)
	}
	m.config = cfg
	onChanged := m.onChanged
	m.mu.Unlock()

	if onChanged != nil {
		onChanged()
	}
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}

	log.Infof("Config: Saving configuration to %s (%d bytes)", m.configPath, len(data))
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.config
}

// Set updates the configuration
func (m *Manager) Set(config Config) {
	m.mu.Lock()
	m.config = &config
	onChanged := m.onChanged
	m.mu.Unlock()
	if onChanged != nil {
		onChanged()
	}
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}
