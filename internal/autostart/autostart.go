// Package autostart starts the client at login.
package autostart

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("pkg", "autostart")

// Label identifies the login item on every platform
const Label = "com.webkvm.client"

// Entry is the command started at login
type Entry struct {
	Executable string
	Args       []string
}

// DefaultEntry starts the running executable without opening a browser
func DefaultEntry() (Entry, error) {
	exe, err := os.Executable()
	if err != nil {
		return Entry{}, errors.Wrap(err, "failed to get executable path")
	}
	return Entry{Executable: exe, Args: []string{"--no-browser"}}, nil
}

// CommandLine quotes the entry for shells and the Windows Run key
func (e Entry) CommandLine() string {
	parts := make([]string, 0, len(e.Args)+1)
	for _, p := range append([]string{e.Executable}, e.Args...) {
		if strings.ContainsAny(p, " \t\"") {
			p = `"` + strings.ReplaceAll(p, `"`, `\"`) + `"`
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

// Enable installs the login item
func Enable(e Entry) error {
	if err := enable(e); err != nil {
		return err
	}
	log.Infof("Autostart: Enabled %s", e.CommandLine())
	return nil
}

// Disable removes the login item
func Disable() error {
	if err := disable(); err != nil {
		return err
	}
	log.Info("Autostart: Disabled")
	return nil
}

// IsEnabled checks if the login item is installed
func IsEnabled() bool {
	return isEnabled()
}
