//go:build !windows

package autostart

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

var launchAgent = template.Must(template.New("plist").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Entry.Executable}}</string>{{range .Entry.Args}}
        <string>{{.}}</string>{{end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`))

var desktopEntry = template.Must(template.New("desktop").Parse(`[Desktop Entry]
Type=Application
Name=webkvm
Comment=Remote KVM client
Exec={{.Entry.CommandLine}}
X-GNOME-Autostart-enabled=true
`))

// itemPath returns the login item file and the template that renders it
func itemPath() (string, *template.Template, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", nil, errors.Wrap(err, "locate home directory")
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "LaunchAgents", Label+".plist"), launchAgent, nil
	}
	return filepath.Join(home, ".config", "autostart", "webkvm.desktop"), desktopEntry, nil
}

func render(tmpl *template.Template, e Entry) ([]byte, error) {
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, struct {
		Label string
		Entry Entry
	}{Label, e})
	return buf.Bytes(), err
}

func enable(e Entry) error {
	path, tmpl, err := itemPath()
	if err != nil {
		return err
	}
	data, err := render(tmpl, e)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, data, 0644), "write %s", path)
}

func disable() error {
	path, _, err := itemPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func isEnabled() bool {
	path, _, err := itemPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
