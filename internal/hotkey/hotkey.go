// Package hotkey matches key combinations seen by the viewer capture
// against locally registered shortcuts.
package hotkey

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("pkg", "hotkey")

// aliases maps config spellings to DOM KeyboardEvent.key names (upper case)
var aliases = map[string]string{
	"CTRL":   "CONTROL",
	"CMD":    "META",
	"WIN":    "META",
	"OPTION": "ALT",
	"ESC":    "ESCAPE",
	"DEL":    "DELETE",
	"SPACE":  " ",
	"RETURN": "ENTER",
	"ALTGR":  "ALTGRAPH",
	"CAPS":   "CAPSLOCK",
	"PGUP":   "PAGEUP",
	"PGDN":   "PAGEDOWN",
}

// Manager handles hotkey registration and matching
type Manager struct {
	mu           sync.RWMutex
	hotkeys      []*registeredHotkey
	currentState map[string]bool // keys currently held
}

type registeredHotkey struct {
	parts    []string // e.g. ["CONTROL", "ALT", "R"]
	original string
	callback func()
}

// NewManager creates a new hotkey manager
func NewManager() *Manager {
	return &Manager{
		currentState: make(map[string]bool),
	}
}

func normalize(key string) string {
	if key == " " {
		return key
	}
	k := strings.ToUpper(strings.TrimSpace(key))
	if a, ok := aliases[k]; ok {
		return a
	}
	return k
}

// Register registers a hotkey string (e.g. "Ctrl+Alt+R") and a callback.
// An empty string registers nothing.
func (m *Manager) Register(hotkeyStr string, callback func()) (int, error) {
	if hotkeyStr == "" {
		return 0, nil
	}

	parts := strings.Split(hotkeyStr, "+")
	for i, p := range parts {
		parts[i] = normalize(p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = append(m.hotkeys, &registeredHotkey{
		parts:    parts,
		original: hotkeyStr,
		callback: callback,
	})
	return len(m.hotkeys) - 1, nil
}

// Clear removes all registered hotkeys and forgets held keys
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = nil
	m.currentState = make(map[string]bool)
}

// Reset forgets held keys and keeps the registrations
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentState = make(map[string]bool)
}

// UpdateState records a key press or release and fires every hotkey the
// press completes. Auto-repeat presses of a held key fire nothing.
func (m *Manager) UpdateState(key string, isDown bool) {
	key = normalize(key)

	m.mu.Lock()
	if isDown {
		if m.currentState[key] {
			m.mu.Unlock()
			return
		}
		m.currentState[key] = true
	} else {
		delete(m.currentState, key)
	}
	m.mu.Unlock()

	if isDown {
		m.checkMatches(key)
	}
}

func (m *Manager) checkMatches(pressed string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, hk := range m.hotkeys {
		match, involved := true, false
		for _, part := range hk.parts {
			if !m.currentState[part] {
				match = false
				break
			}
			if part == pressed {
				involved = true
			}
		}

		if match && involved {
			log.Infof("Hotkey triggered: %s", hk.original)
			go hk.callback()
		}
	}
}
