// Package tray provides the system tray menu using getlantern/systray.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("pkg", "tray")

// Actions are the menu callbacks. Nil entries are left out of the menu.
type Actions struct {
	OpenViewer func()
	Reload     func()
	Quit       func()
}

// Tray manages the system tray icon and menu
type Tray struct {
	tooltip string
	actions Actions

	mu     sync.Mutex
	status *systray.MenuItem
	text   string
	quitCh chan struct{}
}

// New creates a tray; nothing is shown until Run
func New(tooltip string, actions Actions) *Tray {
	return &Tray{
		tooltip: tooltip,
		actions: actions,
		quitCh:  make(chan struct{}),
	}
}

// Run shows the tray and blocks until Stop. It must be called from the
// main goroutine on macOS.
func (t *Tray) Run() {
	systray.Run(t.setupMenu, func() { close(t.quitCh) })
}

// Stop removes the tray and makes Run return
func (t *Tray) Stop() {
	systray.Quit()
}

// SetStatus updates the disabled status line at the top of the menu
func (t *Tray) SetStatus(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text = text
	if t.status != nil {
		t.status.SetTitle(text)
	}
}

func (t *Tray) setupMenu() {
	systray.SetTitle("webkvm")
	systray.SetTooltip(t.tooltip)
	systray.SetIcon(getIcon())

	t.mu.Lock()
	t.status = systray.AddMenuItem(t.text, "")
	t.status.Disable()
	if t.text == "" {
		t.status.SetTitle("starting")
	}
	t.mu.Unlock()
	systray.AddSeparator()

	t.addItem("Open viewer", t.actions.OpenViewer)
	t.addItem("Reload session", t.actions.Reload)
	systray.AddSeparator()
	t.addItem("Quit", t.actions.Quit)
	log.Debug("Tray: Menu ready")
}

func (t *Tray) addItem(title string, callback func()) {
	if callback == nil {
		return
	}
	item := systray.AddMenuItem(title, "")
	go func() {
		for {
			select {
			case <-item.ClickedCh:
				callback()
			case <-t.quitCh:
				return
			}
		}
	}()
}

// getIcon returns a 16x16 32-bit ICO: a dark screen with a light border
func getIcon() []byte {
	const (
		size      = 16
		headerLen = 6 + 16
		dibLen    = 40
		pixelLen  = size * size * 4
		maskLen   = size * 4
	)
	icon := make([]byte, headerLen+dibLen+pixelLen+maskLen)

	// ICO header and directory entry
	copy(icon[0:6], []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00})
	copy(icon[6:22], []byte{
		size, size, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00,
		0x68, 0x04, 0x00, 0x00, // dib + pixels + mask (1128)
		headerLen, 0x00, 0x00, 0x00, // offset
	})
	// BITMAPINFOHEADER, height doubled for the mask
	copy(icon[22:62], []byte{
		dibLen, 0x00, 0x00, 0x00,
		size, 0x00, 0x00, 0x00,
		size * 2, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x20, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x04, 0x00, 0x00,
	})

	// BGRA pixels, bottom-up
	px := icon[headerLen+dibLen:]
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := (y*size + x) * 4
			border := x <= 1 || x >= size-2 || y <= 3 || y >= size-2
			if border {
				px[i], px[i+1], px[i+2] = 0xe0, 0xe0, 0xe0
			} else {
				px[i], px[i+1], px[i+2] = 0x40, 0x30, 0x20
			}
			px[i+3] = 0xff
		}
	}
	return icon
}
