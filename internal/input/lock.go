package input

import (
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("pkg", "input")

// CanvasID is the id of the viewer element that takes pointer lock
const CanvasID = "video_space"

// LockController subscribes the capture handlers while the canvas holds
// pointer lock and unsubscribes them otherwise.
type LockController struct {
	canvasID   string
	platform   Platform
	target     *Dispatcher
	capture    *Capture
	subscribed bool
}

// NewLockController creates a controller for the element canvasID
func NewLockController(canvasID string, platform Platform, target *Dispatcher, capture *Capture) *LockController {
	return &LockController{
		canvasID: canvasID,
		platform: platform,
		target:   target,
		capture:  capture,
	}
}

// Activate asks the platform for pointer lock. A denied request produces
// no lock change and leaves the capture inert.
func (c *LockController) Activate() {
	if c.platform != nil {
		c.platform.RequestPointerLock()
	}
}

// Release asks the platform to exit pointer lock
func (c *LockController) Release() {
	if c.platform != nil {
		c.platform.ExitPointerLock()
	}
}

// OnLockChange handles a pointer lock change notification. elementID is
// the id of the element now holding the lock, empty when none does.
func (c *LockController) OnLockChange(elementID string) {
	if elementID == c.canvasID {
		if c.subscribed {
			return
		}
		for kind, h := range c.capture.Handlers() {
			c.target.Subscribe(kind, h)
		}
		c.subscribed = true
		log.Debugf("Lock: Pointer locked to %q, capture enabled", elementID)
		return
	}

	if !c.subscribed {
		return
	}
	for kind := range c.capture.Handlers() {
		c.target.Unsubscribe(kind)
	}
	c.subscribed = false
	c.capture.releaseKeys()
	log.Debug("Lock: Pointer released, capture disabled")
}

// Locked reports whether the capture handlers are subscribed
func (c *LockController) Locked() bool {
	return c.subscribed
}
