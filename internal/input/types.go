// Package input provides pointer-lock gated capture of viewer input events.
package input

// EventKind names a viewer event, matching the DOM event type it came from
type EventKind string

const (
	EventMotion  EventKind = "mousemove"
	EventClick   EventKind = "click"
	EventKeyDown EventKind = "keydown"
	EventKeyUp   EventKind = "keyup"
)

// Button is a mouse button in DOM MouseEvent.button numbering
type Button int

const (
	ButtonPrimary   Button = 0
	ButtonAuxiliary Button = 1
	ButtonSecondary Button = 2
)

// Event represents a keyboard or mouse event delivered by the viewer page
type Event struct {
	Kind      EventKind `json:"kind"`
	MovementX int       `json:"mx,omitempty"`
	MovementY int       `json:"my,omitempty"`
	Button    Button    `json:"button,omitempty"`
	Key       string    `json:"key,omitempty"`
	Timestamp int64     `json:"ts"` // Unix ms timestamp

	preventDefault func()
}

// WithPreventDefault returns a copy of the event whose PreventDefault calls fn
func (e Event) WithPreventDefault(fn func()) Event {
	e.preventDefault = fn
	return e
}

// PreventDefault suppresses the platform's default action for the event.
// Events coming from the viewer page were already suppressed by the page
// while locked, so this is a no-op for them.
func (e Event) PreventDefault() {
	if e.preventDefault != nil {
		e.preventDefault()
	}
}

// Handler consumes one event
type Handler func(Event)

// Platform is the pointer-lock surface of the viewer
type Platform interface {
	RequestPointerLock()
	ExitPointerLock()
}

// KeyObserver receives key state changes seen by the capture. Reset
// forgets every held key; it is called when capture stops, since the
// matching key-ups will never arrive.
type KeyObserver interface {
	UpdateState(key string, isDown bool)
	Reset()
}
