package input

// Dispatcher routes events to the handler subscribed for their kind.
// At most one handler is installed per kind.
type Dispatcher struct {
	handlers map[EventKind]Handler
}

// NewDispatcher creates a dispatcher with no subscriptions
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[EventKind]Handler)}
}

// Subscribe installs h for kind. It returns false and keeps the existing
// handler if kind is already subscribed.
func (d *Dispatcher) Subscribe(kind EventKind, h Handler) bool {
	if _, ok := d.handlers[kind]; ok {
		return false
	}
	d.handlers[kind] = h
	return true
}

// Unsubscribe removes the handler for kind, if any
func (d *Dispatcher) Unsubscribe(kind EventKind) {
	delete(d.handlers, kind)
}

func (d *Dispatcher) subscribed(kind EventKind) bool {
	_, ok := d.handlers[kind]
	return ok
}

// Dispatch delivers ev and reports whether a handler consumed it
func (d *Dispatcher) Dispatch(ev Event) bool {
	h, ok := d.handlers[ev.Kind]
	if !ok {
		return false
	}
	h(ev)
	return true
}

// Capture turns viewer events into accumulated mouse state
type Capture struct {
	acc  *Accumulator
	keys KeyObserver
}

// NewCapture creates a capture feeding acc
func NewCapture(acc *Accumulator) *Capture {
	return &Capture{acc: acc}
}

// SetKeyObserver registers an observer for key state (local hotkeys)
func (c *Capture) SetKeyObserver(o KeyObserver) {
	c.keys = o
}

// Handlers returns the four handlers installed while the pointer is locked
func (c *Capture) Handlers() map[EventKind]Handler {
	return map[EventKind]Handler{
		EventMotion:  c.onMotion,
		EventClick:   c.onClick,
		EventKeyDown: c.onKeyDown,
		EventKeyUp:   c.onKeyUp,
	}
}

func (c *Capture) releaseKeys() {
	if c.keys != nil {
		c.keys.Reset()
	}
}

func (c *Capture) onMotion(ev Event) {
	c.acc.Move(ev.MovementX, ev.MovementY)
}

func (c *Capture) onClick(ev Event) {
	c.acc.Click(ev.Button)
}

// Keys are swallowed but never sent to the device.
func (c *Capture) onKeyDown(ev Event) {
	ev.PreventDefault()
	if c.keys != nil && ev.Key != "" {
		c.keys.UpdateState(ev.Key, true)
	}
}

func (c *Capture) onKeyUp(ev Event) {
	ev.PreventDefault()
	if c.keys != nil && ev.Key != "" {
		c.keys.UpdateState(ev.Key, false)
	}
}
