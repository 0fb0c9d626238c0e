package input

// MouseDelta is the relative motion and click state gathered between two
// uplink flushes.
type MouseDelta struct {
	DX           int
	DY           int
	LeftClicked  bool
	RightClicked bool
}

// IsZero reports whether there is nothing to send
func (d MouseDelta) IsZero() bool {
	return d.DX == 0 && d.DY == 0 && !d.LeftClicked && !d.RightClicked
}

// Move returns d with the displacement added
func (d MouseDelta) Move(dx, dy int) MouseDelta {
	d.DX += dx
	d.DY += dy
	return d
}

// Click returns d with the flag for button set. The primary button maps to
// the left flag, every other button to the right flag.
func (d MouseDelta) Click(b Button) MouseDelta {
	if b == ButtonPrimary {
		d.LeftClicked = true
	} else {
		d.RightClicked = true
	}
	return d
}

// Accumulator owns the current MouseDelta of a session.
// It is not safe for concurrent use; the session loop is its only writer.
type Accumulator struct {
	cur MouseDelta
}

// Move adds a displacement
func (a *Accumulator) Move(dx, dy int) {
	a.cur = a.cur.Move(dx, dy)
}

// Click records a click of button b
func (a *Accumulator) Click(b Button) {
	a.cur = a.cur.Click(b)
}

// Peek returns the value the next Flush would send, without resetting it.
// It is for inspection only; the uplink always takes the value via Flush.
func (a *Accumulator) Peek() MouseDelta {
	return a.cur
}

// Flush returns the current value and resets the accumulator. ok is false
// (and nothing is reset) when there is nothing to send.
func (a *Accumulator) Flush() (d MouseDelta, ok bool) {
	if a.cur.IsZero() {
		return MouseDelta{}, false
	}
	d = a.cur
	a.cur = MouseDelta{}
	return d, true
}
