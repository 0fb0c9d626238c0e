// Package uplink flushes accumulated mouse state to the device, one
// request at a time.
package uplink

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"webkvm/internal/input"
)

var log = logrus.WithField("pkg", "uplink")

// State is the uplink request state
type State int

const (
	// Idle means no request is outstanding
	Idle State = iota
	// InFlight means one request was dispatched and has not completed
	InFlight
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InFlight:
		return "in-flight"
	default:
		return "unknown"
	}
}

// Sender delivers one flushed delta to the device
type Sender interface {
	SendMouse(ctx context.Context, d input.MouseDelta) error
}

// Source hands out the accumulated delta
type Source interface {
	Flush() (input.MouseDelta, bool)
}

// Stats are uplink counters, safe to read from any goroutine
type Stats struct {
	Sent     atomic.Uint64
	Failures atomic.Uint64
	LastErr  atomic.Value // string
}

// Poller is the mouse uplink state machine. Tick and the completion
// callbacks must run on the same loop goroutine.
type Poller struct {
	ctx     context.Context
	source  Source
	sender  Sender
	post    func(func()) bool
	timeout time.Duration
	stats   *Stats

	state State
	seq   uint64

	warn rate.Sometimes
}

// NewPoller creates a poller. post schedules a function on the loop that
// calls Tick; timeout bounds every request (0 disables the bound).
func NewPoller(ctx context.Context, source Source, sender Sender, post func(func()) bool, timeout time.Duration, stats *Stats) *Poller {
	if stats == nil {
		stats = &Stats{}
	}
	return &Poller{
		ctx:     ctx,
		source:  source,
		sender:  sender,
		post:    post,
		timeout: timeout,
		stats:   stats,
		warn:    rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// State returns the current state
func (p *Poller) State() State {
	return p.state
}

// Tick flushes the accumulator if no request is outstanding and there is
// something to send.
func (p *Poller) Tick() {
	if p.state == InFlight {
		return
	}
	d, ok := p.source.Flush()
	if !ok {
		return
	}

	p.state = InFlight
	p.seq++
	seq := p.seq
	p.stats.Sent.Add(1)

	ctx, cancel := p.ctx, context.CancelFunc(func() {})
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(p.ctx, p.timeout)
	}
	go func() {
		defer cancel()
		err := p.sender.SendMouse(ctx, d)
		p.post(func() { p.complete(seq, d, err) })
	}()
}

func (p *Poller) complete(seq uint64, d input.MouseDelta, err error) {
	if seq != p.seq || p.state != InFlight {
		return
	}
	p.state = Idle
	if err == nil {
		return
	}

	// The request timed out or failed; the snapshot is dropped.
	p.stats.Failures.Add(1)
	p.stats.LastErr.Store(err.Error())
	p.warn.Do(func() {
		log.WithError(err).Warnf("Uplink: Request dx=%d dy=%d lc=%v rc=%v failed", d.DX, d.DY, d.LeftClicked, d.RightClicked)
	})
}
