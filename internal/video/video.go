// Package video refreshes the four display channels from the device.
package video

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"webkvm/internal/network"
)

var log = logrus.WithField("pkg", "video")

// DefaultStallTimeout is how long a fetch cycle may run before the session
// is reloaded.
const DefaultStallTimeout = 1000 * time.Millisecond

// Fetcher loads one channel image
type Fetcher interface {
	FetchFrame(ctx context.Context, channel int, stamp int64) (network.Frame, error)
}

// Display receives all four channel frames at once
type Display interface {
	Swap(frames [network.Channels]network.Frame)
}

// Stats are refresh counters, safe to read from any goroutine
type Stats struct {
	Cycles atomic.Uint64
	Stalls atomic.Uint64
	Bytes  atomic.Uint64
}

// Options configures a Poller
type Options struct {
	StallTimeout time.Duration
	Now          func() time.Time
	Stats        *Stats
}

// Poller runs fetch cycles. Tick and the completion callbacks must run on
// the same loop goroutine.
type Poller struct {
	ctx     context.Context
	fetcher Fetcher
	display Display
	post    func(func()) bool
	reload  func(reason string)
	stall   time.Duration
	now     func() time.Time
	stats   *Stats

	fetchInProgress bool
	pending         int
	started         time.Time
	cycle           uint64
	buffers         [network.Channels]network.Frame
	reloadRequested bool
}

// NewPoller creates a poller. reload is called at most once per stalled
// cycle.
func NewPoller(ctx context.Context, fetcher Fetcher, display Display, post func(func()) bool, reload func(reason string), opts Options) *Poller {
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = DefaultStallTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Stats == nil {
		opts.Stats = &Stats{}
	}
	return &Poller{
		ctx:     ctx,
		fetcher: fetcher,
		display: display,
		post:    post,
		reload:  reload,
		stall:   opts.StallTimeout,
		now:     opts.Now,
		stats:   opts.Stats,
	}
}

// FetchInProgress reports whether a cycle is active
func (p *Poller) FetchInProgress() bool {
	return p.fetchInProgress
}

// Pending returns the number of channels the active cycle still waits for
func (p *Poller) Pending() int {
	return p.pending
}

// Tick starts a cycle when none is active, otherwise checks the active
// cycle for a stall.
func (p *Poller) Tick() {
	now := p.now()
	if p.fetchInProgress {
		if !p.reloadRequested && now.Sub(p.started) >= p.stall {
			p.reloadRequested = true
			p.stats.Stalls.Add(1)
			log.Warnf("Video: Cycle %d stalled with %d of %d channels missing", p.cycle, p.pending, network.Channels)
			p.reload("video refresh stalled")
		}
		return
	}
	p.start(now)
}

func (p *Poller) start(now time.Time) {
	p.cycle++
	p.started = now
	p.pending = network.Channels
	p.fetchInProgress = true
	p.buffers = [network.Channels]network.Frame{}

	cycle := p.cycle
	stamp := now.UnixMilli()
	for ch := 0; ch < network.Channels; ch++ {
		go func(ch int) {
			frame, err := p.fetcher.FetchFrame(p.ctx, ch, stamp)
			p.post(func() { p.loaded(cycle, ch, frame, err) })
		}(ch)
	}
}

// loaded handles one channel completion. A failed channel never counts
// down, leaving the stall timeout as the only way out of the cycle.
func (p *Poller) loaded(cycle uint64, ch int, frame network.Frame, err error) {
	if cycle != p.cycle || !p.fetchInProgress {
		return
	}
	if err != nil {
		log.WithError(err).Debugf("Video: Channel %d failed in cycle %d", ch, cycle)
		return
	}
	if p.buffers[ch].Loaded() {
		return
	}

	p.buffers[ch] = frame
	p.stats.Bytes.Add(uint64(len(frame.Data)))
	p.pending--
	if p.pending > 0 {
		return
	}

	p.display.Swap(p.buffers)
	p.fetchInProgress = false
	p.stats.Cycles.Add(1)
}
