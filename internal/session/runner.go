package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"webkvm/internal/hotkey"
	"webkvm/internal/protocol"
)

// ErrNoSession is returned while no session is running
var ErrNoSession = errors.New("no active session")

// Runner keeps one session alive and replaces it on every reload
type Runner struct {
	deps     Deps
	opts     Options
	onReload func(reason string)
	stats    Stats
	started  time.Time
	reloads  atomic.Uint64

	mu      sync.RWMutex
	current *Session
}

// NewRunner creates a runner. onReload is called after a session ends
// with a reload, before the next one is built.
func NewRunner(deps Deps, opts Options, onReload func(reason string)) *Runner {
	return &Runner{
		deps:     deps,
		opts:     opts,
		onReload: onReload,
		started:  time.Now(),
	}
}

// Run builds and runs sessions until ctx ends
func (r *Runner) Run(ctx context.Context) error {
	for {
		s := New(r.deps, r.opts, &r.stats)
		r.setCurrent(s)
		reason := s.Run(ctx)
		r.setCurrent(nil)

		if ctx.Err() != nil {
			return nil
		}

		n := r.reloads.Add(1)
		log.Warnf("Runner: Session %s ended (%s), starting reload #%d", s.ID(), reason, n)
		if r.onReload != nil {
			r.onReload(reason)
		}
	}
}

func (r *Runner) setCurrent(s *Session) {
	r.mu.Lock()
	r.current = s
	r.mu.Unlock()
}

// Current returns the running session, or nil between sessions
func (r *Runner) Current() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// SessionID returns the running session's id, or ""
func (r *Runner) SessionID() string {
	if s := r.Current(); s != nil {
		return s.ID()
	}
	return ""
}

// Reload ends the running session; Run then builds a fresh one
func (r *Runner) Reload(reason string) error {
	s := r.Current()
	if s == nil {
		return ErrNoSession
	}
	s.Reload(reason)
	return nil
}

// ReleasePointer asks the viewer to exit pointer lock
func (r *Runner) ReleasePointer() error {
	s := r.Current()
	if s == nil {
		return ErrNoSession
	}
	return s.ReleasePointer()
}

// HandleViewerEvent routes a viewer message to the running session
func (r *Runner) HandleViewerEvent(msg protocol.Message) error {
	s := r.Current()
	if s == nil {
		return ErrNoSession
	}
	return s.HandleViewerEvent(msg)
}

// BindHotkeys registers the local release and reload shortcuts on m
func (r *Runner) BindHotkeys(m *hotkey.Manager, release, reload string) error {
	if _, err := m.Register(release, func() {
		if err := r.ReleasePointer(); err != nil {
			log.WithError(err).Debug("Runner: Release hotkey ignored")
		}
	}); err != nil {
		return errors.Wrapf(err, "register release hotkey %q", release)
	}
	if _, err := m.Register(reload, func() {
		if err := r.Reload("reload hotkey"); err != nil {
			log.WithError(err).Debug("Runner: Reload hotkey ignored")
		}
	}); err != nil {
		return errors.Wrapf(err, "register reload hotkey %q", reload)
	}
	return nil
}

// Status is a point-in-time view of the client, counters cumulative
// across sessions
type Status struct {
	Session         string
	SessionStarted  time.Time
	Started         time.Time
	Reloads         uint64
	Locked          bool
	Uplink          string
	MouseSent       uint64
	MouseFailures   uint64
	LastMouseError  string
	Cycles          uint64
	Stalls          uint64
	BytesReceived   uint64
	FetchInProgress bool
	Pending         int
	KeysSuppressed  uint64
}

// Status collects the counters and, when a session is running, its state
func (r *Runner) Status(ctx context.Context) Status {
	st := Status{
		Started:        r.started,
		Reloads:        r.reloads.Load(),
		MouseSent:      r.stats.Uplink.Sent.Load(),
		MouseFailures:  r.stats.Uplink.Failures.Load(),
		Cycles:         r.stats.Video.Cycles.Load(),
		Stalls:         r.stats.Video.Stalls.Load(),
		BytesReceived:  r.stats.Video.Bytes.Load(),
		KeysSuppressed: r.stats.KeysSuppressed.Load(),
	}
	if v, ok := r.stats.Uplink.LastErr.Load().(string); ok {
		st.LastMouseError = v
	}

	s := r.Current()
	if s == nil {
		return st
	}
	st.Session = s.ID()
	st.SessionStarted = s.Started()

	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	snap, err := s.Snapshot(ctx)
	if err != nil {
		log.WithError(err).Debug("Runner: Session snapshot unavailable")
		return st
	}
	st.Locked = snap.Locked
	st.Uplink = snap.Uplink.String()
	st.FetchInProgress = snap.FetchInProgress
	st.Pending = snap.Pending
	return st
}
