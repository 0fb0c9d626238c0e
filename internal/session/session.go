// Package session owns one execution context of the client: the event
// loop, the captured input state and both pollers. A reload throws the
// whole context away and the Runner builds a fresh one.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"webkvm/internal/input"
	"webkvm/internal/loop"
	"webkvm/internal/protocol"
	"webkvm/internal/uplink"
	"webkvm/internal/video"
)

var log = logrus.WithField("pkg", "session")

var (
	// ErrUnknownMessage is returned for viewer messages a session does not handle
	ErrUnknownMessage = errors.New("unknown viewer message")

	// ErrStopped is returned when the session loop no longer accepts work
	ErrStopped = errors.New("session stopped")
)

const queueSize = 1024

// Device is the part of the device client a session talks to
type Device interface {
	uplink.Sender
	video.Fetcher
}

// Deps are the collaborators shared by every session
type Deps struct {
	Device   Device
	Display  video.Display
	Platform input.Platform
	Keys     input.KeyObserver
}

// Options are the session timings
type Options struct {
	MouseInterval time.Duration
	VideoInterval time.Duration
	MouseTimeout  time.Duration
	StallTimeout  time.Duration

	// Now overrides the video poller clock
	Now func() time.Time
}

// Stats are the counters a session updates
type Stats struct {
	Uplink         uplink.Stats
	Video          video.Stats
	KeysSuppressed atomic.Uint64
}

// Snapshot is a copy of the loop-owned session state
type Snapshot struct {
	ID              string
	Started         time.Time
	Locked          bool
	Uplink          uplink.State
	FetchInProgress bool
	Pending         int
}

// Session is one execution context
type Session struct {
	id      string
	deps    Deps
	opts    Options
	stats   *Stats
	started time.Time

	loop       *loop.Loop
	dispatcher *input.Dispatcher
	acc        *input.Accumulator
	capture    *input.Capture
	lock       *input.LockController

	// set by Run, touched only on the loop
	uplink *uplink.Poller
	video  *video.Poller

	reload chan string
}

// New creates a session. Nothing runs until Run is called.
func New(deps Deps, opts Options, stats *Stats) *Session {
	if stats == nil {
		stats = &Stats{}
	}
	s := &Session{
		id:         uuid.New().String(),
		deps:       deps,
		opts:       opts,
		stats:      stats,
		started:    time.Now(),
		loop:       loop.New(queueSize),
		dispatcher: input.NewDispatcher(),
		acc:        &input.Accumulator{},
		reload:     make(chan string, 1),
	}
	s.capture = input.NewCapture(s.acc)
	if deps.Keys != nil {
		// Keys held when the previous session went away never got their key-ups.
		deps.Keys.Reset()
		s.capture.SetKeyObserver(deps.Keys)
	}
	s.lock = input.NewLockController(input.CanvasID, deps.Platform, s.dispatcher, s.capture)
	return s
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Started returns the creation time
func (s *Session) Started() time.Time {
	return s.started
}

// Run drives the session until ctx ends or a reload is requested. It
// returns the reload reason, or "" when ctx ended.
func (s *Session) Run(ctx context.Context) string {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.uplink = uplink.NewPoller(ctx, s.acc, s.deps.Device, s.loop.Post, s.opts.MouseTimeout, &s.stats.Uplink)
	s.video = video.NewPoller(ctx, s.deps.Device, s.deps.Display, s.loop.Post, s.Reload, video.Options{
		StallTimeout: s.opts.StallTimeout,
		Now:          s.opts.Now,
		Stats:        &s.stats.Video,
	})

	go s.loop.Run(ctx)
	mouse := s.loop.Every(s.opts.MouseInterval, s.uplink.Tick)
	frames := s.loop.Every(s.opts.VideoInterval, s.video.Tick)
	defer mouse.Stop()
	defer frames.Stop()

	log.Infof("Session: %s started", s.id)

	var reason string
	select {
	case reason = <-s.reload:
		log.Warnf("Session: %s reload requested: %s", s.id, reason)
	case <-ctx.Done():
		log.Infof("Session: %s stopped", s.id)
	}
	cancel()
	<-s.loop.Done()
	return reason
}

// Reload asks Run to return. Only the first request is kept.
func (s *Session) Reload(reason string) {
	select {
	case s.reload <- reason:
	default:
	}
}

// Post runs fn on the session loop
func (s *Session) Post(fn func()) error {
	if !s.loop.Post(fn) {
		return ErrStopped
	}
	return nil
}

// ReleasePointer asks the viewer to exit pointer lock
func (s *Session) ReleasePointer() error {
	return s.Post(s.lock.Release)
}

// HandleViewerEvent routes one viewer message into the loop
func (s *Session) HandleViewerEvent(msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeActivate:
		return s.Post(s.lock.Activate)

	case protocol.TypeLockChange:
		p, err := msg.LockChange()
		if err != nil {
			return errors.Wrap(err, "decode lockchange")
		}
		return s.Post(func() { s.lock.OnLockChange(p.Element) })

	case protocol.TypeInput:
		ev, err := msg.Input()
		if err != nil {
			return errors.Wrap(err, "decode input")
		}
		ev = ev.WithPreventDefault(func() { s.stats.KeysSuppressed.Add(1) })
		return s.Post(func() { s.dispatcher.Dispatch(ev) })

	default:
		return errors.Wrapf(ErrUnknownMessage, "type %q", msg.Type)
	}
}

// Snapshot copies the loop-owned state. It waits for the loop, bounded
// by ctx.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	out := make(chan Snapshot, 1)
	err := s.Post(func() {
		snap := Snapshot{
			ID:      s.id,
			Started: s.started,
			Locked:  s.lock.Locked(),
		}
		if s.uplink != nil {
			snap.Uplink = s.uplink.State()
		}
		if s.video != nil {
			snap.FetchInProgress = s.video.FetchInProgress()
			snap.Pending = s.video.Pending()
		}
		out <- snap
	})
	if err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-out:
		return snap, nil
	case <-s.loop.Done():
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}
