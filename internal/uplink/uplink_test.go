package uplink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webkvm/internal/input"
)

// gateSender records every request and blocks each one until released
type gateSender struct {
	mu      sync.Mutex
	sent    []input.MouseDelta
	release chan error
}

func newGateSender() *gateSender {
	return &gateSender{release: make(chan error)}
}

func (s *gateSender) SendMouse(ctx context.Context, d input.MouseDelta) error {
	s.mu.Lock()
	s.sent = append(s.sent, d)
	s.mu.Unlock()
	select {
	case err := <-s.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *gateSender) requests() []input.MouseDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]input.MouseDelta(nil), s.sent...)
}

type rig struct {
	acc    *input.Accumulator
	sender *gateSender
	posted chan func()
	stats  *Stats
	p      *Poller
}

func newRig(timeout time.Duration) *rig {
	r := &rig{
		acc:    &input.Accumulator{},
		sender: newGateSender(),
		posted: make(chan func(), 8),
		stats:  &Stats{},
	}
	post := func(fn func()) bool { r.posted <- fn; return true }
	r.p = NewPoller(context.Background(), r.acc, r.sender, post, timeout, r.stats)
	return r
}

// drain runs the next completion posted back to the loop
func (r *rig) drain(t *testing.T) {
	t.Helper()
	select {
	case fn := <-r.posted:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("no completion posted")
	}
}

func TestTickIdleEmpty(t *testing.T) {
	r := newRig(0)
	r.p.Tick()
	assert.Equal(t, Idle, r.p.State())
	assert.Empty(t, r.sender.requests())
}

// TestScenarioMoveClickTick covers motion, primary click, then a tick
func TestScenarioMoveClickTick(t *testing.T) {
	r := newRig(0)
	r.acc.Move(5, -3)
	r.acc.Click(input.ButtonPrimary)

	r.p.Tick()
	assert.Equal(t, InFlight, r.p.State())
	assert.True(t, r.acc.Peek().IsZero(), "accumulator must reset at dispatch")

	require.Eventually(t, func() bool { return len(r.sender.requests()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, input.MouseDelta{DX: 5, DY: -3, LeftClicked: true}, r.sender.requests()[0])

	r.sender.release <- nil
	r.drain(t)
	assert.Equal(t, Idle, r.p.State())
	assert.Equal(t, uint64(1), r.stats.Sent.Load())
	assert.Equal(t, uint64(0), r.stats.Failures.Load())
}

// TestAtMostOneInFlight checks that ticks during a request neither send
// nor flush, and that motion arriving meanwhile goes into the next request
func TestAtMostOneInFlight(t *testing.T) {
	r := newRig(0)
	r.acc.Move(1, 1)
	r.p.Tick()

	for i := 0; i < 100; i++ {
		r.acc.Move(2, 0)
		r.p.Tick()
	}
	time.Sleep(10 * time.Millisecond)
	require.Len(t, r.sender.requests(), 1)
	assert.Equal(t, input.MouseDelta{DX: 200}, r.acc.Peek())

	r.sender.release <- nil
	r.drain(t)

	r.p.Tick()
	require.Eventually(t, func() bool { return len(r.sender.requests()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, input.MouseDelta{DX: 200}, r.sender.requests()[1])
	r.sender.release <- nil
	r.drain(t)
}

// TestFailureReturnsToIdle checks the reset-on-error hardening
func TestFailureReturnsToIdle(t *testing.T) {
	r := newRig(0)
	r.acc.Move(3, 3)
	r.p.Tick()

	r.sender.release <- errors.New("status 500")
	r.drain(t)

	assert.Equal(t, Idle, r.p.State())
	assert.Equal(t, uint64(1), r.stats.Failures.Load())
	assert.Equal(t, "status 500", r.stats.LastErr.Load())
	assert.True(t, r.acc.Peek().IsZero(), "failed snapshot is dropped, not re-queued")

	r.acc.Move(1, 0)
	r.p.Tick()
	assert.Equal(t, InFlight, r.p.State())
	r.sender.release <- nil
	r.drain(t)
}

// TestTimeoutReturnsToIdle checks that a request that never answers
// cannot keep the poller in flight
func TestTimeoutReturnsToIdle(t *testing.T) {
	r := newRig(20 * time.Millisecond)
	r.acc.Click(input.ButtonSecondary)
	r.p.Tick()
	require.Equal(t, InFlight, r.p.State())

	r.drain(t)
	assert.Equal(t, Idle, r.p.State())
	assert.Equal(t, uint64(1), r.stats.Failures.Load())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "in-flight", InFlight.String())
}
