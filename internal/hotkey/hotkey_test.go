package hotkey

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHotkeyFiresOnCompletion(t *testing.T) {
	m := NewManager()
	var fired int32
	_, err := m.Register("Ctrl+Alt+R", func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, err)

	m.UpdateState("Control", true)
	m.UpdateState("Alt", true)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))

	m.UpdateState("r", true)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, time.Millisecond)

	// Auto-repeat of the held key does not fire again.
	m.UpdateState("r", true)
	m.UpdateState("r", true)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))

	m.UpdateState("r", false)
	m.UpdateState("R", true)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 2 }, time.Second, time.Millisecond)
}

func TestHotkeyUnrelatedKeyDoesNotRefire(t *testing.T) {
	m := NewManager()
	var fired int32
	m.Register("Ctrl+Q", func() { atomic.AddInt32(&fired, 1) })

	m.UpdateState("Control", true)
	m.UpdateState("q", true)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, time.Millisecond)

	m.UpdateState("Shift", true)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestHotkeyEmptyAndClear(t *testing.T) {
	m := NewManager()
	id, err := m.Register("", func() { t.Error("empty hotkey fired") })
	assert.NoError(t, err)
	assert.Equal(t, 0, id)

	var fired int32
	m.Register("Esc", func() { atomic.AddInt32(&fired, 1) })
	m.Clear()
	m.UpdateState("Escape", true)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestHotkeyResetKeepsRegistrations(t *testing.T) {
	m := NewManager()
	var reloads, releases int32
	m.Register("Ctrl+Alt+R", func() { atomic.AddInt32(&reloads, 1) })
	m.Register("Ctrl+Alt+Q", func() { atomic.AddInt32(&releases, 1) })

	m.UpdateState("Control", true)
	m.UpdateState("Alt", true)
	m.UpdateState("q", true)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&releases) == 1 }, time.Second, time.Millisecond)

	// The key-ups are lost; without the reset a lone R would complete Ctrl+Alt+R.
	m.Reset()
	m.UpdateState("r", true)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&reloads))

	m.UpdateState("r", false)
	m.UpdateState("Control", true)
	m.UpdateState("Alt", true)
	m.UpdateState("q", true)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&releases) == 2 }, time.Second, time.Millisecond)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "CONTROL", normalize("ctrl"))
	assert.Equal(t, "META", normalize("Cmd"))
	assert.Equal(t, "ESCAPE", normalize("Esc"))
	assert.Equal(t, " ", normalize(" "))
	assert.Equal(t, " ", normalize("Space"))
	assert.Equal(t, "F5", normalize("f5"))
}
