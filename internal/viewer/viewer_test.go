package viewer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webkvm/internal/input"
	"webkvm/internal/network"
	"webkvm/internal/protocol"
	"webkvm/internal/session"
)

type fakeController struct {
	mu        sync.Mutex
	events    []protocol.Message
	reloads   []string
	reloadErr error
}

func (c *fakeController) HandleViewerEvent(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, msg)
	return nil
}

func (c *fakeController) Reload(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reloadErr != nil {
		return c.reloadErr
	}
	c.reloads = append(c.reloads, reason)
	return nil
}

func (c *fakeController) SessionID() string { return "6f1c2a8e-session" }

func (c *fakeController) Status(ctx context.Context) session.Status {
	return session.Status{
		Session:       "6f1c2a8e-session",
		Started:       time.Now().Add(-90 * time.Second),
		Locked:        true,
		Uplink:        "idle",
		MouseSent:     3,
		Cycles:        7,
		BytesReceived: 2048,
	}
}

func (c *fakeController) received() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.events...)
}

type rig struct {
	ctrl   *fakeController
	hub    *Hub
	frames *FrameStore
	srv    *httptest.Server
}

func newRig(t *testing.T) *rig {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	r := &rig{ctrl: &fakeController{}, hub: hub}
	r.frames = NewFrameStore(hub.Broadcast)
	s := NewServer(r.ctrl, hub, r.frames, "http://192.168.1.10/")
	r.srv = httptest.NewServer(s.Router())
	t.Cleanup(func() {
		r.srv.Close()
		cancel()
	})
	return r
}

func (r *rig) get(t *testing.T, path string) (*http.Response, string) {
	resp, err := http.Get(r.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (r *rig) wsURL() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws"
}

func (r *rig) dial(t *testing.T) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(r.wsURL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.Message {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	return msg
}

func fourFrames(stamp int64) [network.Channels]network.Frame {
	var frames [network.Channels]network.Frame
	for ch := range frames {
		frames[ch] = network.Frame{
			Channel:     ch,
			Stamp:       stamp,
			Data:        []byte{0xff, 0xd8, byte(ch)},
			ContentType: "image/jpeg",
		}
	}
	return frames
}

func TestIndexPage(t *testing.T) {
	r := newRig(t)
	resp, body := r.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `id="`+input.CanvasID+`"`)
	for _, id := range []string{"ch0", "ch1", "ch2", "ch3"} {
		assert.Contains(t, body, `id="`+id+`"`)
	}
	assert.Contains(t, body, "192.168.1.10")
}

func TestHealth(t *testing.T) {
	r := newRig(t)
	resp, body := r.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestFrameEndpoint(t *testing.T) {
	r := newRig(t)

	resp, _ := r.get(t, "/frame/0")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = r.get(t, "/frame/x")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	r.frames.Swap(fourFrames(1700000000000))
	resp, body := r.get(t, "/frame/2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "1", resp.Header.Get("X-Frame-Generation"))
	assert.Equal(t, string([]byte{0xff, 0xd8, 2}), body)

	resp, _ = r.get(t, "/frame/4")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = r.get(t, "/frame/0?g=9")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = r.get(t, "/frame/0?g=-1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestFrameGenerationPinned checks that one generation's set is served whole
// even when a swap lands between the page's per-channel requests
func TestFrameGenerationPinned(t *testing.T) {
	r := newRig(t)
	r.frames.Swap(fourFrames(100))

	resp, first := r.get(t, "/frame/0?g=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-Frame-Generation"))

	next := fourFrames(200)
	for ch := range next {
		next[ch].Data = []byte{0xff, 0xd8, byte(0x10 + ch)}
	}
	r.frames.Swap(next)

	want := []string{first}
	for ch := 1; ch < network.Channels; ch++ {
		resp, body := r.get(t, fmt.Sprintf("/frame/%d?g=1", ch))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "1", resp.Header.Get("X-Frame-Generation"))
		want = append(want, body)
	}
	for ch, body := range want {
		assert.Equal(t, string([]byte{0xff, 0xd8, byte(ch)}), body, "channel %d", ch)
	}

	resp, body := r.get(t, "/frame/1?g=2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string([]byte{0xff, 0xd8, 0x11}), body)
	resp, body = r.get(t, "/frame/1")
	assert.Equal(t, "2", resp.Header.Get("X-Frame-Generation"))
	assert.Equal(t, string([]byte{0xff, 0xd8, 0x11}), body)
}

func TestFrameGenerationGone(t *testing.T) {
	r := newRig(t)
	for i := 0; i < keptGenerations+1; i++ {
		r.frames.Swap(fourFrames(int64(i)))
	}

	resp, _ := r.get(t, "/frame/0?g=1")
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	resp, _ = r.get(t, "/frame/0?g=2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err := r.frames.FrameAt(3, 1)
	assert.Equal(t, ErrSuperseded, err)
	_, err = r.frames.FrameAt(3, keptGenerations+2)
	assert.Equal(t, ErrNoFrame, err)
}

func TestStatus(t *testing.T) {
	r := newRig(t)
	resp, body := r.get(t, "/api/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var st statusResponse
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, "6f1c2a8e-session", st.Session)
	assert.Equal(t, "2.0 kB", st.Received)
	assert.Equal(t, "1 minute 30 seconds", st.Uptime)
	assert.True(t, st.Locked)
	assert.Equal(t, uint64(7), st.Cycles)
}

func TestReload(t *testing.T) {
	r := newRig(t)
	resp, err := http.Post(r.srv.URL+"/api/reload", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	r.ctrl.mu.Lock()
	assert.Equal(t, []string{"viewer request"}, r.ctrl.reloads)
	r.ctrl.reloadErr = session.ErrNoSession
	r.ctrl.mu.Unlock()

	resp, err = http.Post(r.srv.URL+"/api/reload", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocketGreetingAndEvents(t *testing.T) {
	r := newRig(t)
	conn := r.dial(t)

	greeting := readMessage(t, conn)
	require.Equal(t, protocol.TypeSession, greeting.Type)
	var p protocol.SessionPayload
	require.NoError(t, json.Unmarshal(greeting.Payload, &p))
	assert.Equal(t, "6f1c2a8e-session", p.Session)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"lockchange","payload":{"element":"video_space"}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"input","payload":{"kind":"mousemove","mx":4,"my":-2,"ts":1}}`)))

	require.Eventually(t, func() bool { return len(r.ctrl.received()) == 2 }, 2*time.Second, time.Millisecond)
	events := r.ctrl.received()
	lc, err := events[0].LockChange()
	require.NoError(t, err)
	assert.Equal(t, input.CanvasID, lc.Element)
	ev, err := events[1].Input()
	require.NoError(t, err)
	assert.Equal(t, input.EventMotion, ev.Kind)
	assert.Equal(t, 4, ev.MovementX)
	assert.Equal(t, -2, ev.MovementY)
}

func TestWebSocketBroadcasts(t *testing.T) {
	r := newRig(t)
	conn := r.dial(t)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return r.hub.Clients() == 1 }, 2*time.Second, time.Millisecond)

	r.hub.RequestPointerLock()
	assert.Equal(t, protocol.TypeRequestLock, readMessage(t, conn).Type)

	r.frames.Swap(fourFrames(42))
	msg := readMessage(t, conn)
	require.Equal(t, protocol.TypeFrames, msg.Type)
	var fp protocol.FramesPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &fp))
	assert.Equal(t, uint64(1), fp.Generation)
	assert.Equal(t, int64(42), fp.Stamp)

	r.hub.ExitPointerLock()
	assert.Equal(t, protocol.TypeExitLock, readMessage(t, conn).Type)

	r.hub.NotifyReload("video refresh stalled")
	msg = readMessage(t, conn)
	require.Equal(t, protocol.TypeReload, msg.Type)
	var rp protocol.ReloadPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &rp))
	assert.Equal(t, "video refresh stalled", rp.Reason)
}

func TestWebSocketOrigin(t *testing.T) {
	r := newRig(t)

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(r.wsURL(), header)
	require.Error(t, err)
	assert.Equal(t, websocket.ErrBadHandshake, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{r.srv.URL}}
	conn, _, err := websocket.DefaultDialer.Dial(r.wsURL(), header)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, protocol.TypeSession, readMessage(t, conn).Type)
}
