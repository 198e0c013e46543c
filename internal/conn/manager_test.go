package conn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephens/tubpanel/internal/loop"
)

const waitFor = 2 * time.Second
const tick = 10 * time.Millisecond

type fakeTimers struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, d)
	f.fns = append(f.fns, fn)
}

func (f *fakeTimers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fns)
}

func (f *fakeTimers) fire(i int) {
	f.mu.Lock()
	fn := f.fns[i]
	f.mu.Unlock()
	fn()
}

type testServer struct {
	*httptest.Server
	conns chan *websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ts := &testServer{conns: make(chan *websocket.Conn, 8)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- c
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func (ts *testServer) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ts.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(waitFor):
		t.Fatal("no connection arrived")
		return nil
	}
}

type harness struct {
	loop     *loop.Loop
	timers   *fakeTimers
	mgr      *Manager
	messages chan string
}

func newHarness(t *testing.T, url string) *harness {
	t.Helper()
	h := &harness{
		loop:     loop.New(),
		timers:   &fakeTimers{},
		messages: make(chan string, 8),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.loop.Run(ctx)

	h.mgr = New(url, h.loop, func(b []byte) { h.messages <- string(b) },
		WithAfterFunc(h.timers.AfterFunc))
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.True(t, h.mgr.Start(context.Background()))
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.mgr.State() == want }, waitFor, tick, "want %s, have %s", want, h.mgr.State())
}

func TestManager_CloseSchedulesExactlyOneRetry(t *testing.T) {
	ts := newTestServer(t)
	h := newHarness(t, ts.wsURL())
	h.start(t)

	server := ts.next(t)
	h.waitState(t, StateOpen)
	assert.Equal(t, 0, h.timers.count())

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye")
	require.NoError(t, server.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
	server.Close()

	h.waitState(t, StateReconnectScheduled)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.timers.count())
	assert.Equal(t, DefaultReconnectDelay, h.timers.delays[0])
}

func TestManager_RetryReconnects(t *testing.T) {
	ts := newTestServer(t)
	h := newHarness(t, ts.wsURL())
	h.start(t)

	ts.next(t).Close()
	h.waitState(t, StateReconnectScheduled)

	h.timers.fire(0)
	ts.next(t)
	h.waitState(t, StateOpen)
	assert.Equal(t, 1, h.timers.count())
}

func TestManager_DialFailureSchedulesRetry(t *testing.T) {
	ts := newTestServer(t)
	url := ts.wsURL()
	ts.Close()

	h := newHarness(t, url)
	h.start(t)

	h.waitState(t, StateReconnectScheduled)
	assert.Equal(t, 1, h.timers.count())

	h.timers.fire(0)
	require.Eventually(t, func() bool { return h.timers.count() == 2 }, waitFor, tick)
}

func TestManager_DeliversTextMessages(t *testing.T) {
	ts := newTestServer(t)
	h := newHarness(t, ts.wsURL())
	h.start(t)

	server := ts.next(t)
	h.waitState(t, StateOpen)
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"temp":71}`)))

	select {
	case got := <-h.messages:
		assert.Equal(t, `{"temp":71}`, got)
	case <-time.After(waitFor):
		t.Fatal("message not delivered")
	}
}

func TestManager_SendWhenOpen(t *testing.T) {
	ts := newTestServer(t)
	h := newHarness(t, ts.wsURL())
	h.start(t)

	server := ts.next(t)
	h.waitState(t, StateOpen)

	var err error
	require.True(t, h.loop.Do(func() { err = h.mgr.Send(map[string]int{"light": 2}) }))
	require.NoError(t, err)

	require.NoError(t, server.SetReadDeadline(time.Now().Add(waitFor)))
	_, data, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"light":2}`, string(data))
}

func TestManager_SendWhenNotOpen(t *testing.T) {
	h := newHarness(t, "ws://127.0.0.1:1/ws")

	var err error
	require.True(t, h.loop.Do(func() { err = h.mgr.Send(map[string]int{"refresh": 1}) }))
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestManager_WakeReconnectsOnlyWhenNotOpen(t *testing.T) {
	ts := newTestServer(t)
	h := newHarness(t, ts.wsURL())
	h.start(t)

	server := ts.next(t)
	h.waitState(t, StateOpen)

	h.loop.Do(h.mgr.Wake)
	select {
	case <-ts.conns:
		t.Fatal("wake reconnected an open socket")
	case <-time.After(100 * time.Millisecond):
	}

	server.Close()
	h.waitState(t, StateReconnectScheduled)

	h.loop.Do(h.mgr.Wake)
	ts.next(t)
	h.waitState(t, StateOpen)
}

func TestManager_ReplacedSocketIsIgnored(t *testing.T) {
	ts := newTestServer(t)
	h := newHarness(t, ts.wsURL())
	h.start(t)

	first := ts.next(t)
	h.waitState(t, StateOpen)

	h.loop.Do(h.mgr.Connect)
	second := ts.next(t)
	h.waitState(t, StateOpen)

	// the replaced socket closing must not schedule anything
	first.Close()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, h.timers.count())
	assert.Equal(t, StateOpen, h.mgr.State())

	require.NoError(t, second.WriteMessage(websocket.TextMessage, []byte(`{"light":1}`)))
	select {
	case got := <-h.messages:
		assert.Equal(t, `{"light":1}`, got)
	case <-time.After(waitFor):
		t.Fatal("message not delivered")
	}
}

func TestManager_StopSuppressesRetry(t *testing.T) {
	ts := newTestServer(t)
	h := newHarness(t, ts.wsURL())
	h.start(t)

	server := ts.next(t)
	h.waitState(t, StateOpen)

	h.loop.Do(h.mgr.Stop)
	assert.Equal(t, StateClosed, h.mgr.State())

	require.NoError(t, server.SetReadDeadline(time.Now().Add(waitFor)))
	_, _, err := server.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, h.timers.count())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Open", StateOpen.String())
	assert.Equal(t, "ReconnectScheduled", StateReconnectScheduled.String())
	assert.Equal(t, "Unknown", State(42).String())
}
