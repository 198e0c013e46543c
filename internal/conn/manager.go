// Package conn keeps one WebSocket to the tub controller alive.
//
// Every method except State and Start must run on the event loop. Dialing and
// reading happen on helper goroutines that only post results back to the loop.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/stephens/tubpanel/internal/log"
	"github.com/stephens/tubpanel/internal/loop"
	"github.com/stephens/tubpanel/internal/protocol"
)

// DefaultReconnectDelay is the fixed interval between a failure and the next attempt
const DefaultReconnectDelay = 2 * time.Second

// ErrNotOpen is returned by Send while no socket is open
var ErrNotOpen = errors.New("socket not open")

// Dialer opens a WebSocket. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// AfterFunc runs fn once after d. time.AfterFunc is the default.
type AfterFunc func(d time.Duration, fn func())

// Manager owns the single live socket handle
type Manager struct {
	url       string
	dialer    Dialer
	poster    loop.Poster
	delay     time.Duration
	afterFunc AfterFunc
	onMessage func([]byte)
	onOpen    func()

	state atomic.Int32

	// loop-owned
	ctx        context.Context
	conn       *websocket.Conn
	gen        uint64
	retriedGen uint64
	stopped    bool

	failures *rate.Sometimes
	logger   *log.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithDialer replaces the default gorilla dialer
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithReconnectDelay overrides the fixed retry interval
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.delay = d
		}
	}
}

// WithAfterFunc replaces the timer used to schedule retries
func WithAfterFunc(fn AfterFunc) Option {
	return func(m *Manager) { m.afterFunc = fn }
}

// WithOnOpen registers a callback run on the loop each time a socket opens
func WithOnOpen(fn func()) Option {
	return func(m *Manager) { m.onOpen = fn }
}

// New creates a manager for url. onMessage runs on the loop for every text frame.
func New(url string, poster loop.Poster, onMessage func([]byte), opts ...Option) *Manager {
	m := &Manager{
		url:       url,
		dialer:    websocket.DefaultDialer,
		poster:    poster,
		delay:     DefaultReconnectDelay,
		afterFunc: func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		onMessage: onMessage,
		ctx:       context.Background(),
		failures:  newFailureLog(),
		logger:    log.WithField("component", "conn"),
	}
	m.state.Store(int32(StateClosed))
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state. Safe from any goroutine.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// URL returns the socket URL
func (m *Manager) URL() string {
	return m.url
}

// Start queues the first connection attempt. ctx bounds every dial.
func (m *Manager) Start(ctx context.Context) bool {
	return m.poster.Post(func() {
		m.ctx = ctx
		m.Connect()
	})
}

// Connect replaces the current socket with a fresh attempt
func (m *Manager) Connect() {
	if m.stopped {
		return
	}
	m.logger.Debug("Connecting WebSocket -> %s", m.url)

	m.gen++
	gen := m.gen
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.setState(StateConnecting)

	ctx := m.ctx
	go func() {
		c, _, err := m.dialer.DialContext(ctx, m.url, nil)
		if !m.poster.Post(func() { m.handleDial(gen, c, err) }) && c != nil {
			c.Close()
		}
	}()
}

// Wake reconnects immediately unless the socket is open
func (m *Manager) Wake() {
	if m.stopped || m.State() == StateOpen {
		return
	}
	m.logger.Debug("Wakeup: Reconnecting WebSocket")
	m.Connect()
}

// Send JSON-encodes v and writes it as one text frame
func (m *Manager) Send(v interface{}) error {
	if m.conn == nil || m.State() != StateOpen {
		m.logger.Debug("Dropping message, socket not open")
		return ErrNotOpen
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	m.logger.Debug("Sending: %s", data)
	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Stop closes the socket and suppresses every pending or future retry
func (m *Manager) Stop() {
	if m.stopped {
		return
	}
	m.stopped = true
	m.gen++
	if m.conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = m.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		m.conn.Close()
		m.conn = nil
	}
	m.setState(StateClosed)
}

func (m *Manager) handleDial(gen uint64, c *websocket.Conn, err error) {
	if gen != m.gen || m.stopped {
		if c != nil {
			c.Close()
		}
		return
	}
	if err != nil {
		m.failures.Do(func() {
			m.logger.Debug("WebSocket: ERROR -> %v", err)
		})
		m.setState(StateClosed)
		m.scheduleRetry(gen)
		return
	}

	m.conn = c
	m.setState(StateOpen)
	m.failures = newFailureLog()
	m.logger.Debug("WebSocket: CONNECTED -> %s", m.url)
	if m.onOpen != nil {
		m.onOpen()
	}
	go m.readPump(gen, c)
}

func (m *Manager) readPump(gen uint64, c *websocket.Conn) {
	for {
		msgType, data, err := c.ReadMessage()
		if err != nil {
			m.poster.Post(func() { m.handleClose(gen, err) })
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !m.poster.Post(func() { m.handleMessage(gen, data) }) {
			return
		}
	}
}

func (m *Manager) handleMessage(gen uint64, data []byte) {
	if gen != m.gen {
		return
	}
	m.logger.Debug("Receive: %s", data)
	if m.onMessage != nil {
		m.onMessage(data)
	}
}

func (m *Manager) handleClose(gen uint64, err error) {
	if gen != m.gen || m.stopped {
		return
	}
	code := websocket.CloseAbnormalClosure
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}
	m.logger.Debug("WebSocket: CLOSED -> %d %s", code, protocol.CloseDescription(code))

	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.setState(StateClosed)
	m.scheduleRetry(gen)
}

// scheduleRetry arms at most one retry per socket generation
func (m *Manager) scheduleRetry(gen uint64) {
	if m.stopped || m.retriedGen == gen {
		return
	}
	m.retriedGen = gen
	m.afterFunc(m.delay, func() {
		m.poster.Post(func() {
			if m.stopped {
				return
			}
			m.Connect()
		})
	})
	m.setState(StateReconnectScheduled)
}

// newFailureLog logs the first few dial failures, then one a minute
func newFailureLog() *rate.Sometimes {
	return &rate.Sometimes{First: 3, Interval: time.Minute}
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}
