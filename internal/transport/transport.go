// internal/transport/transport.go
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/drawdash/drawdash/internal/identity"
	"github.com/drawdash/drawdash/internal/protocol"
)

// Status is the connection lifecycle state of a Manager.
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusConnected    Status = "CONNECTED"
	StatusError        Status = "ERROR"
)

const (
	// DefaultMaxReconnectAttempts is the reconnection ceiling before the
	// manager gives up and parks in StatusError.
	DefaultMaxReconnectAttempts = 5
	// DefaultReconnectDelay spaces reconnection attempts.
	DefaultReconnectDelay = 3 * time.Second
	// DefaultOutboxLimit bounds the offline outbox. The reference behavior
	// was unbounded; we evict the oldest entry and fail its callback instead.
	DefaultOutboxLimit = 256

	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
)

var (
	// ErrMissingAddress indicates Connect was called with no server URL configured.
	ErrMissingAddress = errors.New("transport: no server address configured")
	// ErrOutboxOverflow is delivered to the callback of an outbox entry that
	// was evicted to make room for a newer one.
	ErrOutboxOverflow = errors.New("transport: offline outbox overflow")
	// ErrClosed indicates the manager was shut down while a send awaited its ack.
	ErrClosed = errors.New("transport: connection closed")
	// ErrNotConnected indicates an await-style send was attempted without a
	// live connection; such sends are never queued.
	ErrNotConnected = errors.New("transport: not connected")
)

// Handler receives the raw JSON payload of a dispatched event.
type Handler func(payload json.RawMessage)

// ResultFunc receives the delivery acknowledgment for a single send.
type ResultFunc func(ack protocol.Ack)

// Config carries the knobs for a Manager. Zero values fall back to defaults.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://host/rooms/ws.
	URL string
	// MaxReconnectAttempts is the reconnection ceiling; 0 means the default.
	MaxReconnectAttempts int
	// ReconnectDelay spaces reconnection attempts; 0 means the default.
	ReconnectDelay time.Duration
	// OutboxLimit bounds the offline outbox; 0 means the default.
	OutboxLimit int
	// Backoff optionally overrides the reconnect spacing policy. When nil a
	// constant policy of ReconnectDelay is used.
	Backoff backoff.BackOff
	// Logger receives structured transport logs. Required.
	Logger *logrus.Logger
}

// subscription is one registered handler. The flag is flipped under mu on
// unsubscribe so a handler never fires after its unsubscribe returns, even
// for frames already read off the wire.
type subscription struct {
	event  string
	fn     Handler
	mu     sync.Mutex
	active bool
}

// Manager owns one logical connection to the game server. It hides
// reconnection and short-outage buffering from its consumers: sends while
// disconnected are queued FIFO and flushed in order on reconnect.
type Manager struct {
	cfg Config
	log *logrus.Logger

	mu             sync.Mutex
	status         Status
	conn           *websocket.Conn
	readCancel     context.CancelFunc
	gen            int // connection generation; stale read loops are ignored
	id             identity.Identity
	handlers       map[string][]*subscription
	outbox         []outboxEntry
	pending        map[uint64]ResultFunc
	nextSeq        uint64
	attempts       int
	policy         backoff.BackOff
	reconnectTimer *time.Timer
}

// NewManager creates a disconnected Manager with defaults applied.
func NewManager(cfg Config) *Manager {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.OutboxLimit <= 0 {
		cfg.OutboxLimit = DefaultOutboxLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	policy := cfg.Backoff
	if policy == nil {
		policy = backoff.NewConstantBackOff(cfg.ReconnectDelay)
	}
	return &Manager{
		cfg:      cfg,
		log:      cfg.Logger,
		status:   StatusDisconnected,
		handlers: make(map[string][]*subscription),
		pending:  make(map[uint64]ResultFunc),
		policy:   policy,
	}
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connect validates the identity and dials the server. It fails fast into
// StatusError when the identity or target address is absent or unusable. A
// dial failure on a well-formed attempt transitions to StatusDisconnected and
// starts the background reconnect cycle. Calling Connect always resets the
// reconnect attempt counter and cancels any pending reconnect timer.
func (m *Manager) Connect(ctx context.Context, id identity.Identity) error {
	if m.cfg.URL == "" {
		m.setStatus(StatusError)
		return ErrMissingAddress
	}
	if err := id.Validate(time.Now()); err != nil {
		m.setStatus(StatusError)
		return fmt.Errorf("transport: invalid identity: %w", err)
	}

	m.mu.Lock()
	m.cancelReconnectLocked()
	m.attempts = 0
	m.policy.Reset()
	m.id = id
	m.mu.Unlock()

	return m.dial(ctx)
}

// dial performs one connection attempt with the stored identity.
func (m *Manager) dial(ctx context.Context) error {
	m.setStatus(StatusConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	m.mu.Lock()
	if m.id.AuthToken != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+m.id.AuthToken)
	}
	userID := m.id.UserID
	m.mu.Unlock()

	conn, _, err := websocket.Dial(dialCtx, m.cfg.URL, opts)
	if err != nil {
		m.log.WithFields(logrus.Fields{"url": m.cfg.URL, "user": userID}).
			Warnf("dial failed: %v", err)
		m.setStatus(StatusDisconnected)
		m.emitError(err)
		m.scheduleReconnect()
		return fmt.Errorf("transport: dial %s: %w", m.cfg.URL, err)
	}

	readCtx, readCancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.gen++
	gen := m.gen
	if m.readCancel != nil {
		m.readCancel()
	}
	stale := m.conn
	m.conn = conn
	m.readCancel = readCancel
	m.attempts = 0
	m.policy.Reset()
	m.mu.Unlock()

	// A Connect over a live connection replaces it. The old socket is closed
	// before the new one serves traffic so its read loop cannot double-deliver
	// frames alongside the replacement's.
	if stale != nil {
		stale.Close(websocket.StatusNormalClosure, "superseded")
	}

	m.setStatus(StatusConnected)
	m.log.WithFields(logrus.Fields{"url": m.cfg.URL, "user": userID}).Info("transport connected")

	go m.readLoop(readCtx, conn, gen)
	m.flushOutbox()
	return nil
}

// Subscribe registers a handler for an event name. Multiple handlers per
// event are permitted. The returned function removes exactly this handler;
// after it returns the handler receives no further callbacks.
func (m *Manager) Subscribe(event string, h Handler) func() {
	sub := &subscription{event: event, fn: h, active: true}

	m.mu.Lock()
	m.handlers[event] = append(m.handlers[event], sub)
	m.mu.Unlock()

	return func() {
		sub.mu.Lock()
		sub.active = false
		sub.mu.Unlock()

		m.mu.Lock()
		subs := m.handlers[sub.event]
		for i, s := range subs {
			if s == sub {
				m.handlers[sub.event] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
	}
}

// Disconnect cancels any pending reconnect timer, tears down the connection,
// and clears the handler table. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.cancelReconnectLocked()
	m.gen++
	if m.readCancel != nil {
		m.readCancel()
		m.readCancel = nil
	}
	conn := m.conn
	m.conn = nil
	m.handlers = make(map[string][]*subscription)
	pending := m.pending
	m.pending = make(map[uint64]ResultFunc)
	m.status = StatusDisconnected
	m.mu.Unlock()

	for seq, fn := range pending {
		fn(protocol.Ack{Seq: seq, OK: false, Error: ErrClosed.Error()})
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
		m.log.Info("transport disconnected")
	}
}

// CancelReconnect stops any pending reconnect timer without touching the live
// connection. Used by teardown sequences that need the timer gone before the
// departure notice goes out.
func (m *Manager) CancelReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelReconnectLocked()
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// scheduleReconnect arms the single reconnect timer, or parks the manager in
// StatusError once the attempt ceiling is reached.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.reconnectTimer != nil {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.status = StatusError
		m.mu.Unlock()
		m.log.Errorf("reconnect ceiling (%d) reached, giving up", m.cfg.MaxReconnectAttempts)
		m.emitStatus(StatusError)
		m.emitError(fmt.Errorf("transport: %d reconnect attempts failed", m.cfg.MaxReconnectAttempts))
		return
	}
	delay := m.policy.NextBackOff()
	if delay == backoff.Stop {
		delay = m.cfg.ReconnectDelay
	}
	m.reconnectTimer = time.AfterFunc(delay, m.attemptReconnect)
	m.mu.Unlock()
}

// attemptReconnect runs on the reconnect timer. One attempt at a time; a
// failed dial re-arms the timer via dial's failure path.
func (m *Manager) attemptReconnect() {
	m.mu.Lock()
	m.reconnectTimer = nil
	if m.status == StatusConnected || m.status == StatusError {
		m.mu.Unlock()
		return
	}
	m.attempts++
	attempt := m.attempts
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"attempt": attempt, "max": m.cfg.MaxReconnectAttempts}).
		Info("attempting reconnect")
	// Errors are already routed to the error channel inside dial.
	_ = m.dial(context.Background())
}

// readLoop reads frames until the connection drops or the context is
// canceled. Handlers run from this goroutine sequentially, preserving
// run-to-completion per inbound event.
func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn, gen int) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			m.handleDrop(gen, err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			m.log.Warnf("discarding malformed frame: %v", err)
			continue
		}
		if frame.Event == protocol.EventAck {
			m.resolveAck(frame.Payload)
			continue
		}
		m.dispatch(frame.Event, frame.Payload)
	}
}

// handleDrop transitions to StatusDisconnected and starts the reconnect cycle
// when the current connection's read loop dies. Stale generations (already
// replaced or deliberately closed) are ignored.
func (m *Manager) handleDrop(gen int, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.status != StatusConnected {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.status = StatusDisconnected
	m.mu.Unlock()

	m.log.Warnf("connection dropped: %v", cause)
	m.emitStatus(StatusDisconnected)
	m.emitError(cause)
	m.scheduleReconnect()
}

// dispatch fans a frame out to every live subscriber of its event name.
func (m *Manager) dispatch(event string, payload json.RawMessage) {
	m.mu.Lock()
	subs := append([]*subscription(nil), m.handlers[event]...)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if sub.active {
			sub.fn(payload)
		}
		sub.mu.Unlock()
	}
}

// resolveAck completes the pending send matching the acked sequence number.
func (m *Manager) resolveAck(payload json.RawMessage) {
	var ack protocol.Ack
	if err := json.Unmarshal(payload, &ack); err != nil {
		m.log.Warnf("discarding malformed ack: %v", err)
		return
	}
	m.mu.Lock()
	fn := m.pending[ack.Seq]
	delete(m.pending, ack.Seq)
	m.mu.Unlock()
	if fn != nil {
		fn(ack)
	}
}

// setStatus records the new status and notifies status subscribers.
func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if m.status == s {
		m.mu.Unlock()
		return
	}
	m.status = s
	m.mu.Unlock()
	m.emitStatus(s)
}

// emitStatus dispatches a local status-change event. Transport-level state is
// reported through the normal subscription surface so consumers don't need a
// second mechanism.
func (m *Manager) emitStatus(s Status) {
	payload, _ := json.Marshal(protocol.TransportStatusPayload{Status: string(s)})
	m.dispatch(protocol.EventTransportStatus, payload)
}

// emitError reports a transport-level failure to subscribers of the dedicated
// error channel. Errors are never thrown synchronously at callers on the
// other side of the asynchronous boundary.
func (m *Manager) emitError(err error) {
	payload, _ := json.Marshal(protocol.TransportErrorPayload{Message: err.Error()})
	m.dispatch(protocol.EventTransportError, payload)
}
