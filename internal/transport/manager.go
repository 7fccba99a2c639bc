// Package transport owns the websocket connection to the executor.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"livecode/internal/logger"
)

const (
	writeDeadline  = 10 * time.Second
	eventBufferCap = 64
)

var (
	// ErrClosed is returned when sending on a connection that has closed.
	ErrClosed = errors.New("connection closed")
	// ErrStaleHandle is returned for a handle that is no longer the live one.
	ErrStaleHandle = errors.New("stale connection handle")
)

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Handle identifies one connection opened by a Manager.
type Handle struct {
	ID string
}

// IsZero reports whether h refers to no connection.
func (h Handle) IsZero() bool { return h.ID == "" }

// Manager owns at most one live connection at a time.
type Manager struct {
	dialer Dialer
	log    *zap.Logger

	mu      sync.Mutex
	current *conn
}

type conn struct {
	id     string
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards the fields below and serializes writes on ws.
	mu      sync.Mutex
	ws      *websocket.Conn
	pending [][]byte
	open    bool
	closed  bool
}

// NewManager creates a connection manager. A nil dialer dials without a
// handshake timeout.
func NewManager(dialer Dialer, log *zap.Logger) *Manager {
	if dialer == nil {
		dialer = &websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	}
	return &Manager{
		dialer: dialer,
		log:    logger.OrNop(log),
	}
}

// Open starts connecting to endpoint and returns immediately. Events for
// the connection arrive on the returned channel, which is closed once the
// connection is finished. Any previously open connection is closed first.
func (m *Manager) Open(ctx context.Context, endpoint string) (Handle, <-chan Event) {
	cctx, cancel := context.WithCancel(ctx)
	c := &conn{
		id:     uuid.New().String(),
		events: make(chan Event, eventBufferCap),
		ctx:    cctx,
		cancel: cancel,
	}

	m.mu.Lock()
	prev := m.current
	m.current = c
	m.mu.Unlock()

	if prev != nil {
		m.log.Debug("replacing live connection", zap.String("handle", prev.id))
		prev.close()
	}

	go m.run(c, endpoint)

	return Handle{ID: c.id}, c.events
}

// Send writes payload to the connection. Before the connection is open
// the payload is queued and flushed, in order, as soon as it opens.
func (m *Manager) Send(h Handle, payload []byte) error {
	c, err := m.lookup(h)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if !c.open {
		c.pending = append(c.pending, payload)
		return nil
	}
	return c.write(payload)
}

// Close closes the connection identified by h. It is safe to call more
// than once and on handles that were already replaced. No events are
// published for the connection afterwards.
func (m *Manager) Close(h Handle) error {
	m.mu.Lock()
	c := m.current
	if c == nil || c.id != h.ID {
		m.mu.Unlock()
		return nil
	}
	m.current = nil
	m.mu.Unlock()

	m.log.Debug("closing connection", zap.String("handle", c.id))
	return c.close()
}

// Live returns the handle of the current connection, if any. A connection
// that closed on its own stays current until Close or the next Open.
func (m *Manager) Live() (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Handle{}, false
	}
	return Handle{ID: m.current.id}, true
}

func (m *Manager) lookup(h Handle) (*conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.id != h.ID {
		return nil, ErrStaleHandle
	}
	return m.current, nil
}

// run dials, then reads frames until the connection ends.
func (m *Manager) run(c *conn, endpoint string) {
	defer close(c.events)

	log := m.log.With(zap.String("handle", c.id))

	ws, _, err := m.dialer.DialContext(c.ctx, endpoint, nil)
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		log.Warn("dial failed", zap.String("endpoint", endpoint), zap.Error(err))
		c.emit(Event{Type: EventErrored, Err: fmt.Errorf("dial %s: %w", endpoint, err)})
		c.emit(Event{Type: EventClosed})
		return
	}

	if err := c.attach(ws); err != nil {
		if errors.Is(err, ErrClosed) {
			return
		}
		log.Warn("flush queued payload failed", zap.Error(err))
		c.emit(Event{Type: EventErrored, Err: err})
		c.emit(Event{Type: EventClosed})
		c.close()
		return
	}
	log.Debug("connection open", zap.String("endpoint", endpoint))

	if !c.emit(Event{Type: EventOpened}) {
		return
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Warn("websocket read error", zap.Error(err))
				c.emit(Event{Type: EventErrored, Err: err})
			}
			c.emit(Event{Type: EventClosed})
			c.close()
			return
		}

		if !c.emit(Event{Type: EventMessage, Data: data}) {
			return
		}
	}
}

// attach marks the connection open and flushes queued payloads.
func (c *conn) attach(ws *websocket.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		ws.Close()
		return ErrClosed
	}

	c.ws = ws
	c.open = true

	pending := c.pending
	c.pending = nil
	for _, payload := range pending {
		if err := c.write(payload); err != nil {
			return fmt.Errorf("write queued payload: %w", err)
		}
	}
	return nil
}

// write must be called with c.mu held.
func (c *conn) write(payload []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// emit publishes ev unless the connection has been closed locally.
func (c *conn) emit(ev Event) bool {
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// close sends a close frame when possible and releases the socket.
func (c *conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()

	if c.ws == nil {
		return nil
	}
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeDeadline))
	return c.ws.Close()
}
