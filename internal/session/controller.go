// Package session drives a single code execution against the remote
// executor and keeps the output it streams back.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"livecode/internal/logger"
	"livecode/internal/protocol"
	"livecode/internal/transport"
)

var errUnknownTransport = errors.New("unknown")

// Transport is the connection manager the controller drives.
// *transport.Manager satisfies it.
type Transport interface {
	Open(ctx context.Context, endpoint string) (transport.Handle, <-chan transport.Event)
	Send(h transport.Handle, payload []byte) error
	Close(h transport.Handle) error
}

// Controller runs at most one execution session at a time.
type Controller struct {
	transport Transport
	endpoint  string
	log       *zap.Logger
	onOutput  func(fragment string)

	mu         sync.Mutex
	state      State
	output     *OutputLog
	handle     transport.Handle
	request    []byte
	seq        uint64
	terminated bool
	err        error
	stop       chan struct{}
	done       chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = logger.OrNop(l) }
}

// WithOutputHook registers fn to receive every fragment appended to the
// output log, in order. fn runs with the controller locked and must not
// call back into it.
func WithOutputHook(fn func(fragment string)) Option {
	return func(c *Controller) { c.onOutput = fn }
}

// NewController creates an idle controller that connects to endpoint.
func NewController(t Transport, endpoint string, opts ...Option) *Controller {
	done := make(chan struct{})
	close(done)

	c := &Controller{
		transport: t,
		endpoint:  endpoint,
		log:       zap.NewNop(),
		state:     StateIdle,
		output:    NewOutputLog(),
		done:      done,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins a new session for req. While a session is connecting or
// running the call is ignored. It returns once the connection attempt is
// issued; an error means req could not be encoded and nothing changed.
func (c *Controller) Start(req protocol.ExecutionRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Active() {
		c.log.Debug("start ignored, session in progress", zap.String("state", c.state.String()))
		return nil
	}

	payload, err := protocol.EncodeRequest(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	if err := c.teardownLocked(); err != nil {
		c.log.Warn("close previous connection failed", zap.Error(err))
	}

	c.output.Reset()
	c.state = StateConnecting
	c.request = payload
	c.terminated = false
	c.err = nil

	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop = stop
	c.done = done

	h, events := c.transport.Open(context.Background(), c.endpoint)
	c.handle = h
	seq := c.seq

	c.log.Info("session started",
		zap.String("handle", h.ID),
		zap.String("language", req.Language.String()),
		zap.Int("codeBytes", len(req.Code)))

	go c.consume(seq, events, stop, done)
	return nil
}

// Close tears the current session down: the connection is closed and no
// further events are applied. The state is left as it was.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teardownLocked()
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsExecuting reports whether a session is connecting or running.
func (c *Controller) IsExecuting() bool {
	return c.State().Active()
}

// Output returns the session's output log as one string.
func (c *Controller) Output() string {
	return c.output.Snapshot()
}

// Lines returns the session's output fragments.
func (c *Controller) Lines() []string {
	return c.output.Lines()
}

// Err returns the connection error the current or last session ran
// into, or nil. Error messages from the executor are not connection
// errors and do not set it.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done returns a channel that is closed when the current session stops
// receiving events, either because its connection ended or because it was
// torn down. Before the first Start the channel is already closed.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Controller) consume(seq uint64, events <-chan transport.Event, stop <-chan struct{}, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.dispatch(seq, ev)
		}
	}
}

func (c *Controller) dispatch(seq uint64, ev transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Events from a torn down or replaced session are dropped.
	if seq != c.seq {
		return
	}

	switch ev.Type {
	case transport.EventOpened:
		if c.state == StateConnecting {
			c.state = StateRunning
		}
		payload := c.request
		c.request = nil
		if payload == nil {
			return
		}
		if err := c.transport.Send(c.handle, payload); err != nil {
			c.log.Warn("send request failed", zap.String("handle", c.handle.ID), zap.Error(err))
			c.appendLocked(errorLine("connection error: " + err.Error()))
			c.err = err
			c.state = StateFailed
		}

	case transport.EventMessage:
		msg, err := protocol.DecodeMessage(ev.Data)
		if err != nil {
			c.log.Warn("dropping malformed message", zap.String("handle", c.handle.ID), zap.Error(err))
			c.appendLocked(errorLine("protocol error: " + err.Error()))
			return
		}
		if c.state == StateConnecting {
			c.state = StateRunning
		}
		c.appendLocked(formatMessage(msg))

	case transport.EventErrored:
		err := ev.Err
		if err == nil {
			err = errUnknownTransport
		}
		c.appendLocked(errorLine("connection error: " + err.Error()))
		c.err = err
		c.state = StateFailed

	case transport.EventClosed:
		if !c.terminated {
			c.appendLocked(TerminalMarker)
			c.terminated = true
		}
		c.log.Info("session finished", zap.String("handle", c.handle.ID), zap.String("from", c.state.String()))
		c.state = StateFinished
	}
}

// appendLocked must be called with c.mu held.
func (c *Controller) appendLocked(fragment string) {
	c.output.Append(fragment)
	if c.onOutput != nil {
		c.onOutput(fragment)
	}
}

// teardownLocked must be called with c.mu held.
func (c *Controller) teardownLocked() error {
	c.seq++
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.handle.IsZero() {
		return nil
	}
	h := c.handle
	c.handle = transport.Handle{}
	c.request = nil
	return c.transport.Close(h)
}
