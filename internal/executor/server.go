// Package executor is a reference implementation of the execute service:
// it accepts one request per websocket connection and streams the
// compile and run output back.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"livecode/internal/logger"
	"livecode/internal/protocol"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBufferCap = 256
	closeGrace    = time.Second
)

var errClientGone = errors.New("client disconnected")

// Server serves the execute websocket and its companion HTTP routes.
type Server struct {
	runner      *Runner
	metrics     *Metrics
	allowOrigin string
	log         *zap.Logger
	upgrader    websocket.Upgrader
}

type client struct {
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{} // closed when writePump exits
	readDone chan struct{} // closed when readPump exits
	log      *zap.Logger
}

// NewServer creates an executor server. allowOrigin is the browser origin
// permitted by CORS and the websocket origin check; "*" allows any.
func NewServer(runner *Runner, metrics *Metrics, allowOrigin string, log *zap.Logger) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	s := &Server{
		runner:      runner,
		metrics:     metrics,
		allowOrigin: allowOrigin,
		log:         logger.OrNop(log),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws/execute", s.handleExecute)

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /languages", s.handleLanguages)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.allowOrigin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// checkOrigin allows non-browser clients, which send no Origin header.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.allowOrigin == "*" || origin == s.allowOrigin
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, protocol.InfoResponse{Message: "Code Execution Engine API"})
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, protocol.LanguagesResponse{Languages: protocol.Languages()})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleExecute reads one request, runs it and closes the connection.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error", zap.Error(err))
		return
	}

	c := &client{
		conn:     conn,
		send:     make(chan []byte, sendBufferCap),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
		log:      s.log,
	}
	go c.writePump()

	ctx, cancel := context.WithCancel(context.Background())

	reading := false
	defer func() {
		// Flush, send the close frame, then give the client a moment to
		// answer it before dropping the socket.
		close(c.send)
		<-c.done
		if reading {
			select {
			case <-c.readDone:
			case <-time.After(closeGrace):
			}
		}
		conn.Close()
	}()
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			s.log.Warn("websocket read error", zap.Error(err))
		}
		return
	}

	reading = true
	go c.readPump(cancel)

	req, err := protocol.DecodeRequest(raw)
	if err != nil {
		c.sendMessage(ctx, protocol.KindError, "Server error: "+err.Error())
		return
	}

	language := req.Language.String()
	s.metrics.Active.Inc()
	start := time.Now()

	outcome, err := s.runner.Execute(ctx, *req, func(kind protocol.MessageKind, data string) error {
		return c.sendMessage(ctx, kind, data)
	})

	s.metrics.Active.Dec()
	if !req.Language.Valid() {
		language = "unsupported"
	}
	s.metrics.observe(language, outcome, time.Since(start))

	if err != nil {
		s.log.Info("client left during execution", zap.String("language", language), zap.Error(err))
		return
	}
	s.log.Info("execution finished",
		zap.String("language", language),
		zap.String("outcome", string(outcome)),
		zap.Duration("elapsed", time.Since(start)))
}

// sendMessage queues a frame for writePump, waiting if the buffer is full.
func (c *client) sendMessage(ctx context.Context, kind protocol.MessageKind, data string) error {
	msg, err := protocol.EncodeMessage(kind, data)
	if err != nil {
		return err
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return errClientGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readPump watches for the client going away once the request is in.
func (c *client) readPump(cancel context.CancelFunc) {
	defer close(c.readDone)
	defer cancel()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends a
// close frame once the send channel is closed.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("websocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
