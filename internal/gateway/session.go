package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sonroyaalmerol/calliope/internal/rest"
)

const (
	ClientName = "Calliope/1.0.0"

	DefaultReconnectInterval = 5 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateResuming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateResuming:
		return "resuming"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

type Config struct {
	// Address is the node's HTTP address, e.g. http://localhost:2333.
	Address  string
	Password string
	UserID   snowflake.ID
	// SessionID, when set, is offered to the node for resuming.
	SessionID         string
	ReconnectInterval time.Duration
	HandshakeTimeout  time.Duration
}

// Session owns the websocket to the node. It dials, waits for the ready
// frame, feeds every later frame to the router and, when the link drops,
// reconnects offering the last session id.
type Session struct {
	cfg     Config
	router  *Router
	dialer  *websocket.Dialer
	limiter *rate.Limiter

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	sessionID string
	closed    bool
	onState   func(State)
}

func NewSession(cfg Config, router *Router) *Session {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Session{
		cfg:       cfg,
		router:    router,
		dialer:    &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		limiter:   rate.NewLimiter(rate.Every(cfg.ReconnectInterval), 1),
		sessionID: cfg.SessionID,
	}
}

// URL maps the node's http(s) address to its websocket endpoint.
func (s *Session) URL() string {
	addr := strings.TrimRight(s.cfg.Address, "/")
	return "ws" + strings.TrimPrefix(addr, "http") + "/v4/websocket"
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// OnStateChange registers fn to be called on every state transition.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.closed && st != StateClosed {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = st
	fn := s.onState
	s.mu.Unlock()
	if prev != st {
		slog.Debug("session state", "from", prev, "to", st)
		if fn != nil {
			fn(st)
		}
	}
}

func (s *Session) headers(sessionID string) http.Header {
	h := http.Header{}
	h.Set("Authorization", s.cfg.Password)
	h.Set("User-Id", s.cfg.UserID.String())
	h.Set("Client-Name", ClientName)
	if sessionID != "" {
		h.Set("Session-Id", sessionID)
	}
	return h
}

// Connect makes one connection attempt and returns once the node sent its
// ready frame. Frames after that are read on a background goroutine; the
// returned channel yields the error that ended it.
func (s *Session) Connect(ctx context.Context) (<-chan error, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	resume := s.sessionID
	s.mu.Unlock()

	s.setState(StateConnecting)
	if resume != "" {
		s.setState(StateResuming)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.URL(), s.headers(resume))
	if err != nil {
		s.setState(StateDisconnected)
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: websocket handshake", rest.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, s.URL(), err)
	}
	s.setState(StateAuthenticating)

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		s.setState(StateDisconnected)
		return nil, fmt.Errorf("%w: waiting for ready: %w", ErrTransport, err)
	}
	f, err := ParseFrame(raw)
	if err == nil && f.Kind != FrameReady {
		err = fmt.Errorf("%w: first frame was %q, not ready", ErrProtocolViolation, f.Op)
	}
	if err != nil {
		_ = conn.Close()
		s.setState(StateDisconnected)
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	s.conn = conn
	s.sessionID = f.Ready.SessionID
	s.mu.Unlock()

	slog.Info("connected to node", "url", s.URL(), "sessionID", f.Ready.SessionID, "resumed", f.Ready.Resumed)
	s.router.Route(f)
	s.setState(StateReady)

	done := make(chan error, 1)
	go func() { done <- s.readLoop(conn) }()
	return done, nil
}

func (s *Session) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
		f, err := ParseFrame(raw)
		if err != nil {
			slog.Warn("dropping malformed frame", "err", err)
			continue
		}
		if f.Kind == FrameReady {
			s.mu.Lock()
			s.sessionID = f.Ready.SessionID
			s.mu.Unlock()
		}
		s.router.Route(f)
	}
}

// Run connects and keeps the session alive until ctx ends or Close is
// called. Reconnects are paced by the reconnect interval and resume the
// previous session. A rejected password or a node that does not start with
// ready stops Run with that error.
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return s.exitErr(ctx)
		}
		done, err := s.Connect(ctx)
		if err != nil {
			if s.isClosed() {
				return s.exitErr(ctx)
			}
			if errors.Is(err, rest.ErrUnauthorized) || errors.Is(err, ErrProtocolViolation) {
				slog.Error("node refused session", "err", err)
				_ = s.Close()
				return err
			}
			slog.Warn("node connection failed, retrying", "err", err, "in", s.cfg.ReconnectInterval)
			continue
		}

		err = <-done
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		if s.isClosed() {
			return s.exitErr(ctx)
		}
		s.setState(StateDisconnected)
		slog.Warn("node connection lost, reconnecting", "err", err)
	}
}

func (s *Session) exitErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close ends the session for good; Run will not reconnect.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.setState(StateClosed)
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}
