// Package realtime owns the client side of the push channel: one logical
// WebSocket connection per authenticated session, with an authenticated
// handshake, reconnection backoff and deliberate teardown.
package realtime

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go-hivechat/internal/infrastructure/logging"
	"go-hivechat/internal/infrastructure/metrics"
	authport "go-hivechat/internal/pkg/auth/port"
	chat "go-hivechat/internal/pkg/chat/domain"
)

// State is the transport lifecycle position.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	// StateClosed is the persistent disconnected state entered once the
	// retry budget is exhausted. A deliberate Close returns to StateIdle
	// instead.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	defaultBaseDelay   = 1 * time.Second
	defaultMaxAttempts = 5
	dialTimeout        = 10 * time.Second
)

// FrameHandler consumes one raw inbound frame.
type FrameHandler func(data []byte)

// StateHandler observes transport state transitions.
type StateHandler func(s State)

// Session maintains exactly one live WebSocket connection. On unexpected
// close it schedules reconnects with delay = base x attempt up to the
// attempt cap; at most one reconnect timer is ever pending, and a new Open
// or a Close cancels it.
type Session struct {
	wsURL  string
	tokens authport.TokenSource
	frames FrameHandler
	dialer *websocket.Dialer

	baseDelay   time.Duration
	maxAttempts int
	metrics     *metrics.Set

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	attempt int
	timer   *time.Timer
	gen     int // connection generation; stale reader exits are ignored

	subMu sync.Mutex
	subs  []StateHandler

	// transitions are delivered to observers from a single goroutine so
	// they arrive in the order they happened.
	notify chan State
}

// Option configures a Session.
type Option func(*Session)

// WithBackoff overrides the reconnect base delay and attempt cap.
func WithBackoff(base time.Duration, maxAttempts int) Option {
	return func(s *Session) {
		if base > 0 {
			s.baseDelay = base
		}
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
	}
}

// WithDialer overrides the websocket dialer (tests, proxies).
func WithDialer(d *websocket.Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithMetrics attaches transport counters.
func WithMetrics(m *metrics.Set) Option {
	return func(s *Session) { s.metrics = m }
}

// NewSession constructs a Session for wsURL (e.g. wss://host/ws). frames is
// invoked from the reader goroutine for every inbound frame.
func NewSession(wsURL string, tokens authport.TokenSource, frames FrameHandler, opts ...Option) *Session {
	s := &Session{
		wsURL:       wsURL,
		tokens:      tokens,
		frames:      frames,
		dialer:      websocket.DefaultDialer,
		baseDelay:   defaultBaseDelay,
		maxAttempts: defaultMaxAttempts,
		state:       StateIdle,
		notify:      make(chan State, 64),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.notifyLoop()
	return s
}

// notifyLoop serializes observer delivery: one transition at a time, in
// transition order.
func (s *Session) notifyLoop() {
	for next := range s.notify {
		s.subMu.Lock()
		subs := make([]StateHandler, len(s.subs))
		copy(subs, s.subs)
		s.subMu.Unlock()
		for _, fn := range subs {
			if fn != nil {
				fn(next)
			}
		}
	}
}

// OnState registers a transition observer and returns an unsubscribe
// function. The current state is not replayed.
func (s *Session) OnState(fn StateHandler) func() {
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	idx := len(s.subs) - 1
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if idx < len(s.subs) {
			s.subs[idx] = nil
		}
	}
}

// State returns the current lifecycle position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open establishes the connection. The bearer token is appended as a query
// credential; a missing token fails with the auth error before any dial. A
// successful open resets the reconnect counter. Any pending reconnect timer
// is cancelled first.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateOpen || s.state == StateConnecting {
		s.mu.Unlock()
		return nil
	}
	s.cancelTimerLocked()
	s.attempt = 0
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	if err := s.dial(ctx); err != nil {
		s.mu.Lock()
		s.setStateLocked(StateIdle)
		s.mu.Unlock()
		return err
	}
	return nil
}

// dial performs one connection attempt and, on success, installs the
// connection and starts its reader. The install step re-checks the
// connection generation: a Close (or a competing dial) that landed while
// the handshake was in flight wins, and the fresh connection is discarded
// instead of resurrecting the session.
func (s *Session) dial(ctx context.Context) error {
	if s.tokens == nil {
		return fmt.Errorf("%w: no token source", chat.ErrAuth)
	}
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", chat.ErrAuth, err)
	}
	if token == "" {
		return fmt.Errorf("%w: empty bearer token", chat.ErrAuth)
	}

	s.mu.Lock()
	expectGen := s.gen
	s.mu.Unlock()

	target := s.wsURL + "?token=" + url.QueryEscape(token)
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := s.dialer.DialContext(dctx, target, nil)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", chat.ErrNetwork, s.wsURL, err)
	}

	s.mu.Lock()
	superseded := s.gen != expectGen ||
		(s.state != StateConnecting && s.state != StateReconnecting)
	if superseded {
		s.mu.Unlock()
		logging.Log.Info("discarding superseded dial", "url", s.wsURL)
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.attempt = 0
	s.gen++
	gen := s.gen
	s.setStateLocked(StateOpen)
	s.mu.Unlock()

	go s.readLoop(conn, gen)
	return nil
}

// readLoop pumps inbound frames until the connection dies, then hands off
// to the reconnect logic unless this reader belongs to a superseded
// connection.
func (s *Session) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleClosed(gen, err)
			return
		}
		if s.metrics != nil {
			s.metrics.FramesTotal.Inc()
		}
		if s.frames != nil {
			s.frames(data)
		}
	}
}

// handleClosed reacts to a dead connection: schedule the next backed-off
// attempt while budget remains, otherwise surface the persistent
// disconnected state.
func (s *Session) handleClosed(gen int, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state == StateIdle || s.state == StateClosed {
		// Deliberate close or superseded connection.
		return
	}
	s.conn = nil
	logging.Log.Warn("realtime connection lost", "err", cause)
	s.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the single reconnect timer. Caller holds
// s.mu.
func (s *Session) scheduleReconnectLocked() {
	if s.attempt >= s.maxAttempts {
		s.setStateLocked(StateClosed)
		logging.Log.Error("reconnect budget exhausted", "attempts", s.attempt)
		return
	}
	s.attempt++
	delay := time.Duration(s.attempt) * s.baseDelay
	s.setStateLocked(StateReconnecting)
	if s.metrics != nil {
		s.metrics.ReconnectsTotal.Inc()
	}
	logging.Log.Info("scheduling reconnect",
		"attempt", s.attempt, "max", s.maxAttempts, "delay", delay)

	s.cancelTimerLocked()
	s.timer = time.AfterFunc(delay, s.reconnect)
}

// reconnect is the timer callback: one dial attempt, rescheduling itself on
// failure until the budget runs out.
func (s *Session) reconnect() {
	s.mu.Lock()
	if s.state != StateReconnecting {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	if err := s.dial(context.Background()); err != nil {
		logging.Log.Warn("reconnect attempt failed", "err", err)
		s.mu.Lock()
		if s.state == StateReconnecting {
			s.scheduleReconnectLocked()
		}
		s.mu.Unlock()
	}
}

// Close is the deliberate teardown: it disables reconnect logic, cancels
// any pending timer and returns the session to the idle state, from which
// Open may be called again.
func (s *Session) Close() {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.gen++ // orphan the current reader so its exit is ignored
	conn := s.conn
	s.conn = nil
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"), deadline)
		_ = conn.Close()
	}
}

func (s *Session) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// setStateLocked updates state and fans the transition out to observers.
// Caller holds s.mu; observers run without it.
func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.state = next
	if s.metrics != nil {
		s.metrics.ConnectionState.Set(float64(next))
	}

	select {
	case s.notify <- next:
	default:
		// A subscriber stalled long enough to back up the queue; dropping
		// here beats deadlocking under s.mu.
		logging.Log.Warn("state transition dropped, observer queue full", "state", next)
	}
}
