// Package transport owns the single websocket connection of a project session.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xiaoyuanzhu-com/buildchat/auth"
	"github.com/xiaoyuanzhu-com/buildchat/log"
)

var (
	// ErrAuthenticationMissing is returned by Connect when no token is available; nothing is dialed
	ErrAuthenticationMissing = errors.New("authentication token missing")

	// ErrConnectTimeout is returned when the socket does not open within the open timeout
	ErrConnectTimeout = errors.New("websocket open timed out")

	// ErrNotConnected is returned by Send when the socket is not open
	ErrNotConnected = errors.New("websocket is not connected")

	// ErrAlreadyConnected is returned when Connect is called more than once
	ErrAlreadyConnected = errors.New("transport already used")

	// ErrDisconnected is returned by Connect when Disconnect won the race against the dial
	ErrDisconnected = errors.New("transport disconnected")
)

// DefaultOpenTimeout bounds the wait for the socket to open
const DefaultOpenTimeout = 5 * time.Second

// CloseAbnormal is reported when the socket dropped without a close frame
const CloseAbnormal = websocket.CloseAbnormalClosure

// State is the lifecycle state of a Transport
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
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
	default:
		return "closed"
	}
}

// Handler receives transport lifecycle events. Callbacks run on the
// transport's goroutines and must not block or call Disconnect.
type Handler interface {
	OnOpen()
	OnFrame(data []byte)
	OnClose(code int, reason string)
	OnError(err error)
}

// Config configures a Transport
type Config struct {
	URL          string // ws(s)://host/session/<id>, without the token
	Tokens       auth.TokenProvider
	OpenTimeout  time.Duration
	WriteTimeout time.Duration
	Dialer       *websocket.Dialer
}

// Transport is a one-shot websocket connection: Connect at most once,
// Disconnect exactly once.
type Transport struct {
	cfg     Config
	handler Handler

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	writeMu sync.Mutex

	// deliverMu serialises callbacks against Disconnect so that no callback
	// starts after Disconnect returns.
	deliverMu sync.RWMutex
	stopped   bool
}

// New creates a transport; nothing is dialed until Connect
func New(cfg Config, handler Handler) *Transport {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Dialer == nil {
		// The open timeout is enforced through the dial context
		cfg.Dialer = &websocket.Dialer{Proxy: websocket.DefaultDialer.Proxy}
	}
	return &Transport{cfg: cfg, handler: handler}
}

// Endpoint maps an http(s) API base URL onto the ws(s) session endpoint
func Endpoint(baseURL, socketPath, sessionID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Trim(socketPath, "/") + "/" + sessionID
	u.RawQuery = ""
	return u.String(), nil
}

// State returns the current lifecycle state
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connect dials the endpoint and starts delivering frames. It blocks until
// the socket is open, the open timeout elapses, or ctx is done.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateIdle {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.state = StateConnecting
	t.mu.Unlock()

	// The open timeout covers the token lookup as well as the dial
	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.OpenTimeout)
	defer cancel()

	token := ""
	if t.cfg.Tokens != nil {
		tok, err := t.cfg.Tokens.Token(dialCtx)
		if err != nil && !errors.Is(err, auth.ErrNoToken) {
			if dialCtx.Err() != nil {
				return t.fail(t.openError(ctx, dialCtx, err))
			}
			log.Warn().Err(err).Msg("token provider failed")
		}
		token = tok
	}
	if token == "" {
		t.setState(StateClosed)
		return ErrAuthenticationMissing
	}

	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		t.setState(StateClosed)
		return fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	log.Debug().Str("url", t.cfg.URL).Msg("dialing session socket")

	conn, resp, err := t.cfg.Dialer.DialContext(dialCtx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return t.fail(t.openError(ctx, dialCtx, fmt.Errorf("dial %s: %w", t.cfg.URL, err)))
	}

	t.mu.Lock()
	if t.state != StateConnecting {
		// Disconnect ran while dialing
		t.mu.Unlock()
		conn.Close()
		return ErrDisconnected
	}
	t.conn = conn
	t.state = StateOpen
	t.mu.Unlock()

	log.Debug().Str("url", t.cfg.URL).Msg("session socket open")

	t.deliver(func(h Handler) { h.OnOpen() })
	go t.readLoop(conn)
	return nil
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			code, reason := closeInfo(err)
			var ce *websocket.CloseError
			if !errors.As(err, &ce) && !t.isStopped() {
				t.deliver(func(h Handler) { h.OnError(err) })
			}
			t.setState(StateClosed)
			log.Debug().Int("code", code).Str("reason", reason).Msg("session socket closed")
			t.deliver(func(h Handler) { h.OnClose(code, reason) })
			return
		}
		if messageType != websocket.TextMessage {
			log.Debug().Int("messageType", messageType).Msg("ignoring non-text frame")
			continue
		}
		t.deliver(func(h Handler) { h.OnFrame(data) })
	}
}

// openError reports err as ErrConnectTimeout when the open deadline expired
// while the caller's ctx is still live
func (t *Transport) openError(ctx, dialCtx context.Context, err error) error {
	if isTimeout(dialCtx, err) && ctx.Err() == nil {
		return fmt.Errorf("%w after %s", ErrConnectTimeout, t.cfg.OpenTimeout)
	}
	return err
}

func (t *Transport) fail(err error) error {
	t.setState(StateClosed)
	t.deliver(func(h Handler) { h.OnError(err) })
	return err
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func closeInfo(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return CloseAbnormal, err.Error()
}

// Send JSON-encodes v into one text frame. It returns ErrNotConnected
// instead of writing when the socket is not open.
func (t *Transport) Send(v any) error {
	t.mu.Lock()
	conn := t.conn
	open := t.state == StateOpen
	t.mu.Unlock()

	if !open || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// Disconnect closes the socket. It is idempotent, safe before or during
// Connect, and no handler callback runs after it returns.
func (t *Transport) Disconnect() {
	t.deliverMu.Lock()
	already := t.stopped
	t.stopped = true
	t.deliverMu.Unlock()
	if already {
		return
	}

	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.state = StateClosed
	t.mu.Unlock()

	if conn == nil {
		return
	}
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		log.Debug().Err(err).Msg("close frame not sent")
	}
	conn.Close()
}

func (t *Transport) setState(s State) {
	t.mu.Lock()
	if t.state != StateClosed {
		t.state = s
	}
	t.mu.Unlock()
}

func (t *Transport) isStopped() bool {
	t.deliverMu.RLock()
	defer t.deliverMu.RUnlock()
	return t.stopped
}

func (t *Transport) deliver(fn func(Handler)) {
	t.deliverMu.RLock()
	defer t.deliverMu.RUnlock()
	if t.stopped || t.handler == nil {
		return
	}
	fn(t.handler)
}
