package transport

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vinayprograms/pulselink/config"
	plerrors "github.com/vinayprograms/pulselink/errors"
	"github.com/vinayprograms/pulselink/telemetry"
)

// WebSocketTransport implements Transport over WebSocket.
type WebSocketTransport struct {
	conn    *websocket.Conn
	config  WebSocketConfig
	msgType int

	recv chan []byte
	done chan struct{}

	writeMu sync.Mutex // serializes writes
	mu      sync.Mutex // guards closed
	closed  bool

	statusOnce  sync.Once
	status      CloseStatus
	doneOnce    sync.Once
	releaseOnce sync.Once
	releaseErr  error
}

// WebSocketConfig holds WebSocket transport configuration.
type WebSocketConfig struct {
	Config // Embed base config

	// WriteTimeout for write operations.
	WriteTimeout time.Duration

	// HandshakeTimeout for dialing.
	HandshakeTimeout time.Duration

	// MaxMessageSize limits incoming message size.
	MaxMessageSize int64

	// Binary sends binary frames instead of text frames.
	Binary bool
}

// DefaultWebSocketConfig returns configuration with sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		Config:           DefaultConfig(),
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		MaxMessageSize:   1024 * 1024, // 1MB
	}
}

// WebSocketConfigFrom maps file configuration over the defaults.
// Binary frames are used for any content type other than JSON.
func WebSocketConfigFrom(c config.TransportConfig, contentType string) WebSocketConfig {
	cfg := DefaultWebSocketConfig()
	if c.WriteTimeout > 0 {
		cfg.WriteTimeout = c.WriteTimeout
	}
	if c.HandshakeTimeout > 0 {
		cfg.HandshakeTimeout = c.HandshakeTimeout
	}
	if c.MaxMessageSize > 0 {
		cfg.MaxMessageSize = c.MaxMessageSize
	}
	cfg.Binary = contentType != "" && contentType != "application/json"
	return cfg
}

// NewWebSocketTransport wraps an established connection and starts reading.
func NewWebSocketTransport(conn *websocket.Conn, cfg WebSocketConfig) *WebSocketTransport {
	if cfg.RecvBufferSize <= 0 {
		cfg.RecvBufferSize = DefaultConfig().RecvBufferSize
	}
	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	msgType := websocket.TextMessage
	if cfg.Binary {
		msgType = websocket.BinaryMessage
	}

	t := &WebSocketTransport{
		conn:    conn,
		config:  cfg,
		msgType: msgType,
		recv:    make(chan []byte, cfg.RecvBufferSize),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// NewWebSocketUpgrader creates an upgrader for accepting WebSocket connections.
// An empty origin list accepts any origin.
func NewWebSocketUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
				return true
			}
		}
		return false
	}
}

// Recv returns the channel for incoming frames.
func (t *WebSocketTransport) Recv() <-chan []byte {
	return t.recv
}

// Send writes one frame.
func (t *WebSocketTransport) Send(data []byte) error {
	t.writeMu.Lock()
	if t.isClosed() {
		t.writeMu.Unlock()
		return ErrClosed
	}
	if t.config.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
	}
	err := t.conn.WriteMessage(t.msgType, data)
	t.writeMu.Unlock()

	if err != nil && t.isClosed() {
		return ErrClosed
	}

	if err != nil {
		t.finish(CloseStatus{Code: CloseAbnormal, Err: err})
		t.release()
		return plerrors.Transport("websocket write", plerrors.WithCause(err))
	}
	return nil
}

// Close sends a close frame with code and releases the connection.
// A write stuck on a full socket is not waited for: the frame is skipped
// and releasing the connection fails the pending write.
func (t *WebSocketTransport) Close(code int, reason string) error {
	t.mu.Lock()
	wasOpen := !t.closed
	t.closed = true
	t.mu.Unlock()

	t.finish(CloseStatus{Code: code, Reason: reason, Local: true})

	if wasOpen && t.writeMu.TryLock() {
		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()
	}
	return t.release()
}

func (t *WebSocketTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Status reports why the link ended.
func (t *WebSocketTransport) Status() CloseStatus {
	select {
	case <-t.done:
	default:
		return CloseStatus{}
	}
	return t.status
}

// RemoteAddr returns the peer address.
func (t *WebSocketTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// readLoop reads frames until the link ends.
func (t *WebSocketTransport) readLoop() {
	defer close(t.recv)

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.finish(statusFromError(err))
			t.release()
			return
		}

		select {
		case t.recv <- data:
		case <-t.done:
			return
		}
	}
}

// finish records the first close status and marks the link unwritable.
func (t *WebSocketTransport) finish(s CloseStatus) {
	t.statusOnce.Do(func() {
		t.status = s
	})
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.doneOnce.Do(func() {
		close(t.done)
	})
}

func (t *WebSocketTransport) release() error {
	t.releaseOnce.Do(func() {
		t.releaseErr = t.conn.Close()
	})
	return t.releaseErr
}

// statusFromError maps a read error to a close status.
func statusFromError(err error) CloseStatus {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.CloseNormalClosure {
			return CloseStatus{Code: CloseNormal, Reason: ce.Text}
		}
		return CloseStatus{Code: ce.Code, Reason: ce.Text, Err: err}
	}
	return CloseStatus{Code: CloseAbnormal, Err: err}
}

// WebSocketDialer dials a fixed URL.
type WebSocketDialer struct {
	URL    string
	Header http.Header
	Config WebSocketConfig
}

// NewWebSocketDialer creates a dialer for url.
func NewWebSocketDialer(url string, cfg WebSocketConfig) *WebSocketDialer {
	return &WebSocketDialer{URL: url, Config: cfg}
}

// Dial opens a new WebSocket transport. Trace context in ctx travels in the
// handshake headers.
func (d *WebSocketDialer) Dial(ctx context.Context) (Transport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.Config.HandshakeTimeout,
	}
	header := d.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	telemetry.InjectHeader(ctx, header)

	conn, resp, err := dialer.DialContext(ctx, d.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, plerrors.Transport("dial "+d.URL, plerrors.WithCause(err))
	}
	return NewWebSocketTransport(conn, d.Config), nil
}
