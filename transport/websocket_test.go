package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vinayprograms/pulselink/config"
)

// --- Unit Tests ---

func TestWebSocketConfig_Defaults(t *testing.T) {
	cfg := DefaultWebSocketConfig()
	if cfg.MaxMessageSize != 1024*1024 {
		t.Errorf("MaxMessageSize = %d, want 1MB", cfg.MaxMessageSize)
	}
	if cfg.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s", cfg.WriteTimeout)
	}
	if cfg.RecvBufferSize != 100 {
		t.Errorf("RecvBufferSize = %d, want 100", cfg.RecvBufferSize)
	}
}

func TestWebSocketConfigFrom(t *testing.T) {
	cfg := WebSocketConfigFrom(config.TransportConfig{WriteTimeout: 2 * time.Second}, "application/cbor")
	if cfg.WriteTimeout != 2*time.Second {
		t.Errorf("WriteTimeout = %v, want 2s", cfg.WriteTimeout)
	}
	if cfg.HandshakeTimeout != 5*time.Second {
		t.Errorf("HandshakeTimeout = %v, want default 5s", cfg.HandshakeTimeout)
	}
	if !cfg.Binary {
		t.Error("cbor content should use binary frames")
	}
	if WebSocketConfigFrom(config.TransportConfig{}, "application/json").Binary {
		t.Error("json content should use text frames")
	}
}

func TestCloseStatus_Normal(t *testing.T) {
	tests := []struct {
		name   string
		status CloseStatus
		want   bool
	}{
		{"normal", CloseStatus{Code: CloseNormal}, true},
		{"going away", CloseStatus{Code: CloseGoingAway}, false},
		{"abnormal", CloseStatus{Code: CloseAbnormal}, false},
		{"normal code with error", CloseStatus{Code: CloseNormal, Err: errors.New("x")}, false},
		{"zero", CloseStatus{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Normal(); got != tt.want {
				t.Errorf("Normal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no list allows all", nil, "http://evil.example", true},
		{"no origin header", []string{"app.example"}, "", true},
		{"host match", []string{"app.example"}, "http://app.example", true},
		{"full origin match", []string{"http://app.example"}, "http://app.example", true},
		{"wildcard", []string{"*"}, "http://other.example", true},
		{"mismatch", []string{"app.example"}, "http://other.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("check(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

// --- Integration Tests ---

// newWSServer starts a server that hands each accepted transport to a channel.
func newWSServer(t *testing.T) (*httptest.Server, <-chan *WebSocketTransport) {
	t.Helper()
	upgrader := NewWebSocketUpgrader(nil)
	accepted := make(chan *WebSocketTransport, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade error: %v", err)
			return
		}
		accepted <- NewWebSocketTransport(conn, DefaultWebSocketConfig())
	}))
	t.Cleanup(server.Close)
	return server, accepted
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitAccepted(t *testing.T, ch <-chan *WebSocketTransport) *WebSocketTransport {
	t.Helper()
	select {
	case tr := <-ch:
		return tr
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for server transport")
		return nil
	}
}

// waitEnded drains tr until its receive channel closes.
func waitEnded(t *testing.T, tr Transport) CloseStatus {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-tr.Recv():
			if !ok {
				return tr.Status()
			}
		case <-deadline:
			t.Fatal("timeout waiting for transport to end")
			return CloseStatus{}
		}
	}
}

func TestWebSocketTransport_RoundTrip(t *testing.T) {
	server, accepted := newWSServer(t)

	dialer := NewWebSocketDialer(wsURL(server), DefaultWebSocketConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := dialer.Dial(ctx)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer client.Close(CloseNormal, "")

	srv := waitAccepted(t, accepted)
	defer srv.Close(CloseNormal, "")

	if err := client.Send([]byte(`{"type":"heartbeat"}`)); err != nil {
		t.Fatalf("client send: %v", err)
	}

	select {
	case data := <-srv.Recv():
		if string(data) != `{"type":"heartbeat"}` {
			t.Errorf("server got %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame on server")
	}

	if err := srv.Send([]byte(`{"type":"ack","id":"1"}`)); err != nil {
		t.Fatalf("server send: %v", err)
	}

	select {
	case data := <-client.Recv():
		if string(data) != `{"type":"ack","id":"1"}` {
			t.Errorf("client got %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame on client")
	}

	if client.RemoteAddr() == "" {
		t.Error("RemoteAddr should not be empty")
	}
}

func TestWebSocketTransport_NormalClose(t *testing.T) {
	server, accepted := newWSServer(t)

	client, err := NewWebSocketDialer(wsURL(server), DefaultWebSocketConfig()).Dial(context.Background())
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	srv := waitAccepted(t, accepted)

	if err := client.Close(CloseNormal, "bye"); err != nil {
		t.Fatalf("close: %v", err)
	}

	status := waitEnded(t, srv)
	if !status.Normal() {
		t.Errorf("server status = %v, want normal", status)
	}
	if status.Local {
		t.Error("server status should be remote")
	}
	if status.Reason != "bye" {
		t.Errorf("Reason = %q, want bye", status.Reason)
	}

	local := waitEnded(t, client)
	if !local.Local || local.Code != CloseNormal {
		t.Errorf("client status = %v, want local 1000", local)
	}
}

func TestWebSocketTransport_CustomCodeIsAbnormal(t *testing.T) {
	server, accepted := newWSServer(t)

	client, err := NewWebSocketDialer(wsURL(server), DefaultWebSocketConfig()).Dial(context.Background())
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	srv := waitAccepted(t, accepted)

	client.Close(4000, "custom")

	status := waitEnded(t, srv)
	if status.Code != 4000 {
		t.Errorf("Code = %d, want 4000", status.Code)
	}
	if status.Normal() {
		t.Error("custom code should not be normal")
	}
}

func TestWebSocketTransport_DroppedConnection(t *testing.T) {
	server, accepted := newWSServer(t)

	raw, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	srv := waitAccepted(t, accepted)

	// Drop TCP without a close frame
	raw.Close()

	status := waitEnded(t, srv)
	if status.Code != CloseAbnormal {
		t.Errorf("Code = %d, want %d", status.Code, CloseAbnormal)
	}
	if status.Err == nil {
		t.Error("dropped connection should carry an error")
	}
	if status.Normal() {
		t.Error("dropped connection should not be normal")
	}
}

func TestWebSocketTransport_SendAfterClose(t *testing.T) {
	server, accepted := newWSServer(t)

	client, err := NewWebSocketDialer(wsURL(server), DefaultWebSocketConfig()).Dial(context.Background())
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	srv := waitAccepted(t, accepted)
	defer srv.Close(CloseNormal, "")

	client.Close(CloseNormal, "")
	if err := client.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}

	// Second close is a no-op
	client.Close(CloseGoingAway, "")
	if client.Status().Code != CloseNormal {
		t.Errorf("status code changed to %d", client.Status().Code)
	}
}

func TestWebSocketTransport_CloseDuringWrite(t *testing.T) {
	server, accepted := newWSServer(t)

	dialed, err := NewWebSocketDialer(wsURL(server), DefaultWebSocketConfig()).Dial(context.Background())
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	srv := waitAccepted(t, accepted)
	defer srv.Close(CloseNormal, "")

	client := dialed.(*WebSocketTransport)

	// Hold the write lock as a write stuck on a full socket would.
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	done := make(chan struct{})
	go func() {
		client.Close(CloseNormal, "")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Close waited for the in-flight write")
	}
	if client.Status().Code != CloseNormal {
		t.Errorf("status code = %d, want %d", client.Status().Code, CloseNormal)
	}
}

func TestWebSocketDialer_Refused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(server)
	server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := NewWebSocketDialer(url, DefaultWebSocketConfig()).Dial(ctx); err == nil {
		t.Error("expected dial error")
	}
}
