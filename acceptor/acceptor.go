package acceptor

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/pulselink/bus"
	"github.com/vinayprograms/pulselink/config"
	"github.com/vinayprograms/pulselink/connection"
	"github.com/vinayprograms/pulselink/dispatch"
	"github.com/vinayprograms/pulselink/envelope"
	"github.com/vinayprograms/pulselink/heartbeat"
	"github.com/vinayprograms/pulselink/logging"
	"github.com/vinayprograms/pulselink/metrics"
	"github.com/vinayprograms/pulselink/ratelimit"
	"github.com/vinayprograms/pulselink/registry"
	"github.com/vinayprograms/pulselink/telemetry"
	"github.com/vinayprograms/pulselink/transport"
)

// Common errors.
var (
	ErrShuttingDown = stderrors.New("acceptor shutting down")
)

// Config configures a Server.
type Config struct {
	// Listen address for ListenAndServe.
	// Default: ":8080"
	Listen string

	// Path of the upgrade endpoint.
	// Default: "/ws"
	Path string

	// AllowedOrigins for CORS and the upgrade origin check. Empty allows all.
	AllowedOrigins []string

	// Admission limits upgrades per client IP. Zero capacity disables it.
	Admission ratelimit.Config

	Heartbeat heartbeat.Config
	Codec     envelope.Codec
	Transport transport.WebSocketConfig

	// Handlers receive traffic from every peer. Data is acked regardless
	// of the handler result.
	Handlers dispatch.Handlers

	// Bus receives a DataRecord per Data envelope when set.
	Bus     bus.MessageBus
	Subject string

	MetricsEnabled bool
	MetricsPath    string

	// OnConnect and OnDisconnect observe peer lifetime. They must not block.
	OnConnect    func(peer *connection.Connection)
	OnDisconnect func(peer *connection.Connection, t connection.Transition)

	Logger  *logging.Logger
	Metrics *metrics.Recorder
	Tracer  *telemetry.Tracer
}

// ConfigFrom maps file configuration. Handlers, Bus and observability
// collaborators are left for the caller.
func ConfigFrom(cfg *config.Config) (Config, error) {
	codec, err := envelope.ByName(cfg.Codec)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Listen:         cfg.Acceptor.Listen,
		Path:           cfg.Acceptor.Path,
		AllowedOrigins: cfg.Acceptor.AllowedOrigins,
		Admission:      ratelimit.FromConfig(cfg.Acceptor),
		Heartbeat:      heartbeat.FromConfig(cfg.Heartbeat),
		Codec:          codec,
		Transport:      transport.WebSocketConfigFrom(cfg.Transport, codec.ContentType()),
		Subject:        cfg.Bus.Subject,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	}, nil
}

// Server accepts WebSocket links and keeps them in a peer registry.
type Server struct {
	config   Config
	engine   *gin.Engine
	upgrader *websocket.Upgrader
	limiter  *ratelimit.Limiter
	peers    *registry.PeerRegistry
	sink     *bus.Sink
	started  time.Time

	logger  *logging.Logger
	metrics *metrics.Recorder
	tracer  *telemetry.Tracer

	// base outlives requests; connections run under it.
	base   context.Context
	cancel context.CancelFunc

	shuttingDown atomic.Bool
	mu           sync.Mutex
	httpServer   *http.Server
}

// New builds a server and its routes. It does not listen.
func New(cfg Config) (*Server, error) {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Codec == nil {
		cfg.Codec = envelope.JSON()
	}
	if cfg.Transport.RecvBufferSize == 0 && cfg.Transport.WriteTimeout == 0 {
		cfg.Transport = transport.DefaultWebSocketConfig()
	}

	hb := cfg.Heartbeat
	hb.Send = func() error { return nil }
	if err := hb.Validate(); err != nil {
		return nil, err
	}
	limiter, err := ratelimit.New(cfg.Admission)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.GetTracer()
	}

	base, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:   cfg,
		upgrader: transport.NewWebSocketUpgrader(cfg.AllowedOrigins),
		limiter:  limiter,
		sink:     bus.NewSink(cfg.Bus, cfg.Subject),
		started:  time.Now(),
		logger:   logger.WithComponent("acceptor"),
		metrics:  rec,
		tracer:   tracer,
		base:     base,
		cancel:   cancel,
	}
	s.peers = registry.New(registry.Config{Logger: logger, Metrics: rec})
	s.engine = s.router()
	return s, nil
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))
	r.Use(metrics.RequestMetricsMiddleware(s.metrics))
	r.Use(corsMiddleware(s.config.AllowedOrigins))

	r.GET(s.config.Path, s.handleUpgrade)
	r.GET("/healthz", s.handleHealth)
	r.GET("/peers", s.handlePeers)
	if s.config.MetricsEnabled {
		r.GET(s.config.MetricsPath, gin.WrapH(s.metrics.Handler()))
	}
	return r
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Registry returns the live peer table.
func (s *Server) Registry() *registry.PeerRegistry {
	return s.peers
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	code := http.StatusOK
	if s.shuttingDown.Load() {
		status = "shutting_down"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"peers":  s.peers.Len(),
	})
}

func (s *Server) handlePeers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"peers": s.peers.Snapshot()})
}

func (s *Server) handleUpgrade(c *gin.Context) {
	if s.shuttingDown.Load() {
		s.metrics.UpgradeRejected("shutting_down")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": ErrShuttingDown.Error()})
		return
	}
	if !s.limiter.Allow(c.ClientIP()) {
		s.metrics.UpgradeRejected("rate_limited")
		s.logger.Warn("upgrade rate limited", map[string]interface{}{"remote": c.ClientIP()})
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": ratelimit.ErrLimited.Error()})
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Warn("upgrade failed", map[string]interface{}{
			"remote": c.ClientIP(),
			"error":  err.Error(),
		})
		return
	}
	tr := transport.NewWebSocketTransport(ws, s.config.Transport)

	// Keep the caller's trace as parent without tying the link to the request.
	remote := telemetry.ExtractHeader(context.Background(), c.Request.Header)
	ctx := trace.ContextWithRemoteSpanContext(s.base, trace.SpanContextFromContext(remote))

	if err := s.accept(ctx, tr); err != nil {
		s.logger.Warn("accept failed", map[string]interface{}{
			"remote": tr.RemoteAddr(),
			"error":  err.Error(),
		})
		tr.Close(transport.CloseGoingAway, err.Error())
	}
}

// accept registers a connection for tr and starts serving it.
func (s *Server) accept(ctx context.Context, tr transport.Transport) error {
	if s.shuttingDown.Load() {
		return ErrShuttingDown
	}

	conn, err := connection.New(connection.Config{
		ID:           uuid.NewString(),
		Role:         connection.RoleAcceptor,
		Codec:        s.config.Codec,
		Heartbeat:    s.config.Heartbeat,
		Handlers:     s.handlers(),
		OnTransition: s.onTransition,
		Logger:       s.logger,
		Metrics:      s.metrics,
		Tracer:       s.tracer,
	})
	if err != nil {
		return err
	}

	// Registered before Serve so removal on Closed always finds the entry.
	if err := s.peers.Add(conn); err != nil {
		return err
	}
	if err := conn.Serve(ctx, tr); err != nil {
		s.peers.Remove(conn.ID())
		return err
	}

	s.logger.Info("client connected", map[string]interface{}{
		"peer":   conn.ID(),
		"remote": tr.RemoteAddr(),
	})
	if s.config.OnConnect != nil {
		s.config.OnConnect(conn)
	}
	return nil
}

// handlers forwards data to the bus before the application sees it.
func (s *Server) handlers() dispatch.Handlers {
	onData := s.config.Handlers.OnData
	return dispatch.Handlers{
		OnData: func(ctx context.Context, peerID, correlationID string, payload json.RawMessage) error {
			if err := s.sink.Publish(peerID, correlationID, payload); err != nil {
				s.logger.Warn("bus publish failed", map[string]interface{}{
					"peer":    peerID,
					"id":      correlationID,
					"subject": s.sink.Subject(),
					"error":   err.Error(),
				})
			}
			if onData == nil {
				return nil
			}
			return onData(ctx, peerID, correlationID, payload)
		},
		OnAck: s.config.Handlers.OnAck,
	}
}

func (s *Server) onTransition(c *connection.Connection, t connection.Transition) {
	if t.To != connection.StateClosed {
		return
	}
	if err := s.peers.Remove(c.ID()); err != nil && !stderrors.Is(err, registry.ErrClosed) {
		s.logger.Warn("registry remove failed", map[string]interface{}{
			"peer":  c.ID(),
			"error": err.Error(),
		})
	}
	s.logger.Info("client disconnected", map[string]interface{}{
		"peer":   c.ID(),
		"reason": t.Reason,
	})
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(c, t)
	}
}

// Broadcast sends a Data envelope to every registered peer and returns how
// many accepted it.
func (s *Server) Broadcast(id string, payload any) int {
	env, err := envelope.Data(id, payload)
	if err != nil {
		s.logger.Warn("broadcast encode failed", map[string]interface{}{
			"id":    id,
			"error": err.Error(),
		})
		return 0
	}

	sent := 0
	s.peers.Range(func(p registry.Peer) bool {
		if p.Send(env) == nil {
			sent++
		}
		return true
	})
	return sent
}

// ListenAndServe serves on the configured address until ctx is done or
// Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", map[string]interface{}{
			"addr": s.config.Listen,
			"path": s.config.Path,
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting, closes every peer with 1001 and waits for them
// to reach Closed or ctx to end. Accepted connections never redial, so each
// one ends; the remote client treats 1001 as a restart and redials.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shuttingDown.Swap(true) {
		return nil
	}

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var errs []error
	if srv != nil {
		// Hijacked websocket connections are not tracked by http.Server.
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	var conns []*connection.Connection
	for _, p := range s.peers.Peers() {
		if c, ok := p.(*connection.Connection); ok {
			conns = append(conns, c)
			c.Close(false)
		}
	}

wait:
	for _, c := range conns {
		select {
		case <-c.Done():
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
			break wait
		}
	}

	s.cancel()
	s.peers.Close()
	s.logger.Info("acceptor stopped", map[string]interface{}{"peers": len(conns)})
	return stderrors.Join(errs...)
}
