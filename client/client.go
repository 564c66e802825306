// Package client runs the dialing side of a pulselink link.
//
// A Client is a connection.Connection in the client role wired from file
// configuration: it dials the acceptor over WebSocket, emits heartbeats,
// redials per the reconnect policy and stops redialing after a normal close.
package client

import (
	"context"
	"time"

	"github.com/vinayprograms/pulselink/config"
	"github.com/vinayprograms/pulselink/connection"
	"github.com/vinayprograms/pulselink/dispatch"
	"github.com/vinayprograms/pulselink/envelope"
	"github.com/vinayprograms/pulselink/heartbeat"
	"github.com/vinayprograms/pulselink/logging"
	"github.com/vinayprograms/pulselink/metrics"
	"github.com/vinayprograms/pulselink/reconnect"
	"github.com/vinayprograms/pulselink/telemetry"
	"github.com/vinayprograms/pulselink/transport"
)

// Config configures a Client.
type Config struct {
	// Settings supplies url, id, heartbeat, reconnect, transport and codec.
	// Nil uses config.Default().
	Settings *config.Config

	// Dialer overrides the WebSocket dialer built from Settings.
	Dialer transport.Dialer

	Handlers     dispatch.Handlers
	OnTransition func(c *connection.Connection, t connection.Transition)

	Logger  *logging.Logger
	Metrics *metrics.Recorder
	Tracer  *telemetry.Tracer
}

// Client keeps one link to an acceptor alive.
type Client struct {
	conn *connection.Connection
	url  string
}

// New builds a client. It does not dial until Start.
func New(cfg Config) (*Client, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	codec, err := envelope.ByName(settings.Codec)
	if err != nil {
		return nil, err
	}
	policy, err := reconnect.FromConfig(settings.Reconnect)
	if err != nil {
		return nil, err
	}

	dialer := cfg.Dialer
	if dialer == nil {
		wsCfg := transport.WebSocketConfigFrom(settings.Transport, codec.ContentType())
		dialer = transport.NewWebSocketDialer(settings.Client.URL, wsCfg)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	conn, err := connection.New(connection.Config{
		ID:           settings.Client.ID,
		Role:         connection.RoleClient,
		Dialer:       dialer,
		Policy:       policy,
		Codec:        codec,
		Heartbeat:    heartbeat.FromConfig(settings.Heartbeat),
		Handlers:     cfg.Handlers,
		OnTransition: cfg.OnTransition,
		Logger:       logger.WithComponent("client"),
		Metrics:      cfg.Metrics,
		Tracer:       cfg.Tracer,
	})
	if err != nil {
		return nil, err
	}

	return &Client{conn: conn, url: settings.Client.URL}, nil
}

// Start begins dialing.
func (c *Client) Start(ctx context.Context) error {
	return c.conn.Start(ctx)
}

// SendData sends a Data envelope. It fails with SEND_ON_CLOSED unless Open.
func (c *Client) SendData(id string, payload any) error {
	return c.conn.SendData(id, payload)
}

// Close shuts the link down. See connection.Connection.Close.
func (c *Client) Close(normal bool) {
	c.conn.Close(normal)
}

// Shutdown closes normally and waits for Closed or ctx.
func (c *Client) Shutdown(ctx context.Context) error {
	c.conn.Close(true)
	select {
	case <-c.conn.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitOpen blocks until the link is Open, Closed or ctx is done.
func (c *Client) WaitOpen(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		switch c.conn.State() {
		case connection.StateOpen:
			return nil
		case connection.StateClosed:
			return connection.ErrClosed
		}
		select {
		case <-ticker.C:
		case <-c.conn.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) State() connection.State { return c.conn.State() }

func (c *Client) Done() <-chan struct{} { return c.conn.Done() }

func (c *Client) ID() string { return c.conn.ID() }

func (c *Client) URL() string { return c.url }

// Connection exposes the underlying connection.
func (c *Client) Connection() *connection.Connection { return c.conn }
