// Package dispatch routes decoded envelopes to application handlers.
//
// Heartbeats need no action; the connection has already refreshed liveness
// by the time they arrive. Data goes to OnData and, on the accepting side,
// always yields an Ack carrying the same correlation id, whatever the handler
// did. Acks go to OnAck. There is no in-flight table: unknown ack ids are
// passed through as-is.
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/vinayprograms/pulselink/envelope"
	"github.com/vinayprograms/pulselink/errors"
	"github.com/vinayprograms/pulselink/logging"
	"github.com/vinayprograms/pulselink/metrics"
	"github.com/vinayprograms/pulselink/telemetry"
)

// DataHandler receives the payload of a Data envelope.
type DataHandler func(ctx context.Context, peerID, correlationID string, payload json.RawMessage) error

// AckHandler receives the correlation id of an Ack envelope.
type AckHandler func(ctx context.Context, peerID, correlationID string)

// Handlers are the application callbacks. Nil handlers are skipped.
type Handlers struct {
	OnData DataHandler
	OnAck  AckHandler
}

// Config configures a Dispatcher.
type Config struct {
	Handlers Handlers

	// AutoAck replies to every Data envelope with an Ack (accepting side).
	AutoAck bool

	// PeerID is passed to handlers.
	PeerID string

	// Role labels metrics ("client" or "acceptor").
	Role string

	Logger  *logging.Logger
	Metrics *metrics.Recorder
	Tracer  *telemetry.Tracer
}

// Dispatcher routes envelopes for one connection.
type Dispatcher struct {
	handlers Handlers
	autoAck  bool
	peerID   string
	role     string
	logger   *logging.Logger
	metrics  *metrics.Recorder
	tracer   *telemetry.Tracer
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.GetTracer()
	}
	return &Dispatcher{
		handlers: cfg.Handlers,
		autoAck:  cfg.AutoAck,
		peerID:   cfg.PeerID,
		role:     cfg.Role,
		logger:   logger.WithComponent("dispatch"),
		metrics:  cfg.Metrics,
		tracer:   tracer,
	}
}

// PeerID returns the identity passed to handlers.
func (d *Dispatcher) PeerID() string {
	return d.peerID
}

// Dispatch routes env and returns the reply to send, if any.
// Handler errors and panics are logged and never suppress the ack.
func (d *Dispatcher) Dispatch(ctx context.Context, env envelope.Envelope) *envelope.Envelope {
	kind := env.Kind().String()
	d.metrics.EnvelopeReceived(d.role, kind)

	switch env.Kind() {
	case envelope.KindHeartbeat:
		d.logger.Debug("heartbeat received", map[string]interface{}{"peer": d.peerID})
		return nil

	case envelope.KindData:
		ctx, span := d.tracer.StartDispatchSpan(ctx, telemetry.DispatchSpanOptions{
			PeerID:        d.peerID,
			Kind:          kind,
			CorrelationID: env.CorrelationID(),
		})
		err := d.callData(ctx, env)
		if err != nil {
			d.metrics.HandlerFailed(d.role, kind)
			d.logger.Warn("data handler failed", map[string]interface{}{
				"peer":  d.peerID,
				"id":    env.CorrelationID(),
				"error": err,
			})
		}

		var reply *envelope.Envelope
		if d.autoAck {
			ack := envelope.AckFor(env)
			reply = &ack
		}
		d.tracer.EndDispatchSpan(span, reply != nil, err)
		return reply

	case envelope.KindAck:
		ctx, span := d.tracer.StartDispatchSpan(ctx, telemetry.DispatchSpanOptions{
			PeerID:        d.peerID,
			Kind:          kind,
			CorrelationID: env.CorrelationID(),
		})
		err := d.callAck(ctx, env)
		if err != nil {
			d.metrics.HandlerFailed(d.role, kind)
			d.logger.Warn("ack handler failed", map[string]interface{}{
				"peer":  d.peerID,
				"id":    env.CorrelationID(),
				"error": err,
			})
		}
		d.tracer.EndDispatchSpan(span, false, err)
		return nil
	}

	d.logger.Warn("envelope of unknown kind dropped", map[string]interface{}{"peer": d.peerID, "kind": kind})
	return nil
}

func (d *Dispatcher) callData(ctx context.Context, env envelope.Envelope) (err error) {
	if d.handlers.OnData == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
		}
	}()
	if herr := d.handlers.OnData(ctx, d.peerID, env.CorrelationID(), env.Payload()); herr != nil {
		return errors.WrapWithCode(herr, errors.ErrCodeHandlerFailed, "data handler")
	}
	return nil
}

func (d *Dispatcher) callAck(ctx context.Context, env envelope.Envelope) (err error) {
	if d.handlers.OnAck == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
		}
	}()
	d.handlers.OnAck(ctx, d.peerID, env.CorrelationID())
	return nil
}
