// Package bus forwards data received by an acceptor to downstream consumers.
//
// # Overview
//
// The MessageBus interface is a minimal pub/sub surface with channel-based
// subscriptions. The acceptor publishes one DataRecord per received Data
// envelope; anything subscribed to the subject (analytics, storage, other
// services) consumes it without touching the connection engine.
//
// # Available Implementations
//
//   - MemoryBus: in-process fan-out, for tests and single-binary deployments
//   - NATSBus: NATS core pub/sub
//
// # Usage
//
//	b, _ := bus.FromConfig(cfg.Bus)
//	sink := bus.NewSink(b, cfg.Bus.Subject)
//	sink.Publish("peer-1", "sensor1", payload)
//
//	sub, _ := b.Subscribe("pulselink.data")
//	for msg := range sub.Messages() {
//	    rec, _ := bus.DecodeRecord(msg.Data)
//	}
//
// Delivery is best-effort: slow subscribers drop messages rather than block
// the publisher.
package bus
