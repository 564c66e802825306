// Package acceptor serves the accepting side of pulselink links.
//
// A Server exposes a WebSocket upgrade endpoint on a gin engine. Every
// upgraded request becomes a connection.Connection in the acceptor role: it
// gets a fresh identity, is registered in the peer registry for as long as it
// is not Closed, and acknowledges every Data envelope it receives. Received
// data is handed to the application handler and, when a bus is configured,
// published as a bus.DataRecord.
//
// Admin routes:
//
//	GET /healthz   liveness and peer count
//	GET /peers     registry snapshot
//	GET /metrics   Prometheus exposition (when enabled)
//
// Shutdown stops the HTTP listener and closes every peer with 1001 (going
// away), so clients keep redialing until the acceptor is back.
package acceptor
