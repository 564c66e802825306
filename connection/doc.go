// Package connection keeps one logical pulselink link alive across
// transport failures.
//
// # State machine
//
//	INIT ──Start──▶ CONNECTING ──dial ok──▶ OPEN
//	                    ▲   │                 │
//	          delay     │   │ dial failed     │ abnormal close, stale,
//	        elapsed     │   ▼                 │ Close(false)
//	              RECONNECT_WAIT ◀────────────┘
//
//	OPEN ──normal close (1000), Close(true)──▶ CLOSING ──▶ CLOSED
//
// Only a close with code 1000 or Close(true) is terminal for a dialing
// connection. Accepted connections (Serve) have no dialer: every closure
// ends in CLOSED and the remote peer is expected to redial.
//
// # Concurrency
//
// A single loop goroutine owns every state change. Transport read pumps,
// dial goroutines, the heartbeat monitor and Close only post events or
// flags to it, so handlers run in transport order and a reconnect is never
// scheduled twice for one failure. Each transport attempt has an epoch;
// events from an older epoch are dropped and their transport released.
//
// # Heartbeats
//
// While OPEN, a heartbeat.Monitor emits Heartbeat envelopes every interval
// and expires when nothing has been decoded for the liveness window. Frames
// that fail to decode are logged, counted and dropped without touching
// liveness or state.
package connection
