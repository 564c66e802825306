// Package transport provides message-framed, bidirectional links for
// pulselink connections.
//
// # Overview
//
// A Transport carries discrete frames in both directions and reports why it
// ended through a close code. The connection engine only depends on that
// contract: frames in order, a writable/closed distinction, and a close code.
//
// # Available Transports
//
//   - WebSocketTransport: gorilla/websocket link, dialed with WebSocketDialer
//     or accepted through NewWebSocketUpgrader.
//   - MemoryTransport: in-process pipe from Pipe(), with failure injection
//     (Fail, Hang). PipeDialer hands out pipes to a dialing connection.
//
// # Close Codes
//
// CloseNormal (1000) is the single reserved code meaning an intentional
// shutdown; a link ending with it must not be re-established. Every other code,
// and every I/O error, is abnormal.
//
// # Thread Safety
//
// Send and Close are safe for concurrent use. Recv is closed once the link
// ends, after which Status reports the reason.
package transport
