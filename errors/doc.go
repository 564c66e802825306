// Package errors provides the structured error taxonomy used across pulselink.
//
// Every failure a connection can observe maps to one code, and every code
// belongs to a category that decides how the connection reacts:
//
//   - Transient: the link is lost but may come back (TRANSPORT,
//     STALE_CONNECTION). The dialing side schedules a reconnection.
//   - Permanent: retrying will not help (PARSE, SEND_ON_CLOSED,
//     HANDLER_FAILED, INVALID_CONFIG). The offending message is dropped and
//     the connection is left as it is.
//   - Internal: unexpected failures and recovered panics.
//
// None of these errors is fatal to the hosting process. The only terminal
// state a connection reaches is the explicitly requested normal close.
//
// # Usage
//
//	err := errors.Transport("dial ws://localhost:8080/ws", errors.WithCause(dialErr))
//	if errors.IsRetryable(err) {
//	    // schedule reconnect
//	}
//
//	if errors.Is(err, errors.ErrCodeParse) {
//	    // discard message
//	}
package errors
