package connection

import "github.com/vinayprograms/pulselink/transport"

type eventKind int

const (
	evDialed eventKind = iota
	evFrame
	evTransportClosed
)

// event is posted to the loop by dial and read goroutines.
// Events whose epoch is not the current one are discarded.
type event struct {
	kind   eventKind
	epoch  uint64
	tr     transport.Transport
	err    error
	data   []byte
	status transport.CloseStatus
}
