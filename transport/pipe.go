package transport

import (
	"context"
	"errors"
	"sync"
)

// MemoryTransport is one end of an in-process pipe.
type MemoryTransport struct {
	name string
	peer *MemoryTransport

	in  chan []byte
	out chan []byte

	mu     sync.Mutex
	closed bool
	hung   bool

	statusOnce sync.Once
	status     CloseStatus
	doneOnce   sync.Once
	done       chan struct{}
}

// Pipe returns two connected in-memory transports.
// Frames sent on one end are received on the other, in order.
func Pipe() (*MemoryTransport, *MemoryTransport) {
	a := newMemoryTransport("pipe-a", DefaultConfig().RecvBufferSize)
	b := newMemoryTransport("pipe-b", DefaultConfig().RecvBufferSize)
	a.peer, b.peer = b, a
	go a.forward()
	go b.forward()
	return a, b
}

func newMemoryTransport(name string, size int) *MemoryTransport {
	return &MemoryTransport{
		name: name,
		in:   make(chan []byte, size),
		out:  make(chan []byte, size),
		done: make(chan struct{}),
	}
}

// Recv returns the channel for incoming frames.
func (t *MemoryTransport) Recv() <-chan []byte {
	return t.out
}

// Send delivers a copy of data to the other end.
// A hung pipe accepts the frame and drops it.
func (t *MemoryTransport) Send(data []byte) error {
	t.mu.Lock()
	closed, hung := t.closed, t.hung
	t.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if hung {
		return nil
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	return t.peer.deliver(cp)
}

func (t *MemoryTransport) deliver(data []byte) error {
	select {
	case t.in <- data:
		return nil
	case <-t.done:
		return ErrClosed
	}
}

// Close ends both sides. The other end observes the same code.
func (t *MemoryTransport) Close(code int, reason string) error {
	t.finish(CloseStatus{Code: code, Reason: reason, Local: true})
	t.peer.finish(CloseStatus{Code: code, Reason: reason})
	return nil
}

// Fail ends both sides abnormally, as a dropped network link would.
func (t *MemoryTransport) Fail(err error) {
	if err == nil {
		err = errors.New("connection reset")
	}
	t.finish(CloseStatus{Code: CloseAbnormal, Err: err})
	t.peer.finish(CloseStatus{Code: CloseAbnormal, Err: err})
}

// Hang stops delivery in both directions without ending the link.
// Sends keep succeeding; nothing arrives.
func (t *MemoryTransport) Hang() {
	for _, end := range []*MemoryTransport{t, t.peer} {
		end.mu.Lock()
		end.hung = true
		end.mu.Unlock()
	}
}

// Status reports why the link ended.
func (t *MemoryTransport) Status() CloseStatus {
	select {
	case <-t.done:
		return t.status
	default:
		return CloseStatus{}
	}
}

// Closed reports whether this end has ended.
func (t *MemoryTransport) Closed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done is closed when this end has ended.
func (t *MemoryTransport) Done() <-chan struct{} {
	return t.done
}

// RemoteAddr names the other end.
func (t *MemoryTransport) RemoteAddr() string {
	return t.peer.name
}

func (t *MemoryTransport) finish(s CloseStatus) {
	t.statusOnce.Do(func() {
		t.status = s
	})
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.doneOnce.Do(func() {
		close(t.done)
	})
}

// forward moves frames from in to out and closes out when the link ends.
// Frames already queued when the link ends are still delivered.
func (t *MemoryTransport) forward() {
	defer close(t.out)
	for {
		select {
		case data := <-t.in:
			select {
			case t.out <- data:
			case <-t.done:
				t.drain(data)
				return
			}
		case <-t.done:
			t.drain(nil)
			return
		}
	}
}

func (t *MemoryTransport) drain(pending []byte) {
	if pending != nil {
		select {
		case t.out <- pending:
		default:
			return
		}
	}
	for {
		select {
		case data := <-t.in:
			select {
			case t.out <- data:
			default:
				return
			}
		default:
			return
		}
	}
}

// PipeDialer hands out in-memory pipes. Each successful dial passes the far
// end to Accept.
type PipeDialer struct {
	// Accept receives the server end of each new pipe.
	Accept func(server *MemoryTransport)

	mu       sync.Mutex
	failNext int
	err      error
	dials    int
	last     *MemoryTransport
}

// NewPipeDialer creates a dialer that calls accept for every new pipe.
func NewPipeDialer(accept func(server *MemoryTransport)) *PipeDialer {
	return &PipeDialer{Accept: accept}
}

// FailNext makes the next n dials fail with err.
func (d *PipeDialer) FailNext(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		err = errors.New("connection refused")
	}
	d.failNext = n
	d.err = err
}

// Dials returns how many dials were attempted.
func (d *PipeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Last returns the client end of the most recent successful dial.
func (d *PipeDialer) Last() *MemoryTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Dial implements Dialer.
func (d *PipeDialer) Dial(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.dials++
	if d.failNext > 0 {
		d.failNext--
		err := d.err
		d.mu.Unlock()
		return nil, err
	}
	client, server := Pipe()
	d.last = client
	accept := d.Accept
	d.mu.Unlock()

	if accept != nil {
		accept(server)
	}
	return client, nil
}
