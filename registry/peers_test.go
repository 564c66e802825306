package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/vinayprograms/pulselink/envelope"
	"github.com/vinayprograms/pulselink/metrics"
)

type fakePeer struct {
	id     string
	remote string

	mu   sync.Mutex
	sent []envelope.Envelope
}

func (p *fakePeer) ID() string         { return p.id }
func (p *fakePeer) RemoteAddr() string { return p.remote }

func (p *fakePeer) Send(env envelope.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, env)
	return nil
}

// --- Unit Tests ---

func TestPeerRegistry_Add(t *testing.T) {
	r := New(Config{})
	defer r.Close()

	if err := r.Add(&fakePeer{id: "peer-1", remote: "10.0.0.1:5000"}); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	got, ok := r.Get("peer-1")
	if !ok {
		t.Fatal("Get should find peer-1")
	}
	if got.ID() != "peer-1" {
		t.Errorf("ID = %q, want peer-1", got.ID())
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestPeerRegistry_AddErrors(t *testing.T) {
	r := New(Config{})
	r.Add(&fakePeer{id: "dup"})

	tests := []struct {
		name string
		peer Peer
		want error
	}{
		{"nil peer", nil, ErrInvalidID},
		{"empty id", &fakePeer{}, ErrInvalidID},
		{"duplicate", &fakePeer{id: "dup"}, ErrDuplicateID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Add(tt.peer); err != tt.want {
				t.Errorf("Add() = %v, want %v", err, tt.want)
			}
		})
	}

	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1 after rejected adds", r.Len())
	}

	r.Close()
	if err := r.Add(&fakePeer{id: "late"}); err != ErrClosed {
		t.Errorf("Add after Close = %v, want ErrClosed", err)
	}
}

func TestPeerRegistry_Remove(t *testing.T) {
	r := New(Config{})
	defer r.Close()

	r.Add(&fakePeer{id: "peer-1"})

	if err := r.Remove("peer-1"); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if _, ok := r.Get("peer-1"); ok {
		t.Error("peer-1 should be gone")
	}
	if err := r.Remove("peer-1"); err != ErrNotFound {
		t.Errorf("second Remove = %v, want ErrNotFound", err)
	}
	if err := r.Remove(""); err != ErrInvalidID {
		t.Errorf("Remove(\"\") = %v, want ErrInvalidID", err)
	}
}

func TestPeerRegistry_Snapshot(t *testing.T) {
	r := New(Config{})
	defer r.Close()

	r.Add(&fakePeer{id: "b", remote: "host-b"})
	r.Add(&fakePeer{id: "a", remote: "host-a"})

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot len = %d, want 2", len(snap))
	}
	if snap[0].ID != "a" || snap[1].ID != "b" {
		t.Errorf("Snapshot order = %s,%s; want a,b", snap[0].ID, snap[1].ID)
	}
	if snap[0].RemoteAddr != "host-a" {
		t.Errorf("RemoteAddr = %q, want host-a", snap[0].RemoteAddr)
	}
	if snap[0].AddedAt.IsZero() {
		t.Error("AddedAt should be set")
	}
}

func TestPeerRegistry_Range(t *testing.T) {
	r := New(Config{})
	defer r.Close()

	peers := make([]*fakePeer, 3)
	for i := range peers {
		peers[i] = &fakePeer{id: fmt.Sprintf("peer-%d", i)}
		r.Add(peers[i])
	}

	hb := envelope.Heartbeat()
	r.Range(func(p Peer) bool {
		p.Send(hb)
		return true
	})
	for _, p := range peers {
		if len(p.sent) != 1 {
			t.Errorf("%s got %d envelopes, want 1", p.id, len(p.sent))
		}
	}

	visited := 0
	r.Range(func(Peer) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("Range visited %d after stop, want 1", visited)
	}
}

func TestPeerRegistry_RangeToleratesRemoval(t *testing.T) {
	r := New(Config{})
	defer r.Close()

	for i := 0; i < 5; i++ {
		r.Add(&fakePeer{id: fmt.Sprintf("peer-%d", i)})
	}

	visited := 0
	r.Range(func(p Peer) bool {
		visited++
		r.Remove(p.ID())
		return true
	})

	if visited != 5 {
		t.Errorf("visited = %d, want 5", visited)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestPeerRegistry_Watch(t *testing.T) {
	r := New(Config{})

	events, err := r.Watch()
	if err != nil {
		t.Fatalf("Watch error: %v", err)
	}

	r.Add(&fakePeer{id: "peer-1"})
	r.Add(&fakePeer{id: "peer-2"})
	r.Remove("peer-1")
	r.Close()

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}

	want := []Event{
		{Type: EventAdded, PeerID: "peer-1", Total: 1},
		{Type: EventAdded, PeerID: "peer-2", Total: 2},
		{Type: EventRemoved, PeerID: "peer-1", Total: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	if _, err := r.Watch(); err != ErrClosed {
		t.Errorf("Watch after Close = %v, want ErrClosed", err)
	}
}

// --- Integration Tests ---

func TestPeerRegistry_Concurrent(t *testing.T) {
	r := New(Config{Metrics: metrics.NewIsolated()})
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("peer-%d", i)
			if err := r.Add(&fakePeer{id: id}); err != nil {
				t.Errorf("Add(%s): %v", id, err)
				return
			}
			r.Range(func(Peer) bool { return true })
			if i%2 == 0 {
				if err := r.Remove(id); err != nil {
					t.Errorf("Remove(%s): %v", id, err)
				}
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 25 {
		t.Errorf("Len = %d, want 25", r.Len())
	}
}
