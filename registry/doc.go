// Package registry tracks the live connections of an acceptor.
//
// # Overview
//
// A PeerRegistry maps connection identity to a Peer. The acceptor owns it:
// each accepted connection is added before it starts serving and removed
// exactly once, when it reaches its terminal state. The registry size is
// therefore always the number of accepted connections that are not closed.
//
// # Basic Usage
//
//	reg := registry.New(registry.Config{})
//	if err := reg.Add(conn); err != nil {
//	    // duplicate or invalid id
//	}
//
// Broadcast to every live peer:
//
//	reg.Range(func(p registry.Peer) bool {
//	    p.Send(env)
//	    return true
//	})
//
// Range iterates over a snapshot, so peers may be removed concurrently.
//
// # Watching for Changes
//
//	events, _ := reg.Watch()
//	for ev := range events {
//	    switch ev.Type {
//	    case registry.EventAdded:
//	        log.Printf("peer joined: %s (%d live)", ev.PeerID, ev.Total)
//	    case registry.EventRemoved:
//	        log.Printf("peer left: %s", ev.PeerID)
//	    }
//	}
//
// Watch channels are buffered; slow readers miss events. They are closed by Close.
package registry
