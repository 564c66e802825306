// Package heartbeat provides liveness detection for a single open link.
//
// # Overview
//
// A Monitor does two things while a connection is open: it emits a heartbeat
// through a caller-supplied Send function every Interval, and it watches the
// time since anything was last received. When that silence exceeds the
// liveness window the Monitor closes its Expired channel once. The owner
// decides what staleness means; the connection engine treats it as an
// abnormal closure.
//
// # Lifecycle
//
// One Monitor belongs to one open period. The owner creates it on entering
// Open and stops it on every exit, so no ticker outlives the period:
//
//	mon, _ := heartbeat.NewMonitor(heartbeat.Config{
//	    Interval: 5 * time.Second,
//	    Window:   15 * time.Second, // 3 missed heartbeats
//	    Send:     sendHeartbeat,
//	})
//	mon.Start()
//	defer mon.Stop()
//
//	for {
//	    select {
//	    case frame := <-frames:
//	        mon.Touch()
//	    case <-mon.Expired():
//	        // presumed dead
//	    }
//	}
//
// # Liveness
//
// Liveness is derived, not stored: IsAlive compares now against the last
// Touch. The first emission happens one Interval after Start, so an open
// period of length D produces floor(D/Interval) heartbeats.
//
// # Recommendations
//
//   - Set the window to 2-3x the heartbeat interval
//   - Touch on every received envelope, not only heartbeats
//   - Use a negative window to disable the check (emission only)
package heartbeat
