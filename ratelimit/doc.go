// Package ratelimit throttles connection admission on the acceptor.
//
// When an acceptor restarts, every client redials after the same fixed delay.
// A Limiter keeps one token bucket per key (the client IP) so a single
// misbehaving host cannot monopolise upgrades while the rest reconnect.
//
// Buckets start full, refill continuously at Capacity tokens per Window and
// are evicted once they have been full and idle for a whole window.
package ratelimit
