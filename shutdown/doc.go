// Package shutdown runs phased graceful shutdown for pulselink processes.
//
// Hooks are registered under a phase. On Shutdown (or SIGINT/SIGTERM once
// HandleSignals is active) phases run in ascending order; hooks within one
// phase run concurrently and share the shutdown deadline.
//
// Standard phases:
//
//   - PhaseLinks: stop accepting and close links normally
//   - PhaseTelemetry: flush and stop the trace provider
//   - PhaseLogs: sync log outputs
//
// Usage:
//
//	coord := shutdown.New(shutdown.Config{Timeout: 5 * time.Second, Logger: logger})
//	coord.Register("acceptor", shutdown.PhaseLinks, srv.Shutdown)
//	coord.Register("telemetry", shutdown.PhaseTelemetry, provider.Shutdown)
//	coord.Register("logs", shutdown.PhaseLogs, shutdown.SyncLogger(logger))
//	ctx := coord.HandleSignals(context.Background())
//	<-coord.Done()
package shutdown
