package connection

import (
	"context"
	"time"

	"github.com/vinayprograms/pulselink/errors"
	"github.com/vinayprograms/pulselink/heartbeat"
	"github.com/vinayprograms/pulselink/telemetry"
	"github.com/vinayprograms/pulselink/transport"
)

// run is the connection event loop. It owns the monitor, the reconnect
// timer and the dial cancel function.
func (c *Connection) run(ctx context.Context, accepted transport.Transport) {
	defer c.drain()
	defer c.finish()
	defer c.release()

	c.ctx = ctx

	if accepted != nil {
		c.mu.Lock()
		c.epoch++
		c.mu.Unlock()
		c.setState(StateConnecting, "accepted")
		c.open(accepted)
	} else {
		c.connect("start")
	}

	for c.State() != StateClosed {
		select {
		case <-ctx.Done():
			c.closeNormal("context canceled")
		case <-c.closeNotify:
			c.handleCloseRequest()
		case ev := <-c.events:
			c.handle(ev)
		case <-c.timerC():
			c.timer = nil
			c.connect("reconnect")
		case <-c.expiredC():
			c.stale()
		}
	}
}

func (c *Connection) timerC() <-chan time.Time {
	if c.timer == nil {
		return nil
	}
	return c.timer.C
}

func (c *Connection) expiredC() <-chan struct{} {
	if c.monitor == nil {
		return nil
	}
	return c.monitor.Expired()
}

// connect starts a new epoch and dials in the background.
func (c *Connection) connect(reason string) {
	c.stopTimer()

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	attempt := c.attempts
	c.mu.Unlock()

	c.setState(StateConnecting, reason)

	dialCtx, cancel := context.WithCancel(c.ctx)
	c.dialCancel = cancel

	go func() {
		spanCtx, span := c.tracer.StartDialSpan(dialCtx, telemetry.DialSpanOptions{
			ConnectionID: c.id,
			Attempt:      attempt,
			Epoch:        epoch,
		})
		tr, err := c.dialer.Dial(spanCtx)
		remote := ""
		if tr != nil {
			remote = tr.RemoteAddr()
		}
		c.tracer.EndDialSpan(span, remote, err)
		c.post(event{kind: evDialed, epoch: epoch, tr: tr, err: err})
	}()
}

func (c *Connection) handle(ev event) {
	current := c.Epoch()
	state := c.State()

	switch ev.kind {
	case evDialed:
		if ev.epoch != current || state != StateConnecting {
			discard(ev)
			return
		}
		c.cancelDial()
		if ev.err != nil {
			c.logger.Warn("dial failed", map[string]interface{}{"error": ev.err})
			c.scheduleReconnect("dial failed")
			return
		}
		c.open(ev.tr)

	case evFrame:
		if ev.epoch != current || state != StateOpen {
			return
		}
		c.receive(ev.data)

	case evTransportClosed:
		if ev.epoch != current || state != StateOpen {
			return
		}
		status := ev.status
		c.leaveOpen(status.Code, "")
		if status.Normal() {
			c.setState(StateClosing, "remote closed normally")
			c.setState(StateClosed, "remote closed normally")
			return
		}
		c.logger.Warn("transport closed abnormally", map[string]interface{}{
			"code":   status.Code,
			"status": status.String(),
		})
		c.afterFailure(status.String())
	}
}

// open installs tr for the current epoch and enters Open.
func (c *Connection) open(tr transport.Transport) {
	now := time.Now().UnixNano()
	c.lastReceive.Store(now)
	c.lastSend.Store(now)

	c.mu.Lock()
	c.tr = tr
	c.attempts = 0
	epoch := c.epoch
	c.mu.Unlock()

	hb := c.hbConfig
	hb.Send = c.sendHeartbeat
	mon, err := heartbeat.NewMonitor(hb)
	if err != nil {
		// config was validated in New
		c.logger.Error("heartbeat monitor rejected config", map[string]interface{}{"error": err})
	}
	c.monitor = mon

	c.setState(StateOpen, "transport established")

	if c.monitor != nil {
		c.monitor.Start()
	}
	go c.pump(epoch, tr)
}

// pump forwards frames from tr until it ends.
func (c *Connection) pump(epoch uint64, tr transport.Transport) {
	for data := range tr.Recv() {
		select {
		case c.events <- event{kind: evFrame, epoch: epoch, data: data}:
		case <-c.done:
			return
		}
	}
	c.post(event{kind: evTransportClosed, epoch: epoch, status: tr.Status()})
}

// receive decodes one frame and dispatches it. Malformed frames are
// logged and dropped without touching state.
func (c *Connection) receive(data []byte) {
	env, err := c.codec.Decode(data)
	if err != nil {
		c.logger.ParseFailure(c.id, len(data), err)
		c.metrics.ParseError(string(c.role))
		return
	}

	c.lastReceive.Store(time.Now().UnixNano())
	if c.monitor != nil {
		c.monitor.Touch()
	}

	reply := c.dispatcher.Dispatch(c.ctx, env)
	if reply == nil {
		return
	}
	if err := c.send(*reply); err != nil {
		c.logger.Warn("reply not sent", map[string]interface{}{
			"kind":  reply.Kind().String(),
			"id":    reply.CorrelationID(),
			"error": err,
		})
		return
	}
	if c.monitor != nil {
		c.monitor.MarkSent()
	}
	c.metrics.AckSent()
}

// stale handles liveness expiry while Open.
func (c *Connection) stale() {
	window := c.monitor.Window()
	err := errors.Stale(c.id, window)
	c.metrics.StaleConnection(string(c.role))
	c.logger.Warn("connection stale", map[string]interface{}{
		"window": window,
		"error":  err,
	})
	c.leaveOpen(transport.CloseGoingAway, "liveness window exceeded")
	c.afterFailure("liveness window exceeded")
}

// handleCloseRequest applies the strongest pending Close call.
func (c *Connection) handleCloseRequest() {
	normal := c.wantNormal.Swap(false)
	abnormal := c.wantAbnormal.Swap(false)

	switch {
	case normal:
		c.closeNormal("close requested")
	case abnormal && c.State() == StateOpen:
		c.leaveOpen(transport.CloseGoingAway, "close requested")
		c.afterFailure("abnormal close requested")
	}
}

// closeNormal ends the connection for good.
func (c *Connection) closeNormal(reason string) {
	state := c.State()
	if state == StateClosing || state == StateClosed {
		return
	}
	if state == StateOpen {
		c.leaveOpen(transport.CloseNormal, reason)
	}
	c.cancelDial()
	c.stopTimer()
	c.setState(StateClosing, reason)
	c.setState(StateClosed, reason)
}

// afterFailure moves an abnormally ended link to ReconnectWait, or to
// Closed when there is nothing to redial.
func (c *Connection) afterFailure(reason string) {
	if c.dialer == nil {
		c.setState(StateClosed, reason)
		return
	}
	c.scheduleReconnect(reason)
}

func (c *Connection) scheduleReconnect(reason string) {
	c.mu.Lock()
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	delay := c.policy.NextDelay(attempt)
	c.setState(StateReconnectWait, reason)

	c.stopTimer()
	c.timer = time.NewTimer(delay)

	c.logger.ReconnectScheduled(c.id, attempt, delay)
	c.metrics.ReconnectScheduled()
}

// leaveOpen releases the transport, then stops the monitor.
// A code of 0 means the transport already ended on its own.
// Closing first fails any heartbeat blocked in Send, so Stop returns promptly.
func (c *Connection) leaveOpen(code int, reason string) {
	c.mu.Lock()
	tr := c.tr
	c.tr = nil
	c.mu.Unlock()

	if tr != nil {
		if code == 0 {
			code = transport.CloseAbnormal
		}
		tr.Close(code, reason)
	}
	c.stopMonitor()
}

func (c *Connection) stopMonitor() {
	if c.monitor != nil {
		c.monitor.Stop()
		c.monitor = nil
	}
}

func (c *Connection) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Connection) cancelDial() {
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
}

// release frees every loop-owned resource on exit.
func (c *Connection) release() {
	c.stopTimer()
	c.cancelDial()

	c.mu.Lock()
	tr := c.tr
	c.tr = nil
	c.mu.Unlock()
	if tr != nil {
		tr.Close(transport.CloseNormal, "connection closed")
	}
	c.stopMonitor()
}
