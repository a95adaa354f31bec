package coordinator

import (
	"net"
	"time"

	"github.com/vimsent/lasertag/internal/wire"
)

// retryWindow and retryInterval implement spec.md §4.1's failure
// semantics for critical updates: "silent retry of critical updates
// (ScoreUpdate, RobotDisabled) at 1 Hz for 5 s". Both messages carry
// absolute state, so blind redelivery is always safe.
const (
	retryInterval = 1 * time.Second
	retryWindow   = 5 * time.Second
)

// sendWithRetry sends msg once immediately, then retransmits at 1 Hz
// until retryWindow elapses, in its own goroutine so the caller (a
// message handler) never blocks on it.
func (c *Coordinator) sendWithRetry(msg wire.Message, target *net.UDPAddr) {
	if err := c.sock.SendTo(msg, target); err != nil {
		c.log.Warn("send to %s failed: %v", target, err)
	}

	go func() {
		ticker := c.clk.NewTicker(retryInterval)
		defer ticker.Stop()
		deadline := c.clk.Now().Add(retryWindow)
		for {
			select {
			case now, ok := <-ticker.C():
				if !ok {
					return
				}
				if now.After(deadline) {
					return
				}
				if err := c.sock.SendTo(msg, target); err != nil {
					c.log.Warn("retry send to %s failed: %v", target, err)
				}
			}
		}
	}()
}

// broadcastToOperators sends msg to every registered team's
// OperatorProxy whose address is known.
func (c *Coordinator) broadcastToOperators(msg wire.Message) {
	c.mu.Lock()
	targets := make([]*net.UDPAddr, 0, len(c.roster))
	for _, t := range c.roster {
		if t.OperatorAddr != nil {
			targets = append(targets, t.OperatorAddr)
		}
	}
	c.mu.Unlock()

	for _, addr := range targets {
		if err := c.sock.SendTo(msg, addr); err != nil {
			c.log.Warn("broadcast to %s failed: %v", addr, err)
		}
	}
}
