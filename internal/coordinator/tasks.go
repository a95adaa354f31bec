package coordinator

import (
	"context"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vimsent/lasertag/internal/events"
	"github.com/vimsent/lasertag/internal/model"
	"github.com/vimsent/lasertag/internal/wire"
)

// Run supervises every Coordinator background task (spec.md §5's six
// tasks minus the HTTP server, which the caller runs separately) under
// one errgroup.Group: a cancelled ctx is the single shutdown signal
// every ticker loop and the UDP receive loop observe.
func (c *Coordinator) Run(ctx context.Context, broadcastAddr *net.UDPAddr, selfIP net.IP, coordPort int) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.runReceiveLoop(ctx) })
	g.Go(func() error { return c.runDiscoveryLoop(ctx, broadcastAddr, selfIP, coordPort) })
	g.Go(func() error { return c.runHeartbeatLoop(ctx) })
	g.Go(func() error { return c.runDisableExpiryLoop(ctx) })
	g.Go(func() error { return c.runMatchTimerLoop(ctx) })

	return g.Wait()
}

func (c *Coordinator) runReceiveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		recv, err := c.sock.ReceiveOnce()
		if err != nil {
			return err
		}
		if recv == nil {
			continue // read timeout, loop back to check ctx
		}
		c.HandleDatagram(recv.Msg, recv.From)
	}
}

func (c *Coordinator) runDiscoveryLoop(ctx context.Context, broadcastAddr *net.UDPAddr, selfIP net.IP, coordPort int) error {
	send := func() {
		beacon := wire.DiscoveryBeacon{
			CoordIP:   selfIP.String(),
			CoordPort: coordPort,
			Timestamp: c.clk.Now().UnixMilli(),
		}
		if broadcastAddr != nil {
			_ = c.sock.SendTo(beacon, broadcastAddr)
		}
		for _, addr := range c.probeList() {
			_ = c.sock.SendTo(beacon, addr)
		}
	}

	send() // once at startup, per spec.md §4.1
	ticker := c.clk.NewTicker(c.cfg.DiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			send()
		}
	}
}

// probeList returns every known operator/robot address, so discovery
// also serves as a liveness probe for already-registered parties.
func (c *Coordinator) probeList() []*net.UDPAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	addrs := make([]*net.UDPAddr, 0, len(c.roster)*2)
	for _, t := range c.roster {
		if t.OperatorAddr != nil {
			addrs = append(addrs, t.OperatorAddr)
		}
		if t.RobotAddr != nil {
			addrs = append(addrs, t.RobotAddr)
		}
	}
	return addrs
}

func (c *Coordinator) runHeartbeatLoop(ctx context.Context) error {
	ticker := c.clk.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			c.broadcastToOperators(wire.Heartbeat{Timestamp: now.UnixMilli()})
			c.updateLivenessEvents(now)
		}
	}
}

func (c *Coordinator) updateLivenessEvents(now time.Time) {
	c.mu.Lock()
	stale := make([]model.TeamID, 0)
	for id, t := range c.roster {
		if t.OperatorLiveness(now, c.cfg.HeartbeatStaleAfter, c.cfg.HeartbeatOfflineAfter) == model.Offline {
			stale = append(stale, id)
		}
	}
	c.mu.Unlock()
	for _, id := range stale {
		c.events.Publish(events.MatchEvent{Kind: events.TeamLivenessChanged, TeamID: int(id)})
	}
}

// runDisableExpiryLoop is "the sole mechanism for re-enabling a robot"
// (spec.md §4.1): scans the disabled map every DisableScanInterval and
// emits RobotEnabled for anything whose window has passed.
func (c *Coordinator) runDisableExpiryLoop(ctx context.Context) error {
	ticker := c.clk.NewTicker(c.cfg.DisableScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			c.scanDisabledExpiry(now)
		}
	}
}

func (c *Coordinator) scanDisabledExpiry(now time.Time) {
	c.mu.Lock()
	var expired []model.TeamID
	for id, ds := range c.disabled {
		if !ds.Active(now) {
			expired = append(expired, id)
		}
	}
	targets := make(map[model.TeamID]*net.UDPAddr, len(expired))
	for _, id := range expired {
		delete(c.disabled, id)
		targets[id] = operatorAddr(c.roster, id)
	}
	c.mu.Unlock()

	for _, id := range expired {
		if addr := targets[id]; addr != nil {
			_ = c.sock.SendTo(wire.RobotEnabled{Timestamp: now.UnixMilli()}, addr)
		}
		c.events.Publish(events.MatchEvent{Kind: events.RobotEnabledEvent, TeamID: int(id)})
	}
}

// runMatchTimerLoop ends a Running match automatically once its
// duration has elapsed, including the duration=0 boundary case.
func (c *Coordinator) runMatchTimerLoop(ctx context.Context) error {
	ticker := c.clk.NewTicker(c.cfg.MatchTimerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			c.mu.Lock()
			expired := c.match.Phase == model.Running && c.match.Elapsed(now) >= c.match.Duration
			c.mu.Unlock()
			if expired {
				_ = c.EndMatch(now)
			}
		}
	}
}
