package operator

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vimsent/lasertag/internal/clock"
	"github.com/vimsent/lasertag/internal/config"
	"github.com/vimsent/lasertag/internal/logging"
	"github.com/vimsent/lasertag/internal/model"
	"github.com/vimsent/lasertag/internal/netudp"
	"github.com/vimsent/lasertag/internal/wire"
)

// PersistentAddr loads and stores the robot's network address across
// runs (spec.md §1: "Operator input... consumed via simple load/store
// interfaces"; §4.2 step 1: "Ask the operator for the robot's network
// address (persisted across runs)").
type PersistentAddr interface {
	Load() (string, error)
	Save(addr string) error
}

// disabledInfo is the operator's local view of whether its team is
// currently hit-disabled, reconciled from two sources per spec.md
// §4.2's "Pi-as-truth synchronization".
type disabledInfo struct {
	active        bool
	until         time.Time
	byTeamID      model.TeamID
	byNamePending bool // true once (b) reports hit but (a) hasn't arrived yet
}

// Proxy is one team's OperatorProxy.
type Proxy struct {
	teamID model.TeamID
	cfg    config.Snapshot
	clk    clock.Clock
	log    *logging.Logger

	coordSock *netudp.Socket
	robotSock *netudp.Socket
	coordAddr *net.UDPAddr
	robotAddr *net.UDPAddr

	mu               sync.Mutex
	state            State
	participant      bool
	disabled         disabledInfo
	lastFireTime     time.Time
	lastFireHeld     bool
	lastCoordContact time.Time
	coordOnline      bool
}

// New constructs a Proxy bound to its own coordinator-facing and
// robot-facing sockets.
func New(teamID model.TeamID, cfg config.Snapshot, clk clock.Clock, coordSock, robotSock *netudp.Socket) *Proxy {
	return &Proxy{
		teamID:      teamID,
		cfg:         cfg,
		clk:         clk,
		log:         logging.New(fmt.Sprintf("operator:%d", teamID)),
		coordSock:   coordSock,
		robotSock:   robotSock,
		state:       Debug,
		coordOnline: true,
	}
}

// RequestRobotConfig implements spec.md §4.2 step 2: send ConfigRequest
// to the robot and block up to cfg.ConfigRequestTimeout for
// ConfigResponse. Fatal at startup on failure, per spec.md §7.
func (p *Proxy) RequestRobotConfig(robotAddr *net.UDPAddr) (wire.ConfigResponse, error) {
	p.robotAddr = robotAddr
	deadline := p.clk.Now().Add(p.cfg.ConfigRequestTimeout)

	if err := p.robotSock.SendTo(wire.ConfigRequest{}, robotAddr); err != nil {
		return wire.ConfigResponse{}, fmt.Errorf("operator: sending ConfigRequest: %w", err)
	}

	for p.clk.Now().Before(deadline) {
		recv, err := p.robotSock.ReceiveOnce()
		if err != nil {
			return wire.ConfigResponse{}, err
		}
		if recv == nil {
			continue
		}
		if cr, ok := recv.Msg.(wire.ConfigResponse); ok {
			return cr, nil
		}
	}
	return wire.ConfigResponse{}, fmt.Errorf("operator: no ConfigResponse from robot within %s", p.cfg.ConfigRequestTimeout)
}

// Register sends Register to the Coordinator with the listen port
// this Proxy bound for coordinator-facing traffic.
func (p *Proxy) Register(coordAddr *net.UDPAddr, teamName, robotName string, listenPort int) {
	p.coordAddr = coordAddr
	_ = p.coordSock.SendTo(wire.Register{
		TeamID: uint8(p.teamID), TeamName: teamName, RobotName: robotName,
		ListenPort: listenPort, Source: "operator",
	}, coordAddr)
}

// HandleFromCoordinator dispatches one message received on the
// coordinator-facing socket.
func (p *Proxy) HandleFromCoordinator(msg wire.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastCoordContact = p.clk.Now()
	p.coordOnline = true

	switch m := msg.(type) {
	case wire.RegisterAck:
		// nothing further to do; registration confirmed.
	case wire.ForceReady:
		p.state = Ready
	case wire.MatchStart:
		p.onMatchStartLocked()
	case wire.MatchEnd:
		p.onMatchEndLocked()
		p.disabled = disabledInfo{}
	case wire.RobotDisabled:
		p.disabled = disabledInfo{
			active:   true,
			until:    time.UnixMilli(m.DisabledUntil),
			byTeamID: model.TeamID(m.DisabledByID),
		}
	case wire.RobotEnabled:
		if !p.disabled.byNamePending {
			p.disabled = disabledInfo{}
		}
	case wire.Heartbeat:
		// contact timestamp already refreshed above.
	}
}

// HandleFromRobot dispatches one message received on the robot-facing
// socket, implementing the "(b) ir_status" half of pi-as-truth sync.
func (p *Proxy) HandleFromRobot(msg wire.Message) {
	status, ok := msg.(wire.Status)
	if !ok {
		return
	}
	now := p.clk.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	if status.IRStatus.IsHit {
		if !p.disabled.active {
			// (b) reports hit before (a) RobotDisabled has arrived:
			// enter disabled state immediately with a placeholder.
			p.disabled = disabledInfo{
				active:        true,
				until:         now.Add(time.Duration(status.IRStatus.TimeRemaining) * time.Second),
				byNamePending: true,
			}
		}
	} else if p.disabled.active && !p.disabled.until.After(now) {
		// (b) reports not-hit and (a)'s window has expired: clear.
		p.disabled = disabledInfo{}
	}
}

// ApplyInput gates one control tick's worth of UI input and returns
// the wire.Control to send to the robot, per the state machine and
// disabled overlay of spec.md §4.2.
func (p *Proxy) ApplyInput(in InputRecord, speedScale float64) wire.Control {
	now := p.clk.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	out := wire.Control{
		Servo1Toggle: in.Servo1,
		Servo2Toggle: in.Servo2,
		GPIO:         in.GPIO,
		Lights:       in.Lights,
	}

	disabledActive := p.disabled.active && p.disabled.until.After(now)

	forwardMotion := false
	switch p.state {
	case Debug, Playing:
		forwardMotion = true
	case Ready, Waiting:
		forwardMotion = false
	}

	if forwardMotion && !disabledActive {
		out.VX = clamp(in.VX) * speedScale
		out.VY = clamp(in.VY) * speedScale
		out.VR = clamp(in.VR) * speedScale
	}

	fireEdge := in.FireHeld && !p.lastFireHeld
	p.lastFireHeld = in.FireHeld
	if fireEdge && !disabledActive && now.Sub(p.lastFireTime) >= weaponCooldown {
		out.Fire = true
		p.lastFireTime = now
	}

	return out
}

// State returns the current gating state, for UI display.
func (p *Proxy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

const weaponCooldown = 2 * time.Second

// Run supervises the Proxy's background tasks: UDP receive loops on
// both sockets, the 30Hz control sender, a 1s heartbeat to the robot,
// and the coordinator-liveness watch, which re-registers only after
// HeartbeatOfflineAfter of coordinator silence (then every 5s). There
// is no periodic registration refresh while the coordinator is heard.
func (p *Proxy) Run(ctx context.Context, nextInput func() InputRecord, speedScale float64) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.runCoordRecvLoop(ctx) })
	g.Go(func() error { return p.runRobotRecvLoop(ctx) })
	g.Go(func() error { return p.runControlLoop(ctx, nextInput, speedScale) })
	g.Go(func() error { return p.runRobotHeartbeatLoop(ctx) })
	g.Go(func() error { return p.runCoordLivenessLoop(ctx) })

	return g.Wait()
}

func (p *Proxy) runCoordRecvLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		recv, err := p.coordSock.ReceiveOnce()
		if err != nil {
			return err
		}
		if recv != nil {
			p.HandleFromCoordinator(recv.Msg)
		}
	}
}

func (p *Proxy) runRobotRecvLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		recv, err := p.robotSock.ReceiveOnce()
		if err != nil {
			return err
		}
		if recv != nil {
			p.HandleFromRobot(recv.Msg)
		}
	}
}

func (p *Proxy) runControlLoop(ctx context.Context, nextInput func() InputRecord, speedScale float64) error {
	period := time.Second / time.Duration(p.cfg.ControlTickRate)
	ticker := p.clk.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			ctrl := p.ApplyInput(nextInput(), speedScale)
			if p.robotAddr != nil {
				_ = p.robotSock.SendTo(ctrl, p.robotAddr)
			}
		}
	}
}

func (p *Proxy) runRobotHeartbeatLoop(ctx context.Context) error {
	ticker := p.clk.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			if p.robotAddr != nil {
				_ = p.robotSock.SendTo(wire.Heartbeat{TeamID: uint8(p.teamID), Timestamp: now.UnixMilli(), Source: "operator"}, p.robotAddr)
			}
		}
	}
}

// runCoordLivenessLoop implements spec.md §4.2's "If no message of any
// kind arrives from Coordinator for 15s, mark Offline and attempt
// re-registration once, then back off to every 5s."
func (p *Proxy) runCoordLivenessLoop(ctx context.Context) error {
	ticker := p.clk.NewTicker(1 * time.Second)
	defer ticker.Stop()
	reregisterBackoff := false
	lastAttempt := p.clk.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			p.mu.Lock()
			silentFor := now.Sub(p.lastCoordContact)
			online := p.coordOnline
			p.mu.Unlock()

			if silentFor < p.cfg.HeartbeatOfflineAfter {
				continue
			}
			if online {
				p.mu.Lock()
				p.coordOnline = false
				p.mu.Unlock()
				p.log.Warn("coordinator offline (no contact for %s)", silentFor)
			}

			interval := p.cfg.HeartbeatOfflineAfter
			if reregisterBackoff {
				interval = 5 * time.Second
			}
			if now.Sub(lastAttempt) < interval {
				continue
			}
			lastAttempt = now
			reregisterBackoff = true
			if p.coordAddr != nil {
				_ = p.coordSock.SendTo(wire.Register{TeamID: uint8(p.teamID), Source: "operator"}, p.coordAddr)
			}
		}
	}
}
