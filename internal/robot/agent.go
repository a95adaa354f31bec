// Package robot implements the RobotAgent role: bridges UDP command
// traffic to hardware actuators and reports IR-hit events, per
// spec.md §4.3. It holds the canonical per-team configuration — the
// robot, not the operator, is the source of truth for team identity.
package robot

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vimsent/lasertag/internal/clock"
	"github.com/vimsent/lasertag/internal/config"
	"github.com/vimsent/lasertag/internal/ir"
	"github.com/vimsent/lasertag/internal/logging"
	"github.com/vimsent/lasertag/internal/model"
	"github.com/vimsent/lasertag/internal/netudp"
	"github.com/vimsent/lasertag/internal/wire"
)

// Identity is the canonical per-team configuration a RobotAgent
// answers ConfigRequest with.
type Identity struct {
	TeamID          model.TeamID
	TeamName        string
	RobotName       string
	CoordinatorAddr string
	RobotPort       int
}

// hitState is the robot's local, secondary-safety view of whether it
// is currently disabled, per spec.md §4.3 "Hit reception".
type hitState struct {
	active       bool
	attackerID   uint8
	until        time.Time
	reportStart  time.Time
	acknowledged bool
}

// Agent is one RobotAgent: team identity plus the actuator it drives.
type Agent struct {
	identity Identity
	cfg      config.Snapshot
	irTiming ir.Timing
	clk      clock.Clock
	log      *logging.Logger
	act      Actuator

	coordSock *netudp.Socket
	ctlSock   *netudp.Socket

	mu            sync.Mutex
	coordAddr     *net.UDPAddr
	matchRunning  bool
	operatorReady bool
	hit           hitState
	lastControl   time.Time
	lastFireAt    time.Time
	standby       bool
	degraded      map[string]bool
}

// New constructs a RobotAgent. coordSock is used for traffic to/from
// the Coordinator; ctlSock for traffic to/from this team's
// OperatorProxy.
func New(identity Identity, cfg config.Snapshot, clk clock.Clock, act Actuator, coordSock, ctlSock *netudp.Socket) *Agent {
	return &Agent{
		identity:    identity,
		cfg:         cfg,
		irTiming:    ir.DefaultTiming(),
		clk:         clk,
		log:         logging.New(fmt.Sprintf("robot:%d", identity.TeamID)),
		act:         act,
		coordSock:   coordSock,
		ctlSock:     ctlSock,
		lastControl: clk.Now(),
		degraded:    make(map[string]bool),
	}
}

// markDegraded logs once per actuator id and records it so subsequent
// Control messages skip that actuator without aborting the others
// (spec.md §7 hardware taxonomy).
func (a *Agent) markDegraded(id string, err error) {
	a.mu.Lock()
	already := a.degraded[id]
	a.degraded[id] = true
	a.mu.Unlock()
	if !already {
		a.log.Warn("actuator %q degraded: %v", id, err)
	}
}

func (a *Agent) isDegraded(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.degraded[id]
}

// HandleFromOperator dispatches one message from the OperatorProxy.
func (a *Agent) HandleFromOperator(msg wire.Message, from *net.UDPAddr) {
	switch m := msg.(type) {
	case wire.ConfigRequest:
		a.sendConfigResponse(from)
	case wire.Control:
		a.applyControl(m, from)
	case wire.Heartbeat:
		// contact refresh only; no per-operator state kept here.
	}
}

func (a *Agent) sendConfigResponse(to *net.UDPAddr) {
	var resp wire.ConfigResponse
	resp.Config.Team.TeamID = uint8(a.identity.TeamID)
	resp.Config.Team.TeamName = a.identity.TeamName
	resp.Config.Team.RobotName = a.identity.RobotName
	resp.Config.Network.CoordinatorAddr = a.identity.CoordinatorAddr
	resp.Config.Network.RobotPort = a.identity.RobotPort
	_ = a.ctlSock.SendTo(resp, to)
}

// HandleFromCoordinator dispatches one message received on the
// coordinator-facing socket. from is the sender's address, used to
// learn the Coordinator's location from a DiscoveryBeacon before
// coordAddr is otherwise known.
func (a *Agent) HandleFromCoordinator(msg wire.Message, from *net.UDPAddr) {
	switch m := msg.(type) {
	case wire.DiscoveryBeacon:
		a.setCoordAddr(from)
		_ = a.coordSock.SendTo(wire.Register{
			TeamID: uint8(a.identity.TeamID), TeamName: a.identity.TeamName,
			RobotName: a.identity.RobotName, ListenPort: a.identity.RobotPort, Source: "robot",
		}, from)
	case wire.MatchStart:
		a.mu.Lock()
		a.matchRunning = true
		a.hit = hitState{}
		a.mu.Unlock()
	case wire.MatchEnd:
		a.stopMotors()
		a.mu.Lock()
		a.matchRunning = false
		a.mu.Unlock()
	case wire.RobotDisabled:
		_ = m
		a.mu.Lock()
		a.hit.acknowledged = true
		a.mu.Unlock()
	case wire.RobotEnabled:
		a.mu.Lock()
		a.hit = hitState{}
		a.mu.Unlock()
	case wire.ReadyStatus:
		_ = m
	case wire.Heartbeat:
	}
}

// applyControl implements spec.md §4.3's Control handling: apply
// motion/accessories to actuators (skipping degraded ones), honor an
// edge-triggered fire per the cooldown/disabled/mode gating, and reply
// Status.
func (a *Agent) applyControl(c wire.Control, from *net.UDPAddr) {
	now := a.clk.Now()

	a.mu.Lock()
	a.lastControl = now
	wasStandby := a.standby
	a.standby = false
	disabledActive := a.hit.active && a.hit.until.After(now)
	debugMode := !a.matchRunning && !a.operatorReady
	canFire := !disabledActive && (a.matchRunning || debugMode)
	a.mu.Unlock()

	if wasStandby {
		if err := a.act.SetStandby(false); err != nil {
			a.markDegraded("standby", err)
		}
	}

	if !disabledActive && !a.isDegraded("drive") {
		if err := a.act.Drive(c.VX, c.VY, c.VR); err != nil {
			a.markDegraded("drive", err)
		}
	} else if disabledActive {
		a.stopMotors()
	}

	if !a.isDegraded("servo1") {
		if err := a.act.SetServo1(c.Servo1Toggle); err != nil {
			a.markDegraded("servo1", err)
		}
	}
	if !a.isDegraded("servo2") {
		if err := a.act.SetServo2(c.Servo2Toggle); err != nil {
			a.markDegraded("servo2", err)
		}
	}
	for i := range c.GPIO {
		id := fmt.Sprintf("gpio%d", i)
		if a.isDegraded(id) {
			continue
		}
		if err := a.act.SetGPIO(i, c.GPIO[i]); err != nil {
			a.markDegraded(id, err)
		}
	}
	if !a.isDegraded("lights") {
		if err := a.act.SetLights(c.Lights); err != nil {
			a.markDegraded("lights", err)
		}
	}

	fireSuccess := false
	if c.Fire && canFire {
		fireSuccess = a.honorFire(now)
	}

	a.sendStatus(from, fireSuccess)
}

// honorFire enforces the cooldown and transmits the IR frame; the
// caller has already checked disabled/mode gating.
func (a *Agent) honorFire(now time.Time) bool {
	a.mu.Lock()
	elapsed := now.Sub(a.lastFireLocked())
	if elapsed < a.cfg.WeaponCooldown {
		a.mu.Unlock()
		return false
	}
	a.setLastFireLocked(now)
	a.mu.Unlock()

	if a.isDegraded("ir_emitter") {
		return false
	}
	if err := a.act.FireIR(uint8(a.identity.TeamID)); err != nil {
		a.markDegraded("ir_emitter", err)
		return false
	}
	return true
}

// lastFireLocked/setLastFireLocked isolate the cooldown timestamp so
// it can live alongside the rest of the mutex-guarded state without
// widening the Agent struct's exported surface.
func (a *Agent) lastFireLocked() time.Time     { return a.lastFireAt }
func (a *Agent) setLastFireLocked(t time.Time) { a.lastFireAt = t }

func (a *Agent) sendStatus(to *net.UDPAddr, fireSuccess bool) {
	now := a.clk.Now()
	a.mu.Lock()
	var status wire.Status
	status.FireSuccess = fireSuccess
	if a.hit.active && a.hit.until.After(now) {
		status.IRStatus.IsHit = true
		status.IRStatus.HitByTeam = a.hit.attackerID
		status.IRStatus.TimeRemaining = int(a.hit.until.Sub(now) / time.Second)
	}
	a.mu.Unlock()
	if to != nil {
		_ = a.ctlSock.SendTo(status, to)
	}
}

func (a *Agent) stopMotors() {
	if err := a.act.Drive(0, 0, 0); err != nil {
		a.markDegraded("drive", err)
	}
}

// OnIRHit is the hardware-edge-driven callback invoked whenever the IR
// receiver decodes a valid frame. attackerID must already be distinct
// from this robot's own team_id (the caller filters self-detections
// before invoking this).
func (a *Agent) OnIRHit(attackerID uint8, at time.Time) {
	a.mu.Lock()
	if a.hit.active {
		a.mu.Unlock()
		return
	}
	a.hit = hitState{
		active:      true,
		attackerID:  attackerID,
		until:       at.Add(a.cfg.DisableDuration),
		reportStart: at,
	}
	a.mu.Unlock()

	a.stopMotors()
	a.sendHitReport(attackerID, at)
}

func (a *Agent) sendHitReport(attackerID uint8, at time.Time) {
	hr := wire.HitReport{TeamID: uint8(a.identity.TeamID)}
	hr.Data.AttackingTeam = attackerID
	hr.Data.DefendingTeam = uint8(a.identity.TeamID)
	hr.Data.Timestamp = at.UnixMilli()
	if addr := a.getCoordAddr(); addr != nil {
		_ = a.coordSock.SendTo(hr, addr)
	}
}

func (a *Agent) setCoordAddr(addr *net.UDPAddr) {
	a.mu.Lock()
	a.coordAddr = addr
	a.mu.Unlock()
}

func (a *Agent) getCoordAddr() *net.UDPAddr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.coordAddr
}

// Run supervises the Agent's background tasks: UDP receive loops on
// both sockets, an IR-report retransmit loop, command/power-save
// timeout enforcement, and a 1Hz heartbeat to the Coordinator. There
// is no periodic control-apply tick: actuators are driven only when a
// Control message arrives (and zeroed by the timeout loop).
func (a *Agent) Run(ctx context.Context, coordAddr *net.UDPAddr) error {
	a.setCoordAddr(coordAddr)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.runCoordRecvLoop(ctx) })
	g.Go(func() error { return a.runOperatorRecvLoop(ctx) })
	g.Go(func() error { return a.runHitRetransmitLoop(ctx) })
	g.Go(func() error { return a.runTimeoutLoop(ctx) })
	g.Go(func() error { return a.runCoordHeartbeatLoop(ctx) })

	return g.Wait()
}

func (a *Agent) runCoordRecvLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		recv, err := a.coordSock.ReceiveOnce()
		if err != nil {
			return err
		}
		if recv != nil {
			a.HandleFromCoordinator(recv.Msg, recv.From)
		}
	}
}

func (a *Agent) runOperatorRecvLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		recv, err := a.ctlSock.ReceiveOnce()
		if err != nil {
			return err
		}
		if recv != nil {
			a.HandleFromOperator(recv.Msg, recv.From)
		}
	}
}

// runHitRetransmitLoop resends HitReport at 500ms intervals for up to
// 5s until a RobotDisabled has arrived (any RobotDisabled counts as the
// acknowledgment), per spec.md §4.3 step 3. Each resend carries the
// original hit time, so its (attacker, defender, t_robot) matches the
// first report.
func (a *Agent) runHitRetransmitLoop(ctx context.Context) error {
	ticker := a.clk.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			a.mu.Lock()
			pending := a.hit.active && !a.hit.acknowledged && now.Sub(a.hit.reportStart) < 5*time.Second
			attackerID := a.hit.attackerID
			reportStart := a.hit.reportStart
			a.mu.Unlock()
			if pending {
				a.sendHitReport(attackerID, reportStart)
			}
		}
	}
}

// runTimeoutLoop implements the Command timeout and Power-save timeout
// of spec.md §4.3.
func (a *Agent) runTimeoutLoop(ctx context.Context) error {
	ticker := a.clk.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			a.mu.Lock()
			silentFor := now.Sub(a.lastControl)
			wasStandby := a.standby
			a.mu.Unlock()

			if silentFor >= a.cfg.ControlTimeout {
				a.stopMotors()
			}
			if silentFor >= a.cfg.PowerSaveTimeout && !wasStandby {
				a.mu.Lock()
				a.standby = true
				a.mu.Unlock()
				if err := a.act.SetStandby(true); err != nil {
					a.markDegraded("standby", err)
				}
			}
		}
	}
}

func (a *Agent) runCoordHeartbeatLoop(ctx context.Context) error {
	ticker := a.clk.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			if addr := a.getCoordAddr(); addr != nil {
				_ = a.coordSock.SendTo(wire.Heartbeat{
					TeamID: uint8(a.identity.TeamID), Timestamp: now.UnixMilli(), Source: "robot",
				}, addr)
			}
		}
	}
}
