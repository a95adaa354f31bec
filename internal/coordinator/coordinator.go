// Package coordinator implements the Coordinator role: the
// authoritative owner of the team roster, match phase, scoreboard, and
// disabled-state map described in spec.md §3-4.1. It is the "hard
// part" of the system — a single mutex guards the roster/match/
// disabled maps, every mutation acquires it, and every outgoing
// message is built from a locally-captured snapshot sent after the
// lock is released (spec.md §5).
package coordinator

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vimsent/lasertag/internal/clock"
	"github.com/vimsent/lasertag/internal/config"
	"github.com/vimsent/lasertag/internal/events"
	"github.com/vimsent/lasertag/internal/logging"
	"github.com/vimsent/lasertag/internal/metrics"
	"github.com/vimsent/lasertag/internal/model"
	"github.com/vimsent/lasertag/internal/netudp"
	"github.com/vimsent/lasertag/internal/wire"
)

// Coordinator is the distributed state machine's authoritative core.
type Coordinator struct {
	cfg config.Snapshot
	clk clock.Clock
	log *logging.Logger

	sock    *netudp.Socket
	events  *events.Bus
	metrics *metrics.Coordinator
	results ResultWriter

	mu         sync.Mutex
	roster     map[model.TeamID]*model.Team
	match      *model.Match
	disabled   map[model.TeamID]model.DisabledState
	recentHits map[hitDedupKey]time.Time
}

type hitDedupKey struct {
	attacker model.TeamID
	defender model.TeamID
	tRobot   int64
}

// Option configures optional Coordinator collaborators.
type Option func(*Coordinator)

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Coordinator) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithResultWriter attaches match-report persistence.
func WithResultWriter(w ResultWriter) Option {
	return func(c *Coordinator) { c.results = w }
}

// New builds a Coordinator bound to sock for all outgoing traffic.
func New(cfg config.Snapshot, clk clock.Clock, sock *netudp.Socket, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:        cfg,
		clk:        clk,
		log:        logging.New("coordinator"),
		sock:       sock,
		events:     events.NewBus(),
		roster:     make(map[model.TeamID]*model.Team),
		match:      model.NewMatch(),
		disabled:   make(map[model.TeamID]model.DisabledState),
		recentHits: make(map[hitDedupKey]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events exposes the observable event stream (spec.md §9: "the
// Coordinator publishes MatchEvent values on a broadcast channel").
func (c *Coordinator) Events() *events.Bus { return c.events }

// HandleDatagram dispatches one decoded message from `from`. Unknown
// messages and messages whose effects don't apply (wrong phase,
// unknown team) are dropped without error, per spec.md §7.
func (c *Coordinator) HandleDatagram(msg wire.Message, from *net.UDPAddr) {
	switch m := msg.(type) {
	case wire.Register:
		c.handleRegister(m, from, "")
	case wire.DiscoveryResponse:
		c.handleRegister(wire.Register{
			TeamID: m.TeamID, TeamName: m.TeamName, RobotName: m.RobotName,
			ListenPort: m.ListenPort, Source: m.Source,
		}, from, "")
	case wire.Heartbeat:
		c.handleHeartbeat(m, from)
	case wire.HitReport:
		c.handleHitReport(m)
	case wire.ReadyStatus:
		c.handleReadyStatus(m)
	default:
		// wire.UnknownMessage or anything else: dropped silently.
	}
}

// handleRegister upserts a team entry and acks. The trailing string
// argument is ignored: r.Source decides the role, "robot" updating the
// robot address and contact time, anything else the operator's.
func (c *Coordinator) handleRegister(r wire.Register, from *net.UDPAddr, _ string) {
	id := model.TeamID(r.TeamID)
	if !id.Valid() {
		c.log.Warn("rejecting Register with out-of-range team_id=%d", r.TeamID)
		return
	}

	now := c.clk.Now()
	c.mu.Lock()
	t, ok := c.roster[id]
	if !ok {
		t = &model.Team{ID: id}
		c.roster[id] = t
	}
	if r.TeamName != "" {
		t.TeamName = r.TeamName
	}
	if r.RobotName != "" {
		t.RobotName = r.RobotName
	}
	switch r.Source {
	case "robot":
		t.RobotAddr = &net.UDPAddr{IP: from.IP, Port: r.ListenPort}
		t.LastRobotContact = now
	default: // "operator" or unspecified: treat as operator registration
		t.OperatorAddr = &net.UDPAddr{IP: from.IP, Port: r.ListenPort}
		t.LastOperatorContact = now
	}
	rosterSize := len(c.roster)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RosterSize.Set(float64(rosterSize))
	}
	c.events.Publish(events.MatchEvent{Kind: events.TeamRegistered, TeamID: int(id)})
	_ = c.sock.SendTo(wire.RegisterAck{Status: "connected"}, from)
}

func (c *Coordinator) handleHeartbeat(hb wire.Heartbeat, from *net.UDPAddr) {
	id := model.TeamID(hb.TeamID)
	if !id.Valid() {
		return
	}
	now := c.clk.Now()
	c.mu.Lock()
	t, ok := c.roster[id]
	if ok {
		switch hb.Source {
		case "robot":
			t.LastRobotContact = now
		default:
			t.LastOperatorContact = now
		}
	}
	c.mu.Unlock()
}

func (c *Coordinator) handleReadyStatus(rs wire.ReadyStatus) {
	id := model.TeamID(rs.TeamID)
	c.mu.Lock()
	if t, ok := c.roster[id]; ok {
		t.Ready = rs.Ready
	}
	c.mu.Unlock()
}

// handleHitReport implements the eight-step scoring algorithm of
// spec.md §4.1, plus the 300ms retransmission-dedup window.
func (c *Coordinator) handleHitReport(hr wire.HitReport) {
	attacker := model.TeamID(hr.Data.AttackingTeam)
	defender := model.TeamID(hr.Data.DefendingTeam)
	tRobot := hr.Data.Timestamp
	now := c.clk.Now()

	var (
		drop           bool
		dropReason     string
		scoreUpdates   []wire.ScoreUpdate
		scoreTargets   []*net.UDPAddr
		disabledMsg    wire.RobotDisabled
		disabledTarget *net.UDPAddr
		disabledRobot  *net.UDPAddr
	)

	c.mu.Lock()
	switch {
	case c.match.Phase != model.Running:
		drop, dropReason = true, "wrong_phase"
	case !c.match.IsParticipant(attacker) || !c.match.IsParticipant(defender):
		drop, dropReason = true, "not_participant"
	case attacker == defender:
		drop, dropReason = true, "self_hit"
	case c.disabled[attacker].Active(now):
		drop, dropReason = true, "attacker_disabled"
	}

	if !drop {
		key := hitDedupKey{attacker: attacker, defender: defender, tRobot: tRobot}
		if last, seen := c.recentHits[key]; seen && now.Sub(last) <= c.cfg.HitDedupWindow {
			drop, dropReason = true, "duplicate"
		} else {
			c.recentHits[key] = now
		}
	}

	if !drop {
		seq := c.match.NextSequence()
		c.match.HitLog = append(c.match.HitLog, model.HitRecord{
			Sequence:      seq,
			T:             c.match.Elapsed(now),
			Kind:          model.HitKindIR,
			AttackerID:    attacker,
			DefenderID:    defender,
			PointsAwarded: c.cfg.PointsPerHit,
		})

		as := c.match.Scores[attacker]
		as.Points += c.cfg.PointsPerHit
		as.Kills++
		ds := c.match.Scores[defender]
		ds.Deaths++

		until := now.Add(c.cfg.DisableDuration)
		c.disabled[defender] = model.DisabledState{DisabledUntil: until, DisabledBy: attacker}

		scoreUpdates = []wire.ScoreUpdate{
			{TeamID: uint8(attacker), Points: as.Points, Kills: as.Kills, Deaths: as.Deaths},
			{TeamID: uint8(defender), Points: ds.Points, Kills: ds.Kills, Deaths: ds.Deaths},
		}
		scoreTargets = []*net.UDPAddr{
			operatorAddr(c.roster, attacker),
			operatorAddr(c.roster, defender),
		}
		disabledMsg = wire.RobotDisabled{
			DisabledBy:    teamName(c.roster, attacker),
			DisabledByID:  uint8(attacker),
			Duration:      int(c.cfg.DisableDuration / time.Second),
			DisabledUntil: until.UnixMilli(),
		}
		disabledTarget = operatorAddr(c.roster, defender)
		disabledRobot = robotAddr(c.roster, defender)
	}
	c.mu.Unlock()

	if drop {
		c.log.Debug("dropped hit attacker=%d defender=%d reason=%s", attacker, defender, dropReason)
		if c.metrics != nil {
			c.metrics.HitsDropped.WithLabelValues(dropReason).Inc()
		}
		return
	}

	if c.metrics != nil {
		c.metrics.HitsAccepted.Inc()
	}
	c.events.Publish(events.MatchEvent{Kind: events.HitRecorded, TeamID: int(attacker), OtherID: int(defender)})
	c.events.Publish(events.MatchEvent{Kind: events.RobotDisabledEvent, TeamID: int(defender), OtherID: int(attacker)})

	for i, upd := range scoreUpdates {
		if scoreTargets[i] != nil {
			c.sendWithRetry(upd, scoreTargets[i])
		}
	}
	if disabledTarget != nil {
		c.sendWithRetry(disabledMsg, disabledTarget)
	}
	// Also delivered straight to the defender's RobotAgent: its local
	// hit-retransmission loop (spec.md §4.3 step 3) halts only once
	// RobotDisabled "arrives for self", which requires the robot to see
	// it directly rather than only through its OperatorProxy.
	if disabledRobot != nil {
		c.sendWithRetry(disabledMsg, disabledRobot)
	}
}

func operatorAddr(roster map[model.TeamID]*model.Team, id model.TeamID) *net.UDPAddr {
	if t, ok := roster[id]; ok {
		return t.OperatorAddr
	}
	return nil
}

func robotAddr(roster map[model.TeamID]*model.Team, id model.TeamID) *net.UDPAddr {
	if t, ok := roster[id]; ok {
		return t.RobotAddr
	}
	return nil
}

func teamName(roster map[model.TeamID]*model.Team, id model.TeamID) string {
	if t, ok := roster[id]; ok && t.TeamName != "" {
		return t.TeamName
	}
	return fmt.Sprintf("Team %d", id)
}

// Snapshot is a read-only view used by the referee HTTP endpoint and
// by tests; it copies everything under the lock so callers never race
// with the coordinator's internal maps.
type Snapshot struct {
	Teams         map[model.TeamID]TeamSnapshot
	MatchRunning  bool
	MatchPhase    model.Phase
	AwardsAllowed bool
}

// TeamSnapshot is one team's read-only roster/score view.
type TeamSnapshot struct {
	TeamName string
	Points   int
	Kills    int
	Deaths   int
}

// Snapshot captures the current roster and scoreboard.
func (c *Coordinator) Snapshot() Snapshot {
	now := c.clk.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Snapshot{
		Teams:        make(map[model.TeamID]TeamSnapshot, len(c.roster)),
		MatchRunning: c.match.Phase == model.Running,
		MatchPhase:   c.match.Phase,
	}
	for id, t := range c.roster {
		sc := c.match.Scores[id]
		ts := TeamSnapshot{TeamName: t.TeamName}
		if sc != nil {
			ts.Points, ts.Kills, ts.Deaths = sc.Points, sc.Kills, sc.Deaths
		}
		out.Teams[id] = ts
	}
	out.AwardsAllowed = c.awardsAllowedLocked(now)
	return out
}

func (c *Coordinator) awardsAllowedLocked(now time.Time) bool {
	if c.match.Phase == model.Running {
		return true
	}
	if c.match.Phase == model.Ended && !c.match.EndTime.IsZero() {
		return now.Sub(c.match.EndTime) <= c.cfg.AwardGracePeriod
	}
	return false
}
