package coordinator

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vimsent/lasertag/internal/clock"
	"github.com/vimsent/lasertag/internal/config"
	"github.com/vimsent/lasertag/internal/model"
	"github.com/vimsent/lasertag/internal/netudp"
	"github.com/vimsent/lasertag/internal/wire"
)

func newTestSocket(t *testing.T) *netudp.Socket {
	t.Helper()
	sock, err := netudp.Listen(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })
	return sock
}

func recvFrom(t *testing.T, sock *netudp.Socket) wire.Message {
	t.Helper()
	recv, err := sock.ReceiveOnce()
	require.NoError(t, err)
	require.NotNil(t, recv, "expected a datagram within %s", netudp.ReadTimeout)
	return recv.Msg
}

func drainN(t *testing.T, sock *netudp.Socket, n int) []wire.Message {
	t.Helper()
	out := make([]wire.Message, n)
	for i := 0; i < n; i++ {
		out[i] = recvFrom(t, sock)
	}
	return out
}

func setupCoordinator(t *testing.T, clk clock.Clock) (*Coordinator, *netudp.Socket) {
	t.Helper()
	sock := newTestSocket(t)
	cfg := config.Default()
	cfg.HitDedupWindow = 300 * time.Millisecond
	c := New(cfg, clk, sock)
	return c, sock
}

func registerTeam(t *testing.T, c *Coordinator, id model.TeamID, opSock, robotSock *netudp.Socket) {
	t.Helper()
	c.HandleDatagram(wire.Register{TeamID: uint8(id), TeamName: "T", ListenPort: opSock.LocalAddr().Port, Source: "operator"}, opSock.LocalAddr())
	_ = recvFrom(t, opSock) // RegisterAck
	c.HandleDatagram(wire.Register{TeamID: uint8(id), RobotName: "R", ListenPort: robotSock.LocalAddr().Port, Source: "robot"}, robotSock.LocalAddr())
	_ = recvFrom(t, robotSock) // RegisterAck
}

func TestHandleRegisterUpsertsRosterAndAcks(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	op := newTestSocket(t)

	c.HandleDatagram(wire.Register{TeamID: 1, TeamName: "Red", ListenPort: op.LocalAddr().Port, Source: "operator"}, op.LocalAddr())

	ack := recvFrom(t, op)
	ra, ok := ack.(wire.RegisterAck)
	require.True(t, ok)
	assert.Equal(t, "connected", ra.Status)

	snap := c.Snapshot()
	require.Contains(t, snap.Teams, model.TeamID(1))
	assert.Equal(t, "Red", snap.Teams[1].TeamName)
}

func TestHandleRegisterRejectsInvalidTeamID(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	op := newTestSocket(t)

	c.HandleDatagram(wire.Register{TeamID: 0, ListenPort: op.LocalAddr().Port, Source: "operator"}, op.LocalAddr())

	recv, err := op.ReceiveOnce()
	require.NoError(t, err)
	assert.Nil(t, recv, "team_id 0 is out of range and must not be acked")
}

func TestHandleHitReportScoringAndDisable(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)

	attackerOp, attackerRobot := newTestSocket(t), newTestSocket(t)
	defenderOp, defenderRobot := newTestSocket(t), newTestSocket(t)
	registerTeam(t, c, 1, attackerOp, attackerRobot)
	registerTeam(t, c, 2, defenderOp, defenderRobot)

	require.NoError(t, c.SelectTeams([]model.TeamID{1, 2}))
	require.NoError(t, c.StartMatch("m1", 5*time.Minute, clk.Now()))
	drainN(t, attackerOp, 1) // MatchStart
	drainN(t, defenderOp, 1)

	var hr wire.HitReport
	hr.TeamID = 2
	hr.Data.AttackingTeam = 1
	hr.Data.DefendingTeam = 2
	hr.Data.Timestamp = 42
	c.HandleDatagram(hr, nil)

	su, ok := recvFrom(t, attackerOp).(wire.ScoreUpdate)
	require.True(t, ok)
	assert.Equal(t, uint8(1), su.TeamID)
	assert.Equal(t, c.cfg.PointsPerHit, su.Points)
	assert.Equal(t, 1, su.Kills)

	su, ok = recvFrom(t, defenderOp).(wire.ScoreUpdate)
	require.True(t, ok)
	assert.Equal(t, uint8(2), su.TeamID)
	assert.Equal(t, 1, su.Deaths)

	rd, ok := recvFrom(t, defenderOp).(wire.RobotDisabled)
	require.True(t, ok)
	assert.Equal(t, uint8(1), rd.DisabledByID)

	rd2, ok := recvFrom(t, defenderRobot).(wire.RobotDisabled)
	require.True(t, ok, "the defender's RobotAgent must see RobotDisabled directly, not only through its operator")
	assert.Equal(t, rd.DisabledUntil, rd2.DisabledUntil)
}

func TestHandleHitReportDuplicateWithinWindowDropped(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)

	attackerOp, attackerRobot := newTestSocket(t), newTestSocket(t)
	defenderOp, defenderRobot := newTestSocket(t), newTestSocket(t)
	registerTeam(t, c, 1, attackerOp, attackerRobot)
	registerTeam(t, c, 2, defenderOp, defenderRobot)
	require.NoError(t, c.SelectTeams([]model.TeamID{1, 2}))
	require.NoError(t, c.StartMatch("m1", 5*time.Minute, clk.Now()))
	drainN(t, attackerOp, 1)
	drainN(t, defenderOp, 1)

	var hr wire.HitReport
	hr.Data.AttackingTeam = 1
	hr.Data.DefendingTeam = 2
	hr.Data.Timestamp = 42
	c.HandleDatagram(hr, nil)
	drainN(t, attackerOp, 1)
	drainN(t, defenderOp, 2)
	drainN(t, defenderRobot, 1)

	// Retransmitted report with the same (attacker, defender, t_robot)
	// within the dedup window must not score again.
	c.HandleDatagram(hr, nil)
	recv, err := attackerOp.ReceiveOnce()
	require.NoError(t, err)
	assert.Nil(t, recv, "duplicate hit within the dedup window must be dropped")

	// Past the window, an identical report is treated as a new hit.
	clk.Advance(301 * time.Millisecond)
	c.HandleDatagram(hr, nil)
	su, ok := recvFrom(t, attackerOp).(wire.ScoreUpdate)
	require.True(t, ok)
	assert.Equal(t, 2*c.cfg.PointsPerHit, su.Points)
}

func TestHandleHitReportAttackerDisabledDropped(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)

	op1, robot1 := newTestSocket(t), newTestSocket(t)
	op2, robot2 := newTestSocket(t), newTestSocket(t)
	op3, robot3 := newTestSocket(t), newTestSocket(t)
	registerTeam(t, c, 1, op1, robot1)
	registerTeam(t, c, 2, op2, robot2)
	registerTeam(t, c, 3, op3, robot3)

	require.NoError(t, c.SelectTeams([]model.TeamID{1, 2, 3}))
	require.NoError(t, c.StartMatch("m1", 5*time.Minute, clk.Now()))
	drainN(t, op1, 1)
	drainN(t, op2, 1)
	drainN(t, op3, 1)

	var hr1 wire.HitReport
	hr1.Data.AttackingTeam = 1
	hr1.Data.DefendingTeam = 2
	hr1.Data.Timestamp = 1
	c.HandleDatagram(hr1, nil)
	drainN(t, op1, 1)
	drainN(t, op2, 2)
	drainN(t, robot2, 1)

	// Team 2 is now disabled; its own hit on team 3 must be dropped.
	var hr2 wire.HitReport
	hr2.Data.AttackingTeam = 2
	hr2.Data.DefendingTeam = 3
	hr2.Data.Timestamp = 2
	c.HandleDatagram(hr2, nil)

	recv, err := op3.ReceiveOnce()
	require.NoError(t, err)
	assert.Nil(t, recv, "a disabled attacker's hit must not score")
}

func TestHandleHitReportDroppedOutsideRunning(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	op1, robot1 := newTestSocket(t), newTestSocket(t)
	op2, robot2 := newTestSocket(t), newTestSocket(t)
	registerTeam(t, c, 1, op1, robot1)
	registerTeam(t, c, 2, op2, robot2)

	var hr wire.HitReport
	hr.Data.AttackingTeam = 1
	hr.Data.DefendingTeam = 2
	c.HandleDatagram(hr, nil) // match is still Idle

	recv, err := op1.ReceiveOnce()
	require.NoError(t, err)
	assert.Nil(t, recv)
}

func TestHandleHitReportDroppedForSelfHit(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	op1, robot1 := newTestSocket(t), newTestSocket(t)
	op2, robot2 := newTestSocket(t), newTestSocket(t)
	registerTeam(t, c, 1, op1, robot1)
	registerTeam(t, c, 2, op2, robot2)
	require.NoError(t, c.SelectTeams([]model.TeamID{1, 2}))
	require.NoError(t, c.StartMatch("m1", 5*time.Minute, clk.Now()))
	drainN(t, op1, 1)
	drainN(t, op2, 1)

	var hr wire.HitReport
	hr.Data.AttackingTeam = 1
	hr.Data.DefendingTeam = 1
	c.HandleDatagram(hr, nil)

	recv, err := op1.ReceiveOnce()
	require.NoError(t, err)
	assert.Nil(t, recv, "an attacker cannot score against itself")
}

func TestScanDisabledExpiry(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	op1, robot1 := newTestSocket(t), newTestSocket(t)
	op2, robot2 := newTestSocket(t), newTestSocket(t)
	registerTeam(t, c, 1, op1, robot1)
	registerTeam(t, c, 2, op2, robot2)
	require.NoError(t, c.SelectTeams([]model.TeamID{1, 2}))
	require.NoError(t, c.StartMatch("m1", 5*time.Minute, clk.Now()))
	drainN(t, op1, 1)
	drainN(t, op2, 1)

	var hr wire.HitReport
	hr.Data.AttackingTeam = 1
	hr.Data.DefendingTeam = 2
	c.HandleDatagram(hr, nil)
	drainN(t, op1, 1)
	drainN(t, op2, 2)
	drainN(t, robot2, 1)

	require.True(t, c.disabled[2].Active(clk.Now()))
	clk.Advance(c.cfg.DisableDuration + time.Millisecond)
	c.scanDisabledExpiry(clk.Now())

	_, stillDisabled := c.disabled[2]
	assert.False(t, stillDisabled)
	// Advancing past 1s fires sendWithRetry's tickers, so retransmitted
	// ScoreUpdate/RobotDisabled datagrams may reach op2 before RobotEnabled.
	msg := recvFrom(t, op2)
	for {
		_, isScore := msg.(wire.ScoreUpdate)
		_, isDisabled := msg.(wire.RobotDisabled)
		if !isScore && !isDisabled {
			break
		}
		msg = recvFrom(t, op2)
	}
	re, ok := msg.(wire.RobotEnabled)
	require.True(t, ok)
	assert.NotZero(t, re.Timestamp)
}

func TestUpdateLivenessEvents(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	op := newTestSocket(t)
	c.HandleDatagram(wire.Register{TeamID: 1, ListenPort: op.LocalAddr().Port, Source: "operator"}, op.LocalAddr())
	recvFrom(t, op)

	ch, unsub := c.Events().Subscribe(4)
	defer unsub()

	clk.Advance(c.cfg.HeartbeatOfflineAfter + time.Second)
	c.updateLivenessEvents(clk.Now())

	select {
	case ev := <-ch:
		assert.Equal(t, 1, ev.TeamID)
	default:
		t.Fatal("expected a TeamLivenessChanged event once the operator goes offline")
	}
}
