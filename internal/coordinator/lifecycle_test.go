package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vimsent/lasertag/internal/clock"
	"github.com/vimsent/lasertag/internal/config"
	"github.com/vimsent/lasertag/internal/model"
	"github.com/vimsent/lasertag/internal/wire"
)

type fakeResultWriter struct {
	reports []MatchReport
}

func (f *fakeResultWriter) Write(r MatchReport) error {
	f.reports = append(f.reports, r)
	return nil
}

func TestSelectTeamsRejectsUnknownTeam(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	op := newTestSocket(t)
	registerTeam(t, c, 1, op, newTestSocket(t))

	err := c.SelectTeams([]model.TeamID{1, 9})
	require.Error(t, err)
	assert.Equal(t, model.Idle, c.match.Phase, "a rejected SelectTeams must not mutate match state")
}

func TestSelectTeamsRejectsWrongPhase(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	op := newTestSocket(t)
	registerTeam(t, c, 1, op, newTestSocket(t))
	require.NoError(t, c.SelectTeams([]model.TeamID{1}))

	err := c.SelectTeams([]model.TeamID{1})
	require.Error(t, err)
	var phaseErr ErrWrongPhase
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, model.Armed, phaseErr.Have)
}

func TestStartMatchSendsForceReadyOnlyToNotReady(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	op1, op2 := newTestSocket(t), newTestSocket(t)
	registerTeam(t, c, 1, op1, newTestSocket(t))
	registerTeam(t, c, 2, op2, newTestSocket(t))
	require.NoError(t, c.SelectTeams([]model.TeamID{1, 2}))

	c.HandleDatagram(wire.ReadyStatus{TeamID: 1, Ready: true}, nil)

	require.NoError(t, c.StartMatch("", 60*time.Second, clk.Now()))

	// Team 2 was never ready: ForceReady then MatchStart.
	fr, ok := recvFrom(t, op2).(wire.ForceReady)
	require.True(t, ok)
	assert.Equal(t, uint8(2), fr.TeamID)
	_, ok = recvFrom(t, op2).(wire.MatchStart)
	require.True(t, ok)

	// Team 1 was already ready: only MatchStart, no ForceReady.
	ms, ok := recvFrom(t, op1).(wire.MatchStart)
	require.True(t, ok)
	assert.NotEmpty(t, ms.MatchID, "an empty matchID must be auto-generated")
}

func TestStartMatchRejectsWrongPhase(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	err := c.StartMatch("m1", time.Minute, clk.Now())
	require.Error(t, err)
	var phaseErr ErrWrongPhase
	require.ErrorAs(t, err, &phaseErr)
}

func TestEndMatchWritesReportAndNotifies(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	sock := newTestSocket(t)
	cfg := config.Default()
	writer := &fakeResultWriter{}
	c := New(cfg, clk, sock, WithResultWriter(writer))

	op1 := newTestSocket(t)
	registerTeam(t, c, 1, op1, newTestSocket(t))
	require.NoError(t, c.SelectTeams([]model.TeamID{1}))
	require.NoError(t, c.StartMatch("m1", time.Minute, clk.Now()))
	drainN(t, op1, 1) // MatchStart

	clk.Advance(30 * time.Second)
	require.NoError(t, c.EndMatch(clk.Now()))

	_, ok := recvFrom(t, op1).(wire.MatchEnd)
	require.True(t, ok)
	assert.Equal(t, model.Ended, c.match.Phase)
	require.Len(t, writer.reports, 1)
	assert.Equal(t, "m1", writer.reports[0].MatchID)
}

func TestEndMatchRejectsWrongPhase(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	err := c.EndMatch(clk.Now())
	require.Error(t, err)
}

func TestCancelReturnsToIdle(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	registerTeam(t, c, 1, newTestSocket(t), newTestSocket(t))
	require.NoError(t, c.SelectTeams([]model.TeamID{1}))

	require.NoError(t, c.Cancel())
	assert.Equal(t, model.Idle, c.match.Phase)
}

func TestCancelRejectsWrongPhase(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	err := c.Cancel()
	require.Error(t, err)
}

func TestAwardBonusDuringRunningMatch(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	op1 := newTestSocket(t)
	registerTeam(t, c, 1, op1, newTestSocket(t))
	require.NoError(t, c.SelectTeams([]model.TeamID{1}))
	require.NoError(t, c.StartMatch("m1", time.Minute, clk.Now()))
	drainN(t, op1, 1)

	score, err := c.AwardBonus(1, "possession", 30)
	require.NoError(t, err)
	assert.Equal(t, 30, score.Points)

	su, ok := recvFrom(t, op1).(wire.ScoreUpdate)
	require.True(t, ok)
	assert.Equal(t, 30, su.Points)
}

func TestAwardBonusAllowedWithinGracePeriodAfterEnd(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	op1 := newTestSocket(t)
	registerTeam(t, c, 1, op1, newTestSocket(t))
	require.NoError(t, c.SelectTeams([]model.TeamID{1}))
	require.NoError(t, c.StartMatch("m1", time.Minute, clk.Now()))
	drainN(t, op1, 1)
	require.NoError(t, c.EndMatch(clk.Now()))
	drainN(t, op1, 1) // MatchEnd

	clk.Advance(c.cfg.AwardGracePeriod - time.Second)
	_, err := c.AwardBonus(1, "retrieval", 10)
	assert.NoError(t, err, "awards inside the grace window must be accepted")
}

func TestAwardBonusRejectedAfterGracePeriod(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	op1 := newTestSocket(t)
	registerTeam(t, c, 1, op1, newTestSocket(t))
	require.NoError(t, c.SelectTeams([]model.TeamID{1}))
	require.NoError(t, c.StartMatch("m1", time.Minute, clk.Now()))
	drainN(t, op1, 1)
	require.NoError(t, c.EndMatch(clk.Now()))
	drainN(t, op1, 1)

	clk.Advance(c.cfg.AwardGracePeriod + time.Second)
	_, err := c.AwardBonus(1, "retrieval", 10)
	assert.ErrorIs(t, err, ErrAwardsNotAllowed)
}

func TestAwardBonusRejectsNonParticipant(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	c, _ := setupCoordinator(t, clk)
	op1 := newTestSocket(t)
	registerTeam(t, c, 1, op1, newTestSocket(t))
	registerTeam(t, c, 2, newTestSocket(t), newTestSocket(t))
	require.NoError(t, c.SelectTeams([]model.TeamID{1}))
	require.NoError(t, c.StartMatch("m1", time.Minute, clk.Now()))
	drainN(t, op1, 1)

	_, err := c.AwardBonus(2, "retrieval", 10)
	assert.ErrorIs(t, err, ErrUnknownTeam)
}
