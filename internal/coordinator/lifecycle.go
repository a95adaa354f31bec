package coordinator

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/vimsent/lasertag/internal/events"
	"github.com/vimsent/lasertag/internal/model"
	"github.com/vimsent/lasertag/internal/wire"
)

// ErrWrongPhase is returned when a lifecycle method is invoked from a
// Match.phase that does not permit it (spec.md §4.1 state machine).
type ErrWrongPhase struct {
	Have model.Phase
	Want string
}

func (e ErrWrongPhase) Error() string {
	return fmt.Sprintf("coordinator: match is %s, need %s", e.Have, e.Want)
}

// SelectTeams arms the match with the given participants, invariant 1
// of spec.md §3: a team is a participant only if it is on the roster.
func (c *Coordinator) SelectTeams(ids []model.TeamID) error {
	c.mu.Lock()
	if c.match.Phase != model.Idle && c.match.Phase != model.Ended {
		phase := c.match.Phase
		c.mu.Unlock()
		return ErrWrongPhase{Have: phase, Want: "idle or ended"}
	}

	participants := make(map[model.TeamID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := c.roster[id]; !ok {
			c.mu.Unlock()
			return fmt.Errorf("coordinator: team %d not in roster", id)
		}
		participants[id] = struct{}{}
	}
	c.match = model.NewMatch()
	c.match.Phase = model.Armed
	c.match.Participants = participants
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.MatchPhase.Set(float64(model.Armed))
	}
	c.events.Publish(events.MatchEvent{Kind: events.MatchArmed})
	return nil
}

// StartMatch transitions Armed → Running. Per spec.md §9's resolved
// open question, any selected-but-not-Ready participant receives a
// ForceReady immediately before MatchStart. An empty matchID is
// auto-generated (spec.md §3: "match_id: opaque string, operator-chosen
// or auto-generated").
func (c *Coordinator) StartMatch(matchID string, duration time.Duration, now time.Time) error {
	if matchID == "" {
		matchID = uuid.NewString()
	}

	c.mu.Lock()
	if c.match.Phase != model.Armed {
		phase := c.match.Phase
		c.mu.Unlock()
		return ErrWrongPhase{Have: phase, Want: "armed"}
	}

	var forceReadyTargets []*net.UDPAddr
	var forceReadyIDs []model.TeamID
	for id := range c.match.Participants {
		t := c.roster[id]
		if t != nil && !t.Ready && t.OperatorAddr != nil {
			forceReadyTargets = append(forceReadyTargets, t.OperatorAddr)
			forceReadyIDs = append(forceReadyIDs, id)
		}
	}

	c.match.ResetForRun(matchID, duration, now)
	c.disabled = make(map[model.TeamID]model.DisabledState)

	var startTargets []*net.UDPAddr
	participantList := make([]int, 0, len(c.match.Participants))
	for id := range c.match.Participants {
		participantList = append(participantList, int(id))
		if t := c.roster[id]; t != nil && t.OperatorAddr != nil {
			startTargets = append(startTargets, t.OperatorAddr)
		}
	}
	c.mu.Unlock()

	for i, addr := range forceReadyTargets {
		_ = c.sock.SendTo(wire.ForceReady{TeamID: uint8(forceReadyIDs[i]), Reason: "match starting"}, addr)
	}

	startMsg := wire.MatchStart{Duration: int(duration / time.Second), Participants: participantList, MatchID: matchID}
	for _, addr := range startTargets {
		_ = c.sock.SendTo(startMsg, addr)
	}

	if c.metrics != nil {
		c.metrics.MatchPhase.Set(float64(model.Running))
	}
	c.events.Publish(events.MatchEvent{Kind: events.MatchStarted, MatchID: matchID})
	return nil
}

// EndMatch transitions Running → Ended, writes the match report, and
// notifies participants.
func (c *Coordinator) EndMatch(now time.Time) error {
	c.mu.Lock()
	if c.match.Phase != model.Running {
		phase := c.match.Phase
		c.mu.Unlock()
		return ErrWrongPhase{Have: phase, Want: "running"}
	}
	c.match.Phase = model.Ended
	c.match.EndTime = now
	report := c.buildReportLocked()

	var endTargets []*net.UDPAddr
	for id := range c.match.Participants {
		if t := c.roster[id]; t != nil && t.OperatorAddr != nil {
			endTargets = append(endTargets, t.OperatorAddr)
		}
	}
	matchID := c.match.MatchID
	c.mu.Unlock()

	if c.results != nil {
		if err := c.results.Write(report); err != nil {
			c.log.Error("failed to write match report: %v", err)
		}
	}
	for _, addr := range endTargets {
		_ = c.sock.SendTo(wire.MatchEnd{}, addr)
	}

	if c.metrics != nil {
		c.metrics.MatchPhase.Set(float64(model.Ended))
	}
	c.events.Publish(events.MatchEvent{Kind: events.MatchEnded, MatchID: matchID})
	return nil
}

// Cancel returns an Armed match to Idle without ever running it.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	if c.match.Phase != model.Armed {
		phase := c.match.Phase
		c.mu.Unlock()
		return ErrWrongPhase{Have: phase, Want: "armed"}
	}
	c.match = model.NewMatch()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.MatchPhase.Set(float64(model.Idle))
	}
	return nil
}

// AwardBonus implements the referee HTTP endpoint's scoring path
// (spec.md §4.1/§6): accepted only while Running, or within the grace
// window after Ended.
func (c *Coordinator) AwardBonus(id model.TeamID, category string, points int) (model.Score, error) {
	now := c.clk.Now()

	c.mu.Lock()
	if !c.awardsAllowedLocked(now) {
		c.mu.Unlock()
		return model.Score{}, ErrAwardsNotAllowed
	}
	if !c.match.IsParticipant(id) {
		c.mu.Unlock()
		return model.Score{}, ErrUnknownTeam
	}

	seq := c.match.NextSequence()
	c.match.HitLog = append(c.match.HitLog, model.HitRecord{
		Sequence:      seq,
		T:             c.match.Elapsed(now),
		Kind:          model.HitKindAward,
		AttackerID:    id,
		PointsAwarded: points,
		AwardCategory: category,
	})
	sc := c.match.Scores[id]
	sc.Points += points
	result := *sc
	target := operatorAddr(c.roster, id)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.AwardsApplied.Inc()
	}
	c.events.Publish(events.MatchEvent{Kind: events.AwardRecorded, TeamID: int(id), Points: points, Reason: category})

	if target != nil {
		c.sendWithRetry(wire.ScoreUpdate{TeamID: uint8(id), Points: result.Points, Kills: result.Kills, Deaths: result.Deaths}, target)
	}
	return result, nil
}

var (
	// ErrAwardsNotAllowed is returned by AwardBonus outside Running or
	// the post-Ended grace window.
	ErrAwardsNotAllowed = fmt.Errorf("coordinator: awards not allowed in current phase")
	// ErrUnknownTeam is returned by AwardBonus for a team not in the
	// current match's participants.
	ErrUnknownTeam = fmt.Errorf("coordinator: unknown team")
)
