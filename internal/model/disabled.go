package model

import "time"

// DisabledState is per-team, held by the Coordinator and mirrored to
// the team's OperatorProxy and RobotAgent.
type DisabledState struct {
	DisabledUntil time.Time
	DisabledBy    TeamID
}

// Active reports whether the state is currently in effect at now.
func (d DisabledState) Active(now time.Time) bool {
	return !d.DisabledUntil.IsZero() && d.DisabledUntil.After(now)
}
