// Package operator implements the OperatorProxy role: a per-team,
// human-facing intermediary that forwards gated input to a RobotAgent
// and relays match state to an outer UI layer (spec.md §4.2).
package operator

import "github.com/vimsent/lasertag/internal/wire"

// State is the OperatorProxy's input-gating state machine
// (spec.md §4.2 diagram).
type State int

const (
	// Debug: operator freely controls the robot for testing.
	Debug State = iota
	// Ready: operator declared ready; motion forced to zero.
	Ready
	// Playing: match running and this team is a participant; full
	// input forwarded.
	Playing
	// Waiting: match ended; operator must explicitly return to Debug.
	Waiting
)

func (s State) String() string {
	switch s {
	case Debug:
		return "debug"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Waiting:
		return "waiting"
	default:
		return "unknown"
	}
}

// ReadyUp transitions Debug → Ready. No-op from any other state.
func (p *Proxy) ReadyUp() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Debug {
		p.state = Ready
		p.sendReadyStatus(true)
	}
}

// NotReady transitions Ready → Debug or Waiting → Debug. No-op from
// Playing (a running match cannot be abandoned this way).
func (p *Proxy) NotReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Ready || p.state == Waiting {
		p.state = Debug
		p.sendReadyStatus(false)
	}
}

// onMatchStartLocked transitions Ready (or Debug) → Playing. It does
// not check participation itself: the Coordinator sends MatchStart
// only to participants. Called with p.mu held.
func (p *Proxy) onMatchStartLocked() {
	if p.state == Ready || p.state == Debug {
		p.state = Playing
	}
}

// onMatchEnd transitions Playing → Waiting. Called with p.mu held.
func (p *Proxy) onMatchEndLocked() {
	if p.state == Playing {
		p.state = Waiting
	}
}

func (p *Proxy) sendReadyStatus(ready bool) {
	if p.coordAddr == nil {
		return
	}
	_ = p.coordSock.SendTo(wire.ReadyStatus{TeamID: uint8(p.teamID), Ready: ready}, p.coordAddr)
}
