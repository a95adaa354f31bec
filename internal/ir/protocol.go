// Package ir implements the bit-exact IR pulse-train protocol of
// spec.md §4.3/§6: a start burst, 8 data bits MSB-first (a 1-bit is a
// longer carrier burst than a 0-bit), and an end burst — ten bursts in
// all, each separated by a fixed inter-bit gap the transmitter sleeps
// through rather than encodes. It operates purely on burst durations;
// the 38kHz carrier modulation and phototransistor edge interrupts
// feeding those durations in are the hardware boundary spec.md places
// out of scope (§1).
package ir

import "time"

// BurstCount is the fixed frame length: start + 8 data bits + end.
const BurstCount = 10

// Timing holds the nominal burst widths and shared tolerance, all
// configurable per spec.md §6 ("all widths configurable with
// ±tolerance").
type Timing struct {
	CarrierHz   int
	StartBurst  time.Duration
	Bit0Burst   time.Duration
	Bit1Burst   time.Duration
	EndBurst    time.Duration
	InterBitGap time.Duration
	Tolerance   time.Duration
	ResetGap    time.Duration // inter-transmission gap beyond which a receiver starts a fresh frame
}

// DefaultTiming matches the nominal values spec.md §6 names.
func DefaultTiming() Timing {
	return Timing{
		CarrierHz:   38000,
		StartBurst:  2400 * time.Microsecond,
		Bit0Burst:   600 * time.Microsecond,
		Bit1Burst:   1200 * time.Microsecond,
		EndBurst:    2400 * time.Microsecond,
		InterBitGap: 800 * time.Microsecond,
		Tolerance:   150 * time.Microsecond,
		ResetGap:    100 * time.Millisecond,
	}
}

// Encode renders teamID as the ten burst widths of one frame: start,
// 8 MSB-first data bits, end. The caller (the Actuator's IR emitter)
// is responsible for spacing consecutive bursts by t.InterBitGap.
func Encode(teamID uint8, t Timing) []time.Duration {
	bursts := make([]time.Duration, 0, BurstCount)
	bursts = append(bursts, t.StartBurst)
	for i := 7; i >= 0; i-- {
		bit := (teamID >> uint(i)) & 1
		if bit == 1 {
			bursts = append(bursts, t.Bit1Burst)
		} else {
			bursts = append(bursts, t.Bit0Burst)
		}
	}
	bursts = append(bursts, t.EndBurst)
	return bursts
}

// within reports whether got is within ±tol of want.
func within(got, want, tol time.Duration) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d <= tol
}

// Decode parses exactly BurstCount measured burst widths into a
// team_id. It returns ok=false if the burst count is wrong, the start
// or end burst falls outside tolerance, or any data burst matches
// neither the 0-bit nor 1-bit nominal width. Resetting on an
// inter-transmission gap over t.ResetGap is the receiver's concern
// (it decides when a new frame has begun), not this function's.
func Decode(bursts []time.Duration, t Timing) (teamID uint8, ok bool) {
	if len(bursts) != BurstCount {
		return 0, false
	}
	if !within(bursts[0], t.StartBurst, t.Tolerance) {
		return 0, false
	}
	if !within(bursts[BurstCount-1], t.EndBurst, t.Tolerance) {
		return 0, false
	}

	var value uint8
	for i := 1; i < BurstCount-1; i++ {
		bitPos := uint(7 - (i - 1))
		switch {
		case within(bursts[i], t.Bit1Burst, t.Tolerance):
			value |= 1 << bitPos
		case within(bursts[i], t.Bit0Burst, t.Tolerance):
			// bit is 0, nothing to set
		default:
			return 0, false
		}
	}
	return value, true
}

// Receiver accumulates burst widths edge-by-edge the way the hardware
// interrupt handler does, resetting the frame whenever the gap since
// the previous burst exceeds t.ResetGap, and decoding once BurstCount
// bursts have accumulated. It is the testable half of the hardware
// receive path described in spec.md §4.3's "Hit reception".
type Receiver struct {
	timing       Timing
	bursts       []time.Duration
	lastBurstEnd time.Time
}

// NewReceiver constructs a Receiver using the given timing.
func NewReceiver(t Timing) *Receiver {
	return &Receiver{timing: t}
}

// Observe feeds one measured burst width, ending at the given
// timestamp, into the receiver. When a full frame has accumulated, it
// returns the decoded team_id and ok=true, and resets for the next
// frame.
func (r *Receiver) Observe(width time.Duration, endedAt time.Time) (teamID uint8, ok bool) {
	if !r.lastBurstEnd.IsZero() && endedAt.Sub(r.lastBurstEnd) > r.timing.ResetGap {
		r.bursts = r.bursts[:0]
	}
	r.lastBurstEnd = endedAt
	r.bursts = append(r.bursts, width)

	if len(r.bursts) < BurstCount {
		return 0, false
	}
	teamID, ok = Decode(r.bursts, r.timing)
	r.bursts = r.bursts[:0]
	return teamID, ok
}
