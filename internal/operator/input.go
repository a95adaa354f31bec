package operator

// InputRecord is what the outer UI layer supplies once per control
// tick (spec.md §4.2: "a structured input record containing a motion
// vector (vx, vy, vr) each ∈ [-1, 1], a boost flag, a fire request
// (edge-triggered), servo toggles, four GPIO toggles, and a lights
// toggle").
type InputRecord struct {
	VX, VY, VR float64
	Boost      bool
	FireHeld   bool // level-triggered from the UI; Proxy edge-detects it
	Servo1     bool
	Servo2     bool
	GPIO       [4]bool
	Lights     bool
}

func clamp(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
