package robot

import "time"

// Actuator is the hardware boundary a RobotAgent drives: motion,
// accessory toggles, and the IR emitter/receiver. spec.md §1 places
// the actual GPIO/PWM/IR wiring out of scope; Agent only ever talks to
// this interface, so it is fully testable with a fake.
type Actuator struct {
	Drive     func(vx, vy, vr float64) error
	SetServo1 func(on bool) error
	SetServo2 func(on bool) error
	SetGPIO   func(idx int, on bool) error
	SetLights func(on bool) error

	// FireIR transmits one IR frame naming teamID as the attacker.
	// Returns an error (and thus FireSuccess=false) if the emitter is
	// degraded.
	FireIR func(teamID uint8) error

	// SetStandby puts actuators (drive + accessories) into a low-power
	// idle state; used after PowerSaveTimeout of command silence.
	SetStandby func(on bool) error
}

// HitEvent is delivered asynchronously whenever the IR receiver
// decodes a valid frame (internal/ir.Decode succeeded).
type HitEvent struct {
	AttackerID uint8
	At         time.Time
}
