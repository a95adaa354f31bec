package robot

import "github.com/vimsent/lasertag/internal/logging"

// NewLoggingActuator returns an Actuator that logs every call and
// never fails. It stands in for the GPIO/PWM/IR-emitter hardware
// driver spec.md places out of scope (§1), so the rest of the Agent
// — fire semantics, cooldown, degraded-set bookkeeping, Status
// replies — is exercised the same way it would be against real
// hardware.
func NewLoggingActuator(log *logging.Logger) Actuator {
	return Actuator{
		Drive: func(vx, vy, vr float64) error {
			log.Debug("drive vx=%.2f vy=%.2f vr=%.2f", vx, vy, vr)
			return nil
		},
		SetServo1: func(on bool) error {
			log.Debug("servo1=%v", on)
			return nil
		},
		SetServo2: func(on bool) error {
			log.Debug("servo2=%v", on)
			return nil
		},
		SetGPIO: func(idx int, on bool) error {
			log.Debug("gpio[%d]=%v", idx, on)
			return nil
		},
		SetLights: func(on bool) error {
			log.Debug("lights=%v", on)
			return nil
		},
		FireIR: func(teamID uint8) error {
			log.Info("fire IR frame team_id=%d", teamID)
			return nil
		},
		SetStandby: func(on bool) error {
			log.Debug("standby=%v", on)
			return nil
		},
	}
}
