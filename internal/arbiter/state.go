package arbiter

import (
	"fmt"

	"AcademyBot/internal/model"
)

// Mode is the arbiter's top-level state.
type Mode int

const (
	Initializing Mode = iota
	Looking           // lane following, navigation drives, targeting watches
	Turning           // hard turn in progress, targeting ignored
	Shooting          // target engaged, navigation ignored
	Terminated        // an actuator link failed
)

func (m Mode) String() string {
	switch m {
	case Initializing:
		return "INITIALIZING"
	case Looking:
		return "LOOKING"
	case Turning:
		return "TURNING"
	case Shooting:
		return "SHOOTING"
	case Terminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText renders the mode name in JSON.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Actuator names one of the two exclusive links.
type Actuator string

const (
	Drivetrain Actuator = "drivetrain"
	Turret     Actuator = "turret"
)

// State records who may command which actuator.
type State struct {
	Mode            Mode           `json:"mode"`
	DrivetrainOwner model.Producer `json:"drivetrain_owner"`
	TurretOwner     model.Producer `json:"turret_owner"`
}

// stateFor derives ownership from the mode. Targeting keeps the turret while
// Looking so it can send the turret home.
func stateFor(m Mode) State {
	s := State{Mode: m}
	switch m {
	case Looking:
		s.DrivetrainOwner = model.ProducerNavigation
		s.TurretOwner = model.ProducerTargeting
	case Turning:
		s.DrivetrainOwner = model.ProducerNavigation
	case Shooting:
		// Targeting, not NONE, owns the wheels here so its STP on acquisition
		// reaches the drivetrain. Navigation stays locked out either way.
		s.DrivetrainOwner = model.ProducerTargeting
		s.TurretOwner = model.ProducerTargeting
	}
	return s
}

// Owner returns the producer allowed to write to a.
func (s State) Owner(a Actuator) model.Producer {
	if a == Drivetrain {
		return s.DrivetrainOwner
	}
	return s.TurretOwner
}

// accepts reports whether src may send cmd at all. Targeting owns the whole
// turret vocabulary; navigation drives the wheels but never sends STP.
func accepts(src model.Producer, cmd model.Command) bool {
	switch src {
	case model.ProducerNavigation:
		return cmd.IsDrive() && cmd != model.CmdStop
	case model.ProducerTargeting:
		return cmd.IsTurret()
	}
	return false
}

// route picks the actuator for a command. Targeting's STP halts the wheels;
// everything else targeting sends moves the turret.
func route(src model.Producer, cmd model.Command) Actuator {
	if src == model.ProducerTargeting && cmd != model.CmdStop {
		return Turret
	}
	return Drivetrain
}
