package navigation

import (
	"fmt"
	"time"

	"AcademyBot/internal/model"
)

// GuidancePhase distinguishes free lane following from executing an
// intersection decision.
type GuidancePhase int

const (
	Scanning   GuidancePhase = iota // lane following, no decision pending
	Confirming                      // intersection lines are deep enough to trust
	Locked                          // decision computed, waiting to execute it
)

func (p GuidancePhase) String() string {
	switch p {
	case Scanning:
		return "SCANNING"
	case Confirming:
		return "CONFIRMING"
	case Locked:
		return "LOCKED"
	default:
		return fmt.Sprintf("GuidancePhase(%d)", int(p))
	}
}

// IntersectionPhase tracks progress through the intersection footprint.
type IntersectionPhase int

const (
	None     IntersectionPhase = iota
	Counting                   // watching the detection lane for crossings
	Decided                    // two crossings seen, turn may execute
)

func (p IntersectionPhase) String() string {
	switch p {
	case None:
		return "NONE"
	case Counting:
		return "COUNTING"
	case Decided:
		return "DECIDED"
	default:
		return fmt.Sprintf("IntersectionPhase(%d)", int(p))
	}
}

// Maneuver is a timed hold currently being executed.
type Maneuver int

const (
	ManeuverNone Maneuver = iota
	ManeuverTurn
	ManeuverAboutTurn
)

// maxCrossings is the number of crossings that places the robot in the
// middle of an intersection.
const maxCrossings = 2

// State is the navigation state carried between ticks. The zero value is the
// initial state.
type State struct {
	Guidance     GuidancePhase
	Intersection IntersectionPhase

	// Crossings counts detection-lane crossings for the current intersection.
	Crossings int
	// PrimaryCrossings counts the subset seen by the primary band; the
	// fail-safe band only runs while it is zero.
	PrimaryCrossings int
	// PrimaryLatched and FailSafeLatched hold a band closed after a crossing
	// until the line has left it.
	PrimaryLatched  bool
	FailSafeLatched bool

	PendingTurn model.Command
	TurnHold    time.Duration
	Maneuver    Maneuver
	TurnUntil   time.Time
}

// Idle reports whether both phases are at their initial values.
func (s State) Idle() bool {
	return s.Guidance == Scanning && s.Intersection == None && s.Maneuver == ManeuverNone
}

// Output is the result of one tick.
type Output struct {
	Command model.Command
	Events  []model.Event
}

func (o *Output) emit(now time.Time, kind model.EventKind, cmd model.Command, count int, detail string) {
	o.Events = append(o.Events, model.Event{
		Time:    now,
		Kind:    kind,
		Source:  model.ProducerNavigation,
		Command: cmd,
		Count:   count,
		Detail:  detail,
	})
}
