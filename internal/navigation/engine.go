// Package navigation turns classified lane and intersection lines into one
// drive command per frame.
//
// The engine runs two orthogonal phases. The guidance phase goes
// SCANNING -> CONFIRMING -> LOCKED once an intersection is close enough to
// judge, and the intersection phase goes NONE -> COUNTING -> DECIDED as the
// robot rolls into the intersection's footprint. When both agree the chosen
// turn is held for its configured duration and everything resets.
//
// Advance is a pure function of its inputs: the caller owns the State and
// supplies the frame time, so no wall-clock sleeping happens here.
package navigation

import (
	"time"

	"AcademyBot/internal/model"
)

// defaultFrameWidth is used when the classifier does not report a width.
const defaultFrameWidth = 640

// Engine holds navigation tuning. It carries no per-tick state.
type Engine struct {
	cfg model.NavigationConfig
}

// NewEngine creates an engine with the given tuning.
func NewEngine(cfg model.NavigationConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine tuning.
func (e *Engine) Config() model.NavigationConfig { return e.cfg }

// Advance consumes one frame of classified lines and returns the next state
// and the command for this tick. It never fails: every branch falls back to
// a deterministic command.
func (e *Engine) Advance(st State, lines model.ClassifiedLines, now time.Time) (State, Output) {
	var out Output

	if st.Maneuver != ManeuverNone {
		if now.Before(st.TurnUntil) {
			out.Command = st.PendingTurn
			return st, out
		}
		out.emit(now, model.EventTurnCompleted, st.PendingTurn, st.Crossings, "")
		st = State{}
	}

	if st.Intersection == Counting {
		st = e.countCrossings(st, lines, now, &out)
	}

	if st.Guidance == Locked && st.Intersection == Decided {
		st.Maneuver = ManeuverTurn
		st.TurnUntil = now.Add(st.TurnHold)
		out.Command = st.PendingTurn
		out.emit(now, model.EventTurnStarted, st.PendingTurn, st.Crossings, st.TurnHold.String())
		return st, out
	}

	if st.Guidance == Scanning && e.confirms(lines) {
		st.Guidance = Confirming
		out.emit(now, model.EventConfirmed, "", 0, "")

		turn, hold, ok := e.decide(lines)
		if !ok {
			st = State{}
			out.Command = model.CmdForward
			out.emit(now, model.EventGuidanceFailed, model.CmdForward, 0, "no rule matched intersection lines")
			return st, out
		}
		st.Guidance = Locked
		st.Intersection = Counting
		st.PendingTurn = turn
		st.TurnHold = hold
		out.Command = e.steer(lines)
		out.emit(now, model.EventGuidanceDecided, turn, 0, hold.String())
		return st, out
	}

	if st.Intersection == Counting {
		out.Command = model.CmdForward
		return st, out
	}

	if st.Idle() && e.deadEnd(lines) {
		st.Maneuver = ManeuverAboutTurn
		st.PendingTurn = model.CmdTurnLeft
		st.TurnHold = e.cfg.Turn180Hold
		st.TurnUntil = now.Add(e.cfg.Turn180Hold)
		out.Command = model.CmdTurnLeft
		out.emit(now, model.EventAboutTurn, model.CmdTurnLeft, 0, e.cfg.Turn180Hold.String())
		return st, out
	}

	out.Command = e.steer(lines)
	return st, out
}
