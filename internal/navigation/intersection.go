package navigation

import (
	"math"
	"time"

	"AcademyBot/internal/model"
)

// countCrossings looks for a horizontal intersection line passing through the
// detection lane. The fail-safe band below it backs up tight intersections
// where the primary band missed the line, and is skipped whenever the primary
// band counted this tick.
func (e *Engine) countCrossings(st State, lines model.ClassifiedLines, now time.Time, out *Output) State {
	if st.Crossings >= maxCrossings {
		st.Intersection = Decided
		return st
	}

	counted := false
	primaryIn := e.inBand(lines.Quadrant(3), e.cfg.DetectionLane)
	if primaryIn && !st.PrimaryLatched {
		st.Crossings++
		st.PrimaryCrossings++
		counted = true
		out.emit(now, model.EventCrossing, "", st.Crossings, "primary")
	}
	st.PrimaryLatched = primaryIn

	if !counted && st.PrimaryCrossings == 0 {
		failSafeIn := e.inBand(lines.Quadrant(4), e.cfg.FailSafeLane)
		if failSafeIn && !st.FailSafeLatched {
			st.Crossings++
			out.emit(now, model.EventCrossing, "", st.Crossings, "fail-safe")
		}
		st.FailSafeLatched = failSafeIn
	}

	if st.Crossings >= maxCrossings {
		st.Crossings = maxCrossings
		st.Intersection = Decided
	}
	return st
}

// inBand reports whether line's midpoint sits inside the band at lane. The
// line must be at or below the lane so a line still approaching from above
// cannot count.
func (e *Engine) inBand(line *model.LineSegment, lane float64) bool {
	if line == nil {
		return false
	}
	mid := line.MidY()
	return math.Abs(mid-lane) <= e.cfg.CrossingTolerance && mid >= lane
}

// confirms reports whether an intersection boundary is deep enough in the
// frame for its geometry to be trusted.
func (e *Engine) confirms(lines model.ClassifiedLines) bool {
	if l := lines.IntersectionLeft; l != nil && l.Y1 > e.cfg.ConfirmDepth {
		return true
	}
	if q := lines.Quadrant(3); q != nil && q.Y1 > e.cfg.Quad3ConfirmMin && q.Y1 < e.cfg.Quad3ConfirmMax {
		return true
	}
	if r := lines.IntersectionRight; r != nil && r.Y2 > e.cfg.ConfirmDepth {
		return true
	}
	return false
}

// decide picks the turn for the intersection in view. The first matching
// rule wins: left, straight through, right.
func (e *Engine) decide(lines model.ClassifiedLines) (model.Command, time.Duration, bool) {
	if lines.IntersectionLeft != nil {
		return model.CmdTurnLeft, e.cfg.Turn90Hold, true
	}

	q1, q2, q3 := lines.Quadrant(1), lines.Quadrant(2), lines.Quadrant(3)
	switch {
	case q1 != nil && q2 != nil && e.gapExceeded(q1, q2),
		q1 != nil && q3 != nil,
		q2 != nil && q3 != nil && e.gapExceeded(q2, q3):
		return model.CmdForward, e.cfg.StraightHold, true
	}

	if lines.IntersectionRight != nil {
		return model.CmdTurnRight, e.cfg.Turn90Hold, true
	}
	return "", 0, false
}

func (e *Engine) gapExceeded(a, b *model.LineSegment) bool {
	gap := a.Y1 - b.Y1
	if gap < 0 {
		gap = -gap
	}
	return gap > e.cfg.QuadrantGap
}

// deadEnd reports a strong center line deep in the frame with both lane
// boundaries still in view.
func (e *Engine) deadEnd(lines model.ClassifiedLines) bool {
	c := lines.Center
	if c == nil || lines.Left == nil || lines.Right == nil {
		return false
	}
	return c.Extent() > e.cfg.DeadEndMinLength && c.MidY() > e.cfg.DeadEndDepth
}
