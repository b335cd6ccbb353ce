package navigation

import "AcademyBot/internal/model"

// steer keeps the robot between the lane boundaries.
//
// The aim point is the midpoint of the left line's far end and the right
// line's near end, compared to a recalibrated frame center with a dead band.
// A boundary that intrudes into the opposite half forces a hard correction
// before the dead band is consulted. With a single boundary the missing one
// is projected a fixed offset away.
func (e *Engine) steer(lines model.ClassifiedLines) model.Command {
	width := lines.Width
	if width <= 0 {
		width = defaultFrameWidth
	}
	center := float64(width) / 2 * e.cfg.Recalibration
	upper := center * (1 + e.cfg.DeadBand)
	lower := center * (1 - e.cfg.DeadBand)

	left, right := lines.Left, lines.Right
	switch {
	case left != nil && right != nil:
		aim := float64(left.X2+right.X1) / 2
		switch {
		case left.X1 > e.cfg.LeftIntrusionX:
			return model.CmdRight
		case right.X2 < e.cfg.RightIntrusionX:
			return model.CmdLeft
		case aim > upper:
			return model.CmdTurnRight
		case aim < lower:
			return model.CmdTurnLeft
		default:
			return model.CmdForward
		}

	case right != nil:
		aim := float64(right.X1 - e.cfg.ProjectionOffset)
		switch {
		case aim < center:
			return model.CmdTurnLeft
		case right.X2 < e.cfg.RightIntrusionX:
			return model.CmdLeft
		default:
			return model.CmdForward
		}

	case left != nil:
		aim := float64(left.X2 + e.cfg.ProjectionOffset)
		switch {
		case aim > center:
			return model.CmdTurnRight
		case left.X1 > e.cfg.LeftIntrusionX:
			return model.CmdRight
		default:
			return model.CmdForward
		}
	}

	// no lane lines at all
	return model.CmdForward
}
