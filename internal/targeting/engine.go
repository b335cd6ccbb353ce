// Package targeting aims the turret at the largest hostile blob in view and
// decides when to fire and when to give up and return home.
package targeting

import (
	"time"

	"AcademyBot/internal/model"
)

const (
	defaultFrameWidth  = 640
	defaultFrameHeight = 480
)

// State is the targeting state carried between frames. The zero value is the
// initial state.
type State struct {
	LastSeen          time.Time
	FireCooldownUntil time.Time
	CommandHoldUntil  time.Time
	LastCommand       model.Command
	Holding           bool
	Engaged           bool
}

// Engine holds the turret calibration.
type Engine struct {
	cfg model.TargetingConfig
}

// NewEngine creates an engine with the given calibration.
func NewEngine(cfg model.TargetingConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine calibration.
func (e *Engine) Config() model.TargetingConfig { return e.cfg }

// Advance evaluates one frame of detections. The boolean result is false when
// no command should be sent this frame.
func (e *Engine) Advance(st State, det model.ContourResult, now time.Time) (State, model.Command, bool) {
	if st.Holding {
		if now.Before(st.CommandHoldUntil) {
			return st, st.LastCommand, true
		}
		st.Holding = false
	}

	hostile, friendly := det.HostileArea(), det.FriendlyArea()
	switch {
	case hostile >= e.cfg.AreaThreshold && hostile >= friendly:
		st.LastSeen = latest(st.LastSeen, now)
		if !st.Engaged {
			st.Engaged = true
			if e.cfg.StopsOnAcquire() {
				st.LastCommand = model.CmdStop
				return st, model.CmdStop, true
			}
		}
		cmd, ok := e.aim(det, now, &st)
		if !ok {
			return st, "", false
		}
		return st, cmd, true

	case friendly >= e.cfg.AreaThreshold:
		// a friendly in front still counts as contact but is never engaged
		st.LastSeen = latest(st.LastSeen, now)
		return st, "", false
	}

	if st.Engaged && now.Sub(st.LastSeen) > e.cfg.Persistence {
		st.Engaged = false
		st.LastCommand = model.CmdHome
		return st, model.CmdHome, true
	}
	return st, "", false
}

// aim corrects the horizontal error first, then the vertical one, and fires
// once both are inside tolerance and the cooldown has expired.
func (e *Engine) aim(det model.ContourResult, now time.Time, st *State) (model.Command, bool) {
	dx, dy := offset(det)
	ex := dx - e.cfg.OffsetX
	ey := dy - e.cfg.OffsetY

	var cmd model.Command
	switch {
	case ex > e.cfg.TolX:
		cmd = model.CmdLeft
	case ex < -e.cfg.TolX:
		cmd = model.CmdRight
	case ey > e.cfg.TolY:
		cmd = model.CmdDown
	case ey < -e.cfg.TolY:
		cmd = model.CmdUp
	default:
		if now.Before(st.FireCooldownUntil) {
			return "", false
		}
		st.FireCooldownUntil = now.Add(e.cfg.FireCooldown)
		st.LastCommand = model.CmdFire
		return model.CmdFire, true
	}

	st.LastCommand = cmd
	if e.cfg.CommandHold > 0 {
		st.Holding = true
		st.CommandHoldUntil = now.Add(e.cfg.CommandHold)
	}
	return cmd, true
}

// offset returns the hostile centroid relative to the image center.
func offset(det model.ContourResult) (float64, float64) {
	w, h := det.Width, det.Height
	if w <= 0 {
		w = defaultFrameWidth
	}
	if h <= 0 {
		h = defaultFrameHeight
	}
	return det.Hostile.CX - float64(w)/2, det.Hostile.CY - float64(h)/2
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
