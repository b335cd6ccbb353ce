// Package model defines shared configuration structures used to initialize AcademyBot.
// It includes global channel settings, engine tuning, actuator links and
// the optional monitor, journal and simulation sections.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Config represents the root structure loaded from configs/config.yml.
type Config struct {
	Global     GlobalConfig     `yaml:"global"`
	Navigation NavigationConfig `yaml:"navigation"`
	Targeting  TargetingConfig  `yaml:"targeting"`
	Actuators  ActuatorsConfig  `yaml:"actuators"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Journal    JournalConfig    `yaml:"journal"`
	Sim        SimConfig        `yaml:"sim"`
}

// GlobalConfig defines command channel and arbiter settings.
type GlobalConfig struct {
	RecordWidth     int           `yaml:"record_width"`     // fixed record size in bytes
	ChannelCapacity int           `yaml:"channel_capacity"` // records buffered per channel
	StaleAfter      time.Duration `yaml:"stale_after"`      // records older than this are dropped
	TickInterval    time.Duration `yaml:"tick_interval"`    // arbiter scheduling period
}

// NavigationConfig holds every pixel threshold and hold time of the navigation engine.
type NavigationConfig struct {
	DetectionLane     float64 `yaml:"detection_lane"`     // y of the primary crossing band
	FailSafeLane      float64 `yaml:"fail_safe_lane"`     // y of the fail-safe band
	CrossingTolerance float64 `yaml:"crossing_tolerance"` // half height of each band

	ConfirmDepth    int `yaml:"confirm_depth"`     // boundary y beyond which an intersection is trusted
	Quad3ConfirmMin int `yaml:"quad3_confirm_min"` // quadrant-3 y1 window that also confirms
	Quad3ConfirmMax int `yaml:"quad3_confirm_max"`
	QuadrantGap     int `yaml:"quadrant_gap"` // min vertical gap for the straight-through rule

	Recalibration    float64 `yaml:"recalibration"`       // frame center multiplier
	DeadBand         float64 `yaml:"dead_band"`           // fraction of center, e.g. 0.1
	LeftIntrusionX   int     `yaml:"left_intrusion_x"`    // left line x1 beyond this forces RGT
	RightIntrusionX  int     `yaml:"right_intrusion_x"`   // right line x2 below this forces LFT
	ProjectionOffset int     `yaml:"projection_offset"`   // missing boundary projection, px
	DeadEndMinLength int     `yaml:"dead_end_min_length"` // min horizontal extent of a dead-end line
	DeadEndDepth     float64 `yaml:"dead_end_depth"`      // min midpoint y of a dead-end line

	Turn90Hold   time.Duration `yaml:"turn_90_hold"`
	Turn180Hold  time.Duration `yaml:"turn_180_hold"`
	StraightHold time.Duration `yaml:"straight_hold"`
}

// TargetingConfig holds the turret aiming calibration.
type TargetingConfig struct {
	AreaThreshold float64       `yaml:"area_threshold"` // min blob area in px to count as a target
	TolX          float64       `yaml:"tol_x"`
	TolY          float64       `yaml:"tol_y"`
	OffsetX       float64       `yaml:"offset_x"` // mechanical offset of the barrel from image center
	OffsetY       float64       `yaml:"offset_y"`
	Persistence   time.Duration `yaml:"persistence"`   // how long a lost target is still considered seen
	FireCooldown  time.Duration `yaml:"fire_cooldown"` // wait after FIR for the target to fall
	CommandHold   time.Duration `yaml:"command_hold"`  // continuous command duration, 0 disables
	StopOnAcquire *bool         `yaml:"stop_on_acquire,omitempty"`
}

// StopsOnAcquire reports whether the wheels are stopped when a target is first engaged.
func (t TargetingConfig) StopsOnAcquire() bool {
	return t.StopOnAcquire == nil || *t.StopOnAcquire
}

// ActuatorsConfig defines the two exclusive actuator links.
type ActuatorsConfig struct {
	Drivetrain LinkConfig `yaml:"drivetrain"`
	Turret     LinkConfig `yaml:"turret"`
}

// LinkConfig defines one Arduino link. Device "console" (or empty) writes
// frames to stdout instead of a serial port.
type LinkConfig struct {
	ID     string `yaml:"id"`
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// IsConsole reports whether the link writes to stdout.
func (l LinkConfig) IsConsole() bool { return l.Device == "" || l.Device == "console" }

// MonitorConfig configures the websocket monitor. Empty Addr disables it.
type MonitorConfig struct {
	Addr string `yaml:"addr"`
}

// JournalConfig configures the bbolt flight recorder. Empty Path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// SimConfig configures replay sources used instead of live perception.
type SimConfig struct {
	Scenario      string        `yaml:"scenario"`       // YAML scenario of classified frames
	FrameDir      string        `yaml:"frame_dir"`      // still frames for the color detector
	FrameInterval time.Duration `yaml:"frame_interval"` // replay period per frame
	Loop          bool          `yaml:"loop"`
}

// DefaultConfig returns the tuning the robot was calibrated with on a
// 640x480 camera. Decode YAML on top of it so absent keys keep these values
// and explicit zeros survive.
func DefaultConfig() Config {
	return Config{
		Global: GlobalConfig{
			RecordWidth:     50,
			ChannelCapacity: 64,
			StaleAfter:      500 * time.Millisecond,
			TickInterval:    10 * time.Millisecond,
		},
		Navigation: NavigationConfig{
			DetectionLane:     250,
			FailSafeLane:      400,
			CrossingTolerance: 30,
			ConfirmDepth:      200,
			Quad3ConfirmMin:   240,
			Quad3ConfirmMax:   300,
			QuadrantGap:       100,
			Recalibration:     0.95,
			DeadBand:          0.1,
			LeftIntrusionX:    250,
			RightIntrusionX:   390,
			ProjectionOffset:  200,
			DeadEndMinLength:  20,
			DeadEndDepth:      200,
			Turn90Hold:        6 * time.Second,
			Turn180Hold:       12 * time.Second,
			StraightHold:      time.Second,
		},
		Targeting: TargetingConfig{
			AreaThreshold: 3000,
			TolX:          10,
			TolY:          10,
			OffsetX:       22,
			OffsetY:       20,
			Persistence:   1500 * time.Millisecond,
			FireCooldown:  3 * time.Second,
		},
		Actuators: ActuatorsConfig{
			Drivetrain: LinkConfig{ID: "drivetrain", Baud: 9600},
			Turret:     LinkConfig{ID: "turret", Baud: 9600},
		},
		Sim: SimConfig{FrameInterval: 100 * time.Millisecond},
	}
}

// ApplyDefaults fills the structural fields for which zero is never a usable
// value: channel sizing, link identity and frame pacing. Calibration values
// are left alone; they come from DefaultConfig.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	g := &c.Global
	if g.RecordWidth == 0 {
		g.RecordWidth = d.Global.RecordWidth
	}
	if g.ChannelCapacity == 0 {
		g.ChannelCapacity = d.Global.ChannelCapacity
	}
	if g.StaleAfter == 0 {
		g.StaleAfter = d.Global.StaleAfter
	}
	if g.TickInterval == 0 {
		g.TickInterval = d.Global.TickInterval
	}

	a := &c.Actuators
	if a.Drivetrain.ID == "" {
		a.Drivetrain.ID = d.Actuators.Drivetrain.ID
	}
	if a.Turret.ID == "" {
		a.Turret.ID = d.Actuators.Turret.ID
	}
	if a.Drivetrain.Baud == 0 {
		a.Drivetrain.Baud = d.Actuators.Drivetrain.Baud
	}
	if a.Turret.Baud == 0 {
		a.Turret.Baud = d.Actuators.Turret.Baud
	}

	if c.Sim.FrameInterval == 0 {
		c.Sim.FrameInterval = d.Sim.FrameInterval
	}
}

// Validate checks the configuration for values the engines cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Global.RecordWidth < 16 {
		errs = append(errs, fmt.Errorf("global.record_width %d too small (min 16)", c.Global.RecordWidth))
	}
	if c.Global.ChannelCapacity < 1 {
		errs = append(errs, fmt.Errorf("global.channel_capacity must be positive"))
	}
	if c.Global.StaleAfter <= 0 {
		errs = append(errs, fmt.Errorf("global.stale_after must be positive"))
	}
	if c.Global.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("global.tick_interval must be positive"))
	}
	n := c.Navigation
	if n.CrossingTolerance <= 0 {
		errs = append(errs, fmt.Errorf("navigation.crossing_tolerance must be positive"))
	}
	if n.FailSafeLane <= n.DetectionLane {
		errs = append(errs, fmt.Errorf("navigation.fail_safe_lane (%.0f) must lie below detection_lane (%.0f)", n.FailSafeLane, n.DetectionLane))
	}
	if n.Quad3ConfirmMin >= n.Quad3ConfirmMax {
		errs = append(errs, fmt.Errorf("navigation.quad3_confirm_min must be less than quad3_confirm_max"))
	}
	if n.DeadBand < 0 || n.DeadBand >= 1 {
		errs = append(errs, fmt.Errorf("navigation.dead_band %.2f out of range [0,1)", n.DeadBand))
	}
	t := c.Targeting
	if t.AreaThreshold <= 0 {
		errs = append(errs, fmt.Errorf("targeting.area_threshold must be positive"))
	}
	if t.TolX < 0 || t.TolY < 0 {
		errs = append(errs, fmt.Errorf("targeting tolerances must not be negative"))
	}
	if t.CommandHold < 0 {
		errs = append(errs, fmt.Errorf("targeting.command_hold must not be negative"))
	}
	for _, l := range []LinkConfig{c.Actuators.Drivetrain, c.Actuators.Turret} {
		if !l.IsConsole() && l.Baud <= 0 {
			errs = append(errs, fmt.Errorf("actuator %s: baud must be positive", l.ID))
		}
	}
	return errors.Join(errs...)
}
