// Package core wires AcademyBot together: the two perception tasks, their
// command channels, the arbiter, the actuator links and the observers.
package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"AcademyBot/internal/arbiter"
	"AcademyBot/internal/channel"
	"AcademyBot/internal/device"
	"AcademyBot/internal/journal"
	"AcademyBot/internal/model"
	"AcademyBot/internal/navigation"
	"AcademyBot/internal/parser"
	"AcademyBot/internal/sim"
	"AcademyBot/internal/targeting"
	"AcademyBot/internal/timeutil"
	"AcademyBot/internal/util"
	"AcademyBot/internal/vision"
)

// Options overrides the parts of a System that NewSystem would otherwise
// build from the configuration.
type Options struct {
	Lines      LineSource
	Detections DetectionSource
	Drivetrain device.Link
	Turret     device.Link
	Clock      timeutil.Clock
}

// System manages the lifecycle of every runtime component.
type System struct {
	cfgPath string
	cfg     model.Config
	parser  parser.Parser

	Navigation *channel.Channel
	Targeting  *channel.Channel
	NavTask    *NavigationTask
	TgtTask    *TargetingTask
	Arbiter    *arbiter.Arbiter
	Drivetrain device.Link
	Turret     device.Link
	Monitor    *Monitor
	Journal    *journal.Journal

	echoStops []func()
	cancel    context.CancelFunc
	done      chan struct{}
	err       error

	started   bool
	startLock sync.Mutex
}

// LoadConfig reads the YAML configuration at path on top of
// model.DefaultConfig and validates it. Keys missing from the file keep their
// defaults; keys present, zero included, are taken as written.
func LoadConfig(path string) (model.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.Config{}, err
	}
	cfg := model.DefaultConfig()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return model.Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// NewSystem reads the YAML configuration at cfgPath and creates a System.
func NewSystem(cfgPath string) (*System, error) {
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	s, err := NewSystemWithOptions(cfg, Options{})
	if err != nil {
		return nil, err
	}
	s.cfgPath = cfgPath
	return s, nil
}

// NewSystemWithOptions builds a System from an already loaded configuration.
// Zero fields in opts are built from cfg.
func NewSystemWithOptions(cfg model.Config, opts Options) (*System, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	s := &System{cfg: cfg, parser: parser.NewRecordParser(cfg.Global.RecordWidth)}
	s.Navigation = channel.New("navigation", s.parser, cfg.Global.ChannelCapacity)
	s.Targeting = channel.New("targeting", s.parser, cfg.Global.ChannelCapacity)

	lines, dets := opts.Lines, opts.Detections
	if lines == nil || dets == nil {
		l, d, err := sources(cfg.Sim, clock)
		if err != nil {
			return nil, err
		}
		if lines == nil {
			lines = l
		}
		if dets == nil {
			dets = d
		}
	}

	s.Drivetrain, s.Turret = opts.Drivetrain, opts.Turret
	if s.Drivetrain == nil {
		s.Drivetrain = newLink(cfg.Actuators.Drivetrain)
	}
	if s.Turret == nil {
		s.Turret = newLink(cfg.Actuators.Turret)
	}

	s.NavTask = NewNavigationTask(navigation.NewEngine(cfg.Navigation), lines, s.Navigation)
	s.NavTask.SetClock(clock)
	s.TgtTask = NewTargetingTask(targeting.NewEngine(cfg.Targeting), dets, s.Targeting)
	s.TgtTask.SetClock(clock)
	s.Arbiter = arbiter.New(cfg.Global, s.Navigation, s.Targeting, s.Drivetrain, s.Turret)
	s.Arbiter.SetClock(clock)

	var sinks model.MultiSink
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		s.Journal = j
		sinks = append(sinks, j)
	}
	if cfg.Monitor.Addr != "" {
		s.Monitor = NewMonitor(cfg.Monitor.Addr, func() any { return s.Snapshot() })
		sinks = append(sinks, s.Monitor)
	}
	if len(sinks) > 0 {
		s.Arbiter.Subscribe(sinks)
		s.NavTask.Subscribe(sinks)
		s.TgtTask.Subscribe(sinks)
	}
	return s, nil
}

// sources builds replay sources from the sim section. Frames from a frame
// directory take precedence over the scenario's targeting frames.
func sources(cfg model.SimConfig, clock timeutil.Clock) (LineSource, DetectionSource, error) {
	if cfg.Scenario == "" {
		return nil, nil, errors.New("sim.scenario is required: no live line classifier is built in")
	}
	sc, err := sim.LoadScenario(cfg.Scenario)
	if err != nil {
		return nil, nil, err
	}
	opts := sim.Options{Interval: cfg.FrameInterval, Loop: cfg.Loop, Clock: clock}
	var dets DetectionSource = sc.DetectionSource(opts)
	if cfg.FrameDir != "" {
		fd, err := vision.OpenFrameDir(cfg.FrameDir)
		if err != nil {
			return nil, nil, err
		}
		frames, err := fd.Detections(vision.NewColorBlobDetector())
		if err != nil {
			return nil, nil, err
		}
		dets = sim.NewDetectionReplay(frames, opts)
	}
	log.Printf("[system] replaying scenario %q (%s)", sc.Name, cfg.Scenario)
	return sc.LineSource(opts), dets, nil
}

func newLink(cfg model.LinkConfig) device.Link {
	if cfg.IsConsole() {
		return device.NewConsoleLink(cfg.ID, os.Stdout)
	}
	return device.NewArduinoDevice(cfg.ID, cfg.Device, cfg.Baud)
}

// Config returns the effective configuration.
func (s *System) Config() model.Config { return s.cfg }

// StartAll opens the actuator links and starts the monitor, the arbiter and
// both perception tasks.
func (s *System) StartAll() error {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if s.started {
		return nil
	}

	for _, l := range []device.Link{s.Drivetrain, s.Turret} {
		a, ok := l.(*device.ArduinoDevice)
		if !ok {
			continue
		}
		if err := a.Open(); err != nil {
			s.closeLinks()
			return fmt.Errorf("actuator %s: %w", a.ID, err)
		}
		s.echo(a)
	}

	if s.Monitor != nil {
		if err := s.Monitor.Start(); err != nil {
			s.closeLinks()
			return fmt.Errorf("monitor: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.Arbiter.Run(ctx); err != nil {
			util.Error("arbiter terminated: %v", err)
			s.err = err
		}
	}()

	if err := s.NavTask.Start(); err != nil {
		return err
	}
	if err := s.TgtTask.Start(); err != nil {
		return err
	}
	s.started = true
	util.Info("system started (stale after %v, tick %v)", s.cfg.Global.StaleAfter, s.cfg.Global.TickInterval)
	return nil
}

// echo logs whatever an Arduino prints back.
func (s *System) echo(a *device.ArduinoDevice) {
	lines := make(chan string, 16)
	stop, err := a.Monitor(lines)
	if err != nil {
		util.Warn("actuator %s: echo disabled: %v", a.ID, err)
		return
	}
	s.echoStops = append(s.echoStops, stop)
	go func() {
		for line := range lines {
			if strings.HasPrefix(line, "ERR") {
				util.Warn("[%s] %s", a.ID, line)
				continue
			}
			log.Printf("[%s] %s", a.ID, line)
		}
	}()
}

// Done is closed when the arbiter stops, either by StopAll or because an
// actuator link failed.
func (s *System) Done() <-chan struct{} {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	return s.done
}

// Err returns the arbiter's terminal error once Done is closed. A system
// that was never started reports nil right away.
func (s *System) Err() error {
	done := s.Done()
	if done == nil {
		return nil
	}
	<-done
	return s.err
}

// StopAll stops all running components gracefully.
func (s *System) StopAll() {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if !s.started {
		return
	}
	s.NavTask.Stop()
	s.TgtTask.Stop()
	s.Navigation.Close()
	s.Targeting.Close()
	s.cancel()
	<-s.done

	for _, stop := range s.echoStops {
		stop()
	}
	s.echoStops = nil
	s.closeLinks()
	if s.Monitor != nil {
		s.Monitor.Stop()
	}
	if s.Journal != nil {
		if err := s.Journal.Close(); err != nil {
			util.Warn("journal close: %v", err)
		}
	}
	s.started = false
	util.Info("system stopped")
}

func (s *System) closeLinks() {
	for _, l := range []device.Link{s.Drivetrain, s.Turret} {
		if err := l.Close(); err != nil {
			util.Warn("close link: %v", err)
		}
	}
}

// Snapshot is the state served on /api/state.
type Snapshot struct {
	Arbiter    arbiter.State      `json:"arbiter"`
	Navigation NavigationSnapshot `json:"navigation"`
	Targeting  TargetingSnapshot  `json:"targeting"`
	Queued     map[string]int     `json:"queued"`
	RunID      string             `json:"run_id,omitempty"`
}

// NavigationSnapshot summarizes the navigation engine.
type NavigationSnapshot struct {
	Guidance     string        `json:"guidance"`
	Intersection string        `json:"intersection"`
	Crossings    int           `json:"crossings"`
	PendingTurn  model.Command `json:"pending_turn,omitempty"`
}

// TargetingSnapshot summarizes the targeting engine.
type TargetingSnapshot struct {
	Engaged     bool          `json:"engaged"`
	LastCommand model.Command `json:"last_command,omitempty"`
}

// Snapshot collects the current state of every component.
func (s *System) Snapshot() Snapshot {
	nav := s.NavTask.State()
	tgt := s.TgtTask.State()
	snap := Snapshot{
		Arbiter: s.Arbiter.State(),
		Navigation: NavigationSnapshot{
			Guidance:     nav.Guidance.String(),
			Intersection: nav.Intersection.String(),
			Crossings:    nav.Crossings,
			PendingTurn:  nav.PendingTurn,
		},
		Targeting: TargetingSnapshot{Engaged: tgt.Engaged, LastCommand: tgt.LastCommand},
		Queued: map[string]int{
			s.Navigation.Name(): s.Navigation.Len(),
			s.Targeting.Name():  s.Targeting.Len(),
		},
	}
	if s.Journal != nil {
		snap.RunID = s.Journal.RunID()
	}
	return snap
}
