package core

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"AcademyBot/internal/channel"
	"AcademyBot/internal/model"
	"AcademyBot/internal/navigation"
	"AcademyBot/internal/targeting"
	"AcademyBot/internal/timeutil"
)

// LineSource yields one classified line frame per call. It returns io.EOF
// when no more frames will arrive.
type LineSource interface {
	NextLines(ctx context.Context) (model.ClassifiedLines, error)
}

// DetectionSource yields one contour result per call. It returns io.EOF
// when no more frames will arrive.
type DetectionSource interface {
	NextDetection(ctx context.Context) (model.ContourResult, error)
}

// task is the goroutine lifecycle shared by both perception tasks.
type task struct {
	name   string
	clock  timeutil.Clock
	sinks  model.MultiSink
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (t *task) start(run func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		err := run(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, io.EOF):
			log.Printf("[%s] source exhausted", t.name)
		case errors.Is(err, channel.ErrChannelClosed):
			log.Printf("[%s] channel closed", t.name)
		default:
			log.Printf("[%s] stopped: %v", t.name, err)
		}
	}()
}

// stop cancels the task and waits for its goroutine. Safe to call twice
// or before start.
func (t *task) stop() {
	if t.cancel == nil {
		return
	}
	t.once.Do(func() {
		t.cancel()
		<-t.done
	})
}

// Done is closed once the task goroutine has returned.
func (t *task) Done() <-chan struct{} { return t.done }

// NavigationTask runs the navigation engine over a line source and
// publishes one command per frame onto the navigation channel.
type NavigationTask struct {
	task
	engine *navigation.Engine
	source LineSource
	out    *channel.Channel

	mu    sync.RWMutex
	state navigation.State
}

// NewNavigationTask creates a stopped navigation task.
func NewNavigationTask(engine *navigation.Engine, source LineSource, out *channel.Channel) *NavigationTask {
	return &NavigationTask{
		task:   task{name: "navigation", clock: timeutil.RealClock{}},
		engine: engine,
		source: source,
		out:    out,
	}
}

// SetClock replaces the clock used to timestamp frames. Call before Start.
func (t *NavigationTask) SetClock(c timeutil.Clock) { t.clock = c }

// Subscribe registers an observer for engine events. Call before Start.
func (t *NavigationTask) Subscribe(s model.EventSink) { t.sinks = append(t.sinks, s) }

// State returns the engine state after the last frame.
func (t *NavigationTask) State() navigation.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Start launches the task goroutine.
func (t *NavigationTask) Start() error {
	t.start(t.run)
	log.Printf("[navigation] started")
	return nil
}

// Stop cancels the task and waits for it to exit.
func (t *NavigationTask) Stop() { t.stop() }

func (t *NavigationTask) run(ctx context.Context) error {
	for {
		lines, err := t.source.NextLines(ctx)
		if err != nil {
			return err
		}
		if err := t.step(ctx, lines); err != nil {
			return err
		}
	}
}

// step advances the engine by one frame and publishes its command.
func (t *NavigationTask) step(ctx context.Context, lines model.ClassifiedLines) error {
	now := t.clock.Now()
	t.mu.Lock()
	st, out := t.engine.Advance(t.state, lines, now)
	t.state = st
	t.mu.Unlock()

	for _, e := range out.Events {
		t.sinks.Publish(e)
	}
	if out.Command == "" {
		return nil
	}
	return t.out.Send(ctx, model.Message{Command: out.Command, Sent: now})
}

// TargetingTask runs the targeting engine over a detection source and
// publishes aiming commands onto the targeting channel.
type TargetingTask struct {
	task
	engine *targeting.Engine
	source DetectionSource
	out    *channel.Channel

	mu    sync.RWMutex
	state targeting.State
}

// NewTargetingTask creates a stopped targeting task.
func NewTargetingTask(engine *targeting.Engine, source DetectionSource, out *channel.Channel) *TargetingTask {
	return &TargetingTask{
		task:   task{name: "targeting", clock: timeutil.RealClock{}},
		engine: engine,
		source: source,
		out:    out,
	}
}

// SetClock replaces the clock used to timestamp frames. Call before Start.
func (t *TargetingTask) SetClock(c timeutil.Clock) { t.clock = c }

// Subscribe registers an observer for engagement events. Call before Start.
func (t *TargetingTask) Subscribe(s model.EventSink) { t.sinks = append(t.sinks, s) }

// State returns the engine state after the last frame.
func (t *TargetingTask) State() targeting.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Start launches the task goroutine.
func (t *TargetingTask) Start() error {
	t.start(t.run)
	log.Printf("[targeting] started")
	return nil
}

// Stop cancels the task and waits for it to exit.
func (t *TargetingTask) Stop() { t.stop() }

func (t *TargetingTask) run(ctx context.Context) error {
	for {
		det, err := t.source.NextDetection(ctx)
		if err != nil {
			return err
		}
		if err := t.step(ctx, det); err != nil {
			return err
		}
	}
}

func (t *TargetingTask) step(ctx context.Context, det model.ContourResult) error {
	now := t.clock.Now()
	t.mu.Lock()
	prev := t.state
	st, cmd, ok := t.engine.Advance(prev, det, now)
	t.state = st
	t.mu.Unlock()

	switch {
	case !prev.Engaged && st.Engaged:
		t.publish(now, model.EventTargetAcquired, cmd)
	case prev.Engaged && !st.Engaged:
		t.publish(now, model.EventTargetLost, cmd)
	}
	if !ok {
		return nil
	}
	if cmd == model.CmdFire {
		t.publish(now, model.EventFired, cmd)
	}
	return t.out.Send(ctx, model.Message{Command: cmd, Sent: now})
}

func (t *TargetingTask) publish(now time.Time, kind model.EventKind, cmd model.Command) {
	t.sinks.Publish(model.Event{Time: now, Kind: kind, Source: model.ProducerTargeting, Command: cmd})
}
