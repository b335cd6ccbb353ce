// Package arbiter decides, tick by tick, which perception task owns the
// drivetrain and the turret, and forwards that task's commands to the
// actuator links.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"AcademyBot/internal/channel"
	"AcademyBot/internal/model"
	"AcademyBot/internal/timeutil"
)

// ErrLinkFailed is returned once an actuator link rejects a write.
var ErrLinkFailed = errors.New("actuator link failed")

// Link is an actuator transport.
type Link interface {
	Send(cmd model.Command) error
}

// Arbiter is the single consumer of both command channels and the only
// writer of the actuator links.
type Arbiter struct {
	staleAfter time.Duration
	interval   time.Duration
	clock      timeutil.Clock

	navigation *channel.Channel
	targeting  *channel.Channel
	links      map[Actuator]Link

	mu    sync.RWMutex
	state State
	sinks model.MultiSink
}

// New creates an arbiter in Initializing mode.
func New(cfg model.GlobalConfig, navigation, targeting *channel.Channel, drivetrain, turret Link) *Arbiter {
	return &Arbiter{
		staleAfter: cfg.StaleAfter,
		interval:   cfg.TickInterval,
		clock:      timeutil.RealClock{},
		navigation: navigation,
		targeting:  targeting,
		links:      map[Actuator]Link{Drivetrain: drivetrain, Turret: turret},
		state:      stateFor(Initializing),
	}
}

// SetClock replaces the clock used by Run. Call before Run.
func (a *Arbiter) SetClock(c timeutil.Clock) { a.clock = c }

// Subscribe registers an observer for arbiter events. Call before Run.
func (a *Arbiter) Subscribe(s model.EventSink) { a.sinks = append(a.sinks, s) }

// State returns a snapshot of the current state.
func (a *Arbiter) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Run ticks until ctx is cancelled or a link fails.
func (a *Arbiter) Run(ctx context.Context) error {
	ticker := a.clock.NewTicker(a.interval)
	defer ticker.Stop()
	log.Printf("[arbiter] running, tick %v, stale after %v", a.interval, a.staleAfter)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if err := a.Tick(a.clock.Now()); err != nil {
				return err
			}
		}
	}
}

// Tick performs one scheduling decision. At most one record is read from
// each channel.
func (a *Arbiter) Tick(now time.Time) error {
	switch a.State().Mode {
	case Initializing:
		a.setMode(Looking, now)
		return nil
	case Looking:
		return a.tickLooking(now)
	case Turning:
		return a.tickTurning(now)
	case Shooting:
		return a.tickShooting(now)
	default:
		return ErrLinkFailed
	}
}

func (a *Arbiter) tickLooking(now time.Time) error {
	if cmd, ok := a.next(a.targeting, model.ProducerTargeting, now); ok {
		if cmd == model.CmdHome {
			if err := a.forward(model.ProducerTargeting, cmd, now); err != nil {
				return err
			}
		} else {
			a.setMode(Shooting, now)
			if err := a.forward(model.ProducerTargeting, cmd, now); err != nil {
				return err
			}
			a.drain(a.navigation, model.ProducerNavigation, now)
			return nil
		}
	}

	cmd, ok := a.next(a.navigation, model.ProducerNavigation, now)
	if !ok {
		return nil
	}
	if cmd.IsTurn() {
		a.setMode(Turning, now)
	}
	return a.forward(model.ProducerNavigation, cmd, now)
}

func (a *Arbiter) tickTurning(now time.Time) error {
	a.drain(a.targeting, model.ProducerTargeting, now)

	cmd, ok := a.next(a.navigation, model.ProducerNavigation, now)
	if !ok {
		return nil
	}
	if !cmd.IsTurn() {
		// navigation moved on, the turn is complete
		a.setMode(Looking, now)
	}
	return a.forward(model.ProducerNavigation, cmd, now)
}

func (a *Arbiter) tickShooting(now time.Time) error {
	a.drain(a.navigation, model.ProducerNavigation, now)

	cmd, ok := a.next(a.targeting, model.ProducerTargeting, now)
	if !ok {
		return nil
	}
	if err := a.forward(model.ProducerTargeting, cmd, now); err != nil {
		return err
	}
	if cmd == model.CmdHome {
		a.setMode(Looking, now)
	}
	return nil
}

// next reads one record from ch. Stale records drain the channel, while
// undecodable records and commands src may not send are dropped; none of
// them changes the mode.
func (a *Arbiter) next(ch *channel.Channel, src model.Producer, now time.Time) (model.Command, bool) {
	m, ok, err := ch.Receive()
	if err != nil {
		log.Printf("[arbiter] dropping record from %s: %v", src, err)
		a.publish(model.Event{Time: now, Kind: model.EventInvalidCommand, Source: src, Detail: err.Error()})
		return "", false
	}
	if !ok {
		return "", false
	}
	if age := m.Age(now); age > a.staleAfter {
		n := ch.Drain()
		log.Printf("[arbiter] stale %s from %s (%v old), drained %d", m.Command, src, age, n)
		a.publish(model.Event{Time: now, Kind: model.EventStaleDropped, Source: src, Command: m.Command, Count: n + 1})
		return "", false
	}
	if !accepts(src, m.Command) {
		log.Printf("[arbiter] dropping %s: not a %s command", m.Command, src)
		a.publish(model.Event{Time: now, Kind: model.EventInvalidCommand, Source: src, Command: m.Command})
		return "", false
	}
	return m.Command, true
}

func (a *Arbiter) drain(ch *channel.Channel, src model.Producer, now time.Time) {
	if n := ch.Drain(); n > 0 {
		a.publish(model.Event{Time: now, Kind: model.EventDrained, Source: src, Count: n})
	}
}

// forward writes cmd to its actuator if src currently owns it.
func (a *Arbiter) forward(src model.Producer, cmd model.Command, now time.Time) error {
	act := route(src, cmd)
	st := a.State()
	if owner := st.Owner(act); owner != src {
		log.Printf("[arbiter] %s may not drive %s in %s (owner %s), dropping %s", src, act, st.Mode, owner, cmd)
		a.publish(model.Event{Time: now, Kind: model.EventInvalidCommand, Source: src, Command: cmd, Link: string(act)})
		return nil
	}

	if err := a.links[act].Send(cmd); err != nil {
		log.Printf("[arbiter] %s link write %s failed: %v", act, cmd, err)
		a.setMode(Terminated, now)
		a.publish(model.Event{Time: now, Kind: model.EventLinkFailed, Source: src, Command: cmd, Link: string(act), Detail: err.Error()})
		return fmt.Errorf("%w: %s: %v", ErrLinkFailed, act, err)
	}
	a.publish(model.Event{Time: now, Kind: model.EventForwarded, Source: src, Command: cmd, Mode: st.Mode.String(), Link: string(act)})
	return nil
}

func (a *Arbiter) setMode(m Mode, now time.Time) {
	a.mu.Lock()
	prev := a.state.Mode
	a.state = stateFor(m)
	a.mu.Unlock()
	if prev == m {
		return
	}
	log.Printf("[arbiter] %s -> %s", prev, m)
	a.publish(model.Event{Time: now, Kind: model.EventModeChanged, Mode: m.String(), Detail: prev.String()})
}

func (a *Arbiter) publish(e model.Event) {
	a.sinks.Publish(e)
}
