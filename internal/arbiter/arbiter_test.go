package arbiter

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AcademyBot/internal/channel"
	"AcademyBot/internal/model"
	"AcademyBot/internal/parser"
	"AcademyBot/internal/timeutil"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeLink struct {
	mu   sync.Mutex
	sent []model.Command
	err  error
}

func (l *fakeLink) Send(cmd model.Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.sent = append(l.sent, cmd)
	return nil
}

func (l *fakeLink) commands() []model.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Command(nil), l.sent...)
}

type harness struct {
	arb        *Arbiter
	nav, tgt   *channel.Channel
	drive, tur *fakeLink
	events     []model.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := model.DefaultConfig().Global
	p := parser.NewRecordParser(cfg.RecordWidth)
	h := &harness{
		nav:   channel.New("nav", p, 16),
		tgt:   channel.New("targeting", p, 16),
		drive: &fakeLink{},
		tur:   &fakeLink{},
	}
	h.arb = New(cfg, h.nav, h.tgt, h.drive, h.tur)
	h.arb.Subscribe(model.EventSinkFunc(func(e model.Event) { h.events = append(h.events, e) }))
	require.NoError(t, h.arb.Tick(t0))
	require.Equal(t, Looking, h.arb.State().Mode)
	return h
}

func (h *harness) send(t *testing.T, ch *channel.Channel, cmd model.Command, sent time.Time) {
	t.Helper()
	require.NoError(t, ch.Send(context.Background(), model.Message{Command: cmd, Sent: sent}))
}

func (h *harness) kinds() []model.EventKind {
	var out []model.EventKind
	for _, e := range h.events {
		out = append(out, e.Kind)
	}
	return out
}

func TestTick_InitializingMovesToLooking(t *testing.T) {
	h := newHarness(t)
	st := h.arb.State()
	assert.Equal(t, model.ProducerNavigation, st.DrivetrainOwner)
	assert.Equal(t, model.ProducerTargeting, st.TurretOwner)
	assert.Contains(t, h.kinds(), model.EventModeChanged)
}

func TestTick_LookingForwardsNavigation(t *testing.T) {
	h := newHarness(t)
	now := t0.Add(10 * time.Millisecond)

	h.send(t, h.nav, model.CmdForward, now)
	require.NoError(t, h.arb.Tick(now))
	assert.Equal(t, []model.Command{model.CmdForward}, h.drive.commands())
	assert.Equal(t, Looking, h.arb.State().Mode)

	h.send(t, h.nav, model.CmdTurnLeft, now)
	require.NoError(t, h.arb.Tick(now))
	assert.Equal(t, []model.Command{model.CmdForward, model.CmdTurnLeft}, h.drive.commands())
	assert.Equal(t, Turning, h.arb.State().Mode)
	assert.Empty(t, h.tur.commands())
}

func TestTick_TurningIgnoresTargeting(t *testing.T) {
	h := newHarness(t)
	now := t0.Add(10 * time.Millisecond)
	h.send(t, h.nav, model.CmdTurnRight, now)
	require.NoError(t, h.arb.Tick(now))
	require.Equal(t, Turning, h.arb.State().Mode)

	h.send(t, h.tgt, model.CmdStop, now)
	h.send(t, h.tgt, model.CmdFire, now)
	h.send(t, h.nav, model.CmdTurnRight, now)
	require.NoError(t, h.arb.Tick(now))
	assert.Equal(t, Turning, h.arb.State().Mode)
	assert.Zero(t, h.tgt.Len(), "targeting backlog is drained while turning")
	assert.Empty(t, h.tur.commands())

	h.send(t, h.nav, model.CmdForward, now)
	require.NoError(t, h.arb.Tick(now))
	assert.Equal(t, Looking, h.arb.State().Mode)
	assert.Equal(t, []model.Command{model.CmdTurnRight, model.CmdTurnRight, model.CmdForward}, h.drive.commands())
}

func TestTick_TargetingTakesOver(t *testing.T) {
	h := newHarness(t)
	now := t0.Add(10 * time.Millisecond)

	h.send(t, h.nav, model.CmdForward, now)
	h.send(t, h.tgt, model.CmdStop, now)
	require.NoError(t, h.arb.Tick(now))

	assert.Equal(t, Shooting, h.arb.State().Mode)
	assert.Equal(t, []model.Command{model.CmdStop}, h.drive.commands(), "STP halts the wheels, FWD is never forwarded")
	assert.Zero(t, h.nav.Len())

	h.send(t, h.nav, model.CmdForward, now)
	h.send(t, h.tgt, model.CmdLeft, now)
	require.NoError(t, h.arb.Tick(now))
	assert.Equal(t, []model.Command{model.CmdLeft}, h.tur.commands())
	assert.Equal(t, []model.Command{model.CmdStop}, h.drive.commands())

	h.send(t, h.tgt, model.CmdFire, now)
	require.NoError(t, h.arb.Tick(now))
	h.send(t, h.tgt, model.CmdHome, now)
	require.NoError(t, h.arb.Tick(now))

	assert.Equal(t, Looking, h.arb.State().Mode)
	assert.Equal(t, []model.Command{model.CmdLeft, model.CmdFire, model.CmdHome}, h.tur.commands())
}

func TestTick_HomeWhileLookingKeepsNavigation(t *testing.T) {
	h := newHarness(t)
	now := t0.Add(10 * time.Millisecond)

	h.send(t, h.tgt, model.CmdHome, now)
	h.send(t, h.nav, model.CmdForward, now)
	require.NoError(t, h.arb.Tick(now))

	assert.Equal(t, Looking, h.arb.State().Mode)
	assert.Equal(t, []model.Command{model.CmdHome}, h.tur.commands())
	assert.Equal(t, []model.Command{model.CmdForward}, h.drive.commands())
}

func TestTick_StaleRecordDrainsChannel(t *testing.T) {
	h := newHarness(t)
	old := t0
	for i := 0; i < 3; i++ {
		h.send(t, h.nav, model.CmdTurnLeft, old)
	}

	now := old.Add(600 * time.Millisecond)
	require.NoError(t, h.arb.Tick(now))

	assert.Empty(t, h.drive.commands())
	assert.Zero(t, h.nav.Len())
	assert.Equal(t, Looking, h.arb.State().Mode)

	last := h.events[len(h.events)-1]
	assert.Equal(t, model.EventStaleDropped, last.Kind)
	assert.Equal(t, 3, last.Count)
}

func TestTick_FreshAtBoundaryIsForwarded(t *testing.T) {
	h := newHarness(t)
	h.send(t, h.nav, model.CmdForward, t0)
	require.NoError(t, h.arb.Tick(t0.Add(500*time.Millisecond)))
	assert.Equal(t, []model.Command{model.CmdForward}, h.drive.commands())
}

func TestTick_WrongProducerDropped(t *testing.T) {
	h := newHarness(t)
	now := t0.Add(10 * time.Millisecond)

	h.send(t, h.nav, model.CmdFire, now)
	h.send(t, h.tgt, model.CmdTurnLeft, now)
	require.NoError(t, h.arb.Tick(now))

	assert.Equal(t, Looking, h.arb.State().Mode)
	assert.Empty(t, h.drive.commands())
	assert.Empty(t, h.tur.commands())
	assert.Contains(t, h.kinds(), model.EventInvalidCommand)
}

func TestTick_UnknownTokenPublished(t *testing.T) {
	h := newHarness(t)
	now := t0.Add(10 * time.Millisecond)

	rec := []byte("ZAP " + parser.FormatTimestamp(now))
	require.NoError(t, h.nav.SendRecord(context.Background(), rec))
	require.NoError(t, h.arb.Tick(now))

	assert.Equal(t, Looking, h.arb.State().Mode)
	assert.Empty(t, h.drive.commands())
	last := h.events[len(h.events)-1]
	assert.Equal(t, model.EventInvalidCommand, last.Kind)
	assert.Equal(t, model.ProducerNavigation, last.Source)
	assert.Contains(t, last.Detail, "ZAP")

	// the next record still goes through
	h.send(t, h.nav, model.CmdForward, now)
	require.NoError(t, h.arb.Tick(now))
	assert.Equal(t, []model.Command{model.CmdForward}, h.drive.commands())
}

func TestStateFor_Ownership(t *testing.T) {
	cases := []struct {
		mode          Mode
		drive, turret model.Producer
	}{
		{Initializing, model.ProducerNone, model.ProducerNone},
		{Looking, model.ProducerNavigation, model.ProducerTargeting},
		{Turning, model.ProducerNavigation, model.ProducerNone},
		{Shooting, model.ProducerTargeting, model.ProducerTargeting},
		{Terminated, model.ProducerNone, model.ProducerNone},
	}
	for _, c := range cases {
		st := stateFor(c.mode)
		assert.Equal(t, c.drive, st.Owner(Drivetrain), c.mode.String())
		assert.Equal(t, c.turret, st.Owner(Turret), c.mode.String())
	}
	// only targeting's STP is routed to the wheels while shooting
	assert.Equal(t, Drivetrain, route(model.ProducerTargeting, model.CmdStop))
	assert.Equal(t, Turret, route(model.ProducerTargeting, model.CmdLeft))
}

func TestAccepts(t *testing.T) {
	for _, c := range []model.Command{model.CmdForward, model.CmdBack, model.CmdLeft, model.CmdRight, model.CmdTurnLeft, model.CmdTurnRight} {
		assert.True(t, accepts(model.ProducerNavigation, c), c)
	}
	for _, c := range []model.Command{model.CmdStop, model.CmdFire, model.CmdUp, model.CmdDown, model.CmdHome} {
		assert.False(t, accepts(model.ProducerNavigation, c), c)
	}
	for _, c := range []model.Command{model.CmdFire, model.CmdUp, model.CmdDown, model.CmdLeft, model.CmdRight, model.CmdStop, model.CmdHome} {
		assert.True(t, accepts(model.ProducerTargeting, c), c)
	}
	for _, c := range []model.Command{model.CmdForward, model.CmdBack, model.CmdTurnLeft, model.CmdTurnRight} {
		assert.False(t, accepts(model.ProducerTargeting, c), c)
	}
	assert.False(t, accepts(model.ProducerNone, model.CmdForward))
}

func TestTick_LinkFailureTerminates(t *testing.T) {
	h := newHarness(t)
	h.drive.err = errors.New("port closed")
	now := t0.Add(10 * time.Millisecond)

	h.send(t, h.nav, model.CmdForward, now)
	err := h.arb.Tick(now)
	require.ErrorIs(t, err, ErrLinkFailed)
	assert.Equal(t, Terminated, h.arb.State().Mode)
	assert.Equal(t, model.ProducerNone, h.arb.State().DrivetrainOwner)

	assert.ErrorIs(t, h.arb.Tick(now), ErrLinkFailed)
	assert.Contains(t, h.kinds(), model.EventLinkFailed)
}

// Random interleavings of both producers must never reach an actuator on
// behalf of a producer that does not own it.
func TestTick_MutualExclusion(t *testing.T) {
	navCmds := []model.Command{model.CmdForward, model.CmdLeft, model.CmdRight, model.CmdTurnLeft, model.CmdTurnRight, model.CmdBack}
	tgtCmds := []model.Command{model.CmdLeft, model.CmdRight, model.CmdUp, model.CmdDown, model.CmdFire, model.CmdStop, model.CmdHome}

	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		h := newHarness(t)
		now := t0
		for i := 0; i < 200; i++ {
			now = now.Add(10 * time.Millisecond)
			if rng.Intn(2) == 0 {
				h.send(t, h.nav, navCmds[rng.Intn(len(navCmds))], now)
			}
			if rng.Intn(3) == 0 {
				h.send(t, h.tgt, tgtCmds[rng.Intn(len(tgtCmds))], now)
			}
			require.NoError(t, h.arb.Tick(now))
		}

		for _, e := range h.events {
			if e.Kind != model.EventForwarded {
				continue
			}
			mode := modeByName(t, e.Mode)
			owner := stateFor(mode).Owner(Actuator(e.Link))
			assert.Equal(t, owner, e.Source, "seed %d: %s forwarded %s to %s in %s", seed, e.Source, e.Command, e.Link, e.Mode)
			if mode == Turning {
				assert.Equal(t, model.ProducerNavigation, e.Source)
			}
			if mode == Shooting {
				assert.Equal(t, model.ProducerTargeting, e.Source)
			}
		}
	}
}

func modeByName(t *testing.T, name string) Mode {
	for m := Initializing; m <= Terminated; m++ {
		if m.String() == name {
			return m
		}
	}
	t.Fatalf("unknown mode %q", name)
	return Initializing
}

func TestRun_TicksOnClock(t *testing.T) {
	cfg := model.DefaultConfig().Global
	p := parser.NewRecordParser(cfg.RecordWidth)
	nav := channel.New("nav", p, 4)
	tgt := channel.New("targeting", p, 4)
	drive := &fakeLink{}
	arb := New(cfg, nav, tgt, drive, &fakeLink{})
	clock := timeutil.NewMockClock(t0)
	arb.SetClock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- arb.Run(ctx) }()

	require.NoError(t, nav.Send(ctx, model.Message{Command: model.CmdForward, Sent: t0}))
	require.Eventually(t, func() bool {
		clock.Advance(cfg.TickInterval)
		return len(drive.commands()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, Looking, arb.State().Mode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestRun_ReturnsLinkFailure(t *testing.T) {
	cfg := model.DefaultConfig().Global
	p := parser.NewRecordParser(cfg.RecordWidth)
	nav := channel.New("nav", p, 4)
	arb := New(cfg, nav, channel.New("targeting", p, 4), &fakeLink{err: errors.New("gone")}, &fakeLink{})
	clock := timeutil.NewMockClock(t0)
	arb.SetClock(clock)

	require.NoError(t, nav.Send(context.Background(), model.Message{Command: model.CmdForward, Sent: t0}))
	done := make(chan error, 1)
	go func() { done <- arb.Run(context.Background()) }()

	var err error
	require.Eventually(t, func() bool {
		clock.Advance(cfg.TickInterval)
		select {
		case err = <-done:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, err, ErrLinkFailed)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "SHOOTING", Shooting.String())
	assert.Equal(t, "Mode(42)", Mode(42).String())
}
