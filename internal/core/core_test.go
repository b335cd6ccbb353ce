package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AcademyBot/internal/arbiter"
	"AcademyBot/internal/channel"
	"AcademyBot/internal/journal"
	"AcademyBot/internal/model"
	"AcademyBot/internal/navigation"
	"AcademyBot/internal/parser"
	"AcademyBot/internal/sim"
	"AcademyBot/internal/targeting"
	"AcademyBot/internal/timeutil"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type recordingLink struct {
	mu   sync.Mutex
	sent []model.Command
	err  error
}

func (l *recordingLink) Send(cmd model.Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.sent = append(l.sent, cmd)
	return nil
}

func (l *recordingLink) Close() error { return nil }

func (l *recordingLink) commands() []model.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Command(nil), l.sent...)
}

func (l *recordingLink) has(cmd model.Command) bool {
	for _, c := range l.commands() {
		if c == cmd {
			return true
		}
	}
	return false
}

type eventLog struct {
	mu     sync.Mutex
	events []model.Event
}

func (l *eventLog) Publish(e model.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) kinds() []model.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.EventKind
	for _, e := range l.events {
		out = append(out, e.Kind)
	}
	return out
}

func corridor(n int) []model.ClassifiedLines {
	frames := make([]model.ClassifiedLines, n)
	for i := range frames {
		frames[i] = model.ClassifiedLines{
			Width:  640,
			Height: 480,
			Left:   &model.LineSegment{X1: 100, Y1: 480, X2: 100, Y2: 300},
			Right:  &model.LineSegment{X1: 540, Y1: 300, X2: 540, Y2: 480},
		}
	}
	return frames
}

func aligned() model.ContourResult {
	return model.ContourResult{Width: 640, Height: 480, Hostile: &model.Blob{Area: 5000, CX: 342, CY: 260}}
}

func newChannel(name string) *channel.Channel {
	return channel.New(name, parser.NewRecordParser(model.DefaultConfig().Global.RecordWidth), 16)
}

func TestNavigationTask_PublishesOneCommandPerFrame(t *testing.T) {
	out := newChannel("navigation")
	task := NewNavigationTask(navigation.NewEngine(model.DefaultConfig().Navigation),
		sim.NewLineReplay(corridor(3), sim.Options{}), out)
	task.SetClock(timeutil.NewMockClock(t0))

	require.NoError(t, task.Start())
	<-task.Done()
	task.Stop()

	assert.Equal(t, 3, out.Len())
	m, ok := out.Read()
	require.True(t, ok)
	assert.Equal(t, model.CmdForward, m.Command)
	assert.True(t, m.Sent.Equal(t0))
	assert.True(t, task.State().Idle())
}

func TestNavigationTask_StopUnblocksFullChannel(t *testing.T) {
	out := channel.New("navigation", parser.NewRecordParser(50), 1)
	task := NewNavigationTask(navigation.NewEngine(model.DefaultConfig().Navigation),
		sim.NewLineReplay(corridor(10), sim.Options{}), out)

	require.NoError(t, task.Start())
	require.Eventually(t, func() bool { return out.Len() == 1 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() { task.Stop(); close(stopped) }()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return while the channel was full")
	}
	task.Stop()
}

func TestTargetingTask_Events(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	cfg := model.DefaultConfig().Targeting
	out := newChannel("targeting")
	task := NewTargetingTask(targeting.NewEngine(cfg), nil, out)
	task.SetClock(clock)
	events := &eventLog{}
	task.Subscribe(events)

	ctx := context.Background()
	require.NoError(t, task.step(ctx, aligned()))
	clock.Advance(100 * time.Millisecond)
	require.NoError(t, task.step(ctx, aligned()))
	clock.Advance(cfg.Persistence + time.Millisecond)
	require.NoError(t, task.step(ctx, model.ContourResult{}))

	var cmds []model.Command
	for {
		m, ok := out.Read()
		if !ok {
			break
		}
		cmds = append(cmds, m.Command)
	}
	assert.Equal(t, []model.Command{model.CmdStop, model.CmdFire, model.CmdHome}, cmds)
	assert.Equal(t, []model.EventKind{model.EventTargetAcquired, model.EventFired, model.EventTargetLost}, events.kinds())
	assert.False(t, task.State().Engaged)
}

func dialMonitor(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn
}

func TestMonitor_BroadcastsEvents(t *testing.T) {
	m := NewMonitor("", nil)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	defer m.Stop()

	a, b := dialMonitor(t, srv), dialMonitor(t, srv)
	defer a.Close()
	defer b.Close()
	require.Eventually(t, func() bool { return m.Clients() == 2 }, time.Second, 5*time.Millisecond)

	m.Publish(model.Event{Time: t0, Kind: model.EventModeChanged, Source: model.ProducerNone, Mode: "SHOOTING"})

	codec := parser.NewJSONParser()
	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		e, err := codec.DecodeEvent(msg)
		require.NoError(t, err)
		assert.Equal(t, model.EventModeChanged, e.Kind)
		assert.Equal(t, "SHOOTING", e.Mode)
	}

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return m.Clients() == 1 }, time.Second, 5*time.Millisecond)
}

func TestMonitor_State(t *testing.T) {
	m := NewMonitor("", func() any { return map[string]string{"mode": "LOOKING"} })
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "LOOKING", got["mode"])

	post, err := http.Post(srv.URL+"/api/state", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func testConfig(t *testing.T) model.Config {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Global.TickInterval = time.Millisecond
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")
	return cfg
}

func TestSystem_ScenarioThroughArbiter(t *testing.T) {
	cfg := testConfig(t)
	drive, turret := &recordingLink{}, &recordingLink{}
	sys, err := NewSystemWithOptions(cfg, Options{
		Lines:      sim.NewLineReplay(corridor(20), sim.Options{}),
		Detections: sim.NewDetectionReplay([]model.ContourResult{{}, aligned(), aligned()}, sim.Options{}),
		Drivetrain: drive,
		Turret:     turret,
	})
	require.NoError(t, err)
	runID := sys.Journal.RunID()

	require.NoError(t, sys.StartAll())
	require.Eventually(t, func() bool {
		return drive.has(model.CmdStop) && turret.has(model.CmdFire)
	}, 2*time.Second, 5*time.Millisecond)

	snap := sys.Snapshot()
	assert.Equal(t, arbiter.Shooting, snap.Arbiter.Mode)
	assert.Equal(t, model.ProducerTargeting, snap.Arbiter.DrivetrainOwner)
	assert.True(t, snap.Targeting.Engaged)
	assert.Equal(t, runID, snap.RunID)

	sys.StopAll()
	assert.NoError(t, sys.Err())
	for _, c := range turret.commands() {
		assert.True(t, c.IsTurret(), "turret link got %s", c)
	}

	j, err := journal.OpenReadOnly(cfg.Journal.Path)
	require.NoError(t, err)
	defer j.Close()
	events, err := j.Events(runID)
	require.NoError(t, err)
	kinds := map[model.EventKind]bool{}
	for _, e := range events {
		kinds[e.Kind] = true
	}
	assert.True(t, kinds[model.EventModeChanged])
	assert.True(t, kinds[model.EventForwarded])
	assert.True(t, kinds[model.EventTargetAcquired])
	assert.True(t, kinds[model.EventFired])
}

func TestSystem_LinkFailureStopsArbiter(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Global.TickInterval = time.Millisecond
	drive := &recordingLink{err: errors.New("port gone")}
	sys, err := NewSystemWithOptions(cfg, Options{
		Lines:      sim.NewLineReplay(corridor(5), sim.Options{}),
		Detections: sim.NewDetectionReplay(nil, sim.Options{}),
		Drivetrain: drive,
		Turret:     &recordingLink{},
	})
	require.NoError(t, err)
	require.NoError(t, sys.StartAll())
	defer sys.StopAll()

	select {
	case <-sys.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("arbiter kept running after the link failed")
	}
	assert.ErrorIs(t, sys.Err(), arbiter.ErrLinkFailed)
	assert.Equal(t, arbiter.Terminated, sys.Arbiter.State().Mode)
}

func TestNewSystem_FromYAML(t *testing.T) {
	dir := t.TempDir()
	scenario := filepath.Join(dir, "scenario.yml")
	require.NoError(t, os.WriteFile(scenario, []byte(`
name: corridor
navigation:
  - left: {x1: 100, y1: 480, x2: 100, y2: 300}
    right: {x1: 540, y1: 300, x2: 540, y2: 480}
`), 0o600))
	cfgPath := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
global:
  stale_after: 250ms
actuators:
  drivetrain: {id: wheels, device: console}
  turret: {id: gun}
sim:
  scenario: `+scenario+`
`), 0o600))

	sys, err := NewSystem(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, sys.Config().Global.StaleAfter)
	assert.Equal(t, 50, sys.Config().Global.RecordWidth)
	assert.Nil(t, sys.Monitor)
	assert.Nil(t, sys.Journal)
}

func TestNewSystem_Errors(t *testing.T) {
	_, err := NewSystem(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("navigation:\n  fail_safe_lane: 10\n"), 0o600))
	_, err = NewSystem(bad)
	assert.ErrorContains(t, err, "fail_safe_lane")

	_, err = NewSystemWithOptions(model.DefaultConfig(), Options{})
	assert.ErrorContains(t, err, "sim.scenario")
}

func TestLoadConfig_Shipped(t *testing.T) {
	cfg, err := LoadConfig("../../configs/config.yml")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Global.StaleAfter)
	assert.Equal(t, "/dev/ttyACM0", cfg.Actuators.Drivetrain.Device)
	assert.False(t, cfg.Actuators.Turret.IsConsole())
	assert.True(t, cfg.Targeting.StopsOnAcquire())
	assert.Equal(t, "configs/scenarios/left_turn.yml", cfg.Sim.Scenario)
}

func TestLoadConfig_ExplicitZerosSurvive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zeros.yml")
	yml := "targeting:\n  offset_x: 0\n  offset_y: 0\nnavigation:\n  dead_band: 0\n  left_intrusion_x: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Targeting.OffsetX)
	assert.Equal(t, 0.0, cfg.Targeting.OffsetY)
	assert.Equal(t, 0.0, cfg.Navigation.DeadBand)
	assert.Equal(t, 0, cfg.Navigation.LeftIntrusionX)

	// absent keys keep their calibrated values
	def := model.DefaultConfig()
	assert.Equal(t, def.Targeting.TolX, cfg.Targeting.TolX)
	assert.Equal(t, def.Navigation.DetectionLane, cfg.Navigation.DetectionLane)
	assert.Equal(t, def.Global.RecordWidth, cfg.Global.RecordWidth)

	cfg.Sim.Scenario = "../../configs/scenarios/left_turn.yml"
	sys, err := NewSystemWithOptions(cfg, Options{Drivetrain: &recordingLink{}, Turret: &recordingLink{}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sys.Config().Targeting.OffsetX)
	assert.Equal(t, 0.0, sys.Config().Navigation.DeadBand)
}

func TestSystem_ErrBeforeStart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Path = ""
	sys, err := NewSystemWithOptions(cfg, Options{
		Lines:      sim.NewLineReplay(corridor(1), sim.Options{}),
		Detections: sim.NewDetectionReplay(nil, sim.Options{}),
		Drivetrain: &recordingLink{},
		Turret:     &recordingLink{},
	})
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- sys.Err() }()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Err blocked on a system that was never started")
	}
	assert.Nil(t, sys.Done())
}
