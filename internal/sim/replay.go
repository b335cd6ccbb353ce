package sim

import (
	"context"
	"io"
	"sync"
	"time"

	"AcademyBot/internal/model"
	"AcademyBot/internal/timeutil"
)

// replay hands out frames one at a time, paced by a ticker when an interval
// is set. It returns io.EOF once the frames run out unless looping.
type replay[T any] struct {
	mu       sync.Mutex
	frames   []T
	pos      int
	loop     bool
	interval time.Duration
	clock    timeutil.Clock
	ticker   timeutil.Ticker
}

func (r *replay[T]) next(ctx context.Context) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.pos >= len(r.frames) {
		if !r.loop || len(r.frames) == 0 {
			return zero, io.EOF
		}
		r.pos = 0
	}

	if r.interval > 0 {
		if r.ticker == nil {
			r.ticker = r.clock.NewTicker(r.interval)
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-r.ticker.C():
		}
	} else if err := ctx.Err(); err != nil {
		return zero, err
	}

	f := r.frames[r.pos]
	r.pos++
	return f, nil
}

func (r *replay[T]) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
}

// Options controls replay pacing.
type Options struct {
	Interval time.Duration  // time between frames, 0 replays as fast as consumed
	Loop     bool           // restart from the first frame instead of ending
	Clock    timeutil.Clock // defaults to the real clock
}

func newReplay[T any](frames []T, opts Options) *replay[T] {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &replay[T]{frames: frames, loop: opts.Loop, interval: opts.Interval, clock: clock}
}

// LineReplay is a line classifier stand-in.
type LineReplay struct {
	r *replay[model.ClassifiedLines]
}

// NewLineReplay replays frames in order.
func NewLineReplay(frames []model.ClassifiedLines, opts Options) *LineReplay {
	return &LineReplay{r: newReplay(frames, opts)}
}

// NextLines blocks until the next frame is due.
func (l *LineReplay) NextLines(ctx context.Context) (model.ClassifiedLines, error) {
	return l.r.next(ctx)
}

// Close stops pacing.
func (l *LineReplay) Close() error { l.r.stop(); return nil }

// DetectionReplay is a contour detector stand-in.
type DetectionReplay struct{ r *replay[model.ContourResult] }

// NewDetectionReplay replays frames in order.
func NewDetectionReplay(frames []model.ContourResult, opts Options) *DetectionReplay {
	return &DetectionReplay{r: newReplay(frames, opts)}
}

// NextDetection blocks until the next frame is due.
func (d *DetectionReplay) NextDetection(ctx context.Context) (model.ContourResult, error) {
	return d.r.next(ctx)
}

// Close stops pacing.
func (d *DetectionReplay) Close() error { d.r.stop(); return nil }

// LineSource replays the scenario's navigation frames.
func (sc *Scenario) LineSource(opts Options) *LineReplay {
	return NewLineReplay(sc.LineFrames(), opts)
}

// DetectionSource replays the scenario's targeting frames.
func (sc *Scenario) DetectionSource(opts Options) *DetectionReplay {
	return NewDetectionReplay(sc.DetectionFrames(), opts)
}
