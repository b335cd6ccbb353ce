// Package sim replays recorded or hand-written perception output so the
// engines, channels and arbiter can run without a camera.
package sim

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"AcademyBot/internal/model"
)

// ErrEmptyScenario is returned for a scenario with no frames at all.
var ErrEmptyScenario = errors.New("scenario has no frames")

// Scenario is a scripted run. Each list is replayed one frame per tick by its
// perception task.
type Scenario struct {
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`  // default frame width for frames that omit it
	Height int    `yaml:"height"` // default frame height

	Navigation []LineFrame      `yaml:"navigation"`
	Targeting  []DetectionFrame `yaml:"targeting"`
}

// LineFrame is one classifier result. Repeat holds the frame for that many
// ticks (1 when zero).
type LineFrame struct {
	Width  int `yaml:"width,omitempty"`
	Height int `yaml:"height,omitempty"`

	Left              *model.LineSegment `yaml:"left,omitempty"`
	Right             *model.LineSegment `yaml:"right,omitempty"`
	Center            *model.LineSegment `yaml:"center,omitempty"`
	IntersectionLeft  *model.LineSegment `yaml:"intersection_left,omitempty"`
	IntersectionRight *model.LineSegment `yaml:"intersection_right,omitempty"`
	Q1                *model.LineSegment `yaml:"q1,omitempty"`
	Q2                *model.LineSegment `yaml:"q2,omitempty"`
	Q3                *model.LineSegment `yaml:"q3,omitempty"`
	Q4                *model.LineSegment `yaml:"q4,omitempty"`

	Repeat int `yaml:"repeat,omitempty"`
}

// Lines converts the frame to classifier output.
func (f LineFrame) Lines() model.ClassifiedLines {
	return model.ClassifiedLines{
		Width:             f.Width,
		Height:            f.Height,
		Left:              f.Left,
		Right:             f.Right,
		Center:            f.Center,
		IntersectionLeft:  f.IntersectionLeft,
		IntersectionRight: f.IntersectionRight,
		Quadrants:         [4]*model.LineSegment{f.Q1, f.Q2, f.Q3, f.Q4},
	}
}

// DetectionFrame is one contour detector result.
type DetectionFrame struct {
	Width    int         `yaml:"width,omitempty"`
	Height   int         `yaml:"height,omitempty"`
	Hostile  *model.Blob `yaml:"hostile,omitempty"`
	Friendly *model.Blob `yaml:"friendly,omitempty"`
	Repeat   int         `yaml:"repeat,omitempty"`
}

// Detection converts the frame to detector output.
func (f DetectionFrame) Detection() model.ContourResult {
	return model.ContourResult{Width: f.Width, Height: f.Height, Hostile: f.Hostile, Friendly: f.Friendly}
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := ParseScenario(b)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes a YAML scenario.
func ParseScenario(b []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(b, &sc); err != nil {
		return nil, err
	}
	if len(sc.Navigation) == 0 && len(sc.Targeting) == 0 {
		return nil, ErrEmptyScenario
	}
	if sc.Width == 0 {
		sc.Width = 640
	}
	if sc.Height == 0 {
		sc.Height = 480
	}
	return &sc, nil
}

// LineFrames expands repeats and fills default frame sizes.
func (sc *Scenario) LineFrames() []model.ClassifiedLines {
	var out []model.ClassifiedLines
	for _, f := range sc.Navigation {
		lines := f.Lines()
		if lines.Width == 0 {
			lines.Width = sc.Width
		}
		if lines.Height == 0 {
			lines.Height = sc.Height
		}
		for i := 0; i < max(f.Repeat, 1); i++ {
			out = append(out, lines)
		}
	}
	return out
}

// DetectionFrames expands repeats and fills default frame sizes.
func (sc *Scenario) DetectionFrames() []model.ContourResult {
	var out []model.ContourResult
	for _, f := range sc.Targeting {
		det := f.Detection()
		if det.Width == 0 {
			det.Width = sc.Width
		}
		if det.Height == 0 {
			det.Height = sc.Height
		}
		for i := 0; i < max(f.Repeat, 1); i++ {
			out = append(out, det)
		}
	}
	return out
}
