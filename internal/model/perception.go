package model

// LineSegment is a fitted line in image coordinates (origin top-left, y grows
// downward). A nil *LineSegment means no line of that class was seen this frame.
type LineSegment struct {
	X1 int `yaml:"x1" json:"x1"`
	Y1 int `yaml:"y1" json:"y1"`
	X2 int `yaml:"x2" json:"x2"`
	Y2 int `yaml:"y2" json:"y2"`
}

// MidY is the vertical midpoint of the segment.
func (l LineSegment) MidY() float64 { return float64(l.Y1+l.Y2) / 2 }

// Extent is the horizontal length of the segment.
func (l LineSegment) Extent() int {
	if l.X2 > l.X1 {
		return l.X2 - l.X1
	}
	return l.X1 - l.X2
}

// ClassifiedLines is the line classifier output for one frame.
//
// Left, Right and Center are lane (boundary) lines. IntersectionLeft and
// IntersectionRight are cross-street boundaries, and Quadrants holds
// horizontal intersection lines binned top to bottom into four vertical bands.
type ClassifiedLines struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	Left   *LineSegment `yaml:"left,omitempty" json:"left,omitempty"`
	Right  *LineSegment `yaml:"right,omitempty" json:"right,omitempty"`
	Center *LineSegment `yaml:"center,omitempty" json:"center,omitempty"`

	IntersectionLeft  *LineSegment    `yaml:"intersection_left,omitempty" json:"intersection_left,omitempty"`
	IntersectionRight *LineSegment    `yaml:"intersection_right,omitempty" json:"intersection_right,omitempty"`
	Quadrants         [4]*LineSegment `yaml:"quadrants,omitempty" json:"quadrants,omitempty"`
}

// Quadrant returns the horizontal line binned into quadrant n (1..4), or nil.
func (c ClassifiedLines) Quadrant(n int) *LineSegment {
	if n < 1 || n > 4 {
		return nil
	}
	return c.Quadrants[n-1]
}

// Blob is the largest region of one color class in a frame.
type Blob struct {
	Area float64 `yaml:"area" json:"area"`
	CX   float64 `yaml:"cx" json:"cx"`
	CY   float64 `yaml:"cy" json:"cy"`
}

// ContourResult is the contour detector output for one frame.
type ContourResult struct {
	Width    int   `yaml:"width" json:"width"`
	Height   int   `yaml:"height" json:"height"`
	Hostile  *Blob `yaml:"hostile,omitempty" json:"hostile,omitempty"`
	Friendly *Blob `yaml:"friendly,omitempty" json:"friendly,omitempty"`
}

// HostileArea returns the hostile blob area, or 0 when absent.
func (c ContourResult) HostileArea() float64 {
	if c.Hostile == nil {
		return 0
	}
	return c.Hostile.Area
}

// FriendlyArea returns the friendly blob area, or 0 when absent.
func (c ContourResult) FriendlyArea() float64 {
	if c.Friendly == nil {
		return 0
	}
	return c.Friendly.Area
}
