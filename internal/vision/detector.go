// Package vision is a reference contour detector for the targeting task. It
// classifies pixels by HSV range into hostile and friendly masks and reports
// the largest connected blob of each.
package vision

import (
	"image"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"

	"AcademyBot/internal/model"
)

// HSVRange selects pixels by hue (degrees), saturation and value (0..1).
// A range with HueMin > HueMax wraps through 0, as red does.
type HSVRange struct {
	HueMin, HueMax float64
	SatMin, SatMax float64
	ValMin, ValMax float64
}

// Contains reports whether (h, s, v) falls inside the range.
func (r HSVRange) Contains(h, s, v float64) bool {
	if s < r.SatMin || s > r.SatMax || v < r.ValMin || v > r.ValMax {
		return false
	}
	if r.HueMin <= r.HueMax {
		return h >= r.HueMin && h <= r.HueMax
	}
	return h >= r.HueMin || h <= r.HueMax
}

// Red targets: the two red bands H 0-10 and 170-180 of 180 in OpenCV terms,
// with S >= 100 and V >= 120 of 255.
var DefaultHostile = HSVRange{HueMin: 340, HueMax: 20, SatMin: 0.39, SatMax: 1, ValMin: 0.47, ValMax: 1}

// Green friendlies.
var DefaultFriendly = HSVRange{HueMin: 90, HueMax: 150, SatMin: 0.39, SatMax: 1, ValMin: 0.3, ValMax: 1}

const (
	classNone uint8 = iota
	classHostile
	classFriendly
)

// ColorBlobDetector implements the contour detector interface over images.
type ColorBlobDetector struct {
	Hostile  HSVRange
	Friendly HSVRange
	// MaxWidth downscales wider frames before classification. Areas and
	// centroids are reported in the input frame's pixels. 0 disables.
	MaxWidth int
}

// NewColorBlobDetector returns a detector with the default color ranges.
func NewColorBlobDetector() *ColorBlobDetector {
	return &ColorBlobDetector{Hostile: DefaultHostile, Friendly: DefaultFriendly}
}

// Detect classifies img and returns the largest hostile and friendly blobs.
func (d *ColorBlobDetector) Detect(img image.Image) model.ContourResult {
	bounds := img.Bounds()
	res := model.ContourResult{Width: bounds.Dx(), Height: bounds.Dy()}
	if bounds.Empty() {
		return res
	}

	scale := 1.0
	work := img
	if d.MaxWidth > 0 && bounds.Dx() > d.MaxWidth {
		work = imaging.Resize(img, d.MaxWidth, 0, imaging.NearestNeighbor)
		scale = float64(bounds.Dx()) / float64(work.Bounds().Dx())
	}

	wb := work.Bounds()
	w, h := wb.Dx(), wb.Dy()
	mask := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c, ok := colorful.MakeColor(work.At(wb.Min.X+x, wb.Min.Y+y))
			if !ok {
				continue
			}
			hue, sat, val := c.Hsv()
			switch {
			case d.Hostile.Contains(hue, sat, val):
				mask[y*w+x] = classHostile
			case d.Friendly.Contains(hue, sat, val):
				mask[y*w+x] = classFriendly
			}
		}
	}

	res.Hostile = largestBlob(mask, w, classHostile, scale)
	res.Friendly = largestBlob(mask, w, classFriendly, scale)
	return res
}

// largestBlob flood-fills 4-connected regions of class and returns the one
// with the most pixels, or nil when the class is absent. Centroids are
// measured at pixel centers.
func largestBlob(mask []uint8, w int, class uint8, scale float64) *model.Blob {
	seen := make([]bool, len(mask))
	var best *model.Blob
	stack := make([]int, 0, 64)

	for start := range mask {
		if mask[start] != class || seen[start] {
			continue
		}
		var area, sumX, sumY int
		stack = append(stack[:0], start)
		seen[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			area++
			sumX += x
			sumY += y

			for _, n := range [4]int{i - 1, i + 1, i - w, i + w} {
				switch {
				case n < 0 || n >= len(mask):
					continue
				case (n == i-1 && x == 0) || (n == i+1 && x == w-1):
					continue
				case mask[n] != class || seen[n]:
					continue
				}
				seen[n] = true
				stack = append(stack, n)
			}
		}

		if best == nil || float64(area)*scale*scale > best.Area {
			best = &model.Blob{
				Area: float64(area) * scale * scale,
				CX:   (float64(sumX)/float64(area) + 0.5) * scale,
				CY:   (float64(sumY)/float64(area) + 0.5) * scale,
			}
		}
	}
	return best
}
