package vision

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	"AcademyBot/internal/model"
)

var frameExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".gif": true, ".tif": true, ".tiff": true}

// FrameDir is a directory of still frames replayed in file name order.
type FrameDir struct {
	Dir   string
	paths []string
}

// OpenFrameDir lists the image files in dir.
func OpenFrameDir(dir string) (*FrameDir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}
	fd := &FrameDir{Dir: dir}
	for _, e := range entries {
		if e.IsDir() || !frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		fd.paths = append(fd.paths, filepath.Join(dir, e.Name()))
	}
	if len(fd.paths) == 0 {
		return nil, fmt.Errorf("no frames in %s", dir)
	}
	sort.Strings(fd.paths)
	return fd, nil
}

// Len returns the number of frames.
func (fd *FrameDir) Len() int { return len(fd.paths) }

// Frame decodes frame i, applying any EXIF orientation.
func (fd *FrameDir) Frame(i int) (image.Image, error) {
	if i < 0 || i >= len(fd.paths) {
		return nil, fmt.Errorf("frame %d out of range [0,%d)", i, len(fd.paths))
	}
	img, err := imaging.Open(fd.paths[i], imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open frame %s: %w", fd.paths[i], err)
	}
	return img, nil
}

// Detections runs det over every frame in order.
func (fd *FrameDir) Detections(det *ColorBlobDetector) ([]model.ContourResult, error) {
	out := make([]model.ContourResult, 0, len(fd.paths))
	for i := range fd.paths {
		img, err := fd.Frame(i)
		if err != nil {
			return nil, err
		}
		out = append(out, det.Detect(img))
	}
	return out, nil
}
