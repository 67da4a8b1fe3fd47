// Package timeline concatenates scenes into one global frame index space.
package timeline

import (
	"image"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ivlev/scene2video/internal/errs"
	"github.com/ivlev/scene2video/internal/scene"
)

// Interval is a half-open range [Start, End) of global frame indices.
type Interval struct {
	Start, End int
}

func (iv Interval) Len() int { return iv.End - iv.Start }

func (iv Interval) Contains(i int) bool { return i >= iv.Start && i < iv.End }

// Timeline owns its scenes for the duration of one recording.
type Timeline struct {
	scenes    []scene.Scene
	intervals []Interval
	total     int
	duration  float64
	rate      int

	current   int
	closeOnce sync.Once
}

// New computes the intervals once. Zero-frame scenes are rejected. All
// scenes are expected to share the first scene's frame rate; a mismatch is
// only logged.
func New(scenes []scene.Scene, log *zap.SugaredLogger) (*Timeline, error) {
	if len(scenes) == 0 {
		return nil, errs.Errorf(errs.Config, "timeline.New", "no scenes")
	}

	t := &Timeline{
		scenes:    scenes,
		intervals: make([]Interval, len(scenes)),
		rate:      scenes[0].FrameRate(),
	}
	if t.rate <= 0 {
		return nil, errs.Errorf(errs.Config, "timeline.New", "scene %q: frame rate %d", scenes[0].Name(), t.rate)
	}

	for i, s := range scenes {
		n := s.TotalFrames()
		if n <= 0 {
			return nil, errs.Errorf(errs.Config, "timeline.New", "scene %d (%s) has %d frames", i, s.Name(), n)
		}
		if s.FrameRate() != t.rate && log != nil {
			log.Warnw("scene frame rate differs from timeline", "scene", s.Name(), "fps", s.FrameRate(), "timeline_fps", t.rate)
		}
		t.intervals[i] = Interval{Start: t.total, End: t.total + n}
		t.total += n
		t.duration += s.Duration()
	}
	return t, nil
}

func (t *Timeline) TotalFrames() int { return t.total }

// TotalDuration is the sum of scene durations in seconds.
func (t *Timeline) TotalDuration() float64 { return t.duration }

func (t *Timeline) FrameRate() int { return t.rate }

// DurationUs is the encoded video length in microseconds.
func (t *Timeline) DurationUs() int64 {
	return int64(t.total) * 1_000_000 / int64(t.rate)
}

// PTS returns the presentation timestamp of a global frame in microseconds.
func (t *Timeline) PTS(i int) int64 {
	return int64(i) * 1_000_000 / int64(t.rate)
}

func (t *Timeline) Len() int { return len(t.scenes) }

func (t *Timeline) Intervals() []Interval {
	out := make([]Interval, len(t.intervals))
	copy(out, t.intervals)
	return out
}

// Lookup maps a global frame index to the owning scene and the local index.
func (t *Timeline) Lookup(i int) (sceneIndex, local int, err error) {
	if i < 0 || i >= t.total {
		return 0, 0, errs.Errorf(errs.Index, "timeline.Lookup", "frame %d outside [0,%d)", i, t.total)
	}
	sceneIndex = sort.Search(len(t.intervals), func(k int) bool {
		return t.intervals[k].End > i
	})
	return sceneIndex, i - t.intervals[sceneIndex].Start, nil
}

// GenerateFrame renders global frame i.
func (t *Timeline) GenerateFrame(i int) (image.Image, error) {
	si, local, err := t.Lookup(i)
	if err != nil {
		return nil, err
	}
	t.current = si
	return t.scenes[si].GenerateFrame(local)
}

// CurrentScene is the index of the scene that rendered the last frame.
func (t *Timeline) CurrentScene() int { return t.current }

// Close closes every scene once and returns the first error.
func (t *Timeline) Close() error {
	var first error
	t.closeOnce.Do(func() {
		for _, s := range t.scenes {
			if err := s.Close(); err != nil && first == nil {
				first = err
			}
		}
	})
	return first
}
