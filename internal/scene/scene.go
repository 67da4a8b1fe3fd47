// Package scene contains the animated units a recording is composed of.
package scene

import (
	"image"
	"math"

	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/errs"
)

// Scene renders a contiguous range of frames. GenerateFrame moves the
// scene's current-frame cursor. A scene is used by one goroutine at a time.
type Scene interface {
	Name() string
	TotalFrames() int
	FrameRate() int
	Duration() float64
	Size() image.Point
	CurrentFrame() int
	GenerateFrame(local int) (image.Image, error)
	Close() error
}

// base carries the bookkeeping shared by all scene types.
type base struct {
	name    string
	frames  int
	fps     int
	size    image.Point
	current int
	fade    effects.Fade
}

func newBase(name string, frames, fps int, size image.Point, fade effects.Fade) base {
	return base{name: name, frames: frames, fps: fps, size: size, fade: fade}
}

func (b *base) Name() string         { return b.name }
func (b *base) TotalFrames() int     { return b.frames }
func (b *base) FrameRate() int       { return b.fps }
func (b *base) Size() image.Point    { return b.size }
func (b *base) CurrentFrame() int    { return b.current }
func (b *base) Duration() float64    { return float64(b.frames) / float64(b.fps) }
func (b *base) timeOf(i int) float64 { return float64(i) / float64(b.fps) }

// seek validates the local index and moves the cursor.
func (b *base) seek(local int) error {
	if local < 0 || local >= b.frames {
		return errs.Errorf(errs.Index, "scene."+b.name, "frame %d outside [0,%d)", local, b.frames)
	}
	b.current = local
	return nil
}

func (b *base) faded(img image.Image, local int) image.Image {
	if !b.fade.Enabled() {
		return img
	}
	return effects.Apply(img, b.fade.Opacity(b.timeOf(local), b.Duration()))
}

// FramesFor converts a duration to a whole number of frames, at least one.
func FramesFor(seconds float64, fps int) int {
	n := int(math.Round(seconds * float64(fps)))
	if n < 1 {
		return 1
	}
	return n
}
