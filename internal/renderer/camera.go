package renderer

import (
	"image"
	"math"
	"sort"

	"github.com/ivlev/scene2video/internal/director"
)

// CameraState represents the camera position and zoom at a specific moment
type CameraState struct {
	X    float64 // Center X in source pixels
	Y    float64 // Center Y in source pixels
	Zoom float64 // Zoom level (1.0 = whole source)
}

// InterpolateKeyframes calculates camera state at a given time by interpolating
// between keyframes. Keyframes must be sorted by time.
func InterpolateKeyframes(keyframes []director.Keyframe, currentTime float64) CameraState {
	if len(keyframes) == 0 {
		return CameraState{Zoom: 1.0}
	}

	first, last := keyframes[0], keyframes[len(keyframes)-1]
	if currentTime <= first.Time {
		return stateOf(first)
	}
	if currentTime >= last.Time {
		return stateOf(last)
	}

	// first keyframe strictly after currentTime
	next := sort.Search(len(keyframes), func(i int) bool {
		return keyframes[i].Time > currentTime
	})
	prevKf, nextKf := keyframes[next-1], keyframes[next]

	span := nextKf.Time - prevKf.Time
	if span <= 0 {
		return stateOf(nextKf)
	}
	t := easeInOutCubic((currentTime - prevKf.Time) / span)

	a, b := stateOf(prevKf), stateOf(nextKf)
	return CameraState{
		X:    lerp(a.X, b.X, t),
		Y:    lerp(a.Y, b.Y, t),
		Zoom: lerp(a.Zoom, b.Zoom, t),
	}
}

// Crop returns the source rectangle seen by the camera. The crop keeps the
// source aspect ratio and never leaves the source bounds.
func (c CameraState) Crop(src image.Rectangle) image.Rectangle {
	zoom := c.Zoom
	if zoom < 1 {
		zoom = 1
	}
	w := int(math.Round(float64(src.Dx()) / zoom))
	h := int(math.Round(float64(src.Dy()) / zoom))
	if w < 1 || h < 1 {
		return src
	}

	x := int(math.Round(c.X)) - w/2
	y := int(math.Round(c.Y)) - h/2
	x = clamp(x, src.Min.X, src.Max.X-w)
	y = clamp(y, src.Min.Y, src.Max.Y-h)
	return image.Rect(x, y, x+w, y+h)
}

func stateOf(kf director.Keyframe) CameraState {
	x, y := kf.Rect.Center()
	zoom := kf.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	return CameraState{X: x, Y: y, Zoom: zoom}
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
