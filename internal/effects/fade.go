package effects

import (
	"image"
	"image/color"
	"image/draw"
)

// Fade затемняет начало и конец сцены (в секундах).
type Fade struct {
	In  float64
	Out float64
}

func (f Fade) Enabled() bool { return f.In > 0 || f.Out > 0 }

// Opacity returns the content opacity at time t of a scene lasting duration.
func (f Fade) Opacity(t, duration float64) float64 {
	a := 1.0
	if f.In > 0 && t < f.In {
		a = t / f.In
	}
	if f.Out > 0 && t > duration-f.Out {
		if o := (duration - t) / f.Out; o < a {
			a = o
		}
	}
	if a < 0 {
		return 0
	}
	return a
}

// Apply returns img blended over black with the given opacity. The source
// image is never modified.
func Apply(img image.Image, opacity float64) image.Image {
	if opacity >= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.Black, image.Point{}, draw.Src)
	if opacity <= 0 {
		return dst
	}
	mask := image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})
	draw.DrawMask(dst, b, img, b.Min, mask, image.Point{}, draw.Over)
	return dst
}
