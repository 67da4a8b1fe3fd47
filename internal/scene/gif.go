package scene

import (
	"image"
	"image/draw"
	"image/gif"
	"io/fs"
	"sort"

	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/errs"
)

// minimal delay browsers apply to 0 and 1 centisecond frames
const minGIFDelay = 10

// GIF plays an animated GIF resampled to the scene frame rate. The animation
// loops when the scene is longer than one pass.
type GIF struct {
	base
	anim   *gif.GIF
	starts []int // start of each GIF frame in centiseconds
	loop   int   // one pass in centiseconds

	canvas   *image.RGBA
	saved    *image.RGBA
	composed int // last GIF frame drawn onto canvas, -1 if none
}

func OpenGIF(fsys fs.FS, path string, fps int, seconds float64, fade effects.Fade) (*GIF, error) {
	f, err := openAsset(fsys, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	anim, err := gif.DecodeAll(f)
	if err != nil {
		return nil, errs.Errorf(errs.Asset, "scene.OpenGIF", "%s: %w", path, err)
	}
	return NewGIF(path, anim, fps, seconds, fade)
}

// NewGIF wraps a decoded animation. seconds <= 0 plays it exactly once.
func NewGIF(name string, anim *gif.GIF, fps int, seconds float64, fade effects.Fade) (*GIF, error) {
	if len(anim.Image) == 0 {
		return nil, errs.Errorf(errs.Asset, "scene.NewGIF", "%s: no frames", name)
	}

	starts := make([]int, len(anim.Image))
	loop := 0
	for i := range anim.Image {
		starts[i] = loop
		d := 0
		if i < len(anim.Delay) {
			d = anim.Delay[i]
		}
		if d < 2 {
			d = minGIFDelay
		}
		loop += d
	}

	if seconds <= 0 {
		seconds = float64(loop) / 100
	}

	w, h := anim.Config.Width, anim.Config.Height
	if w == 0 || h == 0 {
		b := anim.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}

	return &GIF{
		base:     newBase(name, FramesFor(seconds, fps), fps, image.Pt(w, h), fade),
		anim:     anim,
		starts:   starts,
		loop:     loop,
		canvas:   image.NewRGBA(image.Rect(0, 0, w, h)),
		composed: -1,
	}, nil
}

// centiseconds is the GIF clock at a local frame, in integer math so
// frame boundaries are not lost to float rounding.
func (g *GIF) centiseconds(local int) int { return local * 100 / g.fps }

// GenerateFrame returns the scene's canvas; it is overwritten by the next call.
func (g *GIF) GenerateFrame(local int) (image.Image, error) {
	if err := g.seek(local); err != nil {
		return nil, err
	}

	cs := g.centiseconds(local) % g.loop
	target := sort.Search(len(g.starts), func(i int) bool { return g.starts[i] > cs }) - 1

	if target < g.composed {
		g.reset()
	}
	for g.composed < target {
		g.step()
	}
	return g.faded(g.canvas, local), nil
}

func (g *GIF) reset() {
	clear(g.canvas.Pix)
	g.saved = nil
	g.composed = -1
}

// step disposes the current frame and draws the next one.
func (g *GIF) step() {
	if prev := g.composed; prev >= 0 {
		switch g.disposal(prev) {
		case gif.DisposalBackground:
			draw.Draw(g.canvas, g.anim.Image[prev].Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			if g.saved != nil {
				copy(g.canvas.Pix, g.saved.Pix)
			}
		}
	}

	next := g.composed + 1
	if g.disposal(next) == gif.DisposalPrevious {
		if g.saved == nil {
			g.saved = image.NewRGBA(g.canvas.Rect)
		}
		copy(g.saved.Pix, g.canvas.Pix)
	}
	frame := g.anim.Image[next]
	draw.Draw(g.canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
	g.composed = next
}

func (g *GIF) disposal(i int) byte {
	if i < len(g.anim.Disposal) {
		return g.anim.Disposal[i]
	}
	return gif.DisposalNone
}

func (g *GIF) Close() error {
	g.anim, g.canvas, g.saved = nil, nil, nil
	return nil
}
