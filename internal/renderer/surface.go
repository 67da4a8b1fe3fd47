// Package renderer rasterizes scene frames onto the fixed-size output canvas.
package renderer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"

	"github.com/ivlev/scene2video/internal/errs"
)

var ErrSurfaceClosed = errors.New("renderer: surface closed")

// Result is delivered once per Render call. Image is the surface canvas and
// stays valid until the next Render.
type Result struct {
	Image *image.RGBA
	Err   error
}

type SurfaceOption func(*Surface)

func WithBackground(c color.Color) SurfaceOption {
	return func(s *Surface) { s.background = image.NewUniform(c) }
}

// WithScaler задает интерполятор масштабирования (по умолчанию ApproxBiLinear).
func WithScaler(i draw.Interpolator) SurfaceOption {
	return func(s *Surface) { s.scaler = i }
}

// Surface is a rasterization target at output resolution. Drawing happens on
// the surface's own goroutine; callers receive the pixels on a channel.
type Surface struct {
	canvas     *image.RGBA
	background *image.Uniform
	scaler     draw.Interpolator

	jobs      chan job
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type job struct {
	img image.Image
	out chan Result
}

func NewSurface(width, height int, opts ...SurfaceOption) *Surface {
	s := &Surface{
		canvas:     image.NewRGBA(image.Rect(0, 0, width, height)),
		background: image.NewUniform(color.Black),
		scaler:     draw.ApproxBiLinear,
		jobs:       make(chan job),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.loop()
	return s
}

func (s *Surface) Size() image.Point {
	return s.canvas.Rect.Size()
}

// Render schedules img for rasterization and returns the channel that
// receives the result.
func (s *Surface) Render(ctx context.Context, img image.Image) <-chan Result {
	out := make(chan Result, 1)
	select {
	case s.jobs <- job{img: img, out: out}:
	case <-ctx.Done():
		out <- Result{Err: errs.E(errs.Cancelled, "renderer.Render", ctx.Err())}
	case <-s.quit:
		out <- Result{Err: ErrSurfaceClosed}
	}
	return out
}

func (s *Surface) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
	})
	return nil
}

func (s *Surface) loop() {
	defer close(s.done)
	for {
		select {
		case j := <-s.jobs:
			j.out <- s.draw(j.img)
		case <-s.quit:
			return
		}
	}
}

func (s *Surface) draw(img image.Image) Result {
	if img == nil {
		return Result{Err: errs.Errorf(errs.Asset, "renderer.draw", "scene returned no frame")}
	}
	bounds := s.canvas.Rect
	draw.Draw(s.canvas, bounds, s.background, image.Point{}, draw.Src)

	src := img.Bounds()
	dst := FitInside(src.Size(), bounds.Size())
	if dst.Size() == src.Size() {
		draw.Draw(s.canvas, dst, img, src.Min, draw.Over)
	} else {
		s.scaler.Scale(s.canvas, dst, img, src, draw.Over, nil)
	}
	return Result{Image: s.canvas}
}
