package scene

import (
	"image"
	"image/draw"
	"io"
	"io/fs"
	"os"

	// форматы, доступные для image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/ivlev/scene2video/internal/analyzer"
	"github.com/ivlev/scene2video/internal/director"
	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/errs"
	"github.com/ivlev/scene2video/internal/renderer"
)

// Still shows one image, optionally moving a camera over it.
type Still struct {
	base
	img    image.Image
	camera []director.Keyframe
}

func NewStill(name string, img image.Image, frames, fps int, camera []director.Keyframe, fade effects.Fade) *Still {
	return &Still{
		base:   newBase(name, frames, fps, img.Bounds().Size(), fade),
		img:    img,
		camera: camera,
	}
}

func (s *Still) GenerateFrame(local int) (image.Image, error) {
	if err := s.seek(local); err != nil {
		return nil, err
	}
	return s.faded(viewOf(s.img, s.camera, s.timeOf(local)), local), nil
}

func (s *Still) Close() error {
	s.img = nil
	return nil
}

// AutoCamera builds a camera path over img from its high-contrast regions.
func AutoCamera(img image.Image, duration float64) ([]director.Keyframe, error) {
	blocks, err := analyzer.NewContrastDetector().Detect(img)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	kfs := director.NewDirector(b.Dx(), b.Dy()).Keyframes(blocks, duration)
	for i := range kfs {
		kfs[i].Rect.X += b.Min.X
		kfs[i].Rect.Y += b.Min.Y
	}
	return kfs, nil
}

// viewOf returns the part of img the camera sees at time t.
func viewOf(img image.Image, camera []director.Keyframe, t float64) image.Image {
	if len(camera) == 0 {
		return img
	}
	crop := renderer.InterpolateKeyframes(camera, t).Crop(img.Bounds())
	if crop == img.Bounds() {
		return img
	}
	if si, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return si.SubImage(crop)
	}
	dst := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(dst, dst.Rect, img, crop.Min, draw.Src)
	return dst
}

// openAsset opens path from fsys when given, otherwise from disk.
func openAsset(fsys fs.FS, path string) (io.ReadCloser, error) {
	var (
		f   io.ReadCloser
		err error
	)
	if fsys != nil {
		f, err = fsys.Open(path)
	} else {
		f, err = os.Open(path)
	}
	if err != nil {
		return nil, errs.E(errs.Asset, "scene.open", err)
	}
	return f, nil
}

func loadImage(fsys fs.FS, path string) (image.Image, error) {
	f, err := openAsset(fsys, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errs.Errorf(errs.Asset, "scene.loadImage", "%s: %w", path, err)
	}
	return img, nil
}
