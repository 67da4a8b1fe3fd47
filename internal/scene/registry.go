package scene

import (
	"image"
	"image/color"
	"io/fs"
	"strings"

	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/errs"
)

// BuildOptions carries recording-wide defaults for scene construction.
type BuildOptions struct {
	FS     fs.FS // assets are read from FS when set
	FPS    int
	DPI    int
	Width  int
	Height int
}

// Build creates a scene from its project description.
func Build(spec config.SceneSpec, opts BuildOptions) (Scene, error) {
	fps := spec.FPS
	if fps <= 0 {
		fps = opts.FPS
	}
	if fps <= 0 {
		return nil, errs.Errorf(errs.Config, "scene.Build", "%s: frame rate is not set", spec.Type)
	}
	size := image.Pt(opts.Width, opts.Height)
	fade := effects.Fade{In: spec.FadeIn, Out: spec.FadeOut}

	typ := strings.ToLower(spec.Type)
	frames := spec.Frames
	if frames <= 0 && spec.Duration > 0 {
		frames = FramesFor(spec.Duration, fps)
	}
	// pdf и gif вычисляют длину сами
	if frames <= 0 && typ != "pdf" && typ != "gif" {
		return nil, errs.Errorf(errs.Config, "scene.Build", "%s: duration or frames must be positive", spec.Type)
	}

	var (
		s   Scene
		err error
	)
	switch typ {
	case "image":
		s, err = buildImage(spec, opts, frames, fps, fade)
	case "pdf":
		s, err = buildPDF(spec, opts, fps, fade)
	case "gif":
		seconds := spec.Duration
		if spec.Frames > 0 {
			seconds = float64(spec.Frames) / float64(fps)
		}
		s, err = OpenGIF(opts.FS, spec.Path, fps, seconds, fade)
	case "title":
		var fg, bg color.Color
		if bg, err = ParseColor(spec.Color, color.Black); err == nil {
			fg = contrasting(bg)
			s = NewTitle(size, spec.Text, fg, bg, frames, fps, fade)
		}
	case "qr":
		if spec.Content == "" {
			return nil, errs.Errorf(errs.Config, "scene.Build", "qr: content is empty")
		}
		s, err = NewQR(size, spec.Content, spec.Text, frames, fps, fade)
	case "solid":
		var bg color.Color
		if bg, err = ParseColor(spec.Color, color.Black); err == nil {
			s = NewSolid(size, bg, frames, fps, fade)
		}
	default:
		return nil, errs.Errorf(errs.Config, "scene.Build", "unknown scene type %q", spec.Type)
	}
	if err != nil {
		return nil, err
	}

	if spec.Name != "" {
		if n, ok := s.(interface{ setName(string) }); ok {
			n.setName(spec.Name)
		}
	}
	return s, nil
}

func (b *base) setName(name string) { b.name = name }

func buildImage(spec config.SceneSpec, opts BuildOptions, frames, fps int, fade effects.Fade) (Scene, error) {
	img, err := loadImage(opts.FS, spec.Path)
	if err != nil {
		return nil, err
	}

	camera := spec.Keyframes
	switch strings.ToLower(spec.Camera) {
	case "auto":
		if camera, err = AutoCamera(img, float64(frames)/float64(fps)); err != nil {
			return nil, errs.E(errs.Asset, "scene.Build", err)
		}
	case "", "none":
		camera = nil
	case "keyframes":
	default:
		return nil, errs.Errorf(errs.Config, "scene.Build", "unknown camera %q", spec.Camera)
	}
	return NewStill(spec.Path, img, frames, fps, camera, fade), nil
}

func buildPDF(spec config.SceneSpec, opts BuildOptions, fps int, fade effects.Fade) (Scene, error) {
	dpi := spec.DPI
	if dpi <= 0 {
		dpi = opts.DPI
	}
	if dpi <= 0 {
		dpi = 150
	}
	pageDuration := spec.PageDuration
	if pageDuration <= 0 {
		pageDuration = 3
	}
	camera := strings.ToLower(spec.Camera)
	if camera != "" && camera != "none" && camera != "auto" {
		return nil, errs.Errorf(errs.Config, "scene.Build", "pdf: camera %q is not supported", spec.Camera)
	}
	return OpenPDF(opts.FS, spec.Path, PDFOptions{
		FPS:          fps,
		DPI:          dpi,
		PageDuration: pageDuration,
		AutoCamera:   camera == "auto",
		Fade:         fade,
	})
}

// contrasting picks black or white text for a background.
func contrasting(bg color.Color) color.Color {
	r, g, b, _ := bg.RGBA()
	if (299*r+587*g+114*b)/1000 > 0x7fff {
		return color.Black
	}
	return color.White
}
