package config

import (
	"fmt"
	"time"

	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/errs"
)

const (
	DefaultWidth         = 1280
	DefaultHeight        = 720
	DefaultFPS           = 30
	DefaultPrefetchDepth = 5
	DefaultSubmitTimeout = 2 * time.Minute
	DefaultGraceWindow   = 300 * time.Millisecond
)

type Config struct {
	ProjectPath   string
	OutputVideo   string
	Width         int
	Height        int
	FPS           int
	DPI           int
	AudioPath     string
	Preset        string
	Transform     string
	VideoEncoder  string
	Quality       int
	PrefetchDepth int
	SubmitTimeout time.Duration
	GraceWindow   time.Duration
	ShowStats     bool
	LogDir        string
	LogLevel      string
	BuildVersion  string
}

func Default() Config {
	return Config{
		Width:         DefaultWidth,
		Height:        DefaultHeight,
		FPS:           DefaultFPS,
		DPI:           150,
		Transform:     "none",
		PrefetchDepth: DefaultPrefetchDepth,
		SubmitTimeout: DefaultSubmitTimeout,
		GraceWindow:   DefaultGraceWindow,
	}
}

// PresetSize возвращает размер кадра для пресета формата.
func PresetSize(preset string) (int, int, bool) {
	switch preset {
	case "16:9":
		return 1280, 720, true
	case "9:16":
		return 720, 1280, true
	case "4:5":
		return 1080, 1350, true
	case "1080p":
		return 1920, 1080, true
	}
	return 0, 0, false
}

// ApplyProject переносит заданные в проекте значения поверх конфигурации.
// Нулевые поля проекта ничего не меняют.
func (c *Config) ApplyProject(p *Project) {
	if p.Output != "" {
		c.OutputVideo = p.Output
	}
	if p.Preset != "" {
		c.Preset = p.Preset
	}
	if p.Width > 0 && p.Height > 0 {
		c.Width, c.Height = p.Width, p.Height
	}
	if p.FPS > 0 {
		c.FPS = p.FPS
	}
	if p.Audio != "" {
		c.AudioPath = p.Audio
	}
	if p.Transform != "" {
		c.Transform = p.Transform
	}
	if p.Encoder != "" {
		c.VideoEncoder = p.Encoder
	}
	if p.Quality > 0 {
		c.Quality = p.Quality
	}
}

func (c *Config) Validate() error {
	if w, h, ok := PresetSize(c.Preset); ok {
		c.Width, c.Height = w, h
	} else if c.Preset != "" {
		return errs.Errorf(errs.Config, "config", "unknown preset %q", c.Preset)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return errs.Errorf(errs.Config, "config", "invalid size %dx%d", c.Width, c.Height)
	}
	// yuv420p требует чётных размеров
	if c.Width%2 != 0 || c.Height%2 != 0 {
		return errs.Errorf(errs.Config, "config", "size %dx%d must be even", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return errs.Errorf(errs.Config, "config", "fps must be positive, got %d", c.FPS)
	}
	if _, err := effects.ParseTransform(c.Transform); err != nil {
		return errs.E(errs.Config, "config", err)
	}
	if c.PrefetchDepth <= 0 {
		return errs.Errorf(errs.Config, "config", "prefetch depth must be positive, got %d", c.PrefetchDepth)
	}
	if c.SubmitTimeout < 0 {
		return errs.Errorf(errs.Config, "config", "negative submit timeout %s", c.SubmitTimeout)
	}
	if c.OutputVideo == "" {
		return errs.E(errs.Config, "config", fmt.Errorf("output path is empty"))
	}
	return nil
}
