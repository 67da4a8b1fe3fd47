package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/scene2video/internal/director"
	"github.com/ivlev/scene2video/internal/errs"
)

// Project describes one recording: the ordered scene list, audio and output.
type Project struct {
	Version   string      `yaml:"version"`
	Output    string      `yaml:"output,omitempty"`
	Width     int         `yaml:"width,omitempty"`
	Height    int         `yaml:"height,omitempty"`
	Preset    string      `yaml:"preset,omitempty"`
	FPS       int         `yaml:"fps,omitempty"`
	Audio     string      `yaml:"audio,omitempty"`
	Transform string      `yaml:"transform,omitempty"`
	Encoder   string      `yaml:"encoder,omitempty"`
	Quality   int         `yaml:"quality,omitempty"`
	Scenes    []SceneSpec `yaml:"scenes"`
}

// SceneSpec describes a single scene. Which fields apply depends on Type.
type SceneSpec struct {
	Name         string              `yaml:"name,omitempty"`
	Type         string              `yaml:"type"`               // image, pdf, gif, title, qr, solid
	Path         string              `yaml:"path,omitempty"`     // image, pdf, gif
	Duration     float64             `yaml:"duration,omitempty"` // seconds
	Frames       int                 `yaml:"frames,omitempty"`   // overrides Duration
	FPS          int                 `yaml:"fps,omitempty"`
	PageDuration float64             `yaml:"page_duration,omitempty"`
	DPI          int                 `yaml:"dpi,omitempty"`
	Text         string              `yaml:"text,omitempty"`
	Content      string              `yaml:"content,omitempty"`
	Color        string              `yaml:"color,omitempty"`
	FadeIn       float64             `yaml:"fade_in,omitempty"`
	FadeOut      float64             `yaml:"fade_out,omitempty"`
	Camera       string              `yaml:"camera,omitempty"` // none, auto, keyframes
	Keyframes    []director.Keyframe `yaml:"keyframes,omitempty"`
}

// WriteProject writes a project to a YAML file
func WriteProject(p *Project, path string) error {
	if p.Version == "" {
		p.Version = "1.0"
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// LoadProject reads a project from a YAML file. Relative scene and audio
// paths are resolved against the project file's directory.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.E(errs.Asset, "config.LoadProject", err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errs.E(errs.Config, "config.LoadProject", err)
	}
	if len(p.Scenes) == 0 {
		return nil, errs.Errorf(errs.Config, "config.LoadProject", "%s: no scenes", path)
	}

	base := filepath.Dir(path)
	p.Audio = resolve(base, p.Audio)
	for i := range p.Scenes {
		p.Scenes[i].Path = resolve(base, p.Scenes[i].Path)
		if p.Scenes[i].Type == "" {
			return nil, errs.Errorf(errs.Config, "config.LoadProject", "scene %d: missing type", i)
		}
	}
	return &p, nil
}

// DefaultProjectPath создает путь к проекту с меткой времени.
func DefaultProjectPath(dir string) string {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(dir, fmt.Sprintf("project_%s.yaml", timestamp))
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
