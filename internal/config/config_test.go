package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scene2video/internal/director"
	"github.com/ivlev/scene2video/internal/errs"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"preset overrides size", func(c *Config) { c.Preset = "9:16"; c.Width = 3 }, false},
		{"unknown preset", func(c *Config) { c.Preset = "21:9" }, true},
		{"odd width", func(c *Config) { c.Width = 1281 }, true},
		{"zero fps", func(c *Config) { c.FPS = 0 }, true},
		{"bad transform", func(c *Config) { c.Transform = "spin" }, true},
		{"zero prefetch", func(c *Config) { c.PrefetchDepth = 0 }, true},
		{"negative timeout", func(c *Config) { c.SubmitTimeout = -time.Second }, true},
		{"no output", func(c *Config) { c.OutputVideo = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.OutputVideo = "out.mp4"
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.Is(err, errs.Config))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateAppliesPreset(t *testing.T) {
	c := Default()
	c.OutputVideo = "out.mp4"
	c.Preset = "4:5"
	require.NoError(t, c.Validate())
	assert.Equal(t, 1080, c.Width)
	assert.Equal(t, 1350, c.Height)
}

func TestProjectWriteLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "project.yaml")

	p := &Project{
		Output: "out.mp4",
		FPS:    25,
		Audio:  "music.wav",
		Scenes: []SceneSpec{
			{Type: "pdf", Path: "deck.pdf", PageDuration: 2},
			{Type: "image", Path: "/abs/cover.png", Duration: 3, Camera: "keyframes",
				Keyframes: []director.Keyframe{{Time: 0, Rect: director.Rectangle{W: 100, H: 50}, Zoom: 1}}},
			{Type: "title", Text: "The End", Duration: 1.5},
		},
	}
	require.NoError(t, WriteProject(p, path))

	got, err := LoadProject(path)
	require.NoError(t, err)

	assert.Equal(t, "1.0", got.Version)
	assert.Equal(t, 25, got.FPS)
	require.Len(t, got.Scenes, 3)
	assert.Equal(t, filepath.Join(dir, "nested", "deck.pdf"), got.Scenes[0].Path)
	assert.Equal(t, "/abs/cover.png", got.Scenes[1].Path)
	assert.Equal(t, filepath.Join(dir, "nested", "music.wav"), got.Audio)
	assert.Len(t, got.Scenes[1].Keyframes, 1)
	assert.Empty(t, got.Scenes[2].Path)
}

func TestLoadProjectErrors(t *testing.T) {
	_, err := LoadProject(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errs.Is(err, errs.Asset))

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, WriteProject(&Project{}, path))
	_, err = LoadProject(path)
	assert.True(t, errs.Is(err, errs.Config))
}

func TestApplyProject(t *testing.T) {
	c := Default()
	c.ApplyProject(&Project{Width: 1920, Height: 1080, Transform: "mirror", Audio: "a.mp3"})
	assert.Equal(t, 1920, c.Width)
	assert.Equal(t, 1080, c.Height)
	assert.Equal(t, "mirror", c.Transform)
	assert.Equal(t, "a.mp3", c.AudioPath)
	assert.Equal(t, DefaultFPS, c.FPS)
}
