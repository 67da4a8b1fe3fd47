// Package recording turns a project into a finished video. It builds the
// timeline, the soundtrack, the surface and the encoder for one run and
// publishes the outcome as a result.Stream.
package recording

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivlev/scene2video/internal/audio"
	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/engine"
	"github.com/ivlev/scene2video/internal/errs"
	"github.com/ivlev/scene2video/internal/frame"
	"github.com/ivlev/scene2video/internal/logging"
	"github.com/ivlev/scene2video/internal/renderer"
	"github.com/ivlev/scene2video/internal/result"
	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/system"
	"github.com/ivlev/scene2video/internal/timeline"
	"github.com/ivlev/scene2video/internal/video"
)

// GatewayFactory creates the encoder for one recording.
type GatewayFactory func(opts video.FFmpegOptions) video.Gateway

// AudioFactory opens the soundtrack for one recording.
type AudioFactory func(ctx context.Context, in audio.Input, opts ...audio.Option) (engine.AudioSource, error)

type Option func(*Recorder)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(r *Recorder) { r.log = log }
}

// WithFS reads scene assets and the soundtrack from fsys instead of the
// local file system.
func WithFS(fsys fs.FS) Option {
	return func(r *Recorder) { r.fs = fsys }
}

func WithGatewayFactory(f GatewayFactory) Option {
	return func(r *Recorder) { r.newGateway = f }
}

func WithAudioFactory(f AudioFactory) Option {
	return func(r *Recorder) { r.openAudio = f }
}

type Recorder struct {
	cfg config.Config
	log *zap.SugaredLogger
	fs  fs.FS

	newGateway GatewayFactory
	openAudio  AudioFactory
}

func New(cfg config.Config, opts ...Option) *Recorder {
	r := &Recorder{
		cfg:        cfg,
		log:        logging.Nop(),
		newGateway: defaultGateway,
		openAudio:  defaultAudio,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func defaultGateway(opts video.FFmpegOptions) video.Gateway {
	return video.NewFFmpegGateway(opts)
}

func defaultAudio(ctx context.Context, in audio.Input, opts ...audio.Option) (engine.AudioSource, error) {
	src, err := audio.Open(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Record returns a stream for one recording of p. Nothing starts until the
// first Subscribe. Values go Idle, Rendering(progress), then one Success or
// Error.
func (r *Recorder) Record(p *config.Project) *result.Stream {
	return result.NewStream(func(ctx context.Context, emit func(result.Result)) {
		id := uuid.NewString()
		log := r.log.With("recording_id", id)

		cfg, out, err := r.record(ctx, p, log, emit)
		if err != nil {
			log.Errorw("recording failed", "kind", errs.KindOf(err).String(), "error", err)
			emit(result.Failure(err))
			return
		}
		log.Infow("recording saved", "output", cfg.OutputVideo, "bytes", out.Bytes, "elapsed", out.Elapsed)
		emit(result.Success(cfg.OutputVideo, out.Bytes))
	}, r.cfg.GraceWindow, r.log)
}

func (r *Recorder) record(ctx context.Context, p *config.Project, log *zap.SugaredLogger, emit func(result.Result)) (config.Config, engine.Outcome, error) {
	cfg := r.cfg
	if p == nil || len(p.Scenes) == 0 {
		return cfg, engine.Outcome{}, errs.Errorf(errs.Config, "recording", "project has no scenes")
	}
	cfg.ApplyProject(p)
	if err := cfg.Validate(); err != nil {
		return cfg, engine.Outcome{}, err
	}
	transform, err := effects.ParseTransform(cfg.Transform)
	if err != nil {
		return cfg, engine.Outcome{}, errs.E(errs.Config, "recording", err)
	}
	if dir := filepath.Dir(cfg.OutputVideo); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return cfg, engine.Outcome{}, errs.E(errs.Asset, "recording", err)
		}
	}

	scenes, err := r.buildScenes(p.Scenes, cfg)
	if err != nil {
		return cfg, engine.Outcome{}, err
	}
	tl, err := timeline.New(scenes, log)
	if err != nil {
		closeScenes(scenes)
		return cfg, engine.Outcome{}, err
	}
	log.Infow("timeline ready",
		"scenes", tl.Len(),
		"frames", tl.TotalFrames(),
		"fps", tl.FrameRate(),
		"duration", tl.TotalDuration(),
	)

	src, err := r.openAudio(ctx, audio.Input{Path: cfg.AudioPath, FS: r.fs, SilenceUs: tl.DurationUs()},
		audio.WithPrefetchDepth(cfg.PrefetchDepth),
		audio.WithLogger(log),
	)
	if err != nil {
		tl.Close()
		return cfg, engine.Outcome{}, err
	}

	gw := r.newGateway(video.FFmpegOptions{
		Output:     cfg.OutputVideo,
		Width:      cfg.Width,
		Height:     cfg.Height,
		FPS:        tl.FrameRate(),
		DurationUs: tl.DurationUs(),
		Transform:  transform,
		Encoder:    cfg.VideoEncoder,
		Quality:    cfg.Quality,
		Log:        log,
	})

	name := cfg.ProjectPath
	if name == "" {
		name = fmt.Sprintf("%d scenes", len(scenes))
	}
	eng := engine.New(tl, src,
		renderer.NewSurface(cfg.Width, cfg.Height),
		frame.NewMemoryUploader(system.NewImagePool()),
		gw,
		engine.Options{
			SubmitTimeout: cfg.SubmitTimeout,
			OnProgress:    func(p float64) { emit(result.Rendering(p)) },
			Log:           log,
			ShowStats:     cfg.ShowStats,
			BuildVersion:  cfg.BuildVersion,
			Name:          name,
		})

	out, err := eng.Run(ctx)
	return cfg, out, err
}

// buildScenes closes what it already built when a later scene fails.
func (r *Recorder) buildScenes(specs []config.SceneSpec, cfg config.Config) ([]scene.Scene, error) {
	opts := scene.BuildOptions{
		FS:     r.fs,
		FPS:    cfg.FPS,
		DPI:    cfg.DPI,
		Width:  cfg.Width,
		Height: cfg.Height,
	}
	scenes := make([]scene.Scene, 0, len(specs))
	for i, spec := range specs {
		s, err := scene.Build(spec, opts)
		if err != nil {
			closeScenes(scenes)
			return nil, fmt.Errorf("scene %d (%s): %w", i, spec.Type, err)
		}
		scenes = append(scenes, s)
	}
	return scenes, nil
}

func closeScenes(scenes []scene.Scene) {
	for _, s := range scenes {
		s.Close()
	}
}
