// Package engine drives one recording: a video loop that renders, uploads
// and submits every timeline frame, and an audio loop that forwards decoded
// chunks. Both feed a video.Gateway with at most one unit in flight per
// stream.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scene2video/internal/audio"
	"github.com/ivlev/scene2video/internal/errs"
	"github.com/ivlev/scene2video/internal/frame"
	"github.com/ivlev/scene2video/internal/logging"
	"github.com/ivlev/scene2video/internal/renderer"
	"github.com/ivlev/scene2video/internal/system"
	"github.com/ivlev/scene2video/internal/video"
)

const (
	DefaultSubmitTimeout = 2 * time.Minute

	minBackoff = time.Millisecond
	maxBackoff = 50 * time.Millisecond
)

// Frames is the video side of a recording, normally a *timeline.Timeline.
type Frames interface {
	TotalFrames() int
	FrameRate() int
	DurationUs() int64
	PTS(i int) int64
	GenerateFrame(i int) (image.Image, error)
	Close() error
}

// AudioSource is normally an *audio.ChunkSource.
type AudioSource interface {
	Next(ctx context.Context) (audio.Chunk, error)
	Release() error
}

// Rasterizer is normally a *renderer.Surface.
type Rasterizer interface {
	Render(ctx context.Context, img image.Image) <-chan renderer.Result
	Close() error
}

type Options struct {
	// SubmitTimeout bounds every wait for the encoder. Zero disables it.
	SubmitTimeout time.Duration
	// OnProgress receives i/total before frame i is awaited.
	OnProgress func(progress float64)
	Log        *zap.SugaredLogger

	ShowStats    bool
	StatsFile    string
	BuildVersion string
	Name         string
}

type Outcome struct {
	Bytes       int64
	Frames      int
	AudioChunks int
	Elapsed     time.Duration
}

type Engine struct {
	frames   Frames
	audio    AudioSource
	surface  Rasterizer
	uploader frame.Uploader
	gateway  video.Gateway
	opts     Options
	log      *zap.SugaredLogger

	sig *signals

	renderTime  time.Duration
	waitTime    time.Duration
	audioChunks int

	finalizeOnce sync.Once
}

// New takes ownership of every collaborator; they are released when Run
// returns, or by Release if Run is never called.
func New(frames Frames, src AudioSource, surface Rasterizer, up frame.Uploader, gw video.Gateway, opts Options) *Engine {
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	if opts.StatsFile == "" {
		opts.StatsFile = "benchmark.log"
	}
	return &Engine{
		frames:   frames,
		audio:    src,
		surface:  surface,
		uploader: up,
		gateway:  gw,
		opts:     opts,
		log:      opts.Log,
		sig:      newSignals(),
	}
}

// Run records the whole timeline. It returns after the encoder reported
// completion or after the first failure of either loop or the encoder.
func (e *Engine) Run(ctx context.Context) (Outcome, error) {
	defer e.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	total := e.frames.TotalFrames()
	e.log.Infow("recording started",
		"frames", total,
		"fps", e.frames.FrameRate(),
		"duration_us", e.frames.DurationUs(),
	)

	if err := e.gateway.Start(ctx, e.sig); err != nil {
		return Outcome{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.runVideo(gctx) })
	g.Go(func() error { return e.audioLoop(gctx) })

	loops := make(chan error, 1)
	go func() { loops <- g.Wait() }()

	var err error
	select {
	case err = <-loops:
	case <-e.sig.done:
		if e.sig.err != nil {
			cancel()
			<-loops
			return Outcome{}, e.sig.err
		}
		// completed early; the loops notice it at their next wait
		err = <-loops
	}
	if err != nil {
		cancel()
		return Outcome{}, err
	}

	var deadline <-chan time.Time
	if e.opts.SubmitTimeout > 0 {
		t := time.NewTimer(e.opts.SubmitTimeout)
		defer t.Stop()
		deadline = t.C
	}
	select {
	case <-e.sig.done:
	case <-deadline:
		return Outcome{}, errs.Errorf(errs.BackpressureTimeout, "engine.Run", "encoder did not finish within %s after the last unit", e.opts.SubmitTimeout)
	case <-ctx.Done():
		return Outcome{}, errs.E(errs.Cancelled, "engine.Run", ctx.Err())
	}
	if e.sig.err != nil {
		return Outcome{}, e.sig.err
	}

	out := Outcome{
		Bytes:       e.sig.bytes,
		Frames:      total,
		AudioChunks: e.audioChunks,
		Elapsed:     time.Since(start),
	}
	e.log.Infow("recording finished", "bytes", out.Bytes, "elapsed", out.Elapsed)
	if e.opts.ShowStats {
		e.report(out)
	}
	return out, nil
}

// runVideo keeps the video loop on one OS thread for its whole lifetime.
func (e *Engine) runVideo(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	return e.videoLoop(ctx)
}

func (e *Engine) videoLoop(ctx context.Context) error {
	total := e.frames.TotalFrames()

	for i := 0; i < total; i++ {
		if err := errs.FromContext("engine.video", ctx); err != nil {
			return err
		}

		t0 := time.Now()
		img, err := e.frames.GenerateFrame(i)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}

		var res renderer.Result
		select {
		case res = <-e.surface.Render(ctx, img):
		case <-ctx.Done():
			return errs.E(errs.Cancelled, "engine.video", ctx.Err())
		}
		if res.Err != nil {
			return fmt.Errorf("frame %d: %w", i, res.Err)
		}

		h, err := e.uploader.Upload(res.Image)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		e.renderTime += time.Since(t0)

		t1 := time.Now()
		pts := e.frames.PTS(i)
		if err := e.submit(ctx, e.sig.video, func() bool { return e.gateway.QueueVideoFrame(h, pts) }); err != nil {
			h.Release()
			return err
		}
		if e.opts.OnProgress != nil {
			e.opts.OnProgress(float64(i) / float64(total))
		}
		if err := e.await(ctx, e.sig.video); err != nil {
			return err
		}
		e.waitTime += time.Since(t1)
	}

	e.gateway.SignalEndOfVideo()
	return nil
}

// audioLoop stops quietly when the encoder completes first: ffmpeg stops
// reading audio once it has enough for the video duration.
func (e *Engine) audioLoop(ctx context.Context) error {
	err := e.pumpAudio(ctx)
	if errors.Is(err, errEncoderFinished) {
		return nil
	}
	return err
}

func (e *Engine) pumpAudio(ctx context.Context) error {
	durationUs := e.frames.DurationUs()
	for {
		c, err := e.audio.Next(ctx)
		if errors.Is(err, audio.ErrEndOfStream) {
			e.log.Debugw("audio source drained", "chunks", e.audioChunks)
			return e.submit(ctx, e.sig.audio, func() bool {
				return e.gateway.QueueAudioChunk(nil, durationUs, true)
			})
		}
		if err != nil {
			return err
		}

		last := c.PTS >= durationUs
		if err := e.submit(ctx, e.sig.audio, func() bool {
			return e.gateway.QueueAudioChunk(c.Data, c.PTS, last)
		}); err != nil {
			return err
		}
		e.audioChunks++
		if last {
			e.log.Debugw("audio cut at video duration", "pts", c.PTS, "chunks", e.audioChunks)
			return nil
		}
	}
}

// submit retries a rejected unit when the stream reports a consumed unit or
// after a capped backoff, whichever comes first.
func (e *Engine) submit(ctx context.Context, consumed <-chan struct{}, try func() bool) error {
	if try() {
		return nil
	}

	var deadline <-chan time.Time
	if e.opts.SubmitTimeout > 0 {
		t := time.NewTimer(e.opts.SubmitTimeout)
		defer t.Stop()
		deadline = t.C
	}

	backoff := minBackoff
	for {
		tick := time.NewTimer(backoff)
		select {
		case <-consumed:
		case <-tick.C:
			backoff = min(backoff*2, maxBackoff)
		case <-deadline:
			tick.Stop()
			return errs.Errorf(errs.BackpressureTimeout, "engine.submit", "encoder did not accept a unit within %s", e.opts.SubmitTimeout)
		case <-e.sig.done:
			tick.Stop()
			return e.sig.terminalErr()
		case <-ctx.Done():
			tick.Stop()
			return errs.E(errs.Cancelled, "engine.submit", ctx.Err())
		}
		tick.Stop()
		if try() {
			return nil
		}
	}
}

func (e *Engine) await(ctx context.Context, consumed <-chan struct{}) error {
	var deadline <-chan time.Time
	if e.opts.SubmitTimeout > 0 {
		t := time.NewTimer(e.opts.SubmitTimeout)
		defer t.Stop()
		deadline = t.C
	}
	select {
	case <-consumed:
		return nil
	case <-deadline:
		return errs.Errorf(errs.BackpressureTimeout, "engine.await", "encoder did not consume a unit within %s", e.opts.SubmitTimeout)
	case <-e.sig.done:
		return e.sig.terminalErr()
	case <-ctx.Done():
		return errs.E(errs.Cancelled, "engine.await", ctx.Err())
	}
}

// Release frees every collaborator once. Run calls it on every exit path.
func (e *Engine) Release() {
	e.finalizeOnce.Do(func() {
		release := func(what string, err error) {
			if err != nil {
				e.log.Warnw("release failed", "what", what, "error", err)
			}
		}
		release("gateway", e.gateway.Release())
		release("audio", e.audio.Release())
		release("surface", e.surface.Close())
		release("uploader", e.uploader.Close())
		release("timeline", e.frames.Close())
	})
}

func (e *Engine) report(out Outcome) {
	fps := float64(out.Frames) / out.Elapsed.Seconds()
	host := system.CollectHostStats()

	report := fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Total Time: %.2fs\n"+
			"Rendering (CPU): %.2fs\n"+
			"Encoder wait: %.2fs\n"+
			"Audio chunks: %d\n"+
			"Effective FPS: %.2f\n"+
			"Host: %s\n"+
			"----------------------------\n",
		e.opts.BuildVersion, out.Elapsed.Seconds(), e.renderTime.Seconds(), e.waitTime.Seconds(),
		out.AudioChunks, fps, host,
	)
	fmt.Print(report)

	entry := fmt.Sprintf("[%s] Build: %s | Input: %s | Frames: %d | Total: %.2fs | Render: %.2fs | Wait: %.2fs | FPS: %.2f | RSS: %d MB\n",
		time.Now().Format("2006-01-02 15:04:05"),
		e.opts.BuildVersion,
		e.opts.Name,
		out.Frames,
		out.Elapsed.Seconds(),
		e.renderTime.Seconds(),
		e.waitTime.Seconds(),
		fps,
		host.ProcessRSSMB,
	)
	f, err := os.OpenFile(e.opts.StatsFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Printf("[!] Не удалось записать %s: %v\n", e.opts.StatsFile, err)
		return
	}
	defer f.Close()
	f.WriteString(entry)
}
