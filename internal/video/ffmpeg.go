package video

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/ivlev/scene2video/internal/audio"
	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/errs"
	"github.com/ivlev/scene2video/internal/frame"
	"github.com/ivlev/scene2video/internal/logging"
	"github.com/ivlev/scene2video/internal/system"
)

type FFmpegOptions struct {
	Output     string
	Width      int
	Height     int
	FPS        int
	DurationUs int64
	Transform  effects.Transform
	Encoder    string // пусто: system.GetBestH264Encoder
	Quality    int    // 0: system.DefaultQuality
	Binary     string
	Log        *zap.SugaredLogger
}

// FFmpegGateway feeds one ffmpeg process: raw RGBA frames on stdin and
// s16le stereo PCM on fd 3. ffmpeg muxes both into Output.
type FFmpegGateway struct {
	opts FFmpegOptions
	log  *zap.SugaredLogger

	video *slot
	audio *slot

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	audioOut *os.File
	stderr   *system.TailBuffer
	listener Listener

	mu       sync.Mutex
	writeErr error

	lastVideoPTS int64
	audioBytes   int64

	started      bool
	exited       chan struct{}
	wg           sync.WaitGroup
	terminalOnce sync.Once
	releaseOnce  sync.Once
}

func NewFFmpegGateway(opts FFmpegOptions) *FFmpegGateway {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.Encoder == "" {
		opts.Encoder = system.GetBestH264Encoder()
	}
	if opts.Quality <= 0 {
		opts.Quality = system.DefaultQuality(opts.Encoder)
	}
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	return &FFmpegGateway{
		opts:         opts,
		log:          log,
		video:        newSlot(),
		audio:        newSlot(),
		stderr:       system.NewTailBuffer(4096),
		exited:       make(chan struct{}),
		lastVideoPTS: -1,
	}
}

// Args returns the ffmpeg command line without the binary.
func (g *FFmpegGateway) Args() []string {
	o := g.opts
	args := []string{
		"-y",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", o.Width, o.Height),
		"-framerate", strconv.Itoa(o.FPS),
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.OutputFormat.SampleRate),
		"-ac", strconv.Itoa(audio.OutputFormat.Channels),
		"-i", "pipe:3",
	}
	if f := o.Transform.Filter(); f != "" {
		args = append(args, "-vf", f)
	}
	args = append(args,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", o.Encoder,
	)
	args = append(args, system.QualityArgs(o.Encoder, o.Quality)...)
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-af", "apad",
		"-t", fmt.Sprintf("%.6f", float64(o.DurationUs)/1e6),
		"-movflags", "+faststart",
		o.Output,
	)
	return args
}

func (g *FFmpegGateway) Start(ctx context.Context, l Listener) error {
	const op = "video.Start"
	if l == nil {
		return errs.Errorf(errs.Encoder, op, "listener is nil")
	}
	if g.started {
		return errs.Errorf(errs.Encoder, op, "already started")
	}

	cmd := exec.CommandContext(ctx, g.opts.Binary, g.Args()...)
	cmd.Stderr = g.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errs.E(errs.Encoder, op, fmt.Errorf("stdin pipe error: %w", err))
	}
	audioIn, audioOut, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return errs.E(errs.Encoder, op, fmt.Errorf("audio pipe error: %w", err))
	}
	cmd.ExtraFiles = []*os.File{audioIn}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		audioIn.Close()
		audioOut.Close()
		return errs.E(errs.Encoder, op, fmt.Errorf("ffmpeg start error: %w", err))
	}
	// the child holds its own copy
	audioIn.Close()

	g.cmd, g.stdin, g.audioOut, g.listener, g.started = cmd, stdin, audioOut, l, true
	g.log.Debugw("ffmpeg started", "pid", cmd.Process.Pid, "encoder", g.opts.Encoder, "output", g.opts.Output)

	g.wg.Add(2)
	go g.videoWriter()
	go g.audioWriter()
	go g.wait()
	return nil
}

func (g *FFmpegGateway) QueueVideoFrame(h frame.Handle, ptsUs int64) bool {
	if !g.started || h == nil {
		return false
	}
	return g.video.offer(unit{handle: h, pts: ptsUs})
}

func (g *FFmpegGateway) QueueAudioChunk(data []byte, ptsUs int64, last bool) bool {
	if !g.started {
		return false
	}
	if !g.audio.offer(unit{data: data, pts: ptsUs, last: last}) {
		return false
	}
	if last {
		g.audio.close()
	}
	return true
}

func (g *FFmpegGateway) SignalEndOfVideo() {
	g.video.close()
}

func (g *FFmpegGateway) videoWriter() {
	defer g.wg.Done()
	defer g.stdin.Close()

	want := g.opts.Width * g.opts.Height * 4
	for u := range g.video.ch {
		if g.failed() {
			u.handle.Release()
			continue
		}
		err := g.writeFrame(u, want)
		u.handle.Release()
		if err != nil {
			g.fail(err)
			continue
		}
		g.video.consumed()
		g.listener.OnUnitConsumed(VideoStream)
	}
}

func (g *FFmpegGateway) writeFrame(u unit, want int) error {
	const op = "video.writeFrame"
	if u.pts <= g.lastVideoPTS {
		return errs.Errorf(errs.Encoder, op, "frame pts %d after %d", u.pts, g.lastVideoPTS)
	}
	b := u.handle.Bounds()
	if b.Dx()*b.Dy()*4 != want {
		return errs.Errorf(errs.Encoder, op, "frame %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), g.opts.Width, g.opts.Height)
	}
	g.lastVideoPTS = u.pts
	if _, err := u.handle.WriteTo(g.stdin); err != nil {
		return errs.E(errs.Encoder, op, fmt.Errorf("write raw error: %w", err))
	}
	return nil
}

func (g *FFmpegGateway) audioWriter() {
	defer g.wg.Done()
	defer g.audioOut.Close()

	for u := range g.audio.ch {
		if g.failed() {
			continue
		}
		if err := g.writeAudio(u); err != nil {
			// ffmpeg may stop reading once it has -t worth of audio
			if !u.last {
				g.fail(err)
				continue
			}
			g.log.Debugw("last audio chunk not fully written", "error", err)
		}
		g.audio.consumed()
		g.listener.OnUnitConsumed(AudioStream)
	}
}

// silence is shared by every gateway; it is only ever read.
var silence [64 << 10]byte

// writeAudio pads a gap before pts with silence so audio stays aligned with
// its timestamps. An empty last chunk needs no padding: -af apad fills the
// tail up to -t.
func (g *FFmpegGateway) writeAudio(u unit) error {
	if len(u.data) == 0 {
		return nil
	}
	f := audio.OutputFormat
	if at := f.DurationUs(int(g.audioBytes)); u.pts > at {
		gap := (u.pts - at) * int64(f.SampleRate) / 1_000_000 * int64(f.BytesPerFrame())
		for gap > 0 {
			n := min(gap, int64(len(silence)))
			w, err := g.audioOut.Write(silence[:n])
			g.audioBytes += int64(w)
			gap -= int64(w)
			if err != nil {
				return errs.E(errs.Encoder, "video.writeAudio", err)
			}
		}
	}
	n, err := g.audioOut.Write(u.data)
	g.audioBytes += int64(n)
	if err != nil {
		return errs.E(errs.Encoder, "video.writeAudio", err)
	}
	return nil
}

func (g *FFmpegGateway) fail(err error) {
	g.mu.Lock()
	first := g.writeErr == nil
	if first {
		g.writeErr = err
	}
	g.mu.Unlock()
	if first {
		g.log.Warnw("encoder input failed, stopping ffmpeg", "error", err)
		g.kill()
	}
}

func (g *FFmpegGateway) failed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writeErr != nil
}

func (g *FFmpegGateway) kill() {
	select {
	case <-g.exited:
	default:
		_ = g.cmd.Process.Kill()
	}
}

func (g *FFmpegGateway) wait() {
	err := g.cmd.Wait()
	close(g.exited)

	g.mu.Lock()
	writeErr := g.writeErr
	g.mu.Unlock()

	g.terminalOnce.Do(func() {
		if writeErr == nil && err == nil {
			st, statErr := os.Stat(g.opts.Output)
			if statErr != nil {
				g.listener.OnError(errs.E(errs.Encoder, "video.ffmpeg", statErr))
				return
			}
			g.listener.OnCompleted(st.Size())
			return
		}
		cause := writeErr
		if cause == nil {
			cause = err
		}
		if tail := g.stderr.String(); tail != "" {
			cause = fmt.Errorf("%w: %s", cause, tail)
		}
		if errs.KindOf(cause) != errs.Encoder {
			cause = errs.E(errs.Encoder, "video.ffmpeg", cause)
		}
		g.listener.OnError(cause)
	})
}

// Release stops ffmpeg if it is still running and waits for the writers.
// Callbacks that have not fired yet are dropped; input errors were already
// reported through OnError.
func (g *FFmpegGateway) Release() error {
	g.releaseOnce.Do(func() {
		g.terminalOnce.Do(func() {})
		g.video.close()
		g.audio.close()
		if !g.started {
			return
		}
		select {
		case <-g.exited:
		default:
			g.kill()
			<-g.exited
		}
		g.wg.Wait()
	})
	return nil
}
