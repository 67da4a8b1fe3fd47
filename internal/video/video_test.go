package video

import (
	"context"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scene2video/internal/audio"
	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/errs"
	"github.com/ivlev/scene2video/internal/frame"
	"github.com/ivlev/scene2video/internal/system"
)

type recorder struct {
	consumed chan Stream
	done     chan int64
	failed   chan error
}

func newRecorder() *recorder {
	return &recorder{
		consumed: make(chan Stream, 64),
		done:     make(chan int64, 1),
		failed:   make(chan error, 1),
	}
}

func (r *recorder) OnUnitConsumed(s Stream) { r.consumed <- s }
func (r *recorder) OnCompleted(n int64)     { r.done <- n }
func (r *recorder) OnError(err error)       { r.failed <- err }

func (r *recorder) waitConsumed(t *testing.T, want Stream) {
	t.Helper()
	select {
	case s := <-r.consumed:
		require.Equal(t, want, s)
	case err := <-r.failed:
		t.Fatalf("encoder failed: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("no consumed signal")
	}
}

func TestSlotHoldsOneUnit(t *testing.T) {
	s := newSlot()
	assert.True(t, s.offer(unit{pts: 1}))
	assert.False(t, s.offer(unit{pts: 2}), "busy until consumed")

	<-s.ch
	assert.False(t, s.offer(unit{pts: 2}), "taking the unit is not consuming it")
	s.consumed()
	assert.True(t, s.offer(unit{pts: 2}))

	s.close()
	s.close()
	s.consumed()
	assert.False(t, s.offer(unit{pts: 3}))
}

func TestArgs(t *testing.T) {
	g := NewFFmpegGateway(FFmpegOptions{
		Output:     "out.mp4",
		Width:      1080,
		Height:     1920,
		FPS:        30,
		DurationUs: 1_166_666,
		Transform:  effects.TransformRotate180Mirror,
		Encoder:    "libx264",
		Quality:    20,
	})
	args := strings.Join(g.Args(), " ")

	assert.Contains(t, args, "-f rawvideo -pixel_format rgba -video_size 1080x1920 -framerate 30 -i pipe:0")
	assert.Contains(t, args, "-f s16le -ar 44100 -ac 2 -i pipe:3")
	assert.Contains(t, args, "-vf vflip")
	assert.Contains(t, args, "-c:v libx264 -crf 20 -preset medium")
	assert.Contains(t, args, "-t 1.166666")
	assert.True(t, strings.HasSuffix(args, " out.mp4"))

	plain := NewFFmpegGateway(FFmpegOptions{Output: "o.mp4", Width: 2, Height: 2, FPS: 1, Encoder: "h264_nvenc"})
	assert.NotContains(t, plain.Args(), "-vf")
	assert.Equal(t, 28, plain.opts.Quality)
}

func TestQueueBeforeStart(t *testing.T) {
	g := NewFFmpegGateway(FFmpegOptions{Encoder: "libx264"})
	assert.False(t, g.QueueAudioChunk(nil, 0, true))
	assert.NoError(t, g.Release())
	assert.NoError(t, g.Release())
}

func TestProcessFailureIsEncoderError(t *testing.T) {
	bin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false not found")
	}
	g := NewFFmpegGateway(FFmpegOptions{
		Output: filepath.Join(t.TempDir(), "out.mp4"), Width: 2, Height: 2, FPS: 1,
		DurationUs: 1_000_000, Encoder: "libx264", Binary: bin,
	})
	rec := newRecorder()
	require.NoError(t, g.Start(context.Background(), rec))
	defer g.Release()

	select {
	case err := <-rec.failed:
		assert.True(t, errs.Is(err, errs.Encoder), "got %v", err)
	case <-rec.done:
		t.Fatal("a failing encoder must not complete")
	case <-time.After(10 * time.Second):
		t.Fatal("no terminal signal")
	}
}

func TestEncodeWithFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found")
	}
	const (
		w, h, fps, frames = 32, 24, 10, 5
	)
	out := filepath.Join(t.TempDir(), "out.mp4")
	g := NewFFmpegGateway(FFmpegOptions{
		Output: out, Width: w, Height: h, FPS: fps,
		DurationUs: frames * 1_000_000 / fps,
		Transform:  effects.TransformFlip,
		Encoder:    "libx264",
	})
	rec := newRecorder()
	require.NoError(t, g.Start(context.Background(), rec))
	defer g.Release()

	up := frame.NewMemoryUploader(system.NewImagePool())
	for i := 0; i < frames; i++ {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		handle, err := up.Upload(img)
		require.NoError(t, err)
		require.True(t, g.QueueVideoFrame(handle, int64(i)*1_000_000/fps))
		rec.waitConsumed(t, VideoStream)
	}
	g.SignalEndOfVideo()
	assert.Zero(t, up.Outstanding(), "consumed frames are released")

	require.True(t, g.QueueAudioChunk(make([]byte, 4410*4), 0, false))
	rec.waitConsumed(t, AudioStream)
	require.True(t, g.QueueAudioChunk(nil, 500_000, true))

	select {
	case n := <-rec.done:
		assert.Positive(t, n)
	case err := <-rec.failed:
		t.Fatalf("encode failed: %v", err)
	case <-time.After(30 * time.Second):
		t.Fatal("ffmpeg did not finish")
	}
}

func TestOutOfOrderFrameFails(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found")
	}
	g := NewFFmpegGateway(FFmpegOptions{
		Output: filepath.Join(t.TempDir(), "out.mp4"), Width: 16, Height: 16, FPS: 10,
		DurationUs: 1_000_000, Encoder: "libx264",
	})
	rec := newRecorder()
	require.NoError(t, g.Start(context.Background(), rec))
	defer g.Release()

	up := frame.NewMemoryUploader(nil)
	first, err := up.Upload(image.NewRGBA(image.Rect(0, 0, 16, 16)))
	require.NoError(t, err)
	require.True(t, g.QueueVideoFrame(first, 100_000))
	rec.waitConsumed(t, VideoStream)

	second, err := up.Upload(image.NewRGBA(image.Rect(0, 0, 16, 16)))
	require.NoError(t, err)
	require.True(t, g.QueueVideoFrame(second, 0))

	select {
	case err := <-rec.failed:
		assert.True(t, errs.Is(err, errs.Encoder))
	case <-time.After(10 * time.Second):
		t.Fatal("no error for a frame out of order")
	}
}

func audioSink(t *testing.T) (*FFmpegGateway, *os.File) {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "audio.pcm"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	g := NewFFmpegGateway(FFmpegOptions{Output: "out.mp4", Width: 32, Height: 24, FPS: 10, Encoder: "libx264", Quality: 23})
	g.audioOut = f
	return g, f
}

func fileSize(t *testing.T, f *os.File) int64 {
	t.Helper()
	fi, err := f.Stat()
	require.NoError(t, err)
	return fi.Size()
}

func TestEmptyLastAudioChunkIsNotPadded(t *testing.T) {
	g, f := audioSink(t)
	bpf := int64(audio.OutputFormat.BytesPerFrame())
	g.audioBytes = 5 * int64(audio.OutputFormat.SampleRate) * bpf

	// an hour of video after five seconds of audio
	require.NoError(t, g.writeAudio(unit{pts: 3600 * 1_000_000, last: true}))
	assert.Zero(t, fileSize(t, f))
	assert.Equal(t, 5*int64(audio.OutputFormat.SampleRate)*bpf, g.audioBytes)
}

func TestAudioGapPaddedWithBoundedMemory(t *testing.T) {
	g, f := audioSink(t)
	bpf := int64(audio.OutputFormat.BytesPerFrame())
	gap := 10 * int64(audio.OutputFormat.SampleRate) * bpf
	chunk := make([]byte, 4*bpf)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	require.NoError(t, g.writeAudio(unit{data: chunk, pts: 10 * 1_000_000}))
	runtime.ReadMemStats(&after)

	assert.Equal(t, gap+int64(len(chunk)), fileSize(t, f))
	assert.Equal(t, gap+int64(len(chunk)), g.audioBytes)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(256<<10), "silence must not be allocated per gap")

	// aligned chunk: no further padding
	require.NoError(t, g.writeAudio(unit{data: chunk, pts: audio.OutputFormat.DurationUs(int(g.audioBytes))}))
	assert.Equal(t, gap+2*int64(len(chunk)), fileSize(t, f))
}
