package recording

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scene2video/internal/audio"
	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/engine"
	"github.com/ivlev/scene2video/internal/errs"
	"github.com/ivlev/scene2video/internal/frame"
	"github.com/ivlev/scene2video/internal/logging"
	"github.com/ivlev/scene2video/internal/result"
	"github.com/ivlev/scene2video/internal/video"
)

// memGateway accepts every unit and consumes it right away.
type memGateway struct {
	opts video.FFmpegOptions
	l    video.Listener

	mu         sync.Mutex
	frames     []int64
	lastChunks int
	chunks     int
	videoDone  bool
	audioDone  bool
	failAt     int
	completed  sync.Once
	releases   int
}

func (g *memGateway) Start(_ context.Context, l video.Listener) error {
	g.l = l
	return nil
}

func (g *memGateway) QueueVideoFrame(h frame.Handle, pts int64) bool {
	g.mu.Lock()
	idx := len(g.frames)
	g.frames = append(g.frames, pts)
	g.mu.Unlock()
	h.Release()

	go func() {
		if g.failAt >= 0 && idx == g.failAt {
			g.l.OnError(errs.Errorf(errs.Encoder, "memGateway", "broken pipe"))
			return
		}
		g.l.OnUnitConsumed(video.VideoStream)
	}()
	return true
}

func (g *memGateway) QueueAudioChunk(data []byte, pts int64, last bool) bool {
	g.mu.Lock()
	g.chunks++
	if last {
		g.lastChunks++
		g.audioDone = true
	}
	g.mu.Unlock()
	go func() {
		g.l.OnUnitConsumed(video.AudioStream)
		g.maybeComplete()
	}()
	return true
}

func (g *memGateway) SignalEndOfVideo() {
	g.mu.Lock()
	g.videoDone = true
	g.mu.Unlock()
	g.maybeComplete()
}

func (g *memGateway) maybeComplete() {
	g.mu.Lock()
	done := g.videoDone && g.audioDone
	n := int64(len(g.frames)) * 100
	g.mu.Unlock()
	if done {
		g.completed.Do(func() { g.l.OnCompleted(n) })
	}
}

func (g *memGateway) Release() error {
	g.mu.Lock()
	g.releases++
	g.mu.Unlock()
	return nil
}

type harness struct {
	cfg config.Config

	mu      sync.Mutex
	gateway *memGateway
	failAt  int
}

func newHarness(t *testing.T) *harness {
	cfg := config.Default()
	cfg.Width, cfg.Height = 32, 18
	cfg.OutputVideo = filepath.Join(t.TempDir(), "out", "video.mp4")
	cfg.SubmitTimeout = 10 * time.Second
	return &harness{cfg: cfg, failAt: -1}
}

func (h *harness) recorder(opts ...Option) *Recorder {
	opts = append([]Option{
		WithLogger(logging.Nop()),
		WithGatewayFactory(func(o video.FFmpegOptions) video.Gateway {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.gateway = &memGateway{opts: o, failAt: h.failAt}
			return h.gateway
		}),
	}, opts...)
	return New(h.cfg, opts...)
}

func solidProject(frames ...int) *config.Project {
	p := &config.Project{}
	for _, n := range frames {
		p.Scenes = append(p.Scenes, config.SceneSpec{Type: "solid", Color: "#204060", Frames: n})
	}
	return p
}

func collect(t *testing.T, s *result.Stream) []result.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sub := s.Subscribe()
	defer sub.Close()
	var out []result.Result
	for {
		r, err := sub.Next(ctx)
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			return out
		}
		out = append(out, r)
	}
}

func TestRecordThreeScenes(t *testing.T) {
	h := newHarness(t)
	got := collect(t, h.recorder().Record(solidProject(10, 20, 5)))

	require.Len(t, got, 1+35+1)
	assert.Equal(t, result.StateIdle, got[0].State)
	for i, r := range got[1:36] {
		assert.Equal(t, result.StateRendering, r.State)
		assert.InDelta(t, float64(i)/35, r.Progress, 1e-12)
	}
	final := got[36]
	require.Equal(t, result.StateSuccess, final.State, final.Message)
	assert.Equal(t, h.cfg.OutputVideo, final.OutputURI)
	assert.EqualValues(t, 3500, final.ByteSize)

	g := h.gateway
	assert.Len(t, g.frames, 35)
	assert.Equal(t, 1, g.lastChunks)
	assert.Equal(t, 1, g.releases)
	assert.Equal(t, int64(1_166_666), g.opts.DurationUs)
	assert.Equal(t, 30, g.opts.FPS)
	assert.DirExists(t, filepath.Dir(h.cfg.OutputVideo))
}

func TestRecordAppliesProject(t *testing.T) {
	h := newHarness(t)
	p := solidProject(4)
	p.Preset = "9:16"
	p.Transform = "flip"
	p.Encoder = "libx264"

	got := collect(t, h.recorder().Record(p))
	require.Equal(t, result.StateSuccess, got[len(got)-1].State)
	assert.Equal(t, 720, h.gateway.opts.Width)
	assert.Equal(t, 1280, h.gateway.opts.Height)
	assert.Equal(t, "vflip", h.gateway.opts.Transform.Filter())
	assert.Equal(t, "libx264", h.gateway.opts.Encoder)
}

func TestRecordInvalidScene(t *testing.T) {
	h := newHarness(t)
	p := solidProject(10)
	p.Scenes = append(p.Scenes, config.SceneSpec{Type: "hologram", Frames: 3})

	got := collect(t, h.recorder().Record(p))
	require.Len(t, got, 2)
	assert.Equal(t, result.StateError, got[1].State)
	assert.True(t, errs.Is(got[1].Err, errs.Config), "got %v", got[1].Err)
	assert.Nil(t, h.gateway, "no encoder for a broken project")
}

func TestRecordEmptyProject(t *testing.T) {
	h := newHarness(t)
	r, err := h.recorder().Record(&config.Project{}).Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, errs.Is(r.Err, errs.Config))
}

func TestRecordAudioFailure(t *testing.T) {
	h := newHarness(t)
	rec := h.recorder(WithAudioFactory(func(ctx context.Context, in audio.Input, opts ...audio.Option) (engine.AudioSource, error) {
		return nil, errs.Errorf(errs.TrackNotFound, "test", "no audio track in %s", in.Path)
	}))

	r, err := rec.Record(solidProject(5)).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result.StateError, r.State)
	assert.True(t, errs.Is(r.Err, errs.TrackNotFound))
}

func TestRecordEncoderFailure(t *testing.T) {
	h := newHarness(t)
	h.failAt = 12

	got := collect(t, h.recorder().Record(solidProject(10, 20, 5)))
	final := got[len(got)-1]
	require.Equal(t, result.StateError, final.State)
	assert.True(t, errs.Is(final.Err, errs.Encoder), "got %v", final.Err)
	assert.Len(t, got, 1+13+1)
	assert.Equal(t, 1, h.gateway.releases)
}
