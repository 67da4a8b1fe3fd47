package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ivlev/scene2video/internal/errs"
	"github.com/ivlev/scene2video/internal/logging"
)

// DefaultPrefetchDepth is how many decoded chunks are kept ahead of the
// consumer.
const DefaultPrefetchDepth = 5

const (
	stallBackoffMax = 10 * time.Millisecond
	// a decoder that neither takes input nor produces output for this many
	// rounds is considered stuck
	defaultStallRounds = 500
)

type options struct {
	depth       int
	log         *zap.SugaredLogger
	ffmpeg      string
	ffprobe     string
	stallRounds int
}

type Option func(*options)

func WithPrefetchDepth(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.depth = n
		}
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// withStallRounds shortens the stall detection in tests.
func withStallRounds(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.stallRounds = n
		}
	}
}

// WithBinaries overrides the ffmpeg and ffprobe executables.
func WithBinaries(ffmpeg, ffprobe string) Option {
	return func(o *options) {
		if ffmpeg != "" {
			o.ffmpeg = ffmpeg
		}
		if ffprobe != "" {
			o.ffprobe = ffprobe
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{depth: DefaultPrefetchDepth, log: logging.Nop(), ffmpeg: "ffmpeg", ffprobe: "ffprobe", stallRounds: defaultStallRounds}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// ChunkSource pulls decoded chunks out of a demuxer/decoder pair and keeps
// up to depth of them decoded ahead. It is used by one goroutine at a time.
type ChunkSource struct {
	demux  Demuxer
	dec    Decoder
	format Format
	depth  int
	stall  int
	log    *zap.SugaredLogger

	fifo      []Chunk
	inputDone bool
	eos       bool
	lastPTS   int64
	emitted   int

	releaseOnce sync.Once
	releaseErr  error
}

// NewChunkSource selects the audio track and configures the decoder. On
// failure both are released before returning.
func NewChunkSource(demux Demuxer, dec Decoder, opts ...Option) (*ChunkSource, error) {
	o := buildOptions(opts)
	s := &ChunkSource{
		demux:   demux,
		dec:     dec,
		depth:   o.depth,
		stall:   o.stallRounds,
		log:     o.log,
		lastPTS: -1,
	}

	format, err := demux.SelectAudioTrack()
	if err != nil {
		s.Release()
		if errs.KindOf(err) == errs.Other {
			err = errs.E(errs.TrackNotFound, "audio.SelectAudioTrack", err)
		}
		return nil, err
	}
	if err := dec.Configure(format); err != nil {
		s.Release()
		return nil, errs.E(errs.Codec, "audio.Configure", err)
	}
	s.format = format
	s.log.Debugw("audio track selected", "format", format.String(), "prefetch", s.depth)
	return s, nil
}

// Format is the format of the selected input track.
func (s *ChunkSource) Format() Format { return s.format }

// Next returns the oldest decoded chunk. It runs a prefetch cycle when the
// queue is empty and returns ErrEndOfStream once the decoder is drained.
func (s *ChunkSource) Next(ctx context.Context) (Chunk, error) {
	if c, ok := s.pop(); ok {
		return c, nil
	}
	if s.eos {
		return Chunk{}, ErrEndOfStream
	}
	if err := s.prefetch(ctx); err != nil {
		return Chunk{}, err
	}
	if c, ok := s.pop(); ok {
		return c, nil
	}
	return Chunk{}, ErrEndOfStream
}

func (s *ChunkSource) pop() (Chunk, bool) {
	if len(s.fifo) == 0 {
		return Chunk{}, false
	}
	c := s.fifo[0]
	s.fifo[0] = Chunk{}
	s.fifo = s.fifo[1:]
	s.emitted++
	return c, true
}

// prefetch feeds input until the decoder is full or the demuxer is
// exhausted, then drains ready output. It repeats until the queue holds
// depth chunks or the decoder reported end of stream.
func (s *ChunkSource) prefetch(ctx context.Context) error {
	idle := 0
	for len(s.fifo) < s.depth && !s.eos {
		if err := errs.FromContext("audio.prefetch", ctx); err != nil {
			return err
		}

		fed, err := s.feed()
		if err != nil {
			return err
		}
		drained, err := s.drain()
		if err != nil {
			return err
		}

		if fed || drained {
			idle = 0
			continue
		}
		idle++
		if idle > s.stall {
			return errs.Errorf(errs.Codec, "audio.prefetch", "decoder stalled after %d chunks", s.emitted)
		}
		if err := sleepCtx(ctx, min(time.Duration(idle)*time.Millisecond, stallBackoffMax)); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChunkSource) feed() (bool, error) {
	fed := false
	for !s.inputDone && s.dec.CanQueueInput() {
		sample, err := s.demux.ReadSample()
		if errors.Is(err, io.EOF) {
			if err := s.dec.QueueEndOfStream(); err != nil {
				return fed, errs.E(errs.Codec, "audio.QueueEndOfStream", err)
			}
			s.inputDone = true
			return true, nil
		}
		if err != nil {
			return fed, wrapCodec("audio.ReadSample", err)
		}
		if err := s.dec.QueueInput(sample); err != nil {
			return fed, errs.E(errs.Codec, "audio.QueueInput", err)
		}
		fed = true
	}
	return fed, nil
}

func (s *ChunkSource) drain() (bool, error) {
	drained := false
	for len(s.fifo) < s.depth {
		c, ready, err := s.dec.DequeueOutput()
		if errors.Is(err, ErrEndOfStream) {
			s.eos = true
			return true, nil
		}
		if err != nil {
			return drained, wrapCodec("audio.DequeueOutput", err)
		}
		if !ready {
			return drained, nil
		}
		if c.PTS < s.lastPTS {
			return drained, errs.Errorf(errs.Codec, "audio.DequeueOutput", "timestamp went backwards: %d after %d", c.PTS, s.lastPTS)
		}
		s.lastPTS = c.PTS
		if c.Size == 0 {
			c.Size = len(c.Data)
		}
		s.fifo = append(s.fifo, c)
		drained = true
	}
	return drained, nil
}

// Release closes the decoder and the demuxer once and drops queued chunks.
func (s *ChunkSource) Release() error {
	s.releaseOnce.Do(func() {
		if s.dec != nil {
			if err := s.dec.Close(); err != nil {
				s.releaseErr = err
			}
		}
		if s.demux != nil {
			if err := s.demux.Close(); err != nil && s.releaseErr == nil {
				s.releaseErr = err
			}
		}
		s.fifo = nil
	})
	return s.releaseErr
}

func wrapCodec(op string, err error) error {
	if errs.KindOf(err) != errs.Other {
		return err
	}
	return errs.E(errs.Codec, op, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errs.E(errs.Cancelled, "audio.prefetch", ctx.Err())
	case <-t.C:
		return nil
	}
}
