package engine

import (
	"sync"

	"github.com/ivlev/scene2video/internal/errs"
	"github.com/ivlev/scene2video/internal/video"
)

// signals turns gateway callbacks into channels. A consumed channel holds at
// most one pending signal, matching one unit in flight per stream.
type signals struct {
	video chan struct{}
	audio chan struct{}

	done  chan struct{}
	once  sync.Once
	bytes int64
	err   error
}

func newSignals() *signals {
	return &signals{
		video: make(chan struct{}, 1),
		audio: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (s *signals) OnUnitConsumed(st video.Stream) {
	ch := s.video
	if st == video.AudioStream {
		ch = s.audio
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *signals) OnCompleted(bytes int64) {
	s.once.Do(func() {
		s.bytes = bytes
		close(s.done)
	})
}

func (s *signals) OnError(err error) {
	if err == nil {
		err = errs.Errorf(errs.Encoder, "engine.OnError", "encoder failed without a reason")
	}
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

// errEncoderFinished is returned by waits that were cut short by a
// successful completion.
var errEncoderFinished = errs.Errorf(errs.Encoder, "engine", "encoder finished before the end of the stream")

// terminalErr is valid after done is closed.
func (s *signals) terminalErr() error {
	if s.err != nil {
		return s.err
	}
	return errEncoderFinished
}
