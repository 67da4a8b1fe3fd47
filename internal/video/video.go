// Package video defines the push-based encoder sink and its ffmpeg backend.
package video

import (
	"context"
	"sync"

	"github.com/ivlev/scene2video/internal/frame"
)

type Stream int

const (
	VideoStream Stream = iota
	AudioStream
)

func (s Stream) String() string {
	if s == AudioStream {
		return "audio"
	}
	return "video"
}

// Listener receives the encoder's asynchronous signals. OnUnitConsumed
// fires once per accepted unit; OnCompleted or OnError fires once.
type Listener interface {
	OnUnitConsumed(s Stream)
	OnCompleted(bytes int64)
	OnError(err error)
}

// Gateway accepts at most one in-flight unit per stream. A Queue call made
// before the previous unit of the same stream was consumed returns false.
type Gateway interface {
	Start(ctx context.Context, l Listener) error
	QueueVideoFrame(h frame.Handle, ptsUs int64) bool
	QueueAudioChunk(data []byte, ptsUs int64, last bool) bool
	// SignalEndOfVideo closes the video input after the in-flight frame.
	SignalEndOfVideo()
	Release() error
}

type unit struct {
	handle frame.Handle
	data   []byte
	pts    int64
	last   bool
}

// slot is the single-unit mailbox of one stream.
type slot struct {
	mu     sync.Mutex
	busy   bool
	closed bool
	ch     chan unit
}

func newSlot() *slot {
	return &slot{ch: make(chan unit, 1)}
}

func (s *slot) offer(u unit) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy || s.closed {
		return false
	}
	s.busy = true
	s.ch <- u
	return true
}

func (s *slot) consumed() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *slot) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
