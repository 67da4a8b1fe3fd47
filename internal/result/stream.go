package result

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ivlev/scene2video/internal/errs"
	"github.com/ivlev/scene2video/internal/logging"
)

// DefaultGraceWindow keeps the producer alive across a quick resubscribe.
const DefaultGraceWindow = 300 * time.Millisecond

// Producer does the work and reports through emit. It must return when ctx
// is cancelled.
type Producer func(ctx context.Context, emit func(Result))

// Stream runs its producer once, on the first Subscribe, and replays the
// latest value to every new subscriber. When the last subscriber leaves
// and nobody returns within the grace window, the producer is cancelled.
//
// Emitted values are filtered: Rendering progress must be strictly
// increasing and below 1, and nothing passes after the terminal value.
type Stream struct {
	producer Producer
	grace    time.Duration
	log      *zap.SugaredLogger

	mu       sync.Mutex
	last     Result
	subs     map[*Subscription]struct{}
	started  bool
	terminal bool
	cancel   context.CancelFunc
	timer    *time.Timer
	done     chan struct{}
}

func NewStream(p Producer, grace time.Duration, log *zap.SugaredLogger) *Stream {
	if log == nil {
		log = logging.Nop()
	}
	if grace < 0 {
		grace = 0
	}
	return &Stream{
		producer: p,
		grace:    grace,
		log:      log,
		last:     Idle(),
		subs:     make(map[*Subscription]struct{}),
		done:     make(chan struct{}),
	}
}

// Subscribe delivers the latest value first, then every accepted value.
func (s *Stream) Subscribe() *Subscription {
	sub := &Subscription{stream: s, notify: make(chan struct{}, 1)}

	s.mu.Lock()
	defer s.mu.Unlock()
	sub.push(s.last)
	if s.terminal {
		return sub
	}
	s.subs[sub] = struct{}{}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.started {
		s.started = true
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go s.run(ctx)
	}
	return sub
}

// Last returns the latest accepted value.
func (s *Stream) Last() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Done is closed once the terminal value was emitted.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Wait subscribes and blocks until the terminal value.
func (s *Stream) Wait(ctx context.Context) (Result, error) {
	sub := s.Subscribe()
	defer sub.Close()
	for {
		r, err := sub.Next(ctx)
		if err != nil {
			return Result{}, err
		}
		if r.Terminal() {
			return r, nil
		}
	}
}

func (s *Stream) run(ctx context.Context) {
	defer s.cancel()
	s.producer(ctx, s.emit)

	s.mu.Lock()
	finished := s.terminal
	s.mu.Unlock()
	if finished {
		return
	}
	if err := ctx.Err(); err != nil {
		s.emit(Failure(errs.E(errs.Cancelled, "result.Stream", err)))
		return
	}
	s.emit(Failure(errs.Errorf(errs.Other, "result.Stream", "producer returned without a result")))
}

func (s *Stream) emit(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	if r.State == StateRendering {
		if r.Progress < 0 || r.Progress >= 1 {
			return
		}
		if s.last.State == StateRendering && r.Progress <= s.last.Progress {
			return
		}
	}

	s.last = r
	for sub := range s.subs {
		sub.push(r)
	}
	if r.Terminal() {
		s.terminal = true
		s.subs = nil
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		close(s.done)
	}
}

func (s *Stream) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; !ok {
		return
	}
	delete(s.subs, sub)
	if len(s.subs) == 0 && s.started && !s.terminal {
		s.timer = time.AfterFunc(s.grace, s.expire)
	}
}

func (s *Stream) expire() {
	s.mu.Lock()
	if len(s.subs) > 0 || s.terminal {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	s.log.Infow("no subscribers after grace window, cancelling", "grace", s.grace)
	cancel()
}

// Subscription buffers values for one reader; a slow reader never blocks
// the producer.
type Subscription struct {
	stream *Stream
	notify chan struct{}

	mu     sync.Mutex
	queue  []Result
	ended  bool
	closed bool
}

func (sub *Subscription) push(r Result) {
	sub.mu.Lock()
	if !sub.closed {
		sub.queue = append(sub.queue, r)
		if r.Terminal() {
			sub.ended = true
		}
	}
	sub.mu.Unlock()
	select {
	case sub.notify <- struct{}{}:
	default:
	}
}

// Next returns the next value, or io.EOF after the terminal value was read
// or the subscription was closed.
func (sub *Subscription) Next(ctx context.Context) (Result, error) {
	for {
		sub.mu.Lock()
		if len(sub.queue) > 0 {
			r := sub.queue[0]
			sub.queue = sub.queue[1:]
			sub.mu.Unlock()
			return r, nil
		}
		if sub.ended || sub.closed {
			sub.mu.Unlock()
			return Result{}, io.EOF
		}
		sub.mu.Unlock()

		select {
		case <-sub.notify:
		case <-ctx.Done():
			return Result{}, errs.E(errs.Cancelled, "result.Next", ctx.Err())
		}
	}
}

func (sub *Subscription) Close() {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.closed = true
	sub.queue = nil
	sub.mu.Unlock()
	sub.stream.unsubscribe(sub)
	select {
	case sub.notify <- struct{}{}:
	default:
	}
}
