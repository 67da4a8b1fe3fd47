package system

import (
	"strings"
	"sync"
)

// TailBuffer keeps the last Max bytes written to it. It collects ffmpeg
// stderr so an error can quote the reason without buffering the whole log.
type TailBuffer struct {
	Max int

	mu  sync.Mutex
	buf []byte
}

func NewTailBuffer(max int) *TailBuffer {
	return &TailBuffer{Max: max}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if t.Max > 0 && len(t.buf) > t.Max {
		t.buf = append(t.buf[:0], t.buf[len(t.buf)-t.Max:]...)
	}
	return len(p), nil
}

func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
