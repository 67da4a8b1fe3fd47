// Package frame abstracts the upload of rasterized pixels into handles the
// encoder can consume.
package frame

import (
	"image"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ivlev/scene2video/internal/errs"
	"github.com/ivlev/scene2video/internal/system"
)

// Handle is an uploaded frame. The encoder reads its pixels and releases it.
type Handle interface {
	ID() uint64
	Bounds() image.Rectangle
	// WriteTo writes tightly packed RGBA rows.
	WriteTo(w io.Writer) (int64, error)
	Release()
}

type Uploader interface {
	Upload(img *image.RGBA) (Handle, error)
	Close() error
}

// MemoryUploader copies frames into pooled RGBA buffers.
type MemoryUploader struct {
	pool   *system.ImagePool
	nextID atomic.Uint64
	live   atomic.Int64
	closed atomic.Bool
}

func NewMemoryUploader(pool *system.ImagePool) *MemoryUploader {
	if pool == nil {
		pool = system.NewImagePool()
	}
	return &MemoryUploader{pool: pool}
}

func (u *MemoryUploader) Upload(img *image.RGBA) (Handle, error) {
	if u.closed.Load() {
		return nil, errs.Errorf(errs.Other, "frame.Upload", "uploader closed")
	}
	if img == nil || img.Rect.Empty() {
		return nil, errs.Errorf(errs.Asset, "frame.Upload", "empty frame")
	}

	b := img.Rect.Sub(img.Rect.Min)
	buf := u.pool.Get(b)
	rowBytes := b.Dx() * 4
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+rowBytes]
		copy(buf.Pix[y*buf.Stride:], src)
	}

	u.live.Add(1)
	return &memoryHandle{id: u.nextID.Add(1), img: buf, bounds: b, owner: u}, nil
}

// Outstanding reports handles not yet released.
func (u *MemoryUploader) Outstanding() int64 {
	return u.live.Load()
}

func (u *MemoryUploader) Close() error {
	u.closed.Store(true)
	return nil
}

type memoryHandle struct {
	id     uint64
	img    *image.RGBA
	bounds image.Rectangle
	owner  *MemoryUploader
	once   sync.Once
}

func (h *memoryHandle) ID() uint64              { return h.id }
func (h *memoryHandle) Bounds() image.Rectangle { return h.bounds }

func (h *memoryHandle) WriteTo(w io.Writer) (int64, error) {
	if h.img == nil {
		return 0, errs.Errorf(errs.Other, "frame.WriteTo", "handle %d released", h.id)
	}
	n, err := w.Write(h.img.Pix)
	return int64(n), err
}

func (h *memoryHandle) Release() {
	h.once.Do(func() {
		h.owner.pool.Put(h.img)
		h.img = nil
		h.owner.live.Add(-1)
	})
}
