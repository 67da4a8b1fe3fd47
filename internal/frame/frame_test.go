package frame

import (
	"bytes"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUploaderPacksRows(t *testing.T) {
	u := NewMemoryUploader(nil)

	// a sub-image has a stride wider than its rows
	parent := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for i := range parent.Pix {
		parent.Pix[i] = byte(i)
	}
	sub := parent.SubImage(image.Rect(1, 0, 3, 2)).(*image.RGBA)

	h, err := u.Upload(sub)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), h.Bounds())
	assert.EqualValues(t, 1, u.Outstanding())

	var buf bytes.Buffer
	n, err := h.WriteTo(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, 16, n)
	want := append(append([]byte{}, parent.Pix[4:12]...), parent.Pix[20:28]...)
	assert.Equal(t, want, buf.Bytes())

	h.Release()
	h.Release()
	assert.EqualValues(t, 0, u.Outstanding())

	_, err = h.WriteTo(&buf)
	assert.Error(t, err)
}

func TestMemoryUploaderRejects(t *testing.T) {
	u := NewMemoryUploader(nil)

	_, err := u.Upload(nil)
	assert.Error(t, err)

	require.NoError(t, u.Close())
	_, err = u.Upload(image.NewRGBA(image.Rect(0, 0, 2, 2)))
	assert.Error(t, err)
}

func TestHandleIDsIncrease(t *testing.T) {
	u := NewMemoryUploader(nil)
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))

	a, err := u.Upload(img)
	require.NoError(t, err)
	b, err := u.Upload(img)
	require.NoError(t, err)

	assert.Less(t, a.ID(), b.ID())
	a.Release()
	b.Release()
}
