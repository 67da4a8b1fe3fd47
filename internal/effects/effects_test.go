package effects

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransform(t *testing.T) {
	tests := []struct {
		in     string
		want   Transform
		filter string
	}{
		{"", TransformNone, ""},
		{"none", TransformNone, ""},
		{"rotate180-mirror", TransformRotate180Mirror, "vflip"},
		{" Rotate180 ", TransformRotate180, "hflip,vflip"},
		{"mirror", TransformMirror, "hflip"},
		{"flip", TransformFlip, "vflip"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTransform(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.filter, got.Filter())
		})
	}

	_, err := ParseTransform("spin")
	assert.Error(t, err)
}

func TestFadeOpacity(t *testing.T) {
	f := Fade{In: 1, Out: 0.5}
	assert.InDelta(t, 0.0, f.Opacity(0, 4), 1e-9)
	assert.InDelta(t, 0.5, f.Opacity(0.5, 4), 1e-9)
	assert.InDelta(t, 1.0, f.Opacity(2, 4), 1e-9)
	assert.InDelta(t, 0.5, f.Opacity(3.75, 4), 1e-9)
	assert.InDelta(t, 0.0, f.Opacity(5, 4), 1e-9)
	assert.False(t, Fade{}.Enabled())
}

func TestApply(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	src.Pix[3] = 255

	assert.Same(t, image.Image(src), Apply(src, 1))

	out := Apply(src, 0.5).(*image.RGBA)
	r, _, _, a := out.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), a)
	assert.InDelta(t, 100, float64(r>>8), 2)
	assert.Equal(t, uint8(200), src.Pix[0])

	black := Apply(src, 0).(*image.RGBA)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, black.RGBAAt(1, 1))
}
