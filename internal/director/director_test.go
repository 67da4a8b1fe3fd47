package director

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scene2video/internal/analyzer"
)

func testBlocks() []analyzer.Block {
	return []analyzer.Block{
		{Rect: image.Rect(50, 150, 300, 250), Type: "text", Confidence: 0.9},
		{Rect: image.Rect(50, 50, 200, 100), Type: "text", Confidence: 0.8},
	}
}

func TestDirectorKeyframes(t *testing.T) {
	d := NewDirector(1280, 720)

	kfs := d.Keyframes(testBlocks(), 10.0)

	// intro + 2 blocks + outro
	require.Len(t, kfs, 4)
	assert.Equal(t, "full_view", kfs[0].Focus)
	assert.Equal(t, "full_view", kfs[3].Focus)
	assert.Equal(t, 50, kfs[1].Rect.Y, "reading order puts the upper block first")
	assert.Equal(t, 150, kfs[2].Rect.Y)
	assert.Equal(t, 3.0, kfs[1].Zoom)

	for i := 1; i < len(kfs); i++ {
		assert.GreaterOrEqual(t, kfs[i].Time, kfs[i-1].Time)
	}
	assert.LessOrEqual(t, kfs[len(kfs)-1].Time, 10.0)
}

func TestDirectorShortDurationKeepsLargestBlock(t *testing.T) {
	d := NewDirector(1280, 720)

	kfs := d.Keyframes(testBlocks(), 2.0)

	require.Len(t, kfs, 3)
	assert.Equal(t, Rectangle{X: 50, Y: 150, W: 250, H: 100}, kfs[1].Rect)
	assert.LessOrEqual(t, kfs[2].Time, 2.0)
}

func TestDirectorWithoutBlocks(t *testing.T) {
	kfs := NewDirector(640, 480).Keyframes(nil, 5)
	require.Len(t, kfs, 1)
	assert.Equal(t, FullView(0, 640, 480), kfs[0])
}

func TestRectangleCenter(t *testing.T) {
	x, y := Rectangle{X: 10, Y: 20, W: 100, H: 50}.Center()
	assert.Equal(t, 60.0, x)
	assert.Equal(t, 45.0, y)
}
