package director

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/ivlev/scene2video/internal/analyzer"
)

// Director builds camera paths over a still source from detected blocks.
type Director struct {
	Width    int     // Source width in pixels
	Height   int     // Source height in pixels
	MinDwell float64 // Minimum time per block (seconds)
	MaxDwell float64 // Maximum time per block (seconds)
	MaxZoom  float64
}

// NewDirector creates a new Director with default settings
func NewDirector(width, height int) *Director {
	return &Director{
		Width:    width,
		Height:   height,
		MinDwell: 1.0,
		MaxDwell: 3.0,
		MaxZoom:  3.0,
	}
}

// Keyframes creates a camera path lasting duration seconds. Without blocks
// the camera holds the full view.
func (d *Director) Keyframes(blocks []analyzer.Block, duration float64) []Keyframe {
	if len(blocks) == 0 || duration <= 0 {
		return []Keyframe{FullView(0, d.Width, d.Height)}
	}

	intro := math.Min(1.0, duration/4)
	available := duration - 2*intro

	// Не больше блоков, чем помещается с минимальной задержкой
	if maxBlocks := int(available / d.MinDwell); maxBlocks < len(blocks) {
		if maxBlocks < 1 {
			maxBlocks = 1
		}
		blocks = largest(blocks, maxBlocks)
	}

	sorted := d.sortBlocks(blocks)
	dwell := d.calculateDwellTime(available, len(sorted))

	keyframes := []Keyframe{FullView(0, d.Width, d.Height)}
	current := intro
	for i, block := range sorted {
		keyframes = append(keyframes, Keyframe{
			Time:  current,
			Focus: fmt.Sprintf("region_%d", i+1),
			Rect:  FromImageRect(block.Rect),
			Zoom:  d.calculateZoom(block.Rect),
		})
		current += dwell
	}

	end := math.Max(current, duration-intro)
	keyframes = append(keyframes, FullView(end, d.Width, d.Height))

	if end > duration {
		scale := duration / end
		for i := range keyframes {
			keyframes[i].Time *= scale
		}
	}
	return keyframes
}

// sortBlocks sorts blocks in reading order (Western: top-to-bottom, left-to-right)
func (d *Director) sortBlocks(blocks []analyzer.Block) []analyzer.Block {
	sorted := make([]analyzer.Block, len(blocks))
	copy(sorted, blocks)

	// Threshold for "same row"
	threshold := d.Height / 50
	if threshold < 4 {
		threshold = 4
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		yDiff := sorted[i].Rect.Min.Y - sorted[j].Rect.Min.Y
		if abs(yDiff) > threshold {
			return yDiff < 0
		}
		return sorted[i].Rect.Min.X < sorted[j].Rect.Min.X
	})

	return sorted
}

func (d *Director) calculateDwellTime(available float64, blockCount int) float64 {
	dwell := available / float64(blockCount)
	if dwell < d.MinDwell {
		dwell = d.MinDwell
	}
	if dwell > d.MaxDwell {
		dwell = d.MaxDwell
	}
	return dwell
}

// calculateZoom determines zoom level to fit block in the frame
func (d *Director) calculateZoom(block image.Rectangle) float64 {
	padding := 0.9

	blockW := float64(block.Dx())
	blockH := float64(block.Dy())
	if blockW == 0 || blockH == 0 {
		return 1.0
	}

	zoom := math.Min(float64(d.Width)*padding/blockW, float64(d.Height)*padding/blockH)
	return math.Max(1.0, math.Min(zoom, d.MaxZoom))
}

func largest(blocks []analyzer.Block, n int) []analyzer.Block {
	out := make([]analyzer.Block, len(blocks))
	copy(out, blocks)
	sort.SliceStable(out, func(i, j int) bool {
		return area(out[i].Rect) > area(out[j].Rect)
	})
	return out[:n]
}

func area(r image.Rectangle) int { return r.Dx() * r.Dy() }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
