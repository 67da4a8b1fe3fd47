package analyzer

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// ContrastDetector implements edge-based region detection using Sobel operator.
// Detection runs on a copy scaled down to MaxSide; rectangles are mapped back
// to source coordinates.
type ContrastDetector struct {
	MinBlockArea  int     // Minimum area in source pixels²
	EdgeThreshold float64 // Gradient magnitude threshold
	MaxSide       int     // Analysis resolution, 0 = source resolution
}

// NewContrastDetector creates a new contrast-based detector with default settings
func NewContrastDetector() *ContrastDetector {
	return &ContrastDetector{
		MinBlockArea:  500,
		EdgeThreshold: 30.0,
		MaxSide:       512,
	}
}

// Detect finds regions of interest using edge detection and morphology
func (d *ContrastDetector) Detect(img image.Image) ([]Block, error) {
	src := img.Bounds()
	if src.Empty() {
		return nil, nil
	}

	gray, scale := d.prepare(img)
	edges := sobel(gray, d.EdgeThreshold)
	dilated := dilate(edges, 5, 2)
	contours := findContours(dilated)

	blocks := []Block{}
	for _, r := range contours {
		rect := image.Rect(
			src.Min.X+int(math.Floor(float64(r.Min.X)*scale)),
			src.Min.Y+int(math.Floor(float64(r.Min.Y)*scale)),
			src.Min.X+int(math.Ceil(float64(r.Max.X)*scale)),
			src.Min.Y+int(math.Ceil(float64(r.Max.Y)*scale)),
		).Intersect(src)
		if rect.Dx()*rect.Dy() < d.MinBlockArea {
			continue
		}
		blocks = append(blocks, Block{
			Rect:       rect,
			Type:       classify(rect),
			Confidence: 0.7,
		})
	}

	return blocks, nil
}

// prepare converts to grayscale at analysis resolution. The returned factor
// maps analysis coordinates to source coordinates.
func (d *ContrastDetector) prepare(img image.Image) (*image.Gray, float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := 1.0
	if d.MaxSide > 0 && (w > d.MaxSide || h > d.MaxSide) {
		scale = float64(max(w, h)) / float64(d.MaxSide)
		w = max(1, int(float64(w)/scale))
		h = max(1, int(float64(h)/scale))
	}
	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, b, draw.Src, nil)
	return gray, float64(b.Dx()) / float64(w)
}

func classify(r image.Rectangle) string {
	ratio := float64(r.Dx()) / float64(r.Dy())
	switch {
	case ratio > 4:
		return "text"
	case ratio > 0.5 && ratio < 2:
		return "image"
	default:
		return "unknown"
	}
}

var (
	sobelX = [3][3]int{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}
	sobelY = [3][3]int{{-1, -2, -1}, {0, 0, 0}, {1, 2, 1}}
)

// sobel returns a binary edge map (0 or 255).
func sobel(gray *image.Gray, threshold float64) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	edges := image.NewGray(gray.Rect)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var sumX, sumY int
			for ky := -1; ky <= 1; ky++ {
				row := (y + ky) * gray.Stride
				for kx := -1; kx <= 1; kx++ {
					p := int(gray.Pix[row+x+kx])
					sumX += p * sobelX[ky+1][kx+1]
					sumY += p * sobelY[ky+1][kx+1]
				}
			}
			if math.Sqrt(float64(sumX*sumX+sumY*sumY)) > threshold {
				edges.Pix[y*edges.Stride+x] = 255
			}
		}
	}

	return edges
}

// dilate performs morphological dilation to connect nearby edges
func dilate(img *image.Gray, kernelSize, iterations int) *image.Gray {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	half := kernelSize / 2
	result := img

	for iter := 0; iter < iterations; iter++ {
		temp := image.NewGray(img.Rect)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var maxVal uint8
			kernel:
				for ky := max(0, y-half); ky <= min(h-1, y+half); ky++ {
					for kx := max(0, x-half); kx <= min(w-1, x+half); kx++ {
						if v := result.Pix[ky*result.Stride+kx]; v > maxVal {
							maxVal = v
							if v == 255 {
								break kernel
							}
						}
					}
				}
				temp.Pix[y*temp.Stride+x] = maxVal
			}
		}
		result = temp
	}

	return result
}

// findContours finds bounding rectangles of connected white regions
func findContours(img *image.Gray) []image.Rectangle {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	visited := make([]bool, w*h)
	contours := []image.Rectangle{}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if img.Pix[y*img.Stride+x] > 128 && !visited[y*w+x] {
				contours = append(contours, floodFill(img, visited, x, y))
			}
		}
	}

	return contours
}

// floodFill performs flood fill and returns bounding rectangle
func floodFill(img *image.Gray, visited []bool, startX, startY int) image.Rectangle {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	minX, minY, maxX, maxY := startX, startY, startX, startY

	stack := []image.Point{{X: startX, Y: startY}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= w || p.Y < 0 || p.Y >= h {
			continue
		}
		i := p.Y*w + p.X
		if visited[i] || img.Pix[p.Y*img.Stride+p.X] <= 128 {
			continue
		}
		visited[i] = true

		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)

		stack = append(stack,
			image.Point{X: p.X + 1, Y: p.Y},
			image.Point{X: p.X - 1, Y: p.Y},
			image.Point{X: p.X, Y: p.Y + 1},
			image.Point{X: p.X, Y: p.Y - 1},
		)
	}

	return image.Rect(minX, minY, maxX+1, maxY+1)
}
