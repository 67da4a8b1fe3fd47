package director

import "image"

// Keyframe represents a camera position at a specific time
type Keyframe struct {
	Time  float64   `yaml:"time"`            // Time offset in seconds
	Focus string    `yaml:"focus,omitempty"` // Description of focus region
	Rect  Rectangle `yaml:"rect"`            // Target rectangle in source pixels
	Zoom  float64   `yaml:"zoom"`            // Zoom level (1.0 = no zoom)
}

// Rectangle represents a bounding box
type Rectangle struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	W int `yaml:"w"`
	H int `yaml:"h"`
}

func FromImageRect(r image.Rectangle) Rectangle {
	return Rectangle{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

func (r Rectangle) Center() (float64, float64) {
	return float64(r.X) + float64(r.W)/2, float64(r.Y) + float64(r.H)/2
}

// FullView is the keyframe that shows the whole source.
func FullView(t float64, w, h int) Keyframe {
	return Keyframe{Time: t, Focus: "full_view", Rect: Rectangle{W: w, H: h}, Zoom: 1.0}
}
