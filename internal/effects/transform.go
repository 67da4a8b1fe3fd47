package effects

import (
	"fmt"
	"strings"
)

// Transform is the orientation correction applied to every frame before
// encoding.
type Transform string

const (
	TransformNone Transform = "none"
	// TransformRotate180Mirror rotates 180° about Z and then mirrors X.
	// The result is a vertical flip.
	TransformRotate180Mirror Transform = "rotate180-mirror"
	TransformRotate180       Transform = "rotate180"
	TransformMirror          Transform = "mirror"
	TransformFlip            Transform = "flip"
)

func ParseTransform(s string) (Transform, error) {
	switch t := Transform(strings.ToLower(strings.TrimSpace(s))); t {
	case "", TransformNone:
		return TransformNone, nil
	case TransformRotate180Mirror, TransformRotate180, TransformMirror, TransformFlip:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transform %q", s)
	}
}

// Filter returns the ffmpeg -vf chain for the transform, or "" when the
// frames pass through unchanged.
func (t Transform) Filter() string {
	switch t {
	case TransformRotate180Mirror, TransformFlip:
		return "vflip"
	case TransformRotate180:
		return "hflip,vflip"
	case TransformMirror:
		return "hflip"
	default:
		return ""
	}
}
