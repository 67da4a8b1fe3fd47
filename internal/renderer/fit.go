package renderer

import "image"

// FitInside places content of size content into a canvas of size canvas,
// keeping the content aspect ratio and centering it. Wider content fills the
// canvas width, taller content fills its height. The scaled side is rounded
// to the nearest pixel, offsets are floor-rounded. A zero dimension on either
// side yields the full canvas.
func FitInside(content, canvas image.Point) image.Rectangle {
	full := image.Rect(0, 0, canvas.X, canvas.Y)
	if content.X <= 0 || content.Y <= 0 || canvas.X <= 0 || canvas.Y <= 0 {
		return full
	}

	cw, ch := int64(content.X), int64(content.Y)
	vw, vh := int64(canvas.X), int64(canvas.Y)

	// content_aspect > canvas_aspect без деления
	w, h := vw, vh
	if cw*vh > vw*ch {
		h = roundDiv(vw*ch, cw)
	} else {
		w = roundDiv(vh*cw, ch)
	}
	w = max(1, min(w, vw))
	h = max(1, min(h, vh))

	left := int((vw - w) / 2)
	top := int((vh - h) / 2)
	return image.Rect(left, top, left+int(w), top+int(h))
}

func roundDiv(a, b int64) int64 {
	return (2*a + b) / (2 * b)
}
