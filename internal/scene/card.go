package scene

import (
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/errs"
)

// Card is a static full-frame picture: title, QR end card or solid fill.
type Card struct {
	base
	img *image.RGBA
}

func newCard(name string, img *image.RGBA, frames, fps int, fade effects.Fade) *Card {
	return &Card{base: newBase(name, frames, fps, img.Rect.Size(), fade), img: img}
}

func (c *Card) GenerateFrame(local int) (image.Image, error) {
	if err := c.seek(local); err != nil {
		return nil, err
	}
	return c.faded(c.img, local), nil
}

func (c *Card) Close() error {
	c.img = nil
	return nil
}

// NewSolid fills the whole frame with one color.
func NewSolid(size image.Point, bg color.Color, frames, fps int, fade effects.Fade) *Card {
	img := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(img, img.Rect, image.NewUniform(bg), image.Point{}, draw.Src)
	return newCard("solid", img, frames, fps, fade)
}

// NewTitle draws centered text lines. The bitmap font is scaled by whole
// pixels so glyphs stay sharp.
func NewTitle(size image.Point, text string, fg, bg color.Color, frames, fps int, fade effects.Fade) *Card {
	img := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(img, img.Rect, image.NewUniform(bg), image.Point{}, draw.Src)

	block := textBlock(text, fg)
	k := max(1, min(size.X*8/10/block.Rect.Dx(), size.Y*3/10/block.Rect.Dy()))
	dst := centered(image.Pt(block.Rect.Dx()*k, block.Rect.Dy()*k), img.Rect)
	draw.NearestNeighbor.Scale(img, dst, block, block.Rect, draw.Over, nil)

	return newCard("title", img, frames, fps, fade)
}

// NewQR draws a QR code for content with an optional caption below it.
func NewQR(size image.Point, content, caption string, frames, fps int, fade effects.Fade) (*Card, error) {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, errs.E(errs.Asset, "scene.NewQR", err)
	}

	img := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(img, img.Rect, image.White, image.Point{}, draw.Src)

	side := min(size.X, size.Y) * 6 / 10
	code := q.Image(side)
	area := img.Rect
	if caption != "" {
		area.Max.Y = size.Y * 8 / 10
	}
	draw.Draw(img, centered(code.Bounds().Size(), area), code, code.Bounds().Min, draw.Src)

	if caption != "" {
		block := textBlock(caption, color.Black)
		k := max(1, min(size.X*8/10/block.Rect.Dx(), size.Y/10/block.Rect.Dy()))
		strip := image.Rect(0, area.Max.Y, size.X, size.Y)
		draw.NearestNeighbor.Scale(img, centered(image.Pt(block.Rect.Dx()*k, block.Rect.Dy()*k), strip), block, block.Rect, draw.Over, nil)
	}

	return newCard("qr", img, frames, fps, fade), nil
}

// textBlock renders lines with the 7x13 bitmap font on a transparent image.
func textBlock(text string, fg color.Color) *image.RGBA {
	face := basicfont.Face7x13
	lines := strings.Split(strings.TrimSpace(text), "\n")
	lineH := face.Metrics().Height.Ceil()
	pad := 2

	width := 1
	for _, l := range lines {
		width = max(width, font.MeasureString(face, l).Ceil())
	}
	img := image.NewRGBA(image.Rect(0, 0, width+2*pad, len(lines)*lineH+2*pad))

	d := &font.Drawer{Dst: img, Src: image.NewUniform(fg), Face: face}
	for i, l := range lines {
		w := font.MeasureString(face, l).Ceil()
		d.Dot = fixed.P(pad+(width-w)/2, pad+i*lineH+face.Metrics().Ascent.Ceil())
		d.DrawString(l)
	}
	return img
}

func centered(size image.Point, in image.Rectangle) image.Rectangle {
	x := in.Min.X + (in.Dx()-size.X)/2
	y := in.Min.Y + (in.Dy()-size.Y)/2
	return image.Rect(x, y, x+size.X, y+size.Y)
}

// ParseColor понимает #rgb, #rrggbb и #rrggbbaa. Пустая строка даёт def.
func ParseColor(s string, def color.Color) (color.Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if hex == "" {
		return def, nil
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil || len(hex) != 8 {
		return nil, errs.Errorf(errs.Config, "scene.ParseColor", "invalid color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
