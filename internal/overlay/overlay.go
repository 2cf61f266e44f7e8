// Package overlay renders numbered set-of-mark annotations onto a page
// screenshot so a vision-capable reasoning service can refer to elements by
// ordinal instead of coordinates.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	_ "image/jpeg"

	"intentlens-mcp-server/internal/element"
)

// Mark pairs a fused-list descriptor with its 1-based ordinal at overlay time.
// Ordinals are scoped to a single grounding call and never persisted.
type Mark struct {
	Ordinal    int                `json:"ordinal"`
	Descriptor element.Descriptor `json:"descriptor"`
}

// AssignMarks projects the markable subset of the fused list into marks.
// Ordinals come from the position in the original fused list, not from any
// re-sort, so rendered numbers stay synchronized with the textual element
// list built from the same slice. Descriptors without a positive-area rect
// are skipped.
func AssignMarks(fused []element.Descriptor) []Mark {
	marks := make([]Mark, 0, len(fused))
	for i, d := range fused {
		if !d.Markable() {
			continue
		}
		marks = append(marks, Mark{Ordinal: i + 1, Descriptor: d})
	}
	return marks
}

var (
	boxBorder = color.RGBA{R: 220, G: 30, B: 30, A: 255}
	boxFill   = color.RGBA{R: 220, G: 30, B: 30, A: 48}
	labelText = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Render draws every mark onto a copy of the base raster image and returns
// the annotated PNG. The base image is never mutated. A base image that
// cannot be decoded is a fatal error for the call: no overlay or prompt can
// be produced without it.
func Render(baseImage []byte, marks []Mark) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(baseImage))
	if err != nil {
		return nil, fmt.Errorf("decode base image: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	for _, m := range marks {
		r := m.Descriptor.Rect
		x1, y1 := int(r.X), int(r.Y)
		x2, y2 := int(r.X+r.Width), int(r.Y+r.Height)

		if x1 < 0 {
			x1 = 0
		}
		if y1 < 0 {
			y1 = 0
		}
		if x2 > bounds.Max.X {
			x2 = bounds.Max.X
		}
		if y2 > bounds.Max.Y {
			y2 = bounds.Max.Y
		}
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		fillRect(rgba, x1, y1, x2, y2, boxFill)
		drawRect(rgba, x1, y1, x2, y2, boxBorder, 2)
		drawLabel(rgba, x1, y1, m.Ordinal, boxBorder)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, fmt.Errorf("encode overlay: %w", err)
	}
	return buf.Bytes(), nil
}

// fillRect blends a translucent wash over the box interior.
func fillRect(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	src := image.NewUniform(c)
	draw.Draw(img, image.Rect(x1, y1, x2, y2), src, image.Point{}, draw.Over)
}

// drawRect draws an opaque rectangle outline.
func drawRect(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA, thickness int) {
	bounds := img.Bounds()
	for t := 0; t < thickness; t++ {
		for x := x1; x < x2; x++ {
			if y1+t >= 0 && y1+t < bounds.Max.Y && x >= 0 && x < bounds.Max.X {
				img.SetRGBA(x, y1+t, c)
			}
			if y2-1-t >= 0 && y2-1-t < bounds.Max.Y && x >= 0 && x < bounds.Max.X {
				img.SetRGBA(x, y2-1-t, c)
			}
		}
		for y := y1; y < y2; y++ {
			if x1+t >= 0 && x1+t < bounds.Max.X && y >= 0 && y < bounds.Max.Y {
				img.SetRGBA(x1+t, y, c)
			}
			if x2-1-t >= 0 && x2-1-t < bounds.Max.X && y >= 0 && y < bounds.Max.Y {
				img.SetRGBA(x2-1-t, y, c)
			}
		}
	}
}

const (
	charWidth  = 6
	charHeight = 9
	labelPad   = 2
)

// drawLabel draws a small filled badge containing "[ordinal]" at the box's
// top-left corner, flipped to sit just inside the box when placing it above
// would clip off the top edge of the image.
func drawLabel(img *image.RGBA, x, y, ordinal int, bg color.RGBA) {
	bounds := img.Bounds()
	text := fmt.Sprintf("[%d]", ordinal)

	badgeWidth := len(text)*charWidth + labelPad*2
	badgeHeight := charHeight + labelPad*2

	badgeX := x
	badgeY := y - badgeHeight
	if badgeY < 0 {
		badgeY = y // inside if no room above
	}

	opaque := bg
	opaque.A = 255
	for by := badgeY; by < badgeY+badgeHeight && by < bounds.Max.Y; by++ {
		for bx := badgeX; bx < badgeX+badgeWidth && bx < bounds.Max.X; bx++ {
			if bx >= 0 && by >= 0 {
				img.SetRGBA(bx, by, opaque)
			}
		}
	}

	for i, ch := range text {
		drawGlyph(img, badgeX+labelPad+i*charWidth, badgeY+labelPad, ch, labelText)
	}
}

// 5x7 bitmap font covering the digits and square brackets used in labels.
var glyphPatterns = map[rune][7]uint8{
	'0': {0x0E, 0x11, 0x13, 0x15, 0x19, 0x11, 0x0E},
	'1': {0x04, 0x0C, 0x04, 0x04, 0x04, 0x04, 0x0E},
	'2': {0x0E, 0x11, 0x01, 0x02, 0x04, 0x08, 0x1F},
	'3': {0x1F, 0x02, 0x04, 0x02, 0x01, 0x11, 0x0E},
	'4': {0x02, 0x06, 0x0A, 0x12, 0x1F, 0x02, 0x02},
	'5': {0x1F, 0x10, 0x1E, 0x01, 0x01, 0x11, 0x0E},
	'6': {0x06, 0x08, 0x10, 0x1E, 0x11, 0x11, 0x0E},
	'7': {0x1F, 0x01, 0x02, 0x04, 0x08, 0x08, 0x08},
	'8': {0x0E, 0x11, 0x11, 0x0E, 0x11, 0x11, 0x0E},
	'9': {0x0E, 0x11, 0x11, 0x0F, 0x01, 0x02, 0x0C},
	'[': {0x0E, 0x08, 0x08, 0x08, 0x08, 0x08, 0x0E},
	']': {0x0E, 0x02, 0x02, 0x02, 0x02, 0x02, 0x0E},
}

func drawGlyph(img *image.RGBA, x, y int, ch rune, c color.RGBA) {
	pattern, ok := glyphPatterns[ch]
	if !ok {
		return
	}
	bounds := img.Bounds()
	for row := 0; row < 7; row++ {
		for col := 0; col < 5; col++ {
			if pattern[row]&(1<<(4-col)) != 0 {
				px := x + col
				py := y + row
				if px >= 0 && px < bounds.Max.X && py >= 0 && py < bounds.Max.Y {
					img.SetRGBA(px, py, c)
				}
			}
		}
	}
}
