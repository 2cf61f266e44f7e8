package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"intentlens-mcp-server/internal/element"
)

func basePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestAssignMarks(t *testing.T) {
	r := func(w, h float64) *element.Rect {
		return &element.Rect{X: 10, Y: 10, Width: w, Height: h}
	}

	fused := []element.Descriptor{
		{Selector: "#a", Rect: r(50, 20)},
		{Selector: "#b"},              // no rect: listed in prompt, never drawn
		{Selector: "#c", Rect: r(0, 20)}, // zero width: degenerate, skipped
		{Selector: "#d", Rect: r(30, 0)}, // zero height: degenerate, skipped
		{Selector: "#e", Rect: r(40, 40)},
	}

	marks := AssignMarks(fused)
	if len(marks) != 2 {
		t.Fatalf("expected 2 marks, got %d", len(marks))
	}
	// Ordinals follow fused-list position, not mark position.
	if marks[0].Ordinal != 1 || marks[0].Descriptor.Selector != "#a" {
		t.Errorf("first mark: expected ordinal 1 for #a, got %d for %s", marks[0].Ordinal, marks[0].Descriptor.Selector)
	}
	if marks[1].Ordinal != 5 || marks[1].Descriptor.Selector != "#e" {
		t.Errorf("second mark: expected ordinal 5 for #e, got %d for %s", marks[1].Ordinal, marks[1].Descriptor.Selector)
	}
}

func TestAssignMarksStable(t *testing.T) {
	fused := []element.Descriptor{
		{Selector: "#a", Rect: &element.Rect{Width: 10, Height: 10}},
		{Selector: "#b", Rect: &element.Rect{X: 20, Width: 10, Height: 10}},
	}
	first := AssignMarks(fused)
	second := AssignMarks(fused)
	for i := range first {
		if first[i].Ordinal != second[i].Ordinal || first[i].Descriptor.Selector != second[i].Descriptor.Selector {
			t.Fatalf("ordinal assignment not stable at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestRenderDrawsMarks(t *testing.T) {
	base := basePNG(t, 200, 120)
	marks := AssignMarks([]element.Descriptor{
		{Selector: "#hero", Rect: &element.Rect{X: 40, Y: 30, Width: 80, Height: 40}},
	})

	out, err := Render(base, marks)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(out, base) {
		t.Error("expected annotated image to differ from base")
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	// Border pixel at the box's top edge must be the opaque border color.
	r, g, b, _ := img.At(60, 30).RGBA()
	if r>>8 != 220 || g>>8 != 30 || b>>8 != 30 {
		t.Errorf("expected border color at (60,30), got (%d,%d,%d)", r>>8, g>>8, b>>8)
	}
	// Interior pixel must be tinted, not the untouched base gray.
	r, g, b, _ = img.At(80, 50).RGBA()
	if r>>8 == 200 && g>>8 == 200 && b>>8 == 200 {
		t.Error("expected translucent fill inside the box")
	}
}

func TestRenderDoesNotMutateBase(t *testing.T) {
	base := basePNG(t, 100, 100)
	snapshot := make([]byte, len(base))
	copy(snapshot, base)

	_, err := Render(base, AssignMarks([]element.Descriptor{
		{Selector: "#x", Rect: &element.Rect{X: 5, Y: 5, Width: 20, Height: 20}},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(base, snapshot) {
		t.Error("base image bytes were mutated")
	}
}

func TestRenderLabelFlipsInsideAtTopEdge(t *testing.T) {
	base := basePNG(t, 100, 100)
	// Box starts at y=0: the badge cannot sit above it and must render inside.
	out, err := Render(base, []Mark{{
		Ordinal:    1,
		Descriptor: element.Descriptor{Selector: "#top", Rect: &element.Rect{X: 10, Y: 0, Width: 60, Height: 30}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	// Badge background is opaque border color just inside the top-left corner.
	r, g, b, _ := img.At(12, 2).RGBA()
	if r>>8 != 220 || g>>8 != 30 || b>>8 != 30 {
		t.Errorf("expected badge inside box at top edge, got (%d,%d,%d)", r>>8, g>>8, b>>8)
	}
}

func TestRenderRejectsUndecodableImage(t *testing.T) {
	_, err := Render([]byte("definitely not an image"), nil)
	if err == nil {
		t.Fatal("expected decode error for garbage input")
	}
}
