package element

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type stubExtractor struct {
	nodes []AxNode
	err   error
	calls int
}

func (s *stubExtractor) ExtractTree(ctx context.Context, tabID string) ([]AxNode, error) {
	s.calls++
	return s.nodes, s.err
}

func (s *stubExtractor) ClearCache(tabID string) {}

func rect(x, y, w, h float64) *Rect {
	return &Rect{X: x, Y: y, Width: w, Height: h}
}

func TestGatherDOMOnly(t *testing.T) {
	f := NewFuser(nil)

	dom := []Descriptor{
		{Selector: "#hero", Role: "button", Name: "Hero", Rect: rect(0, 0, 100, 40)},
		{Selector: ".cta", Role: "element", Name: "cta"},
		{Selector: ""}, // empty selector must be dropped
	}

	fused := f.Gather(context.Background(), GatherInput{DOMElements: dom})
	if len(fused) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(fused))
	}
	if fused[0].Selector != "#hero" || fused[1].Selector != ".cta" {
		t.Errorf("DOM order not preserved: %v", fused)
	}
	for _, d := range fused {
		if d.Source != SourceDOM {
			t.Errorf("expected dom_database source, got %s", d.Source)
		}
	}
}

func TestGatherNoDuplicateSelectors(t *testing.T) {
	f := NewFuser(&stubExtractor{nodes: []AxNode{
		{Selector: "#hero", Role: "button", Name: "Hero button"},
		{Selector: "#side", Role: "navigation", Name: "Sidebar"},
		{Selector: "#side", Role: "navigation", Name: "Sidebar"},
	}})

	in := GatherInput{
		TabID: "tab-1",
		DOMElements: []Descriptor{
			{Selector: "#hero", Role: "element", Name: "Hero"},
			{Selector: "#hero", Role: "button", Name: "Hero"},
		},
		Code: &GeneratedCode{Variations: []CodeVariation{
			{JS: `document.querySelector('#hero'); document.querySelector('.cta');`},
		}},
	}

	fused := f.Gather(context.Background(), in)

	seen := make(map[string]bool)
	for _, d := range fused {
		if seen[d.Selector] {
			t.Fatalf("duplicate selector in fused output: %s", d.Selector)
		}
		seen[d.Selector] = true
	}
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused descriptors (#hero, #side, .cta), got %d: %v", len(fused), fused)
	}
}

func TestGatherAccessibilityEnrichment(t *testing.T) {
	tests := []struct {
		name         string
		dom          Descriptor
		node         AxNode
		wantRole     string
		wantName     string
		wantEnriched bool
	}{
		{
			name:         "generic role replaced, longer name wins",
			dom:          Descriptor{Selector: "#a", Role: "element", Name: "a"},
			node:         AxNode{Selector: "#a", Role: "button", Name: "Add to cart"},
			wantRole:     "button",
			wantName:     "Add to cart",
			wantEnriched: true,
		},
		{
			name:         "non-generic role never overwritten",
			dom:          Descriptor{Selector: "#a", Role: "link", Name: "docs"},
			node:         AxNode{Selector: "#a", Role: "button", Name: "documentation"},
			wantRole:     "link",
			wantName:     "documentation",
			wantEnriched: true,
		},
		{
			name:         "shorter name never replaces longer",
			dom:          Descriptor{Selector: "#a", Role: "button", Name: "Primary call to action"},
			node:         AxNode{Selector: "#a", Role: "button", Name: "CTA"},
			wantRole:     "button",
			wantName:     "Primary call to action",
			wantEnriched: true,
		},
		{
			name:         "empty incoming name ignored",
			dom:          Descriptor{Selector: "#a", Role: "", Name: "thing"},
			node:         AxNode{Selector: "#a", Role: "checkbox", Name: ""},
			wantRole:     "checkbox",
			wantName:     "thing",
			wantEnriched: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFuser(&stubExtractor{nodes: []AxNode{tt.node}})
			fused := f.Gather(context.Background(), GatherInput{
				DOMElements: []Descriptor{tt.dom},
				TabID:       "tab-1",
			})
			if len(fused) != 1 {
				t.Fatalf("expected 1 descriptor, got %d", len(fused))
			}
			got := fused[0]
			if got.Role != tt.wantRole {
				t.Errorf("role: expected %q, got %q", tt.wantRole, got.Role)
			}
			if got.Name != tt.wantName {
				t.Errorf("name: expected %q, got %q", tt.wantName, got.Name)
			}
			if got.A11yEnriched != tt.wantEnriched {
				t.Errorf("a11yEnriched: expected %v, got %v", tt.wantEnriched, got.A11yEnriched)
			}
			if got.Source != SourceDOM {
				t.Errorf("enrichment must not change provenance, got %s", got.Source)
			}
		})
	}
}

func TestGatherAccessibilityFailureIsSkipped(t *testing.T) {
	f := NewFuser(&stubExtractor{err: errors.New("debugger detached")})

	fused := f.Gather(context.Background(), GatherInput{
		DOMElements: []Descriptor{{Selector: "#hero", Role: "button", Name: "Hero"}},
		TabID:       "tab-1",
	})
	if len(fused) != 1 {
		t.Fatalf("expected pipeline to continue with DOM source, got %d descriptors", len(fused))
	}
}

func TestGatherGeneratedCodeLowestPriority(t *testing.T) {
	f := NewFuser(nil)

	fused := f.Gather(context.Background(), GatherInput{
		DOMElements: []Descriptor{{Selector: ".cta", Role: "button", Name: "Buy now"}},
		Code: &GeneratedCode{Variations: []CodeVariation{
			{CSS: ".cta { color: red; } .banner { display: none; }"},
		}},
	})

	if len(fused) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(fused))
	}
	// Existing selector untouched by the code source.
	if fused[0].Role != "button" || fused[0].Name != "Buy now" {
		t.Errorf("code source must not modify existing descriptors: %+v", fused[0])
	}
	if fused[1].Selector != ".banner" || fused[1].Source != SourceGeneratedCode {
		t.Errorf("expected .banner from generated code, got %+v", fused[1])
	}
}

func TestGatherIdempotent(t *testing.T) {
	in := GatherInput{
		DOMElements: []Descriptor{
			{Selector: "#hero", Role: "element", Name: "Hero", Rect: rect(1, 2, 3, 4)},
			{Selector: ".cta", Role: "button", Name: "CTA"},
		},
		TabID: "tab-1",
		Code: &GeneratedCode{Variations: []CodeVariation{
			{JS: `document.getElementById('panel')`},
		}},
	}
	ext := &stubExtractor{nodes: []AxNode{{Selector: "#hero", Role: "banner", Name: "Hero banner"}}}
	f := NewFuser(ext)

	first := f.Gather(context.Background(), in)
	second := f.Gather(context.Background(), in)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("fusion not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestGatherEmptyContext(t *testing.T) {
	f := NewFuser(nil)
	fused := f.Gather(context.Background(), GatherInput{})
	if len(fused) != 0 {
		t.Fatalf("expected empty result for empty context, got %d", len(fused))
	}
}
