package element

import (
	"context"
	"log"
	"strings"
)

// TreeExtractor is the accessibility collaborator boundary. Implementations
// own their own timeout policy; the fusion engine treats any error as a skip.
type TreeExtractor interface {
	ExtractTree(ctx context.Context, tabID string) ([]AxNode, error)
	ClearCache(tabID string)
}

// GatherInput carries the independently optional discovery sources for one
// grounding call.
type GatherInput struct {
	// DOMElements are pre-extracted DOM-derived descriptors, the primary
	// source. Inserted first and unconditionally.
	DOMElements []Descriptor
	// TabID identifies the document to request an accessibility tree for.
	// Empty means no accessibility source.
	TabID string
	// Code is a previously generated code artifact to mine for selectors.
	Code *GeneratedCode
}

// Fuser merges element descriptors from up to three sources into one
// deduplicated, enriched, order-stable list.
type Fuser struct {
	ax TreeExtractor
}

// NewFuser builds a fusion engine. The extractor may be nil when no
// accessibility collaborator is available.
func NewFuser(ax TreeExtractor) *Fuser {
	return &Fuser{ax: ax}
}

// Gather produces the fused candidate list. It never fails: a missing or
// broken source is skipped and the remaining sources are used. The result is
// empty only when every source is empty or absent; callers must treat that
// as a terminal no-elements condition.
func (f *Fuser) Gather(ctx context.Context, in GatherInput) []Descriptor {
	fused := make([]Descriptor, 0, len(in.DOMElements))
	index := make(map[string]int, len(in.DOMElements))

	// Source 1: DOM descriptors are ground truth for existence. They must
	// survive fusion with their original role and name intact.
	for _, d := range in.DOMElements {
		if d.Selector == "" {
			continue
		}
		d.Source = SourceDOM
		if i, ok := index[d.Selector]; ok {
			mergeSameSource(&fused[i], d)
			continue
		}
		index[d.Selector] = len(fused)
		fused = append(fused, d)
	}

	// Source 2: accessibility nodes enrich existing descriptors in place and
	// append unseen selectors. Extraction failure is non-fatal.
	if in.TabID != "" && f.ax != nil {
		nodes, err := f.ax.ExtractTree(ctx, in.TabID)
		if err != nil {
			log.Printf("accessibility extraction failed for tab %s, continuing without it: %v", in.TabID, err)
		} else {
			for _, n := range nodes {
				sel := n.Selector
				if sel == "" {
					continue
				}
				i, ok := index[sel]
				if !ok {
					index[sel] = len(fused)
					fused = append(fused, Descriptor{
						Selector: sel,
						Role:     n.Role,
						Name:     n.Name,
						Source:   SourceAccessibility,
					})
					continue
				}
				enrichFromAx(&fused[i], n)
			}
		}
	}

	// Source 3: generated-code references are lowest priority and only fill
	// selectors no other source produced.
	if in.Code != nil {
		for _, d := range ScanGeneratedCode(in.Code) {
			if _, ok := index[d.Selector]; ok {
				continue
			}
			index[d.Selector] = len(fused)
			fused = append(fused, d)
		}
	}

	return fused
}

// enrichFromAx applies accessibility data to an already-known descriptor.
// Enrichment only adds information: a non-generic role is never overwritten
// and a name is only replaced by a strictly longer one.
func enrichFromAx(d *Descriptor, n AxNode) {
	if genericRole(d.Role) && !genericRole(n.Role) {
		d.Role = n.Role
	}
	if n.Name != "" && len(n.Name) > len(d.Name) {
		d.Name = n.Name
	}
	d.A11yEnriched = true
}

// mergeSameSource folds a duplicate selector arriving from the same source.
// The first occurrence wins; missing fields are filled in.
func mergeSameSource(d *Descriptor, dup Descriptor) {
	if genericRole(d.Role) && !genericRole(dup.Role) {
		d.Role = dup.Role
	}
	if dup.Name != "" && len(strings.TrimSpace(dup.Name)) > len(strings.TrimSpace(d.Name)) {
		d.Name = dup.Name
	}
	if d.Rect == nil && dup.Rect != nil {
		r := *dup.Rect
		d.Rect = &r
	}
}
