// Package element defines the page-element data model and the fusion engine
// that merges element descriptors discovered by independent sources into one
// deduplicated candidate list.
package element

// Source tags where a descriptor was first discovered. Provenance is
// diagnostic only; no pipeline stage filters on it.
type Source string

const (
	SourceDOM           Source = "dom_database"
	SourceAccessibility Source = "accessibility_tree"
	SourceGeneratedCode Source = "generated_code"
)

// Role values with special meaning during fusion.
const (
	// RoleGeneric is the low-confidence fallback role. Enrichment may
	// overwrite it; it never overwrites anything else.
	RoleGeneric = "element"
	// RoleUnique is assigned to #id tokens mined from generated code.
	RoleUnique = "unique"
)

// Rect is an element's bounding rectangle in screenshot pixel space.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Positive reports whether the rect has a visible footprint. Zero-area
// rects are excluded from overlay rendering.
func (r Rect) Positive() bool {
	return r.Width > 0 && r.Height > 0
}

// Descriptor is the unit of identity throughout the grounding pipeline.
// The selector string is the deduplication key: two descriptors with equal
// selectors are merged, never duplicated.
type Descriptor struct {
	Selector     string  `json:"selector"`
	Role         string  `json:"role"`
	Name         string  `json:"name"`
	Rect         *Rect   `json:"bounding_rect,omitempty"`
	Source       Source  `json:"source"`
	A11yEnriched bool    `json:"a11y_enriched,omitempty"`
}

// Markable reports whether the descriptor can be drawn on an overlay.
func (d Descriptor) Markable() bool {
	return d.Rect != nil && d.Rect.Positive()
}

// genericRole reports whether role carries no real semantic information.
func genericRole(role string) bool {
	return role == "" || role == RoleGeneric
}

// AxNode is one node of an extracted accessibility tree, as delivered by
// the accessibility collaborator.
type AxNode struct {
	Selector string `json:"selector"`
	Role     string `json:"role"`
	Name     string `json:"name"`
}

// GeneratedCode is a previously generated code artifact from which element
// references can be mined. Each variation carries independent CSS and JS text.
type GeneratedCode struct {
	Variations []CodeVariation `json:"variations"`
}

// CodeVariation is one generated alternative.
type CodeVariation struct {
	CSS string `json:"css"`
	JS  string `json:"js"`
}
