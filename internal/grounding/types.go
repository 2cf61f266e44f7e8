// Package grounding resolves free-text editing instructions to concrete page
// elements. It fuses element discovery sources, builds a numbered visual
// prompt for a vision-capable reasoning service, and interprets the service's
// structured reply under a confidence-gated disambiguation policy.
package grounding

import "intentlens-mcp-server/internal/element"

// Context is the inbound raw material for one grounding call. Every field is
// optional; the pipeline works with whatever sources are present.
type Context struct {
	// TabID identifies the live document for accessibility extraction.
	TabID string `json:"tab_id,omitempty"`
	// DOMElements are pre-extracted DOM-derived descriptors.
	DOMElements []element.Descriptor `json:"dom_elements,omitempty"`
	// GeneratedCode is a prior code artifact to mine for selectors.
	GeneratedCode *element.GeneratedCode `json:"generated_code,omitempty"`
	// Screenshot is the base64-encoded page raster, when captured.
	Screenshot string `json:"screenshot,omitempty"`
}

// SelectedElement is a fused descriptor the service picked, annotated with
// its ordinal and the service's stated reasoning.
type SelectedElement struct {
	element.Descriptor
	Ordinal   int    `json:"ordinal"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Result is the immutable outcome of one grounding call.
type Result struct {
	Success             bool              `json:"success"`
	Interpretation      string            `json:"interpretation"`
	Confidence          float64           `json:"confidence"`
	SelectedElements    []SelectedElement `json:"selected_elements"`
	NeedsDisambiguation bool              `json:"needs_disambiguation"`
	Reasoning           string            `json:"reasoning,omitempty"`
	Error               string            `json:"error,omitempty"`
}

// failure builds a structured failure with an empty but well-typed
// candidate list. Callers never receive a raw fault from the pipeline.
func failure(msg string) Result {
	return Result{
		Success:             false,
		Error:               msg,
		SelectedElements:    []SelectedElement{},
		NeedsDisambiguation: true,
	}
}

// Config tunes one pipeline instance. It is owned by the caller; mutating it
// while a call is in flight is not safe and the old value may still be used.
type Config struct {
	// ConfidenceThreshold forces disambiguation below it. Default 0.8.
	ConfidenceThreshold float64
	// MultiCandidateThreshold forces disambiguation for multi-candidate
	// replies below it, even above ConfidenceThreshold. Default 0.9.
	MultiCandidateThreshold float64
	// VisualGrounding enables overlay rendering when a screenshot exists.
	VisualGrounding bool
}

// DefaultConfig returns the standard thresholds with visual grounding on.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold:     0.8,
		MultiCandidateThreshold: 0.9,
		VisualGrounding:         true,
	}
}

// normalized fills zero thresholds with defaults so a partially built Config
// still behaves sanely.
func (c Config) normalized() Config {
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.8
	}
	if c.MultiCandidateThreshold <= 0 {
		c.MultiCandidateThreshold = 0.9
	}
	return c
}
