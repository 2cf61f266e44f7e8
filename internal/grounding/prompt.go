package grounding

import (
	"fmt"
	"strings"

	"intentlens-mcp-server/internal/element"
)

// Prompt is the textual+visual request sent to the reasoning service. Text
// must stand alone and stay meaningful when Image is nil: it lists every
// element by ordinal and description regardless of whether marks were drawn.
type Prompt struct {
	Text     string
	Image    []byte
	HasImage bool
}

// BuildPrompt enumerates every fused descriptor in list order, including ones
// with no bounding rect (listed but not drawn), and instructs the service to
// reference elements only by ordinal and to answer with the fixed JSON shape.
func BuildPrompt(query string, fused []element.Descriptor, overlayImage []byte, confidenceThreshold float64) Prompt {
	var b strings.Builder

	fmt.Fprintf(&b, "You are grounding a page-editing instruction to concrete page elements.\n\n")
	fmt.Fprintf(&b, "Instruction: %q\n\n", query)

	if len(overlayImage) > 0 {
		b.WriteString("The attached screenshot is annotated with numbered marks. Each mark number below corresponds to one box on the image.\n\n")
	}

	b.WriteString("Candidate elements:\n")
	for i, d := range fused {
		role := d.Role
		if role == "" {
			role = element.RoleGeneric
		}
		fmt.Fprintf(&b, "[%d] %s: %q (%s)\n", i+1, role, d.Name, d.Selector)
	}

	fmt.Fprintf(&b, `
Decide which element(s) the instruction refers to. Reference elements ONLY by
their mark number. Respond with exactly this JSON shape and nothing else:

{
  "interpretation": "<what the instruction asks for>",
  "confidence": <number between 0 and 1>,
  "candidates": [
    {"markNumber": <number>, "selector": "<selector>", "reasoning": "<why this element>"}
  ],
  "needsDisambiguation": <boolean>
}

Set needsDisambiguation to true whenever your confidence is below %.2f or
multiple elements are plausible targets.
`, confidenceThreshold)

	return Prompt{
		Text:     b.String(),
		Image:    overlayImage,
		HasImage: len(overlayImage) > 0,
	}
}
