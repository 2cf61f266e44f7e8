package grounding

import (
	"encoding/json"
	"fmt"
	"strings"

	"intentlens-mcp-server/internal/element"
)

// rawReply mirrors the JSON shape the prompt contract asks the service for.
type rawReply struct {
	Interpretation      string         `json:"interpretation"`
	Confidence          float64        `json:"confidence"`
	Candidates          []rawCandidate `json:"candidates"`
	NeedsDisambiguation bool           `json:"needsDisambiguation"`
}

type rawCandidate struct {
	MarkNumber int    `json:"markNumber"`
	Selector   string `json:"selector"`
	Reasoning  string `json:"reasoning"`
}

// Interpret parses the reasoning service's reply against the fused list and
// applies the confidence-gated disambiguation policy. The input may be a
// JSON-encoded string (possibly wrapped in a markdown code fence) or an
// already-structured value. A parse failure degrades to a maximally cautious
// result instead of propagating: empty interpretation, zero confidence,
// needsDisambiguation true, with the parse error surfaced in the result.
func Interpret(raw interface{}, fused []element.Descriptor, cfg Config) Result {
	cfg = cfg.normalized()

	reply, err := decodeReply(raw)
	if err != nil {
		return Result{
			Success:             true,
			Confidence:          0,
			NeedsDisambiguation: true,
			SelectedElements:    []SelectedElement{},
			Reasoning:           fmt.Sprintf("reply could not be parsed: %v", err),
		}
	}

	selected := make([]SelectedElement, 0, len(reply.Candidates))
	var reasoning []string
	for _, c := range reply.Candidates {
		d, ord, ok := resolveCandidate(c, fused)
		if !ok {
			// The service referenced a mark that does not exist. Dropping the
			// candidate keeps the result well-typed; the note keeps the miss
			// visible to the caller.
			reasoning = append(reasoning, fmt.Sprintf("service referenced unknown mark %d (selector %q); candidate dropped", c.MarkNumber, c.Selector))
			continue
		}
		selected = append(selected, SelectedElement{
			Descriptor: d,
			Ordinal:    ord,
			Reasoning:  c.Reasoning,
		})
		if c.Reasoning != "" {
			reasoning = append(reasoning, c.Reasoning)
		}
	}

	// The three-way OR is deliberate: a service claiming high confidence is
	// still second-guessed when it names multiple candidates.
	needs := reply.NeedsDisambiguation ||
		reply.Confidence < cfg.ConfidenceThreshold ||
		(len(selected) > 1 && reply.Confidence < cfg.MultiCandidateThreshold)

	return Result{
		Success:             true,
		Interpretation:      reply.Interpretation,
		Confidence:          reply.Confidence,
		SelectedElements:    selected,
		NeedsDisambiguation: needs,
		Reasoning:           strings.Join(reasoning, "; "),
	}
}

// resolveCandidate maps a service candidate back to the fused list. Mark
// numbers are 1-based positions in the fused list; an out-of-range ordinal
// falls back to an exact selector match before the candidate is dropped.
func resolveCandidate(c rawCandidate, fused []element.Descriptor) (element.Descriptor, int, bool) {
	if c.MarkNumber >= 1 && c.MarkNumber <= len(fused) {
		return fused[c.MarkNumber-1], c.MarkNumber, true
	}
	if c.Selector != "" {
		for i, d := range fused {
			if d.Selector == c.Selector {
				return d, i + 1, true
			}
		}
	}
	return element.Descriptor{}, 0, false
}

// decodeReply accepts the service reply as a JSON string, raw JSON bytes, or
// an already-decoded structure.
func decodeReply(raw interface{}) (rawReply, error) {
	var reply rawReply
	switch v := raw.(type) {
	case nil:
		return reply, fmt.Errorf("empty reply")
	case string:
		return unmarshalReply([]byte(stripFences(v)))
	case []byte:
		return unmarshalReply([]byte(stripFences(string(v))))
	case json.RawMessage:
		return unmarshalReply([]byte(stripFences(string(v))))
	case rawReply:
		return v, nil
	default:
		// Structured input: round-trip through JSON to land in the fixed shape.
		data, err := json.Marshal(v)
		if err != nil {
			return reply, fmt.Errorf("encode structured reply: %w", err)
		}
		return unmarshalReply(data)
	}
}

func unmarshalReply(data []byte) (rawReply, error) {
	var reply rawReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return reply, err
	}
	return reply, nil
}

// stripFences removes a surrounding markdown code fence, which some models
// emit despite the JSON-only instruction.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
