package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"intentlens-mcp-server/internal/audit"
	"intentlens-mcp-server/internal/browser"
	"intentlens-mcp-server/internal/element"
	"intentlens-mcp-server/internal/grounding"
	"intentlens-mcp-server/internal/overlay"
)

// parseGroundingContext decodes the element sources shared by the grounding
// tools (tab_id, dom_elements, generated_code, screenshot) from tool args.
func parseGroundingContext(args map[string]interface{}) (grounding.Context, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return grounding.Context{}, fmt.Errorf("encode arguments: %w", err)
	}
	var gctx grounding.Context
	if err := json.Unmarshal(raw, &gctx); err != nil {
		return grounding.Context{}, fmt.Errorf("decode grounding context: %w", err)
	}
	return gctx, nil
}

// elementSourceProperties is the shared schema fragment for tools that accept
// raw discovery sources.
func elementSourceProperties() map[string]interface{} {
	return map[string]interface{}{
		"tab_id": map[string]interface{}{
			"type":        "string",
			"description": "Live tab to extract the accessibility tree from (see list-tabs)",
		},
		"dom_elements": map[string]interface{}{
			"type":        "array",
			"description": "Pre-extracted DOM descriptors: [{selector, role, name, bounding_rect: {x, y, width, height}}]",
			"items":       map[string]interface{}{"type": "object"},
		},
		"generated_code": map[string]interface{}{
			"type":        "object",
			"description": "Prior code artifact to mine for selectors: {variations: [{css, js}]}",
		},
		"screenshot": map[string]interface{}{
			"type":        "string",
			"description": "Base64-encoded PNG of the page (data-URL prefix tolerated)",
		},
	}
}

// GroundIntentTool resolves a free-text editing instruction to ranked page
// elements via the full pipeline: fusion, numbered overlay, vision reasoning,
// confidence-gated interpretation.
type GroundIntentTool struct {
	pipeline *grounding.Pipeline
	tabs     *browser.Tabs
}

func (t *GroundIntentTool) Name() string { return "ground-intent" }
func (t *GroundIntentTool) Description() string {
	return `Resolve a natural-language editing instruction to concrete page elements.

Feeds every available discovery source (DOM descriptors, live accessibility
tree, selectors mined from generated code) into the fusion engine, renders a
numbered overlay on the screenshot, and asks the vision reasoning service
which elements the instruction targets.

WHEN TO USE:
- "make the signup button bigger" -> which element is that, exactly?
- Before generating an edit, to pin down its target selectors

INPUT: query plus any sources you have. With a tab_id and a connected
browser, the screenshot is captured automatically when not supplied.

Returns: {success, interpretation, confidence, selected_elements:
[{selector, role, name, ordinal, reasoning}], needs_disambiguation}.
needs_disambiguation=true means ask the user before acting.`
}
func (t *GroundIntentTool) InputSchema() map[string]interface{} {
	props := elementSourceProperties()
	props["query"] = map[string]interface{}{
		"type":        "string",
		"description": "The free-text editing instruction to ground",
	}
	props["capture_screenshot"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Capture a screenshot from the live tab when none is supplied (default true)",
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   []string{"query"},
	}
}
func (t *GroundIntentTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query := getStringArg(args, "query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	gctx, err := parseGroundingContext(args)
	if err != nil {
		return nil, err
	}

	// Opportunistic screenshot from the live tab.
	if getBoolArg(args, "capture_screenshot", true) &&
		gctx.Screenshot == "" && gctx.TabID != "" && t.tabs != nil && t.tabs.IsConnected() {
		if png, shotErr := t.tabs.CaptureScreenshot(ctx, gctx.TabID); shotErr == nil {
			gctx.Screenshot = base64.StdEncoding.EncodeToString(png)
		}
	}

	return t.pipeline.GroundIntent(ctx, query, gctx), nil
}

// FuseElementsTool runs source fusion alone, returning the deduplicated
// candidate list without a reasoning round trip.
type FuseElementsTool struct {
	pipeline *grounding.Pipeline
}

func (t *FuseElementsTool) Name() string { return "fuse-elements" }
func (t *FuseElementsTool) Description() string {
	return `Merge element discovery sources into one deduplicated candidate list.

DOM descriptors are ground truth; accessibility nodes enrich them in place
(roles and longer names); selectors mined from generated code fill in
whatever the first two missed. Selector equality is the merge key, so the
result never contains two entries for the same selector.

USE THIS to inspect what ground-intent would see, or to feed a custom
prompt. List order equals mark numbering.

Returns: {success, elements: [{selector, role, name, source, ...}], count}.`
}
func (t *FuseElementsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": elementSourceProperties(),
	}
}
func (t *FuseElementsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	gctx, err := parseGroundingContext(args)
	if err != nil {
		return nil, err
	}

	fused := t.pipeline.GatherElements(ctx, gctx)
	return map[string]interface{}{
		"success":  true,
		"elements": fused,
		"count":    len(fused),
	}, nil
}

// RenderOverlayTool draws the numbered set-of-mark overlay on a screenshot
// without calling the reasoning service.
type RenderOverlayTool struct {
	pipeline *grounding.Pipeline
}

func (t *RenderOverlayTool) Name() string { return "render-overlay" }
func (t *RenderOverlayTool) Description() string {
	return `Render numbered marks for the fused element list onto a screenshot.

Each element with a positive bounding rectangle gets a tinted box, border,
and [n] badge; n is the element's 1-based position in the fused list, the
same numbering ground-intent sends to the reasoning service.

USE THIS to debug grounding visually or to hand an annotated image to a
human for manual disambiguation.

Returns: {success, image (base64 PNG), marks: [{ordinal, selector}], count}.`
}
func (t *RenderOverlayTool) InputSchema() map[string]interface{} {
	props := elementSourceProperties()
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   []string{"screenshot"},
	}
}
func (t *RenderOverlayTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	gctx, err := parseGroundingContext(args)
	if err != nil {
		return nil, err
	}
	if gctx.Screenshot == "" {
		return nil, fmt.Errorf("screenshot is required")
	}

	base, err := decodeBase64Image(gctx.Screenshot)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	fused := t.pipeline.GatherElements(ctx, gctx)
	marks := overlay.AssignMarks(fused)
	annotated, err := overlay.Render(base, marks)
	if err != nil {
		return nil, fmt.Errorf("render overlay: %w", err)
	}

	markInfo := make([]map[string]interface{}, 0, len(marks))
	for _, m := range marks {
		markInfo = append(markInfo, map[string]interface{}{
			"ordinal":  m.Ordinal,
			"selector": m.Descriptor.Selector,
		})
	}

	return map[string]interface{}{
		"success": true,
		"image":   base64.StdEncoding.EncodeToString(annotated),
		"marks":   markInfo,
		"count":   len(marks),
	}, nil
}

// ReadAuditTool exposes the grounding fact log: predicate reads, temporal
// windows, and Mangle pattern queries.
type ReadAuditTool struct {
	auditLog *audit.Log
}

func (t *ReadAuditTool) Name() string { return "read-audit" }
func (t *ReadAuditTool) Description() string {
	return `Query the audit fact log of past grounding calls.

Known predicates:
- grounding_call(CallID, Query, Confidence, NeedsDisambiguation, Success)
- fused_element(CallID, Selector, Role, Name, Source)
- candidate(CallID, Ordinal, Selector)

MODES (pick one):
- predicate: return buffered facts for that predicate, newest last
- query: a Mangle-syntax pattern, e.g. "candidate(C, N, S)." binding
  uppercase variables

Returns: {success, facts|results, count}.`
}
func (t *ReadAuditTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"predicate": map[string]interface{}{
				"type":        "string",
				"description": "Predicate to read, e.g. grounding_call",
			},
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Mangle pattern query; overrides predicate when set",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Max facts to return (default 100)",
			},
		},
	}
}
func (t *ReadAuditTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	limit := getIntArg(args, "limit", 100)

	if queryStr := getStringArg(args, "query"); queryStr != "" {
		results, err := t.auditLog.Query(ctx, queryStr)
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(results) > limit {
			results = results[len(results)-limit:]
		}
		return map[string]interface{}{
			"success": true,
			"results": results,
			"count":   len(results),
		}, nil
	}

	predicate := getStringArg(args, "predicate")
	if predicate == "" {
		return nil, fmt.Errorf("predicate or query is required")
	}

	facts := t.auditLog.FactsByPredicate(predicate)
	if limit > 0 && len(facts) > limit {
		facts = facts[len(facts)-limit:]
	}
	return map[string]interface{}{
		"success": true,
		"facts":   facts,
		"count":   len(facts),
	}, nil
}

// ClearAxCacheTool drops memoized accessibility trees so the next grounding
// call re-extracts from the live page.
type ClearAxCacheTool struct {
	cache *element.CachedExtractor
}

func (t *ClearAxCacheTool) Name() string { return "clear-ax-cache" }
func (t *ClearAxCacheTool) Description() string {
	return `Invalidate cached accessibility trees.

The fusion engine memoizes one extracted tree per tab. Call this after the
page mutates (navigation, SPA route change, significant DOM edits) so the
next fusion sees fresh roles and names.

INPUT: tab_id to drop one tab's entry, or omit to purge the whole cache.

Returns: {success, cleared}.`
}
func (t *ClearAxCacheTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tab_id": map[string]interface{}{
				"type":        "string",
				"description": "Tab whose cached tree to drop; empty clears all",
			},
		},
	}
}
func (t *ClearAxCacheTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	tabID := getStringArg(args, "tab_id")
	t.cache.ClearCache(tabID)

	cleared := "all"
	if tabID != "" {
		cleared = tabID
	}
	return map[string]interface{}{
		"success": true,
		"cleared": cleared,
	}, nil
}
