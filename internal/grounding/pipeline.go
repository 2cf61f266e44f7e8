package grounding

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"intentlens-mcp-server/internal/audit"
	"intentlens-mcp-server/internal/element"
	"intentlens-mcp-server/internal/overlay"
	"intentlens-mcp-server/internal/recorder"
	"intentlens-mcp-server/internal/vision"

	"github.com/google/uuid"
)

// AuditSink receives diagnostic facts about grounding calls.
type AuditSink interface {
	AddFacts(ctx context.Context, facts []audit.Fact) error
}

// TraceSink receives flight-recorder events for postmortem debugging.
type TraceSink interface {
	Record(evt recorder.Event) error
}

// Pipeline is a caller-owned grounding pipeline. It holds only its
// configuration and collaborator handles; descriptor lists, ordinals, and
// overlays are call-local and never cached across calls, since page state
// may have changed between them.
type Pipeline struct {
	cfg      Config
	fuser    *element.Fuser
	reasoner vision.Reasoner
	audit    AuditSink
	trace    TraceSink
}

// NewPipeline wires the pipeline. audit and trace may be nil; reasoner may be
// nil, in which case every grounding call reports a structured boundary
// failure.
func NewPipeline(cfg Config, fuser *element.Fuser, reasoner vision.Reasoner, auditSink AuditSink, traceSink TraceSink) *Pipeline {
	return &Pipeline{
		cfg:      cfg.normalized(),
		fuser:    fuser,
		reasoner: reasoner,
		audit:    auditSink,
		trace:    traceSink,
	}
}

// Config returns the pipeline's current configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// SetConfig replaces the configuration. Not safe to call concurrently with an
// in-flight GroundIntent; that call keeps using the value it started with.
func (p *Pipeline) SetConfig(cfg Config) {
	p.cfg = cfg.normalized()
}

// GroundIntent resolves a free-text instruction to concrete page elements:
// fuse discovery sources, render the numbered overlay when enabled, dispatch
// the prompt across the reasoning boundary, and interpret the reply. Any
// unexpected fault from any stage surfaces as a structured failure; the
// caller never sees a panic or raw error from this pipeline.
func (p *Pipeline) GroundIntent(ctx context.Context, query string, gctx Context) (res Result) {
	cfg := p.cfg
	callID := uuid.NewString()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("grounding call %s panicked: %v", callID, r)
			res = failure(fmt.Sprintf("grounding failed unexpectedly: %v", r))
		}
		p.recordCall(ctx, callID, query, res)
	}()

	fused := p.fuser.Gather(ctx, element.GatherInput{
		DOMElements: gctx.DOMElements,
		TabID:       gctx.TabID,
		Code:        gctx.GeneratedCode,
	})
	if len(fused) == 0 {
		return failure("no elements found on page: every discovery source was empty or absent")
	}
	p.emitFusedFacts(ctx, callID, fused)

	var overlayPNG []byte
	if cfg.VisualGrounding && gctx.Screenshot != "" {
		base, err := decodeScreenshot(gctx.Screenshot)
		if err != nil {
			return failure(fmt.Sprintf("screenshot could not be decoded: %v", err))
		}
		overlayPNG, err = overlay.Render(base, overlay.AssignMarks(fused))
		if err != nil {
			return failure(fmt.Sprintf("overlay rendering failed: %v", err))
		}
	}

	prompt := BuildPrompt(query, fused, overlayPNG, cfg.ConfidenceThreshold)

	if p.reasoner == nil {
		return failure("reasoning service not configured")
	}
	reply, err := p.reasoner.Ground(ctx, vision.Request{
		Prompt:        prompt.Text,
		Screenshot:    prompt.Image,
		HasScreenshot: prompt.HasImage,
	})
	if err != nil {
		return failure(fmt.Sprintf("reasoning service failed: %v", err))
	}
	if !reply.Success {
		return failure(fmt.Sprintf("reasoning service reported failure: %s", reply.Error))
	}

	return Interpret(reply.Result, fused, cfg)
}

// GatherElements runs fusion alone, for callers that want the candidate list
// without a reasoning round trip.
func (p *Pipeline) GatherElements(ctx context.Context, gctx Context) []element.Descriptor {
	return p.fuser.Gather(ctx, element.GatherInput{
		DOMElements: gctx.DOMElements,
		TabID:       gctx.TabID,
		Code:        gctx.GeneratedCode,
	})
}

func (p *Pipeline) emitFusedFacts(ctx context.Context, callID string, fused []element.Descriptor) {
	if p.audit == nil {
		return
	}
	now := time.Now()
	facts := make([]audit.Fact, 0, len(fused))
	for _, d := range fused {
		facts = append(facts, audit.Fact{
			Predicate: "fused_element",
			Args:      []interface{}{callID, d.Selector, d.Role, d.Name, string(d.Source)},
			Timestamp: now,
		})
	}
	_ = p.audit.AddFacts(ctx, facts)
}

func (p *Pipeline) recordCall(ctx context.Context, callID, query string, res Result) {
	now := time.Now()
	if p.audit != nil {
		facts := []audit.Fact{{
			Predicate: "grounding_call",
			Args:      []interface{}{callID, query, res.Confidence, fmt.Sprintf("%v", res.NeedsDisambiguation), fmt.Sprintf("%v", res.Success)},
			Timestamp: now,
		}}
		for _, sel := range res.SelectedElements {
			facts = append(facts, audit.Fact{
				Predicate: "candidate",
				Args:      []interface{}{callID, sel.Ordinal, sel.Selector},
				Timestamp: now,
			})
		}
		_ = p.audit.AddFacts(ctx, facts)
	}
	if p.trace != nil {
		selectors := make([]string, 0, len(res.SelectedElements))
		for _, sel := range res.SelectedElements {
			selectors = append(selectors, sel.Selector)
		}
		_ = p.trace.Record(recorder.Event{
			Timestamp: now,
			Type:      "grounding",
			CallID:    callID,
			Data: map[string]interface{}{
				"query":                query,
				"success":              res.Success,
				"confidence":           res.Confidence,
				"needs_disambiguation": res.NeedsDisambiguation,
				"selected":             selectors,
				"error":                res.Error,
			},
		})
	}
}

// decodeScreenshot decodes a base64 screenshot, tolerating a data-URL prefix.
func decodeScreenshot(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 {
		s = s[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	return data, nil
}
