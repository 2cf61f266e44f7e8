package audit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestLogAddFacts(t *testing.T) {
	log := NewLog(true, 1000)
	ctx := context.Background()

	facts := []Fact{
		{
			Predicate: "fused_element",
			Args:      []interface{}{"call-1", ".cta", "button", "CTA", "dom_database"},
			Timestamp: time.Now(),
		},
		{
			Predicate: "grounding_call",
			Args:      []interface{}{"call-1", "make the button bigger", 0.92, "false", "true"},
			Timestamp: time.Now(),
		},
		{
			Predicate: "candidate",
			Args:      []interface{}{"call-1", 2, ".cta"},
			Timestamp: time.Now(),
		},
	}

	if err := log.AddFacts(ctx, facts); err != nil {
		t.Fatalf("AddFacts failed: %v", err)
	}

	if log.Len() != len(facts) {
		t.Errorf("Expected %d facts in buffer, got %d", len(facts), log.Len())
	}

	calls := log.FactsByPredicate("grounding_call")
	if len(calls) != 1 {
		t.Fatalf("Expected 1 grounding_call, got %d", len(calls))
	}
	if calls[0].Args[1] != "make the button bigger" {
		t.Errorf("Unexpected query arg: %v", calls[0].Args[1])
	}

	if got := log.FactsByPredicate("no_such_predicate"); len(got) != 0 {
		t.Errorf("Expected no facts for unknown predicate, got %d", len(got))
	}
}

func TestLogDisabled(t *testing.T) {
	log := NewLog(false, 100)
	ctx := context.Background()

	err := log.AddFacts(ctx, []Fact{
		{Predicate: "candidate", Args: []interface{}{"c", 1, "#x"}, Timestamp: time.Now()},
	})
	if err != nil {
		t.Fatalf("AddFacts on disabled log must not error: %v", err)
	}
	if log.Len() != 0 {
		t.Errorf("Disabled log must drop facts, got %d buffered", log.Len())
	}

	if _, err := log.Query(ctx, "candidate(C, N, S)."); err == nil {
		t.Error("Expected Query on disabled log to error")
	}
}

func TestLogBufferTrim(t *testing.T) {
	log := NewLog(true, 5)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		err := log.AddFacts(ctx, []Fact{{
			Predicate: "candidate",
			Args:      []interface{}{fmt.Sprintf("call-%d", i), i, "#x"},
			Timestamp: time.Now(),
		}})
		if err != nil {
			t.Fatalf("AddFacts failed: %v", err)
		}
	}

	if log.Len() != 5 {
		t.Fatalf("Expected buffer trimmed to 5, got %d", log.Len())
	}

	// Index must survive the trim: oldest facts gone, newest retained.
	candidates := log.FactsByPredicate("candidate")
	if len(candidates) != 5 {
		t.Fatalf("Expected 5 indexed candidates, got %d", len(candidates))
	}
	if candidates[0].Args[0] != "call-3" {
		t.Errorf("Expected oldest surviving fact call-3, got %v", candidates[0].Args[0])
	}
	if candidates[4].Args[0] != "call-7" {
		t.Errorf("Expected newest fact call-7, got %v", candidates[4].Args[0])
	}
}

func TestLogQueryTemporal(t *testing.T) {
	log := NewLog(true, 100)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		err := log.AddFacts(ctx, []Fact{{
			Predicate: "grounding_call",
			Args:      []interface{}{fmt.Sprintf("call-%d", i), "q", 0.9, "false", "true"},
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}})
		if err != nil {
			t.Fatalf("AddFacts failed: %v", err)
		}
	}

	got := log.QueryTemporal("grounding_call", base.Add(30*time.Second), base.Add(90*time.Second))
	if len(got) != 1 {
		t.Fatalf("Expected 1 fact in window, got %d", len(got))
	}
	if got[0].Args[0] != "call-1" {
		t.Errorf("Expected call-1 in window, got %v", got[0].Args[0])
	}

	// Open bounds return everything.
	if got := log.QueryTemporal("grounding_call", time.Time{}, time.Time{}); len(got) != 3 {
		t.Errorf("Expected 3 facts with open window, got %d", len(got))
	}
}

func TestLogQuery(t *testing.T) {
	log := NewLog(true, 100)
	ctx := context.Background()

	facts := []Fact{
		{
			Predicate: "fused_element",
			Args:      []interface{}{"call-1", "#hero", "banner", "Hero", "dom_database"},
			Timestamp: time.Now(),
		},
		{
			Predicate: "fused_element",
			Args:      []interface{}{"call-1", ".cta", "button", "CTA", "accessibility_tree"},
			Timestamp: time.Now(),
		},
	}
	if err := log.AddFacts(ctx, facts); err != nil {
		t.Fatalf("AddFacts failed: %v", err)
	}

	results, err := log.Query(ctx, "fused_element(CallID, Selector, Role, Name, Source).")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	selectors := map[string]bool{}
	for _, r := range results {
		sel, ok := r["Selector"].(string)
		if !ok {
			t.Fatalf("Expected string binding for Selector, got %T", r["Selector"])
		}
		selectors[sel] = true
		if r["CallID"] != "call-1" {
			t.Errorf("Expected CallID call-1, got %v", r["CallID"])
		}
	}
	if !selectors["#hero"] || !selectors[".cta"] {
		t.Errorf("Expected both selectors bound, got %v", selectors)
	}
}

func TestLogQueryMalformed(t *testing.T) {
	log := NewLog(true, 100)
	if _, err := log.Query(context.Background(), "this is not mangle"); err == nil {
		t.Error("Expected parse error for malformed query")
	}
}
