// Package audit keeps a bounded in-memory fact log of grounding diagnostics
// backed by a Mangle fact store, so call outcomes can be queried by predicate
// pattern or time window after the fact.
package audit

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/mangle/ast"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

// Fact is a normalized diagnostic event emitted by the grounding pipeline.
// Known predicates: fused_element, grounding_call, candidate.
type Fact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
	Timestamp time.Time     `json:"timestamp"`
}

// QueryResult binds query variables to fact values.
type QueryResult map[string]interface{}

// Log is the audit fact store. Facts live in a bounded temporal buffer with
// a predicate index, and are mirrored into a Mangle store for pattern queries.
type Log struct {
	mu          sync.RWMutex
	enabled     bool
	bufferLimit int
	facts       []Fact
	index       map[string][]int
	store       factstore.FactStore
}

// NewLog creates an audit log. bufferLimit <= 0 means unbounded.
func NewLog(enabled bool, bufferLimit int) *Log {
	capHint := bufferLimit
	if capHint < 64 {
		capHint = 64
	}
	return &Log{
		enabled:     enabled,
		bufferLimit: bufferLimit,
		facts:       make([]Fact, 0, capHint),
		index:       make(map[string][]int),
		store:       factstore.NewSimpleInMemoryStore(),
	}
}

// AddFacts appends facts to the buffer and mirrors them into the Mangle
// store. A disabled log accepts and drops everything.
func (l *Log) AddFacts(ctx context.Context, facts []Fact) error {
	if !l.enabled || len(facts) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	base := len(l.facts)
	l.facts = append(l.facts, facts...)
	if l.bufferLimit > 0 && len(l.facts) > l.bufferLimit {
		trim := len(l.facts) - l.bufferLimit
		l.facts = l.facts[trim:]
		l.rebuildIndex()
	} else {
		for i, f := range facts {
			l.index[f.Predicate] = append(l.index[f.Predicate], base+i)
		}
	}

	for _, f := range facts {
		l.store.Add(factToAtom(f))
	}
	return nil
}

// FactsByPredicate returns buffered facts for one predicate via the index.
func (l *Log) FactsByPredicate(predicate string) []Fact {
	l.mu.RLock()
	defer l.mu.RUnlock()

	indices, ok := l.index[predicate]
	if !ok {
		return []Fact{}
	}
	out := make([]Fact, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(l.facts) {
			out = append(out, l.facts[idx])
		}
	}
	return out
}

// QueryTemporal returns facts for a predicate within a time window. Zero
// bounds are open.
func (l *Log) QueryTemporal(predicate string, after, before time.Time) []Fact {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Fact, 0)
	for _, idx := range l.index[predicate] {
		if idx < 0 || idx >= len(l.facts) {
			continue
		}
		f := l.facts[idx]
		if (after.IsZero() || f.Timestamp.After(after)) &&
			(before.IsZero() || f.Timestamp.Before(before)) {
			out = append(out, f)
		}
	}
	return out
}

// Query runs a Mangle-syntax pattern query, e.g.
// `grounding_call(CallID, Query, Conf, Disambig, Success).`, binding
// uppercase variables to fact arguments.
func (l *Log) Query(ctx context.Context, queryStr string) ([]QueryResult, error) {
	if !l.enabled {
		return nil, fmt.Errorf("audit log disabled")
	}

	unit, err := parse.Unit(bytes.NewReader([]byte(queryStr)))
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	if len(unit.Clauses) == 0 {
		return nil, fmt.Errorf("no query found")
	}
	queryAtom := unit.Clauses[0].Head

	l.mu.RLock()
	defer l.mu.RUnlock()

	results := make([]QueryResult, 0)
	err = l.store.GetFacts(queryAtom, func(atom ast.Atom) error {
		r := make(QueryResult)
		for i, arg := range queryAtom.Args {
			if i >= len(atom.Args) {
				break
			}
			if v, ok := arg.(ast.Variable); ok {
				r[v.Symbol] = constantValue(atom.Args[i])
			}
		}
		results = append(results, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}
	return results, nil
}

// Len returns the number of buffered facts.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.facts)
}

func (l *Log) rebuildIndex() {
	l.index = make(map[string][]int)
	for i, f := range l.facts {
		l.index[f.Predicate] = append(l.index[f.Predicate], i)
	}
}

func factToAtom(f Fact) ast.Atom {
	args := make([]ast.BaseTerm, len(f.Args))
	for i, arg := range f.Args {
		args[i] = toConstant(arg)
	}
	return ast.Atom{
		Predicate: ast.PredicateSym{Symbol: f.Predicate, Arity: len(f.Args)},
		Args:      args,
	}
}

func toConstant(v interface{}) ast.Constant {
	switch val := v.(type) {
	case string:
		return ast.String(val)
	case int:
		return ast.Number(int64(val))
	case int64:
		return ast.Number(val)
	case float64:
		return ast.Float64(val)
	case bool:
		if val {
			return ast.String("true")
		}
		return ast.String("false")
	default:
		return ast.String(fmt.Sprintf("%v", v))
	}
}

func constantValue(c ast.BaseTerm) interface{} {
	switch term := c.(type) {
	case ast.Constant:
		if term.Type == ast.StringType {
			val, _ := term.StringValue()
			return val
		} else if term.Type == ast.NumberType {
			return term.NumberValue
		} else if term.Type == ast.Float64Type {
			if val, err := term.Float64Value(); err == nil {
				return val
			}
		}
		return term.String()
	case ast.Variable:
		return term.Symbol
	default:
		return fmt.Sprintf("%v", c)
	}
}
