// Package vision is the boundary to the external vision-capable reasoning
// service. The pipeline treats it as an opaque function from prompt + image
// to a structured judgment; timeout and retry policy live on this side of
// the boundary, not in the pipeline.
package vision

import (
	"context"
	"encoding/json"
)

// Request carries one grounding prompt across the boundary.
type Request struct {
	Prompt        string
	Screenshot    []byte // annotated PNG, nil when no overlay was produced
	HasScreenshot bool
}

// Reply is the service's raw answer. Result holds the JSON judgment when
// Success is true; Error carries the service's message otherwise.
type Reply struct {
	Success bool
	Result  json.RawMessage
	Error   string
}

// Reasoner dispatches grounding requests to a reasoning service.
type Reasoner interface {
	Name() string
	Ground(ctx context.Context, req Request) (Reply, error)
}
