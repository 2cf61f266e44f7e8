package vision

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	genai "google.golang.org/genai"
)

var ErrEmptyReply = errors.New("vision: empty reply from model")

const defaultMaxAttempts = 3

// GeminiReasoner is a thin wrapper around the official genai client that
// sends the grounding prompt plus the annotated screenshot and requests an
// application/json response.
type GeminiReasoner struct {
	cli         *genai.Client
	model       string
	maxAttempts int
}

// NewGeminiReasoner builds the client. The API key is read by the genai SDK
// from the environment when apiKey is empty.
func NewGeminiReasoner(ctx context.Context, apiKey, model string, maxAttempts int) (*GeminiReasoner, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &GeminiReasoner{cli: cli, model: model, maxAttempts: maxAttempts}, nil
}

func (g *GeminiReasoner) Name() string { return "Gemini:" + g.model }

// Ground dispatches one grounding request with bounded retries and
// exponential backoff. The prompt text always goes first; the screenshot is
// attached inline when present.
func (g *GeminiReasoner) Ground(ctx context.Context, req Request) (Reply, error) {
	parts := []*genai.Part{{Text: req.Prompt}}
	if req.HasScreenshot && len(req.Screenshot) > 0 {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{
			MIMEType: "image/png",
			Data:     req.Screenshot,
		}})
	}

	log.Printf("vision request (%s): %d prompt bytes, screenshot=%v", g.model, len(req.Prompt), req.HasScreenshot)

	var lastErr error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		resp, err := g.cli.Models.GenerateContent(ctx, g.model,
			[]*genai.Content{{Parts: parts}},
			&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
		)
		if err != nil {
			lastErr = err
		} else if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			lastErr = ErrEmptyReply
		} else {
			txt := resp.Candidates[0].Content.Parts[0].Text
			return Reply{Success: true, Result: json.RawMessage(txt)}, nil
		}

		select {
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		case <-time.After(time.Duration(300*(1<<attempt)) * time.Millisecond):
		}
	}
	return Reply{Success: false, Error: lastErr.Error()}, lastErr
}
