package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"intentlens-mcp-server/internal/audit"
	"intentlens-mcp-server/internal/browser"
	"intentlens-mcp-server/internal/config"
	"intentlens-mcp-server/internal/element"
	"intentlens-mcp-server/internal/grounding"
	mcpserver "intentlens-mcp-server/internal/mcp"
	"intentlens-mcp-server/internal/recorder"
	"intentlens-mcp-server/internal/vision"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the IntentLens MCP config file")
	ssePort := flag.Int("sse-port", 0, "Optional SSE port override (falls back to config)")
	flag.Parse()

	// Best-effort .env bootstrap for GEMINI_API_KEY and friends.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Before we can redirect logs, write to stderr as last resort
		log.Fatalf("failed to load config: %v", err)
	}

	// Redirect logging to file for stdio mode (stderr interferes with MCP protocol)
	if cfg.MCP.SSEPort == 0 && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			// If we can't open log file, disable logging to avoid stderr pollution
			log.SetOutput(io.Discard)
		}
	}
	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
	}

	auditLog := audit.NewLog(cfg.Audit.Enable, cfg.Audit.FactBufferLimit)

	tabs := browser.NewTabs(cfg.Browser)
	if cfg.Browser.AutoStart {
		if err := tabs.Start(ctx); err != nil {
			log.Fatalf("failed to connect to browser: %v", err)
		}
	} else {
		log.Printf("browser auto-start disabled; use launch-browser to connect later")
	}

	cachedExtractor, err := element.NewCachedExtractor(tabs, cfg.Browser.CacheSize())
	if err != nil {
		log.Fatalf("failed to initialize accessibility cache: %v", err)
	}
	fuser := element.NewFuser(cachedExtractor)

	var reasoner vision.Reasoner
	if key := cfg.Vision.ResolveAPIKey(); key != "" {
		gemini, err := vision.NewGeminiReasoner(ctx, key, cfg.Vision.Model, cfg.Vision.Retries())
		if err != nil {
			log.Fatalf("failed to initialize vision client: %v", err)
		}
		reasoner = gemini
	} else {
		log.Printf("warning: no Gemini API key configured; grounding calls will report a boundary failure")
	}

	var trace *recorder.Recorder
	if cfg.Trace.Enable {
		rec, err := recorder.NewRecorder(cfg.Trace.TraceDir())
		if err != nil {
			log.Printf("warning: trace recorder disabled: %v", err)
		} else if err := rec.Start(uuid.NewString()); err != nil {
			log.Printf("warning: trace recorder disabled: %v", err)
		} else {
			trace = rec
			defer trace.Close()
		}
	}

	pipeline := grounding.NewPipeline(grounding.Config{
		ConfidenceThreshold:     cfg.Grounding.ConfidenceThreshold,
		MultiCandidateThreshold: cfg.Grounding.MultiCandidateThreshold,
		VisualGrounding:         cfg.Grounding.IsVisualGrounding(),
	}, fuser, reasoner, auditLog, traceSink(trace))

	server, err := mcpserver.NewServer(cfg, pipeline, tabs, auditLog, cachedExtractor)
	if err != nil {
		log.Fatalf("failed to initialize MCP server: %v", err)
	}

	var startErr error
	if cfg.MCP.SSEPort > 0 {
		log.Printf("starting IntentLens MCP SSE server on port %d", cfg.MCP.SSEPort)
		startErr = server.StartSSE(ctx, cfg.MCP.SSEPort)
	} else {
		log.Printf("starting IntentLens MCP stdio server")
		startErr = server.Start(ctx)
	}

	if tabs.IsConnected() {
		if err := tabs.Shutdown(context.Background()); err != nil {
			log.Printf("browser shutdown error: %v", err)
		}
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		log.Fatalf("server exited with error: %v", startErr)
	}
}

// traceSink converts a possibly-nil recorder into the pipeline's trace
// interface without handing it a typed nil.
func traceSink(r *recorder.Recorder) grounding.TraceSink {
	if r == nil {
		return nil
	}
	return r
}
