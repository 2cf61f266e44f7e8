package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures all tunable settings for the IntentLens MCP server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Grounding GroundingConfig `yaml:"grounding"`
	Vision    VisionConfig    `yaml:"vision"`
	Audit     AuditConfig     `yaml:"audit"`
	Trace     TraceConfig     `yaml:"trace"`
	MCP       MCPConfig       `yaml:"mcp"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
}

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222). Required when launch is empty.
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command to start Chrome in detached mode (e.g., ["chrome", "--remote-debugging-port=9222"]).
	Launch []string `yaml:"launch"`
	// AutoStart controls whether the server launches/attaches to Chrome at startup.
	// Grounding calls that carry their own DOM context and screenshot work without a browser.
	AutoStart bool `yaml:"auto_start"`
	// Headless controls whether Chrome runs in headless mode (default: true).
	Headless *bool `yaml:"headless"`
	// Default navigation timeout (e.g., "15s").
	DefaultNavigationTimeout string `yaml:"default_navigation_timeout"`
	// Viewport width for new tabs (default: 1920).
	ViewportWidth int `yaml:"viewport_width"`
	// Viewport height for new tabs (default: 1080).
	ViewportHeight int `yaml:"viewport_height"`
	// Maximum nodes walked per accessibility tree extraction (default: 500).
	AxTreeNodeLimit int `yaml:"ax_tree_node_limit"`
	// Size of the per-tab accessibility tree memo cache (default: 16).
	AxCacheSize int `yaml:"ax_cache_size"`
}

// GroundingConfig tunes the disambiguation policy and overlay behavior.
type GroundingConfig struct {
	// Below this overall confidence the result always asks for disambiguation (default: 0.8).
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// With more than one selected element, ask below this confidence (default: 0.9).
	MultiCandidateThreshold float64 `yaml:"multi_candidate_threshold"`
	// VisualGrounding controls whether screenshots get a numbered overlay
	// attached to the reasoning request (default: true).
	VisualGrounding *bool `yaml:"visual_grounding"`
}

// VisionConfig configures the reasoning service boundary.
type VisionConfig struct {
	// Gemini model for grounding calls (default: gemini-2.0-flash).
	Model string `yaml:"model"`
	// API key; falls back to the GEMINI_API_KEY environment variable.
	APIKey string `yaml:"api_key"`
	// Attempts per call including the first (default: 3).
	MaxRetries int `yaml:"max_retries"`
}

// AuditConfig controls the embedded fact log.
type AuditConfig struct {
	Enable          bool `yaml:"enable"`
	FactBufferLimit int  `yaml:"fact_buffer_limit"`
}

// TraceConfig controls the JSONL flight recorder.
type TraceConfig struct {
	Enable bool `yaml:"enable"`
	// Directory for trace files (default: data/traces).
	Dir string `yaml:"dir"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:    "intentlens-mcp",
			Version: "0.1.0",
			LogFile: "intentlens-mcp.log",
		},
		Browser: BrowserConfig{
			AutoStart:                false,
			DefaultNavigationTimeout: "15s",
			ViewportWidth:            1920,
			ViewportHeight:           1080,
			AxTreeNodeLimit:          500,
			AxCacheSize:              16,
		},
		Grounding: GroundingConfig{
			ConfidenceThreshold:     0.8,
			MultiCandidateThreshold: 0.9,
		},
		Vision: VisionConfig{
			Model:      "gemini-2.0-flash",
			MaxRetries: 3,
		},
		Audit: AuditConfig{
			Enable:          true,
			FactBufferLimit: 2048,
		},
		Trace: TraceConfig{
			Enable: true,
			Dir:    "data/traces",
		},
		MCP: MCPConfig{
			SSEPort: 0,
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate ensures required fields exist so the server can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Browser.AutoStart {
		if c.Browser.DebuggerURL == "" && len(c.Browser.Launch) == 0 {
			return errors.New("browser.debugger_url or browser.launch must be provided")
		}
	}
	if t := c.Grounding.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("grounding.confidence_threshold must be in [0,1], got %v", t)
	}
	if t := c.Grounding.MultiCandidateThreshold; t < 0 || t > 1 {
		return fmt.Errorf("grounding.multi_candidate_threshold must be in [0,1], got %v", t)
	}
	return nil
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	if b.DefaultNavigationTimeout == "" {
		return 15 * time.Second
	}
	d, err := time.ParseDuration(b.DefaultNavigationTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// IsHeadless returns whether Chrome should run in headless mode (default: true).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1920
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 1080
	}
	return b.ViewportHeight
}

// NodeLimit returns the accessibility walk cap with a sane default.
func (b BrowserConfig) NodeLimit() int {
	if b.AxTreeNodeLimit <= 0 {
		return 500
	}
	return b.AxTreeNodeLimit
}

// CacheSize returns the accessibility memo cache size with a sane default.
func (b BrowserConfig) CacheSize() int {
	if b.AxCacheSize <= 0 {
		return 16
	}
	return b.AxCacheSize
}

// IsVisualGrounding returns whether overlays are attached to reasoning
// requests (default: true).
func (g GroundingConfig) IsVisualGrounding() bool {
	if g.VisualGrounding == nil {
		return true
	}
	return *g.VisualGrounding
}

// ResolveAPIKey returns the configured key or the GEMINI_API_KEY environment
// variable when the config leaves it empty.
func (v VisionConfig) ResolveAPIKey() string {
	if v.APIKey != "" {
		return v.APIKey
	}
	return os.Getenv("GEMINI_API_KEY")
}

// Retries returns the attempt count with a sane default.
func (v VisionConfig) Retries() int {
	if v.MaxRetries <= 0 {
		return 3
	}
	return v.MaxRetries
}

// TraceDir returns the trace directory with a sane default.
func (t TraceConfig) TraceDir() string {
	if t.Dir == "" {
		return "data/traces"
	}
	return t.Dir
}
