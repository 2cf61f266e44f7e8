// Package browser owns the Rod connection to Chrome and exposes live tabs as
// discovery sources for grounding: accessibility tree extraction and
// screenshot capture.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"intentlens-mcp-server/internal/config"
	"intentlens-mcp-server/internal/element"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

// Tab describes the public metadata for a tracked page.
type Tab struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Title      string    `json:"title,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

type tabRecord struct {
	meta Tab
	page *rod.Page
}

// Tabs owns the detached Chrome instance and tracks open pages. It implements
// element.TreeExtractor for the fusion engine.
type Tabs struct {
	cfg        config.BrowserConfig
	mu         sync.RWMutex
	browser    *rod.Browser
	controlURL string
	tabs       map[string]*tabRecord
}

func NewTabs(cfg config.BrowserConfig) *Tabs {
	return &Tabs{
		cfg:  cfg,
		tabs: make(map[string]*tabRecord),
	}
}

// Start connects to an existing Chrome or launches a new one using Rod's launcher.
func (t *Tabs) Start(ctx context.Context) error {
	if t.browser != nil {
		_, err := t.browser.Version()
		if err == nil {
			return nil
		}
		log.Printf("Stale browser connection detected, reconnecting...")
		_ = t.browser.Close()
		t.browser = nil
		t.controlURL = ""
		t.mu.Lock()
		t.tabs = make(map[string]*tabRecord)
		t.mu.Unlock()
	}

	controlURL := t.cfg.DebuggerURL
	if controlURL == "" && len(t.cfg.Launch) > 0 {
		bin := t.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(t.cfg.IsHeadless())
		for _, rawFlag := range t.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Fallback: let Rod pick the port and defaults.
			fallback := launcher.New().Bin(bin).Headless(t.cfg.IsHeadless())
			if alt, altErr := fallback.Launch(); altErr == nil {
				controlURL = alt
			} else {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
		} else {
			controlURL = url
		}
	}

	if controlURL == "" {
		return errors.New("no debugger_url or launch command provided")
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	t.browser = browser
	t.controlURL = controlURL
	log.Printf("Browser connected at %s", controlURL)
	return nil
}

// IsConnected returns whether the browser is currently connected.
func (t *Tabs) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.browser != nil
}

// Shutdown closes tracked pages and the underlying browser.
func (t *Tabs) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, rec := range t.tabs {
		if rec.page != nil {
			_ = rec.page.Close()
		}
		delete(t.tabs, id)
	}

	var err error
	if t.browser != nil {
		err = t.browser.Close()
		t.browser = nil
	}
	t.controlURL = ""
	log.Printf("Browser shutdown complete")
	return err
}

// List returns lightweight metadata for all known tabs.
func (t *Tabs) List() []Tab {
	t.mu.RLock()
	defer t.mu.RUnlock()

	results := make([]Tab, 0, len(t.tabs))
	for _, rec := range t.tabs {
		results = append(results, rec.meta)
	}
	return results
}

// Open creates a new page in an incognito context and tracks it.
func (t *Tabs) Open(ctx context.Context, url string) (*Tab, error) {
	if t.browser == nil {
		return nil, errors.New("browser not connected")
	}

	incognito, err := t.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             t.cfg.GetViewportWidth(),
		Height:            t.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		log.Printf("warning: failed to set viewport: %v", err)
	}

	// Best-effort load; the tab is usable even when navigation times out.
	_ = page.Timeout(t.cfg.NavigationTimeout()).Navigate(url)

	meta := Tab{
		ID:         uuid.NewString(),
		TargetID:   string(page.TargetID),
		URL:        url,
		Status:     "active",
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}

	t.mu.Lock()
	t.tabs[meta.ID] = &tabRecord{meta: meta, page: page}
	t.mu.Unlock()

	return &meta, nil
}

// Attach binds to an existing target by TargetID.
func (t *Tabs) Attach(ctx context.Context, targetID string) (*Tab, error) {
	if t.browser == nil {
		return nil, errors.New("browser not connected")
	}

	page, err := t.browser.PageFromTarget(proto.TargetTargetID(targetID))
	if err != nil {
		return nil, fmt.Errorf("attach to target %s: %w", targetID, err)
	}

	meta := Tab{
		ID:         uuid.NewString(),
		TargetID:   targetID,
		Status:     "attached",
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}

	t.mu.Lock()
	t.tabs[meta.ID] = &tabRecord{meta: meta, page: page}
	t.mu.Unlock()

	return &meta, nil
}

// Page returns the underlying Rod page for a tab when present.
func (t *Tabs) Page(tabID string) (*rod.Page, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.tabs[tabID]
	if !ok || rec.page == nil {
		return nil, false
	}
	return rec.page, true
}

// touch refreshes the last-active timestamp after a successful operation.
func (t *Tabs) touch(tabID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.tabs[tabID]; ok {
		rec.meta.LastActive = time.Now()
	}
}

// ExtractTree walks the live page and returns accessibility descriptors:
// selector, ARIA role (explicit or implied by tag), accessible name. Hidden
// and unnamed generic nodes are skipped to keep the list meaningful.
func (t *Tabs) ExtractTree(ctx context.Context, tabID string) ([]element.AxNode, error) {
	page, ok := t.Page(tabID)
	if !ok {
		return nil, fmt.Errorf("unknown tab: %s", tabID)
	}

	script := fmt.Sprintf(`
	() => {
		const implicitRoles = {
			A: 'link', BUTTON: 'button', INPUT: 'textbox', TEXTAREA: 'textbox',
			SELECT: 'combobox', IMG: 'img', NAV: 'navigation', MAIN: 'main',
			HEADER: 'banner', FOOTER: 'contentinfo', FORM: 'form', TABLE: 'table',
			H1: 'heading', H2: 'heading', H3: 'heading', H4: 'heading',
			H5: 'heading', H6: 'heading', UL: 'list', OL: 'list', LI: 'listitem'
		};

		const cssSelector = (el) => {
			if (el.id) return '#' + CSS.escape(el.id);
			const parts = [];
			let cur = el;
			while (cur && cur.nodeType === 1 && parts.length < 5) {
				let part = cur.tagName.toLowerCase();
				if (cur.id) {
					parts.unshift('#' + CSS.escape(cur.id));
					break;
				}
				if (cur.classList.length) {
					part += '.' + CSS.escape(cur.classList[0]);
				} else if (cur.parentElement) {
					const siblings = Array.from(cur.parentElement.children).filter(c => c.tagName === cur.tagName);
					if (siblings.length > 1) {
						part += ':nth-of-type(' + (siblings.indexOf(cur) + 1) + ')';
					}
				}
				parts.unshift(part);
				cur = cur.parentElement;
			}
			return parts.join(' > ');
		};

		const accessibleName = (el) => {
			const label = el.getAttribute('aria-label');
			if (label) return label.trim();
			const labelledBy = el.getAttribute('aria-labelledby');
			if (labelledBy) {
				const ref = document.getElementById(labelledBy.split(/\s+/)[0]);
				if (ref) return (ref.innerText || '').trim().slice(0, 128);
			}
			if (el.alt) return el.alt.trim();
			if (el.title) return el.title.trim();
			if (el.placeholder) return el.placeholder.trim();
			return (el.innerText || '').trim().slice(0, 128);
		};

		const out = [];
		const nodes = document.querySelectorAll('*');
		for (const el of nodes) {
			if (out.length >= %d) break;
			const style = window.getComputedStyle(el);
			if (style.display === 'none' || style.visibility === 'hidden') continue;

			const role = el.getAttribute('role') || implicitRoles[el.tagName] || '';
			const name = accessibleName(el);
			if (!role && !name) continue;

			out.push({
				selector: cssSelector(el),
				role: role || 'element',
				name: name
			});
		}
		return out;
	}
	`, t.cfg.NodeLimit())

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           script,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("accessibility walk: %w", err)
	}
	if res == nil || res.Value.Nil() {
		return nil, nil
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal accessibility tree: %w", err)
	}

	var nodes []struct {
		Selector string `json:"selector"`
		Role     string `json:"role"`
		Name     string `json:"name"`
	}
	if err := json.Unmarshal(raw, &nodes); err != nil {
		return nil, fmt.Errorf("decode accessibility tree: %w", err)
	}

	out := make([]element.AxNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Selector == "" {
			continue
		}
		out = append(out, element.AxNode{
			Selector: n.Selector,
			Role:     n.Role,
			Name:     n.Name,
		})
	}
	t.touch(tabID)
	return out, nil
}

// ClearCache satisfies element.TreeExtractor. Tabs holds no memoized trees;
// caching lives in element.CachedExtractor.
func (t *Tabs) ClearCache(tabID string) {}

// CaptureScreenshot takes a PNG screenshot of the tab's current viewport.
func (t *Tabs) CaptureScreenshot(ctx context.Context, tabID string) ([]byte, error) {
	page, ok := t.Page(tabID)
	if !ok {
		return nil, fmt.Errorf("unknown tab: %s", tabID)
	}

	data, err := page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	t.touch(tabID)
	return data, nil
}
