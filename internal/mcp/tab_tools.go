package mcp

import (
	"context"
	"fmt"

	"intentlens-mcp-server/internal/browser"
)

type LaunchBrowserTool struct {
	tabs *browser.Tabs
}

func (t *LaunchBrowserTool) Name() string { return "launch-browser" }
func (t *LaunchBrowserTool) Description() string {
	return `Connect to (or launch) the Chrome instance used for live extraction.

Live accessibility trees and automatic screenshots require a connected
browser; grounding calls that carry their own dom_elements and screenshot
work without one.

Safe to call repeatedly: an existing healthy connection is reused.

Returns: {success, connected}.`
}
func (t *LaunchBrowserTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *LaunchBrowserTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	if err := t.tabs.Start(ctx); err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return map[string]interface{}{
		"success":   true,
		"connected": t.tabs.IsConnected(),
	}, nil
}

type ShutdownBrowserTool struct {
	tabs *browser.Tabs
}

func (t *ShutdownBrowserTool) Name() string { return "shutdown-browser" }
func (t *ShutdownBrowserTool) Description() string {
	return `Close all tracked tabs and disconnect from Chrome.

Use when live extraction is done; grounding from supplied context keeps
working afterwards.

Returns: {success}.`
}
func (t *ShutdownBrowserTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ShutdownBrowserTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	if err := t.tabs.Shutdown(ctx); err != nil {
		return nil, fmt.Errorf("shutdown browser: %w", err)
	}
	return map[string]interface{}{"success": true}, nil
}

type OpenTabTool struct {
	tabs *browser.Tabs
}

func (t *OpenTabTool) Name() string { return "open-tab" }
func (t *OpenTabTool) Description() string {
	return `Open a new incognito tab and navigate it.

PREREQUISITE: launch-browser.

The returned tab id feeds ground-intent and fuse-elements as tab_id for
live accessibility extraction and automatic screenshots.

Returns: {success, tab: {id, url, ...}}.`
}
func (t *OpenTabTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to navigate after opening (default about:blank)",
			},
		},
	}
}
func (t *OpenTabTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	url := getStringArg(args, "url")
	if url == "" {
		url = "about:blank"
	}

	tab, err := t.tabs.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"tab":     tab,
	}, nil
}

type ListTabsTool struct {
	tabs *browser.Tabs
}

func (t *ListTabsTool) Name() string { return "list-tabs" }
func (t *ListTabsTool) Description() string {
	return `List all tracked browser tabs.

Returns tab ids usable as tab_id in ground-intent, fuse-elements, and
clear-ax-cache.

Returns: {success, tabs: [{id, url, title, status}], count}.`
}
func (t *ListTabsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListTabsTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	tabs := t.tabs.List()
	return map[string]interface{}{
		"success": true,
		"tabs":    tabs,
		"count":   len(tabs),
	}, nil
}
