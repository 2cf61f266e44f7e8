package recorder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRecorderRotation(t *testing.T) {
	tempDir := t.TempDir()

	r, err := NewRecorder(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	// Create more than MaxRotatedFiles
	for i := 0; i < MaxRotatedFiles+2; i++ {
		if err := r.Start("run"); err != nil {
			t.Fatal(err)
		}
		_ = r.Record(Event{Type: "grounding", CallID: "call-1", Data: map[string]string{"msg": "hello"}})
		time.Sleep(10 * time.Millisecond) // Ensure different mod times
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != MaxRotatedFiles {
		t.Errorf("expected %d files, got %d", MaxRotatedFiles, len(entries))
	}
}

func TestRecorderRecording(t *testing.T) {
	tempDir := t.TempDir()

	r, err := NewRecorder(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Start("run1"); err != nil {
		t.Fatal(err)
	}
	if err := r.Record(Event{Type: "grounding", CallID: "call-1", Data: "resolved .cta"}); err != nil {
		t.Fatal(err)
	}
	r.Close()

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 file, got %d", len(entries))
	}

	content, err := os.ReadFile(filepath.Join(tempDir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(content), `{"ts":`) {
		t.Errorf("unexpected trace content format: %s", string(content))
	}
	if !strings.Contains(string(content), `"call_id":"call-1"`) {
		t.Errorf("expected call_id in trace: %s", string(content))
	}
}

func TestRecorderNoopBeforeStart(t *testing.T) {
	r, err := NewRecorder(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Record(Event{Type: "grounding"}); err != nil {
		t.Errorf("expected recording before Start to be a no-op, got %v", err)
	}
}
