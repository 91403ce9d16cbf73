package sportbuffer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLookupDefaultsToZero(t *testing.T) {
	t.Parallel()
	b := New()
	if got := b.Lookup("unknown"); got != 0 {
		t.Errorf("Lookup(unknown) = %v, want 0", got)
	}
}

func TestSetAndLookupRoundtrip(t *testing.T) {
	t.Parallel()
	b := New()
	b.Set("tok1", 0.05)
	if got := b.Lookup("tok1"); got != 0.05 {
		t.Errorf("Lookup(tok1) = %v, want 0.05", got)
	}
}

func TestLoadEmptyPathIsNoop(t *testing.T) {
	t.Parallel()
	b, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}
	if got := b.Lookup("tok1"); got != 0 {
		t.Errorf("Lookup on empty-path buffer = %v, want 0", got)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	t.Parallel()
	b, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load(missing file) returned error: %v", err)
	}
	if got := b.Lookup("tok1"); got != 0 {
		t.Errorf("Lookup on missing-file buffer = %v, want 0", got)
	}
}

func TestLoadParsesJSONTable(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "buffers.json")
	if err := os.WriteFile(path, []byte(`{"tok1": 0.02, "tok2": 0.07}`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%s) returned error: %v", path, err)
	}
	if got := b.Lookup("tok1"); got != 0.02 {
		t.Errorf("Lookup(tok1) = %v, want 0.02", got)
	}
	if got := b.Lookup("tok2"); got != 0.07 {
		t.Errorf("Lookup(tok2) = %v, want 0.07", got)
	}
	if got := b.Lookup("tok3"); got != 0 {
		t.Errorf("Lookup(tok3) = %v, want 0", got)
	}
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "buffers.json")
	if err := os.WriteFile(path, []byte(`not json`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load(invalid JSON) returned nil error, want non-nil")
	}
}
