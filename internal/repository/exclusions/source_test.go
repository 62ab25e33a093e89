package exclusions

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "exclusions.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestLoadArrayFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), `["auto", "grok", " ", "auto"]`)
	s := New(path, zap.NewNop())
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.Current(); !reflect.DeepEqual(got, []string{"auto", "grok"}) {
		t.Errorf("Current() = %v", got)
	}
}

func TestLoadObjectFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), `{"excludedModels": ["o1-preview"]}`)
	s := New(path, zap.NewNop())
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.Current(); !reflect.DeepEqual(got, []string{"o1-preview"}) {
		t.Errorf("Current() = %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "absent.json"), zap.NewNop())
	if err := s.Load(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, `["auto"]`)
	s := New(path, zap.NewNop())
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := s.Load(); err == nil {
		t.Fatal("expected parse error")
	}
	if got := s.Current(); !reflect.DeepEqual(got, []string{"auto"}) {
		t.Errorf("previous list lost: %v", got)
	}
}

func TestEmptyPath(t *testing.T) {
	s := New("", zap.NewNop())
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.Current(); len(got) != 0 {
		t.Errorf("Current() = %v", got)
	}
}
