package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validTasks = `[{"description":"Task","category":"backend","steps":[]}]`

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func boardPaths(boards []Board) []string {
	out := make([]string, len(boards))
	for i, b := range boards {
		out[i] = b.Path
	}
	return out
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "prd.json", validTasks)
	writeFile(t, root, "features/checkout.prd.json", `{"feature":"Checkout","tasks":`+validTasks+`}`)
	writeFile(t, root, "docs/tasks.json", validTasks)
	writeFile(t, root, ".hidden/prd.json", validTasks)
	writeFile(t, root, "broken/prd.json", `{"tasks": [`)
	writeFile(t, root, "invalid/tasks.json", `[{"description":"x","category":"marketing","steps":[]}]`)
	writeFile(t, root, "node_modules/pkg/prd.json", validTasks)
	writeFile(t, root, "dist/prd.json", validTasks)
	writeFile(t, root, ".git/prd.json", validTasks)
	writeFile(t, root, "notes.json", validTasks)

	boards, err := Find(context.Background(), root, Options{})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	got := strings.Join(boardPaths(boards), ",")
	want := ".hidden/prd.json,docs/tasks.json,features/checkout.prd.json,prd.json"
	if got != want {
		t.Errorf("Find() = %s, want %s", got, want)
	}

	for _, b := range boards {
		if b.Name != filepath.Base(b.Abs) {
			t.Errorf("Name %q does not match %q", b.Name, b.Abs)
		}
		if !strings.HasPrefix(b.URI, "file:///") {
			t.Errorf("unexpected URI %q", b.URI)
		}
	}
}

func TestFindCapsPerPattern(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, root, fmt.Sprintf("f%d.prd.json", i), validTasks)
	}

	boards, err := Find(context.Background(), root, Options{Patterns: []string{"**/*.prd.json"}, MaxResults: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(boards) != 3 {
		t.Errorf("expected 3 boards, got %d", len(boards))
	}
}

func TestFindDeduplicatesAcrossPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/prd.json", validTasks)

	boards, err := Find(context.Background(), root, Options{Patterns: []string{"**/prd.json", "a/*.json"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(boards) != 1 {
		t.Errorf("expected 1 board, got %v", boardPaths(boards))
	}
}

func TestFindInvalidPattern(t *testing.T) {
	if _, err := Find(context.Background(), t.TempDir(), Options{Patterns: []string{"[oops"}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestFindCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "prd.json", validTasks)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Find(ctx, root, Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInspectReportsFailures(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "prd.json", validTasks)
	writeFile(t, root, "bad/tasks.json", `not json`)

	reports, err := Inspect(context.Background(), root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Board.Path != "bad/tasks.json" || reports[0].Err == nil {
		t.Errorf("expected bad/tasks.json to fail, got %+v", reports[0])
	}
	if reports[1].Err != nil {
		t.Errorf("expected prd.json to pass, got %v", reports[1].Err)
	}
}

func TestFindByName(t *testing.T) {
	t.Run("prefers matching name", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a/tasks.json", validTasks)
		writeFile(t, root, "b/prd.json", validTasks)

		b, ok, err := FindByName(context.Background(), root, "", Options{})
		if err != nil || !ok {
			t.Fatalf("FindByName failed: ok=%v err=%v", ok, err)
		}
		if b.Path != "b/prd.json" {
			t.Errorf("got %s, want b/prd.json", b.Path)
		}
	})

	t.Run("falls back to first", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a/tasks.json", validTasks)
		writeFile(t, root, "b/tasks.json", validTasks)

		b, ok, err := FindByName(context.Background(), root, "prd.json", Options{})
		if err != nil || !ok {
			t.Fatalf("FindByName failed: ok=%v err=%v", ok, err)
		}
		if b.Path != "a/tasks.json" {
			t.Errorf("got %s, want a/tasks.json", b.Path)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		_, ok, err := FindByName(context.Background(), t.TempDir(), "prd.json", Options{})
		if err != nil || ok {
			t.Errorf("expected not found, got ok=%v err=%v", ok, err)
		}
	})
}

func TestIsTaskFile(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(root, "prd.json"), true},
		{filepath.Join(root, "deep", "nested", "x.prd.json"), true},
		{filepath.Join(root, ".config", "tasks.json"), true},
		{filepath.Join(root, "notes.json"), false},
		{filepath.Join(filepath.Dir(root), "prd.json"), false},
	}
	for _, tt := range tests {
		if got := IsTaskFile(root, tt.path, nil); got != tt.want {
			t.Errorf("IsTaskFile(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
	if !IsTaskFile(root, filepath.Join(root, "board.json"), []string{"*.json"}) {
		t.Error("custom pattern not honoured")
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()

	abs, err := Resolve(root, "a/prd.json")
	if err != nil {
		t.Fatal(err)
	}
	if abs != filepath.Join(root, "a", "prd.json") {
		t.Errorf("Resolve() = %s", abs)
	}

	for _, bad := range []string{"../prd.json", "a/../../prd.json", ""} {
		if _, err := Resolve(root, bad); err == nil {
			t.Errorf("Resolve(%q) should fail", bad)
		}
	}
	if _, err := Resolve(root, "../x"); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("expected ErrOutsideRoot, got %v", err)
	}
}
