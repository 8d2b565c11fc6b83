package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestNewRunLogger tests creating a new run logger.
func TestNewRunLogger(t *testing.T) {
	t.Run("creates file under project slug dir", func(t *testing.T) {
		baseDir := t.TempDir()
		workDir := filepath.Join(t.TempDir(), "my-board")
		if err := os.Mkdir(workDir, 0755); err != nil {
			t.Fatal(err)
		}

		logger, err := NewRunLogger(baseDir, workDir)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		defer logger.Close()

		if !strings.HasPrefix(logger.Dir, baseDir) {
			t.Errorf("log dir %s not under base dir %s", logger.Dir, baseDir)
		}
		if !strings.HasPrefix(filepath.Base(logger.Dir), "my-board-") {
			t.Errorf("expected slugged dir name, got %s", filepath.Base(logger.Dir))
		}
		if _, err := os.Stat(logger.LogPath); err != nil {
			t.Errorf("log file not created: %v", err)
		}
	})

	t.Run("empty base dir returns error", func(t *testing.T) {
		_, err := NewRunLogger("", t.TempDir())
		if err == nil || !strings.Contains(err.Error(), "empty") {
			t.Fatalf("expected empty dir error, got %v", err)
		}
	})
}

func TestRunLoggerRecord(t *testing.T) {
	logger, err := NewRunLogger(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = logger.Record(Event{Level: "info", Message: "refresh", Board: "prd.json"})
		}()
	}
	wg.Wait()
	if err := logger.Record(Event{Level: "error", Message: "parse failed", Errors: []string{"root: bad"}}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events, err := ReadEvents(logger.LogPath)
	if err != nil {
		t.Fatalf("ReadEvents failed: %v", err)
	}
	if len(events) != 21 {
		t.Fatalf("expected 21 events, got %d", len(events))
	}
	last := events[20]
	if last.Message != "parse failed" || len(last.Errors) != 1 {
		t.Errorf("unexpected last event: %+v", last)
	}
	if last.Time.IsZero() {
		t.Error("expected time to be set")
	}

	// Recording after close is a no-op.
	if err := logger.Record(Event{Message: "late"}); err != nil {
		t.Errorf("Record after Close: %v", err)
	}
}

func TestRunLoggerCloseNil(t *testing.T) {
	var logger *RunLogger
	if err := logger.Close(); err != nil {
		t.Errorf("close nil logger failed: %v", err)
	}
	if err := logger.Record(Event{}); err != nil {
		t.Errorf("record on nil logger failed: %v", err)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"simple", "simple"},
		{"Hello World", "Hello_World"},
		{"many   spaces", "many_spaces"},
		{"special@chars!", "special_chars"},
		{"test.-_project", "test.-_project"},
		{"", "project"},
		{"___", "project"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := slugify(tt.input); got != tt.want {
				t.Errorf("slugify(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestProjectSlug(t *testing.T) {
	slug := projectSlug("/my/project")
	if !strings.HasPrefix(slug, "project-") {
		t.Errorf("expected project- prefix, got %s", slug)
	}
	if hash := strings.TrimPrefix(slug, "project-"); len(hash) != 8 {
		t.Errorf("expected 8-char hash, got %s", hash)
	}
	if projectSlug("/my/project") != slug {
		t.Error("slug not deterministic")
	}
	if projectSlug("/other/project") == slug {
		t.Error("different roots should produce different slugs")
	}
}

func TestResolveBaseDir(t *testing.T) {
	work := t.TempDir()
	if got := resolveBaseDir("logs", work); got != filepath.Join(work, "logs") {
		t.Errorf("relative base dir: got %s", got)
	}
	abs := filepath.Join(t.TempDir(), "logs")
	if got := resolveBaseDir(abs+string(filepath.Separator), work); got != abs {
		t.Errorf("absolute base dir: got %s, want %s", got, abs)
	}
}

func TestFindLatestLog(t *testing.T) {
	t.Run("picks newest jsonl", func(t *testing.T) {
		logDir := t.TempDir()
		old := time.Now().Add(-time.Hour)
		for i, name := range []string{"a.jsonl", "b.jsonl", "notes.txt"} {
			path := filepath.Join(logDir, name)
			if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
				t.Fatal(err)
			}
			mod := old.Add(time.Duration(i) * time.Minute)
			if err := os.Chtimes(path, mod, mod); err != nil {
				t.Fatal(err)
			}
		}
		if err := os.Mkdir(filepath.Join(logDir, "z.jsonl"), 0755); err != nil {
			t.Fatal(err)
		}

		latest, err := FindLatestLog(logDir)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if filepath.Base(latest) != "b.jsonl" {
			t.Errorf("expected b.jsonl, got %s", latest)
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		latest, err := FindLatestLog(filepath.Join(t.TempDir(), "missing"))
		if err != nil || latest != "" {
			t.Errorf("expected empty result, got %q, %v", latest, err)
		}
	})
}

func TestTailLog(t *testing.T) {
	content := "line1\nline2\nline3\nline4\nline5\n"
	logFile := filepath.Join(t.TempDir(), "run.jsonl")
	if err := os.WriteFile(logFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		n    int
		want string
	}{
		{"all lines", 0, content},
		{"last two", 2, "line4\nline5\n"},
		{"more than available", 10, content},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := TailLog(context.Background(), &buf, logFile, tt.n, false); err != nil {
				t.Fatalf("TailLog failed: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}

	t.Run("no trailing newline", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "partial.jsonl")
		if err := os.WriteFile(path, []byte("a\nb\nc"), 0644); err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := TailLog(context.Background(), &buf, path, 1, false); err != nil {
			t.Fatal(err)
		}
		if buf.String() != "c" {
			t.Errorf("got %q, want %q", buf.String(), "c")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		var buf bytes.Buffer
		if err := TailLog(context.Background(), &buf, filepath.Join(t.TempDir(), "nope"), 0, false); err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}

// lockedBuffer is a bytes.Buffer safe for one writer and one reader.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTailLogFollow(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "run.jsonl")
	if err := os.WriteFile(logFile, []byte("initial\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var out lockedBuffer
	done := make(chan error, 1)
	go func() { done <- TailLog(ctx, &out, logFile, 0, true) }()

	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("appended\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "appended") {
		if time.Now().After(deadline) {
			t.Fatalf("appended line never arrived, got %q", out.String())
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("TailLog returned %v", err)
	}
	if !strings.HasPrefix(out.String(), "initial\n") {
		t.Errorf("expected initial content first, got %q", out.String())
	}
}
