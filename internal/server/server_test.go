package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nibzard/ralphban-go/internal/board"
	"github.com/nibzard/ralphban-go/internal/scan"
)

const seedTasks = `{
  "feature": "Checkout",
  "tasks": [
    {"id": "a", "description": "First", "category": "backend", "steps": [], "status": "pending"},
    {"description": "Second", "category": "frontend", "steps": []}
  ]
}`

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

// newTestServer starts a server over a workspace holding prd.json.
func newTestServer(t *testing.T) (*Server, *httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "prd.json", seedTasks)

	s, err := New(Config{Root: root, Board: board.Options{Debounce: 20 * time.Millisecond}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return s, srv, root
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRoutes(t *testing.T) {
	_, srv, _ := newTestServer(t)

	tests := []struct {
		path     string
		code     int
		contains string
		location string
	}{
		{path: "/up", code: http.StatusOK, contains: "OK"},
		{path: "/", code: http.StatusOK, contains: "board-list"},
		{path: "/board?file=prd.json", code: http.StatusOK, contains: `data-file="prd.json"`},
		{path: "/board?file=missing.json", code: http.StatusBadRequest},
		{path: "/board?file=../prd.json", code: http.StatusBadRequest},
		{path: "/board", code: http.StatusFound, location: "/board?file=prd.json"},
		{path: "/assets/kanban.js", code: http.StatusOK},
		{path: "/assets/missing.js", code: http.StatusNotFound},
		{path: "/nope", code: http.StatusNotFound},
		{path: "/metrics", code: http.StatusOK, contains: "ralphban_board_peers"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := get(t, srv, tt.path)
			if resp.StatusCode != tt.code {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.code)
			}
			if tt.location != "" && resp.Header.Get("Location") != tt.location {
				t.Errorf("Location = %q, want %q", resp.Header.Get("Location"), tt.location)
			}
			if tt.contains != "" {
				var buf bytes.Buffer
				buf.ReadFrom(resp.Body)
				if !strings.Contains(buf.String(), tt.contains) {
					t.Errorf("body does not contain %q", tt.contains)
				}
			}
		})
	}
}

func TestPagesCarryCSP(t *testing.T) {
	_, srv, _ := newTestServer(t)
	for _, path := range []string{"/", "/board?file=prd.json"} {
		resp := get(t, srv, path)
		csp := resp.Header.Get("Content-Security-Policy")
		if !strings.Contains(csp, "script-src 'nonce-") {
			t.Errorf("%s: CSP = %q", path, csp)
		}
	}
}

func TestBoardRedirectsToSelectorWithoutTaskFiles(t *testing.T) {
	s, err := New(Config{Root: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp := get(t, srv, "/board")
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/" {
		t.Errorf("status=%d location=%q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestAPIBoards(t *testing.T) {
	_, srv, root := newTestServer(t)

	resp := get(t, srv, "/api/boards")
	var boards []scan.Board
	if err := json.NewDecoder(resp.Body).Decode(&boards); err != nil {
		t.Fatal(err)
	}
	if len(boards) != 1 || boards[0].Path != "prd.json" {
		t.Fatalf("boards = %+v", boards)
	}

	post := func(body string) *http.Response {
		resp, err := http.Post(srv.URL+"/api/boards", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp = post(`{"path": "features/login.prd.json", "feature": "Login"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created scan.Board
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.Path != "features/login.prd.json" || created.Name != "login.prd.json" {
		t.Errorf("created = %+v", created)
	}
	data, err := os.ReadFile(filepath.Join(root, "features", "login.prd.json"))
	if err != nil || !strings.Contains(string(data), `"Login"`) {
		t.Errorf("file not created from template: %v\n%s", err, data)
	}

	tests := []struct {
		body string
		code int
	}{
		{`{"path": "features/login.prd.json"}`, http.StatusConflict},
		{`{"path": "../escape.json"}`, http.StatusForbidden},
		{`{"path": "notes.txt"}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if resp := post(tt.body); resp.StatusCode != tt.code {
			t.Errorf("POST %s: status = %d, want %d", tt.body, resp.StatusCode, tt.code)
		}
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/boards", nil)
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status = %d", del.StatusCode)
	}
}

func TestAPIBoardsRejectsCrossOrigin(t *testing.T) {
	_, srv, root := newTestServer(t)

	tests := []struct {
		name   string
		origin string
		path   string
		code   int
	}{
		{"other site", "http://evil.example", "evil.prd.json", http.StatusForbidden},
		{"opaque origin", "null", "opaque.prd.json", http.StatusForbidden},
		{"same origin", srv.URL, "same.prd.json", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"path": "` + tt.path + `"}`
			req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/boards", strings.NewReader(body))
			req.Header.Set("Content-Type", "text/plain")
			req.Header.Set("Origin", tt.origin)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.code {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.code)
			}
			_, statErr := os.Stat(filepath.Join(root, tt.path))
			if created := statErr == nil; created != (tt.code == http.StatusCreated) {
				t.Errorf("file created = %v", created)
			}
		})
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "prd.json", seedTasks)

	listening := make(chan string, 1)
	s, err := New(Config{Root: root, OnListen: func(u string) { listening <- u }})
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	var base string
	select {
	case base = <-listening:
	case <-time.After(5 * time.Second):
		t.Fatal("OnListen not called")
	}
	resp, err := http.Get(base + "/up")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	// Hold a board open so shutdown has to close it.
	conn := dialWS(t, base, "/ws?file=prd.json")
	readOutbound(t, conn)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if s.Hub().Len() != 0 {
		t.Errorf("boards left open: %d", s.Hub().Len())
	}
}
