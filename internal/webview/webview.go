// Package webview renders the browser pages and serves their static assets.
//
// Pages and assets are embedded. A project can override any of them by
// placing a file with the same name in .ralphban/templates.
package webview

import (
	"bytes"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/nibzard/ralphban-go/internal/boarddir"
)

const (
	BoardPage    = "board.html"
	SelectorPage = "selector.html"
)

//go:embed templates/*.html assets/*
var bundled embed.FS

// DefaultTemplateDir returns the template override directory for a work dir.
func DefaultTemplateDir(workDir string) string {
	return boarddir.TemplatesPath(workDir)
}

// Store loads page templates and assets, preferring files in its override
// directory over the embedded copies.
type Store struct {
	dir string
}

// NewStore creates a store whose override directory is templateDir,
// defaulting to workDir/.ralphban/templates.
func NewStore(workDir, templateDir string) *Store {
	if templateDir == "" {
		templateDir = DefaultTemplateDir(workDir)
	}
	return &Store{dir: templateDir}
}

// Dir returns the override directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load reads a page template.
func (s *Store) Load(name string) (string, error) {
	data, err := s.read("templates", name)
	if err != nil {
		return "", fmt.Errorf("read template %q: %w", name, err)
	}
	return string(data), nil
}

// Asset reads a static asset by its base name.
func (s *Store) Asset(name string) ([]byte, error) {
	data, err := s.read("assets", name)
	if err != nil {
		return nil, fmt.Errorf("read asset %q: %w", name, err)
	}
	return data, nil
}

func (s *Store) read(kind, name string) ([]byte, error) {
	if name == "" {
		return nil, errors.New("name is empty")
	}
	if name != path.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fs.ErrNotExist
	}
	if s != nil && s.dir != "" {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return bundled.ReadFile(kind + "/" + name)
}

// Data holds page template variables.
type Data struct {
	Title string
	Nonce string
	// File is the root-relative task file shown by the board page.
	File string
	// Socket is the WebSocket path the page connects to.
	Socket string
}

// Renderer renders pages with strict missing-key behavior.
type Renderer struct {
	store *Store
}

// NewRenderer creates a page renderer.
func NewRenderer(store *Store) *Renderer {
	return &Renderer{store: store}
}

// Render loads and renders a page after checking its required variables.
func (r *Renderer) Render(name string, data Data) ([]byte, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("page renderer is not initialized")
	}
	if err := validateRequired(name, data); err != nil {
		return nil, err
	}
	raw, err := r.store.Load(name)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render template %q: %w", name, err)
	}
	return buf.Bytes(), nil
}

var requiredByPage = map[string][]string{
	BoardPage:    {"Nonce", "File", "Socket"},
	SelectorPage: {"Nonce", "Socket"},
}

func validateRequired(name string, data Data) error {
	reqs, ok := requiredByPage[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	for _, req := range reqs {
		var value string
		switch req {
		case "Nonce":
			value = data.Nonce
		case "File":
			value = data.File
		case "Socket":
			value = data.Socket
		}
		if value == "" {
			return fmt.Errorf("page %q requires %s", name, req)
		}
	}
	return nil
}

// NewNonce returns 32 random bytes, hex encoded.
func NewNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ContentSecurityPolicy allows only same-origin assets and scripts carrying
// nonce.
func ContentSecurityPolicy(nonce string) string {
	return strings.Join([]string{
		"default-src 'none'",
		"img-src 'self' data:",
		"style-src 'self'",
		"connect-src 'self'",
		fmt.Sprintf("script-src 'nonce-%s'", nonce),
		"base-uri 'none'",
		"form-action 'none'",
	}, "; ")
}

// contentTypes maps asset extensions to their media types.
var contentTypes = map[string]string{
	".js":  "text/javascript; charset=utf-8",
	".css": "text/css; charset=utf-8",
	".svg": "image/svg+xml",
	".png": "image/png",
}

// AssetHandler serves assets under prefix, for example "/assets/".
func AssetHandler(store *Store, prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, prefix)
		data, err := store.Asset(name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if ct, ok := contentTypes[path.Ext(name)]; ok {
			w.Header().Set("Content-Type", ct)
		}
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		_, _ = w.Write(data)
	})
}

// PageHandler renders page with a fresh nonce for each response. dataFn
// fills the per-request fields; it may reject the request by returning an
// error, which is reported as 400.
func PageHandler(renderer *Renderer, page string, dataFn func(*http.Request) (Data, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := dataFn(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		nonce, err := NewNonce()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data.Nonce = nonce
		body, err := renderer.Render(page, data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Security-Policy", ContentSecurityPolicy(nonce))
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(body)
	})
}
