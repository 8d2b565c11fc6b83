// Package server exposes boards to browsers over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nibzard/ralphban-go/internal/board"
	"github.com/nibzard/ralphban-go/internal/boarddir"
	"github.com/nibzard/ralphban-go/internal/logging"
	"github.com/nibzard/ralphban-go/internal/metrics"
	"github.com/nibzard/ralphban-go/internal/scan"
	"github.com/nibzard/ralphban-go/internal/webview"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:7878"

const defaultShutdownTimeout = 5 * time.Second

// Config configures a Server.
type Config struct {
	// Root is the workspace directory; task files outside it are rejected.
	Root string
	Addr string

	// DefaultFile is the task file /board opens when no file is given.
	DefaultFile string

	Scan  scan.Options
	Board board.Options

	// TemplateDir overrides the page template directory.
	TemplateDir string

	Logger          *logging.Logger
	ShutdownTimeout time.Duration

	// OnListen is called with the base URL once the listener is bound.
	OnListen func(baseURL string)
}

// Server serves the board pages, the WebSocket transport and the JSON API.
type Server struct {
	cfg      Config
	root     string
	hub      *board.Hub
	store    *webview.Store
	renderer *webview.Renderer
	logger   *logging.Logger
	handler  http.Handler
}

// New builds a Server. Boards are opened lazily as views connect.
func New(cfg Config) (*Server, error) {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.DefaultFile == "" {
		cfg.DefaultFile = boarddir.DefaultTaskFile
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Board.Logger == nil {
		cfg.Board.Logger = cfg.Logger
	}
	if cfg.Board.HookDir == "" {
		cfg.Board.HookDir = root
	}
	if cfg.Scan.Validator == nil {
		cfg.Scan.Validator = cfg.Board.Validator
	}

	store := webview.NewStore(root, cfg.TemplateDir)
	s := &Server{
		cfg:      cfg,
		root:     root,
		hub:      board.NewHub(cfg.Board),
		store:    store,
		renderer: webview.NewRenderer(store),
		logger:   cfg.Logger,
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the board hub.
func (s *Server) Hub() *board.Hub {
	return s.hub
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/assets/", webview.AssetHandler(s.store, "/assets/"))
	mux.HandleFunc("/api/boards", s.handleBoards)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/board", s.boardPage())
	mux.Handle("/", s.selectorPage())
	return mux
}

func (s *Server) selectorPage() http.Handler {
	page := webview.PageHandler(s.renderer, webview.SelectorPage, func(*http.Request) (webview.Data, error) {
		return webview.Data{Title: "Ralphban", Socket: "/ws"}, nil
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		page.ServeHTTP(w, r)
	})
}

// boardPage renders the board for ?file=. Without a file it redirects to
// the default task file, or to the selector when there is none.
func (s *Server) boardPage() http.Handler {
	page := webview.PageHandler(s.renderer, webview.BoardPage, func(r *http.Request) (webview.Data, error) {
		rel, _, err := s.resolve(r.URL.Query().Get("file"))
		if err != nil {
			return webview.Data{}, err
		}
		return webview.Data{
			Title:  "Kanban Board: " + filepath.Base(rel),
			File:   rel,
			Socket: "/ws?file=" + url.QueryEscape(rel),
		}, nil
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("file") != "" {
			page.ServeHTTP(w, r)
			return
		}
		b, ok, err := scan.FindByName(r.Context(), s.root, s.cfg.DefaultFile, s.cfg.Scan)
		if err != nil || !ok {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		http.Redirect(w, r, BoardURL(b.Path), http.StatusFound)
	})
}

// BoardURL returns the board page path for a root-relative task file.
func BoardURL(rel string) string {
	return "/board?file=" + url.QueryEscape(rel)
}

// resolve maps a root-relative or absolute path to its slash-separated
// relative form and absolute path. The file must exist inside the root.
func (s *Server) resolve(file string) (string, string, error) {
	if file == "" {
		return "", "", errors.New("file is required")
	}
	abs, err := scan.Resolve(s.root, file)
	if err != nil {
		return "", "", err
	}
	if !scan.Exists(abs) {
		return "", "", fmt.Errorf("task file not found: %s", file)
	}
	rel, err := scan.RelPath(s.root, abs)
	if err != nil {
		return "", "", err
	}
	return rel, abs, nil
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully and closes every board.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	baseURL := "http://" + ln.Addr().String()
	s.logger.Info("", "board server listening", "url", baseURL, "root", s.root)
	if s.cfg.OnListen != nil {
		s.cfg.OnListen(baseURL)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Close boards first so open WebSocket handlers return.
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Close closes every open board.
func (s *Server) Close() error {
	return s.hub.Close()
}
