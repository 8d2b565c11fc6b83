package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/nibzard/ralphban-go/internal/board"
	"github.com/nibzard/ralphban-go/internal/scan"
	"github.com/nibzard/ralphban-go/internal/task"
)

const (
	// Inbound frames carry whole tasks, so the cap is generous.
	maxFramePayloadBytes   = 256 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
)

// wsPeer is a board peer backed by a WebSocket connection.
type wsPeer struct {
	id   string
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	conn.MaxPayloadBytes = maxFramePayloadBytes
	return &wsPeer{id: uuid.NewString(), conn: conn}
}

func (p *wsPeer) ID() string { return p.id }

// Send writes msg as one JSON frame.
func (p *wsPeer) Send(msg board.Outbound) error {
	return p.writeFrame(msg)
}

func (p *wsPeer) writeFrame(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return websocket.JSON.Send(p.conn, v)
}

// frameLimiter enforces the per-connection rate and decode error limits.
type frameLimiter struct {
	windowStart    time.Time
	framesInWindow int
	decodeErrors   int
}

// receive reads the next frame into v. It returns done when the connection
// should be dropped, and skip when the frame was rejected but the
// connection survives.
func (l *frameLimiter) receive(conn *websocket.Conn, peer *wsPeer, v any) (skip, done bool) {
	err := websocket.JSON.Receive(conn, v)
	switch {
	case err == nil:
		l.decodeErrors = 0
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return false, true
	case errors.Is(err, websocket.ErrFrameTooLarge):
		_ = peer.Send(board.ErrorMessage("payload too large", nil))
		return true, false
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			return false, true
		}
		l.decodeErrors++
		_ = peer.Send(board.ErrorMessage("invalid frame payload", []string{err.Error()}))
		return true, l.decodeErrors >= maxDecodeErrorsPerConn
	}

	now := time.Now()
	if now.Sub(l.windowStart) >= time.Second {
		l.windowStart = now
		l.framesInWindow = 0
	}
	l.framesInWindow++
	if l.framesInWindow > maxFramesPerSecond {
		_ = peer.Send(board.ErrorMessage("rate limit exceeded", nil))
		return false, true
	}
	return false, false
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	file := r.URL.Query().Get("file")
	var rel, abs string
	if file != "" {
		var err error
		rel, abs, err = s.resolve(file)
		if err != nil {
			status := http.StatusNotFound
			if errors.Is(err, scan.ErrOutsideRoot) {
				status = http.StatusForbidden
			}
			http.Error(w, err.Error(), status)
			return
		}
	}

	websocket.Server{
		Handshake: checkOrigin,
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()
			if file == "" {
				s.serveSelector(conn)
				return
			}
			s.serveBoard(conn, rel, abs)
		},
	}.ServeHTTP(w, r)
}

// checkOrigin rejects browser connections from other origins. Clients that
// send no Origin header are allowed.
func checkOrigin(cfg *websocket.Config, r *http.Request) error {
	origin, err := websocket.Origin(cfg, r)
	if err != nil {
		return err
	}
	cfg.Origin = origin
	if origin != nil && origin.Host != r.Host {
		return fmt.Errorf("cross-origin request from %s", origin)
	}
	return nil
}

// serveBoard attaches the connection to the shared board for abs and pumps
// inbound messages into it until either side goes away.
func (s *Server) serveBoard(conn *websocket.Conn, rel, abs string) {
	peer := newWSPeer(conn)
	ctx := conn.Request().Context()

	b, err := s.hub.Attach(abs, rel, peer)
	if err != nil {
		s.logger.Error(rel, "Failed to open Kanban board", []string{err.Error()})
		_ = peer.Send(board.ErrorMessage(fmt.Sprintf("Failed to open Kanban board: %v", err), nil))
		return
	}
	defer s.hub.Release(b, peer)
	s.logger.Debug(rel, "view connected", "peer", peer.ID())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-b.Done():
		case <-ctx.Done():
		case <-stop:
			return
		}
		_ = conn.Close()
	}()

	var limiter frameLimiter
	for {
		var msg board.Message
		skip, done := limiter.receive(conn, peer, &msg)
		if done {
			return
		}
		if skip {
			continue
		}
		if err := b.Handle(ctx, peer, msg); errors.Is(err, board.ErrClosed) {
			return
		}
	}
}

// selectorFrame is one inbound message of the board list protocol.
type selectorFrame struct {
	Type    string `json:"type"`
	URI     string `json:"uri,omitempty"`
	Path    string `json:"path,omitempty"`
	Feature string `json:"feature,omitempty"`
	Data    string `json:"data,omitempty"`
}

// selectorReply is one outbound message of the board list protocol.
type selectorReply struct {
	Type    string       `json:"type"`
	Boards  []scan.Board `json:"boards,omitempty"`
	URL     string       `json:"url,omitempty"`
	Message string       `json:"message,omitempty"`
}

func (s *Server) serveSelector(conn *websocket.Conn) {
	peer := newWSPeer(conn)
	ctx := conn.Request().Context()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	var limiter frameLimiter
	for {
		var frame selectorFrame
		skip, done := limiter.receive(conn, peer, &frame)
		if done {
			return
		}
		if skip {
			continue
		}
		if err := s.handleSelector(ctx, peer, frame); err != nil {
			s.logger.Warn("", "board list request failed", "type", frame.Type, "err", err)
			_ = peer.writeFrame(selectorReply{Type: board.TypeError, Message: err.Error()})
		}
	}
}

func (s *Server) handleSelector(ctx context.Context, peer *wsPeer, frame selectorFrame) error {
	switch frame.Type {
	case "ready":
		boards, err := scan.Find(ctx, s.root, s.cfg.Scan)
		if err != nil {
			return err
		}
		if boards == nil {
			boards = []scan.Board{}
		}
		return peer.writeFrame(selectorReply{Type: "list", Boards: boards})

	case "open":
		target := frame.URI
		if u, err := url.Parse(frame.URI); err == nil && u.Scheme == "file" {
			target = u.Path
		}
		rel, _, err := s.resolve(target)
		if err != nil {
			return err
		}
		return peer.writeFrame(selectorReply{Type: "open", URL: BoardURL(rel)})

	case "create":
		b, err := s.createBoard(frame.Path, frame.Feature)
		if err != nil {
			return err
		}
		s.logger.Info(b.Path, fmt.Sprintf("Created new Kanban board: %s", b.Name))
		return peer.writeFrame(selectorReply{Type: "open", URL: BoardURL(b.Path)})

	case board.TypeOnInfo:
		s.logger.Info("", frame.Data)
		return nil

	case board.TypeOnError:
		s.logger.Error("", frame.Data, nil)
		return nil

	default:
		s.logger.Warn("", fmt.Sprintf("Unknown message type: %s", frame.Type))
		return nil
	}
}

// createBoard writes a new task file from the default template. An empty
// path uses the default file name at the root.
func (s *Server) createBoard(path, feature string) (scan.Board, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = s.cfg.DefaultFile
	}
	if !strings.HasSuffix(strings.ToLower(path), ".json") {
		return scan.Board{}, fmt.Errorf("task file must be a .json file: %s", path)
	}
	abs, err := scan.Resolve(s.root, path)
	if err != nil {
		return scan.Board{}, err
	}
	if _, err := task.Create(abs, feature); err != nil {
		return scan.Board{}, err
	}
	return scan.NewBoard(s.root, abs)
}
