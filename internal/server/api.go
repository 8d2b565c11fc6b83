package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nibzard/ralphban-go/internal/scan"
	"github.com/nibzard/ralphban-go/internal/task"
)

// createRequest is the body of POST /api/boards.
type createRequest struct {
	Path    string `json:"path"`
	Feature string `json:"feature"`
}

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sameOrigin rejects browser requests sent from another origin. Requests
// without an Origin header, such as scripts using curl, are allowed.
func sameOrigin(r *http.Request) error {
	header := r.Header.Get("Origin")
	if header == "" {
		return nil
	}
	origin, err := url.Parse(header)
	if err != nil {
		return fmt.Errorf("invalid origin %q: %w", header, err)
	}
	if origin.Host != r.Host {
		return fmt.Errorf("cross-origin request from %s", header)
	}
	return nil
}

func (s *Server) handleBoards(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		boards, err := scan.Find(r.Context(), s.root, s.cfg.Scan)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
			return
		}
		if boards == nil {
			boards = []scan.Board{}
		}
		writeJSON(w, http.StatusOK, boards)

	case http.MethodPost:
		if err := sameOrigin(r); err != nil {
			writeJSON(w, http.StatusForbidden, apiError{Error: err.Error()})
			return
		}
		var req createRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFramePayloadBytes)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body"})
			return
		}
		b, err := s.createBoard(req.Path, req.Feature)
		switch {
		case err == nil:
			s.logger.Info(b.Path, "Created new Kanban board: "+b.Name)
			writeJSON(w, http.StatusCreated, b)
		case errors.Is(err, task.ErrFileExists):
			writeJSON(w, http.StatusConflict, apiError{Error: err.Error()})
		case errors.Is(err, scan.ErrOutsideRoot):
			writeJSON(w, http.StatusForbidden, apiError{Error: err.Error()})
		default:
			writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		}

	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
	}
}
