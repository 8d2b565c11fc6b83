package board

import (
	"path/filepath"
	"sync"
)

// Hub shares one Board between all peers viewing the same file.
type Hub struct {
	opts Options

	mu     sync.Mutex
	boards map[string]*Board
}

// NewHub returns a Hub whose boards are opened with opts. Name and OnClose
// are set per board.
func NewHub(opts Options) *Hub {
	return &Hub{opts: opts, boards: make(map[string]*Board)}
}

// Attach joins peer to the board for path, opening it if needed.
func (h *Hub) Attach(path, name string, peer Peer) (*Board, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.boards[abs]
	if !ok || b.Closed() {
		opts := h.opts
		opts.Name = name
		opts.OnClose = h.forget
		b, err = Open(abs, opts)
		if err != nil {
			return nil, err
		}
		h.boards[abs] = b
	}
	if err := b.Join(peer); err != nil {
		return nil, err
	}
	return b, nil
}

// Release removes peer from b and closes b when no peers remain.
func (h *Hub) Release(b *Board, peer Peer) {
	h.mu.Lock()
	remaining := b.Leave(peer)
	if remaining == 0 && h.boards[b.Path()] == b {
		delete(h.boards, b.Path())
	}
	h.mu.Unlock()

	if remaining == 0 {
		b.Close()
	}
}

// forget drops b from the map if it is still the registered board.
func (h *Hub) forget(b *Board) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.boards[b.Path()] == b {
		delete(h.boards, b.Path())
	}
}

// Len returns the number of open boards.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.boards)
}

// Close closes every open board.
func (h *Hub) Close() error {
	h.mu.Lock()
	boards := make([]*Board, 0, len(h.boards))
	for _, b := range h.boards {
		boards = append(boards, b)
	}
	h.mu.Unlock()

	for _, b := range boards {
		b.Close()
	}
	return nil
}
