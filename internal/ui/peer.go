package ui

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/nibzard/ralphban-go/internal/board"
)

var errPeerClosed = errors.New("terminal view closed")

// chanPeer delivers board messages to the terminal program. When the buffer
// is full the oldest message is dropped; every update carries the full
// state, so only the latest matters.
type chanPeer struct {
	id string

	mu     sync.Mutex
	ch     chan board.Outbound
	closed bool
}

func newChanPeer(size int) *chanPeer {
	if size <= 0 {
		size = 1
	}
	return &chanPeer{id: "tui-" + uuid.NewString(), ch: make(chan board.Outbound, size)}
}

func (p *chanPeer) ID() string { return p.id }

func (p *chanPeer) Send(msg board.Outbound) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPeerClosed
	}
	for {
		select {
		case p.ch <- msg:
			return nil
		default:
		}
		select {
		case <-p.ch:
		default:
		}
	}
}

func (p *chanPeer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
}
