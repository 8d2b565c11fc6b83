// Package board keeps a task file and its connected views in sync.
//
// A Board owns one task file. Views (browser tabs, the terminal board)
// join it as peers. Every mutation re-reads the file, applies the change by
// task key, writes the whole document back and pushes a full update to
// every peer. Mutations on one board are serialized. External edits are
// picked up by a debounced watcher and pushed the same way.
package board

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/nibzard/ralphban-go/internal/hooks"
	"github.com/nibzard/ralphban-go/internal/logging"
	"github.com/nibzard/ralphban-go/internal/metrics"
	"github.com/nibzard/ralphban-go/internal/task"
	"github.com/nibzard/ralphban-go/internal/watch"
)

// ErrClosed is returned when a message reaches a closed board.
var ErrClosed = errors.New("board is closed")

// Peer is a connected view. Send must be safe for concurrent use.
type Peer interface {
	ID() string
	Send(Outbound) error
}

// Options configures a Board.
type Options struct {
	// Name is the display name of the file, usually its root-relative path.
	Name       string
	Validator  *task.Validator
	Categories []string
	Debounce   time.Duration
	Logger     *logging.Logger

	// HookCommand runs after each successful mutation.
	HookCommand string
	HookDir     string

	// OnClose is called once after the board closes.
	OnClose func(*Board)
}

// Board binds one task file to its peers.
type Board struct {
	path string
	opts Options

	mu      sync.Mutex
	peers   map[string]Peer
	watcher *watch.Watcher
	closed  bool
	done    chan struct{}

	// writeMu serializes read-modify-write cycles on the file.
	writeMu sync.Mutex
}

// Open starts watching path and loads it once. A file that fails to parse
// still opens; peers receive the error on join.
func Open(path string, opts Options) (*Board, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve task file: %w", err)
	}
	if opts.Validator == nil {
		opts.Validator = task.DefaultValidator()
	}
	if len(opts.Categories) == 0 {
		opts.Categories = opts.Validator.Categories()
	}
	if opts.Name == "" {
		opts.Name = filepath.Base(abs)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	b := &Board{
		opts:  opts,
		peers: make(map[string]Peer),
		done:  make(chan struct{}),
	}
	if err := b.SetTaskFile(abs); err != nil {
		return nil, err
	}
	metrics.OpenBoards.Inc()
	b.opts.Logger.Info(b.opts.Name, "board opened", "path", abs)
	return b, nil
}

// SetTaskFile points the board at a different file, replacing the watcher,
// and pushes a full refresh.
func (b *Board) SetTaskFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve task file: %w", err)
	}
	w, err := watch.New(abs, watch.Events{
		OnChange: b.onFileChange,
		OnDelete: b.onFileDelete,
	}, watch.Options{Debounce: b.opts.Debounce, Logger: b.opts.Logger.Console()})
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		w.Close()
		return ErrClosed
	}
	old := b.watcher
	b.watcher = w
	b.path = abs
	b.mu.Unlock()

	if old != nil {
		old.Close()
		old.Wait()
	}
	b.Refresh()
	return nil
}

// Path returns the absolute path of the task file.
func (b *Board) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

// Name returns the display name of the task file.
func (b *Board) Name() string {
	return b.opts.Name
}

// Categories returns the category list sent with every update.
func (b *Board) Categories() []string {
	return b.opts.Categories
}

// Done is closed once the board has closed and OnClose has returned.
func (b *Board) Done() <-chan struct{} {
	return b.done
}

// Closed reports whether the board has been closed.
func (b *Board) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Join registers a peer and sends it the current state.
func (b *Board) Join(p Peer) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.peers[p.ID()] = p
	b.mu.Unlock()

	metrics.Peers.Inc()
	b.opts.Logger.Debug(b.opts.Name, "peer joined", "peer", p.ID())
	b.send(p, b.state())
	return nil
}

// Leave removes a peer and returns how many remain.
func (b *Board) Leave(p Peer) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.peers[p.ID()]; ok {
		delete(b.peers, p.ID())
		metrics.Peers.Dec()
	}
	return len(b.peers)
}

// PeerCount returns the number of connected peers.
func (b *Board) PeerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.peers)
}

// Close stops the watcher and detaches all peers. It is idempotent. When it
// returns no watcher callback is running.
func (b *Board) Close() error {
	return b.close(true)
}

// close shuts the board down. wait is false on the watcher's own callback
// goroutine, which cannot wait for itself.
func (b *Board) close(wait bool) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	w := b.watcher
	b.watcher = nil
	metrics.Peers.Sub(float64(len(b.peers)))
	b.peers = make(map[string]Peer)
	b.mu.Unlock()

	metrics.OpenBoards.Dec()
	var err error
	if w != nil {
		err = w.Close()
		if wait {
			w.Wait()
		}
	}
	b.opts.Logger.Info(b.opts.Name, "board closed")
	if b.opts.OnClose != nil {
		b.opts.OnClose(b)
	}
	close(b.done)
	return err
}

// Refresh loads the file and pushes the result to every peer.
func (b *Board) Refresh() {
	b.broadcast(b.state())
}

// state loads the file and returns the update or error message for it.
func (b *Board) state() Outbound {
	f, err := task.Load(b.Path(), b.opts.Validator)
	if err != nil {
		metrics.Refreshes.WithLabelValues("error").Inc()
		var pe *task.ParseError
		if errors.As(err, &pe) {
			b.opts.Logger.Error(b.opts.Name, pe.Message, pe.Errors)
			return ErrorMessage(pe.Message, pe.Errors)
		}
		msg := fmt.Sprintf("Failed to open Kanban board: %v", err)
		b.opts.Logger.Error(b.opts.Name, msg, nil)
		return ErrorMessage(msg, nil)
	}
	metrics.Refreshes.WithLabelValues("ok").Inc()
	return UpdateMessage(NewSnapshot(b.opts.Name, f), b.opts.Categories)
}

func (b *Board) snapshotPeers() []Peer {
	b.mu.Lock()
	defer b.mu.Unlock()
	peers := make([]Peer, 0, len(b.peers))
	for _, p := range b.peers {
		peers = append(peers, p)
	}
	return peers
}

func (b *Board) broadcast(msg Outbound) {
	for _, p := range b.snapshotPeers() {
		b.send(p, msg)
	}
}

func (b *Board) send(p Peer, msg Outbound) {
	if p == nil {
		return
	}
	if err := p.Send(msg); err != nil {
		b.opts.Logger.Debug(b.opts.Name, "send to peer failed", "peer", p.ID(), "err", err)
	}
}

func (b *Board) onFileChange(string) {
	metrics.WatchEvents.WithLabelValues("change").Inc()
	b.opts.Logger.Debug(b.opts.Name, "task file changed")
	b.Refresh()
}

func (b *Board) onFileDelete(string) {
	metrics.WatchEvents.WithLabelValues("delete").Inc()
	msg := fmt.Sprintf("Kanban file %s was deleted.", filepath.Base(b.Path()))
	b.opts.Logger.Warn(b.opts.Name, msg)
	b.broadcast(ClosedMessage(msg))
	b.close(false)
}

// Handle processes one inbound message. from may be nil for callers that
// are not connected views; errors are both returned and, when from is set,
// sent back to it as an error message.
func (b *Board) Handle(ctx context.Context, from Peer, msg Message) error {
	if b.Closed() {
		return ErrClosed
	}
	err := b.handle(ctx, from, msg)
	outcome := metrics.OutcomeSuccess
	switch {
	case errors.Is(err, errUnknownType):
		outcome = metrics.OutcomeIgnored
		err = nil
	case err != nil:
		outcome = metrics.OutcomeFailure
		text := fmt.Sprintf("Error handling webview message: %v", err)
		var details []string
		var pe *task.ParseError
		if errors.As(err, &pe) {
			details = pe.Errors
		}
		b.opts.Logger.Error(b.opts.Name, text, details, "type", msg.Type)
		b.send(from, ErrorMessage(text, details))
	}
	metrics.Messages.WithLabelValues(msg.Type, outcome).Inc()
	return err
}

var errUnknownType = errors.New("unknown message type")

func (b *Board) handle(ctx context.Context, from Peer, msg Message) error {
	switch msg.Type {
	case TypeUpdateTaskStatus:
		if msg.TaskID == "" || msg.NewStatus == "" {
			return fmt.Errorf("updateTaskStatus requires taskId and newStatus")
		}
		status := task.Status(msg.NewStatus)
		if !status.Valid() {
			return fmt.Errorf("invalid status %q", msg.NewStatus)
		}
		return b.mutate(ctx, "status", msg.TaskID, func(f *task.File) (task.Task, error) {
			if err := f.SetStatus(msg.TaskID, status); err != nil {
				return task.Task{}, err
			}
			return *f.Get(msg.TaskID), nil
		})

	case TypeCreateTask:
		if msg.Task == nil {
			return fmt.Errorf("createTask requires a task")
		}
		return b.mutate(ctx, "create", "", func(f *task.File) (task.Task, error) {
			return f.Add(msg.Task.Clone())
		})

	case TypeUpdateTask:
		if msg.Task == nil {
			return fmt.Errorf("updateTask requires a task")
		}
		key := msg.OriginalKey
		if key == "" {
			key = msg.Task.Key()
		}
		return b.mutate(ctx, "update", msg.Task.Key(), func(f *task.File) (task.Task, error) {
			t := msg.Task.Clone()
			return t, f.ReplaceKey(key, t)
		})

	case TypeDeleteTask:
		if msg.TaskID == "" {
			return fmt.Errorf("deleteTask requires taskId")
		}
		return b.mutate(ctx, "delete", msg.TaskID, func(f *task.File) (task.Task, error) {
			t := f.Get(msg.TaskID)
			if t == nil {
				return task.Task{}, fmt.Errorf("%w: %q", task.ErrTaskNotFound, msg.TaskID)
			}
			deleted := t.Clone()
			return deleted, f.Delete(msg.TaskID)
		})

	case TypeRefreshTasks:
		b.send(from, b.state())
		return nil

	case TypeOnInfo:
		text := msg.Text()
		b.opts.Logger.Info(b.opts.Name, text)
		b.send(from, NoticeMessage("info", text))
		return nil

	case TypeOnError:
		text := msg.Text()
		b.opts.Logger.Error(b.opts.Name, text, nil)
		b.send(from, NoticeMessage("error", text))
		return nil

	default:
		b.opts.Logger.Warn(b.opts.Name, fmt.Sprintf("Unknown message type: %s", msg.Type))
		return errUnknownType
	}
}

// mutate runs one serialized read-modify-write cycle, then refreshes every
// peer and runs the hook. apply returns the task it touched.
func (b *Board) mutate(ctx context.Context, action, key string, apply func(*task.File) (task.Task, error)) error {
	start := time.Now()
	path := b.Path()

	b.writeMu.Lock()
	f, err := task.Load(path, b.opts.Validator)
	if err != nil {
		b.writeMu.Unlock()
		return err
	}
	touched, err := apply(f)
	if err != nil {
		b.writeMu.Unlock()
		return err
	}
	if err := f.Check(b.opts.Validator); err != nil {
		b.writeMu.Unlock()
		return err
	}
	if err := f.Save(path); err != nil {
		b.writeMu.Unlock()
		return err
	}
	b.writeMu.Unlock()

	metrics.FileWrites.WithLabelValues(action).Inc()
	metrics.ObserveSince(metrics.MutationDuration.WithLabelValues(action), start)
	if key == "" {
		key = touched.Key()
	}
	b.opts.Logger.Info(b.opts.Name, "task "+action, "task", key, "status", string(touched.EffectiveStatus()))

	b.Refresh()
	b.runHook(ctx, action, key, touched, path)
	return nil
}

func (b *Board) runHook(ctx context.Context, action, key string, t task.Task, path string) {
	if b.opts.HookCommand == "" {
		return
	}
	result, err := hooks.Invoke(ctx, hooks.Options{
		Command: b.opts.HookCommand,
		Action:  action,
		TaskKey: key,
		Status:  string(t.EffectiveStatus()),
		File:    path,
		WorkDir: b.opts.HookDir,
	})
	if err != nil {
		b.opts.Logger.Warn(b.opts.Name, "hook failed", "command", b.opts.HookCommand, "exit_code", result.ExitCode, "err", err)
		return
	}
	b.opts.Logger.Debug(b.opts.Name, "hook ran", "command", result.Command)
}
