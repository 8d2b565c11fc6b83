package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nibzard/ralphban-go/internal/metrics"
	"github.com/nibzard/ralphban-go/internal/task"
)

const testDebounce = 20 * time.Millisecond

const seedTasks = `{
  "feature": "Checkout",
  "tasks": [
    {"id": "a", "description": "First", "category": "backend", "steps": [], "status": "pending"},
    {"description": "Second", "category": "frontend", "steps": ["x"], "owner": "kim"}
  ]
}`

// fakePeer records everything sent to it.
type fakePeer struct {
	id  string
	out chan Outbound
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id, out: make(chan Outbound, 64)}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(msg Outbound) error {
	select {
	case p.out <- msg:
		return nil
	default:
		return errors.New("peer buffer full")
	}
}

// next returns the next message of type typ, skipping others.
func (p *fakePeer) next(t *testing.T, typ string) Outbound {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-p.out:
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("peer %s: timed out waiting for %s", p.id, typ)
		}
	}
}

// drain discards queued messages.
func (p *fakePeer) drain() {
	for {
		select {
		case <-p.out:
		default:
			return
		}
	}
}

func writeTasks(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prd.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func openBoard(t *testing.T, path string, opts Options) *Board {
	t.Helper()
	if opts.Debounce == 0 {
		opts.Debounce = testDebounce
	}
	b, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func loadTasks(t *testing.T, path string) *task.File {
	t.Helper()
	f, err := task.Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return f
}

func TestJoinSendsSnapshot(t *testing.T) {
	path := writeTasks(t, seedTasks)
	b := openBoard(t, path, Options{Name: "prd.json"})
	peer := newFakePeer("p1")
	if err := b.Join(peer); err != nil {
		t.Fatal(err)
	}

	msg := peer.next(t, TypeUpdate)
	if msg.Data == nil {
		t.Fatal("update without data")
	}
	if msg.Data.File != "prd.json" || msg.Data.Feature != "Checkout" {
		t.Errorf("unexpected snapshot header: %+v", msg.Data)
	}
	if len(msg.Data.Tasks) != 2 || msg.Data.Stats.Total != 2 {
		t.Errorf("expected 2 tasks, got %d", len(msg.Data.Tasks))
	}
	if len(msg.Categories) != len(task.DefaultCategories()) {
		t.Errorf("expected default categories, got %v", msg.Categories)
	}
	if b.PeerCount() != 1 {
		t.Errorf("PeerCount() = %d", b.PeerCount())
	}
}

func TestJoinInvalidFileSendsError(t *testing.T) {
	path := writeTasks(t, `{"tasks": [{"description": "x"}]}`)
	b := openBoard(t, path, Options{})
	peer := newFakePeer("p1")
	if err := b.Join(peer); err != nil {
		t.Fatal(err)
	}

	msg := peer.next(t, TypeError)
	if !strings.Contains(msg.Message, "prd.json") {
		t.Errorf("error message should name the file: %q", msg.Message)
	}
	if len(msg.Errors) == 0 {
		t.Error("expected validation details")
	}
}

func TestHandleMutations(t *testing.T) {
	tests := []struct {
		name  string
		msg   Message
		check func(t *testing.T, f *task.File)
	}{
		{
			name: "status by id",
			msg:  Message{Type: TypeUpdateTaskStatus, TaskID: "a", NewStatus: "in_progress"},
			check: func(t *testing.T, f *task.File) {
				if got := f.Get("a").Status; got != task.StatusInProgress {
					t.Errorf("status = %s", got)
				}
			},
		},
		{
			name: "status by description",
			msg:  Message{Type: TypeUpdateTaskStatus, TaskID: "Second", NewStatus: "completed"},
			check: func(t *testing.T, f *task.File) {
				if got := f.Get("Second").Status; got != task.StatusCompleted {
					t.Errorf("status = %s", got)
				}
			},
		},
		{
			name: "create",
			msg: Message{Type: TypeCreateTask, Task: &task.Task{
				Description: "Third task",
				Category:    task.Category("testing"),
				Steps:       []string{"write it"},
			}},
			check: func(t *testing.T, f *task.File) {
				if len(f.Tasks) != 3 {
					t.Fatalf("expected 3 tasks, got %d", len(f.Tasks))
				}
				created := f.Tasks[2]
				if created.ID == "" || created.Status != task.StatusPending {
					t.Errorf("created task not defaulted: %+v", created)
				}
			},
		},
		{
			name: "update",
			msg: Message{Type: TypeUpdateTask, Task: &task.Task{
				ID:          "a",
				Description: "First, renamed",
				Category:    task.Category("backend"),
				Steps:       []string{"one", "two"},
				Status:      task.StatusCancelled,
			}},
			check: func(t *testing.T, f *task.File) {
				got := f.Get("a")
				if got == nil || got.Description != "First, renamed" || len(got.Steps) != 2 {
					t.Errorf("task not replaced: %+v", got)
				}
			},
		},
		{
			name: "rename task without id",
			msg: Message{Type: TypeUpdateTask, OriginalKey: "Second", Task: &task.Task{
				Description: "Second, renamed",
				Category:    task.Category("frontend"),
				Steps:       []string{"x"},
			}},
			check: func(t *testing.T, f *task.File) {
				if len(f.Tasks) != 2 {
					t.Fatalf("got %d tasks, want 2", len(f.Tasks))
				}
				got := f.Tasks[1]
				if got.Description != "Second, renamed" || got.ID != "" {
					t.Errorf("task not renamed in place: %+v", got)
				}
				if f.Get("Second") != nil {
					t.Error("old description still present")
				}
			},
		},
		{
			name: "delete",
			msg:  Message{Type: TypeDeleteTask, TaskID: "a"},
			check: func(t *testing.T, f *task.File) {
				if len(f.Tasks) != 1 || f.Get("a") != nil {
					t.Errorf("task not deleted: %+v", f.Tasks)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTasks(t, seedTasks)
			b := openBoard(t, path, Options{})
			sender := newFakePeer("sender")
			other := newFakePeer("other")
			b.Join(sender)
			b.Join(other)
			sender.drain()
			other.drain()

			if err := b.Handle(context.Background(), sender, tt.msg); err != nil {
				t.Fatalf("Handle failed: %v", err)
			}

			f := loadTasks(t, path)
			tt.check(t, f)
			if f.Feature() != "Checkout" {
				t.Error("wrapper fields lost")
			}

			// Every peer sees the change, not just the sender.
			for _, p := range []*fakePeer{sender, other} {
				msg := p.next(t, TypeUpdate)
				if msg.Data.Stats.Total != len(f.Tasks) {
					t.Errorf("peer %s got %d tasks, want %d", p.id, msg.Data.Stats.Total, len(f.Tasks))
				}
			}
		})
	}
}

func TestHandlePreservesUnknownFields(t *testing.T) {
	path := writeTasks(t, seedTasks)
	b := openBoard(t, path, Options{})

	err := b.Handle(context.Background(), nil, Message{Type: TypeUpdateTaskStatus, TaskID: "Second", NewStatus: "in_progress"})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"owner": "kim"`) {
		t.Errorf("unknown task field dropped:\n%s", data)
	}
}

func TestHandleErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"missing task id", Message{Type: TypeUpdateTaskStatus, NewStatus: "completed"}, "requires"},
		{"invalid status", Message{Type: TypeUpdateTaskStatus, TaskID: "a", NewStatus: "done"}, "invalid status"},
		{"unknown task", Message{Type: TypeUpdateTaskStatus, TaskID: "zzz", NewStatus: "completed"}, "not found"},
		{"create without task", Message{Type: TypeCreateTask}, "requires"},
		{"create without description", Message{Type: TypeCreateTask, Task: &task.Task{}}, "description"},
		{"update unknown", Message{Type: TypeUpdateTask, Task: &task.Task{ID: "nope", Description: "x"}}, "not found"},
		{"delete unknown", Message{Type: TypeDeleteTask, TaskID: "nope"}, "not found"},
		{"rename onto another task", Message{Type: TypeUpdateTask, OriginalKey: "Second", Task: &task.Task{ID: "a", Description: "x", Category: "backend", Steps: []string{}}}, "already uses"},
		{"create with unknown category", Message{Type: TypeCreateTask, Task: &task.Task{Description: "x", Category: "bogus", Steps: []string{}}}, "fail validation"},
		{"create with unknown status", Message{Type: TypeCreateTask, Task: &task.Task{Description: "x", Category: "backend", Status: "weird", Steps: []string{}}}, "fail validation"},
		{"update with unknown category", Message{Type: TypeUpdateTask, Task: &task.Task{ID: "a", Description: "First", Category: "bogus", Steps: []string{}}}, "fail validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTasks(t, seedTasks)
			before, _ := os.ReadFile(path)
			b := openBoard(t, path, Options{})
			peer := newFakePeer("p")
			b.Join(peer)
			peer.drain()

			err := b.Handle(context.Background(), peer, tt.msg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
			reply := peer.next(t, TypeError)
			if !strings.Contains(reply.Message, tt.want) {
				t.Errorf("reply %q should contain %q", reply.Message, tt.want)
			}

			after, _ := os.ReadFile(path)
			if string(before) != string(after) {
				t.Error("file changed on failed mutation")
			}

			// The board stays usable after a rejected mutation.
			if err := b.Handle(context.Background(), peer, Message{Type: TypeUpdateTaskStatus, TaskID: "a", NewStatus: "completed"}); err != nil {
				t.Errorf("follow-up mutation failed: %v", err)
			}
		})
	}
}

func TestRejectedMutationReportsSchemaErrors(t *testing.T) {
	path := writeTasks(t, seedTasks)
	b := openBoard(t, path, Options{})
	peer := newFakePeer("p")
	b.Join(peer)
	peer.drain()

	msg := Message{Type: TypeCreateTask, Task: &task.Task{Description: "x", Category: "bogus", Steps: []string{}}}
	var pe *task.ParseError
	if err := b.Handle(context.Background(), peer, msg); !errors.As(err, &pe) {
		t.Fatalf("expected *task.ParseError, got %v", err)
	}
	reply := peer.next(t, TypeError)
	if len(reply.Errors) == 0 || !strings.Contains(strings.Join(reply.Errors, "\n"), "/2/category") {
		t.Errorf("reply errors = %v", reply.Errors)
	}
}

func TestHandleUnknownTypeIsIgnored(t *testing.T) {
	path := writeTasks(t, seedTasks)
	b := openBoard(t, path, Options{})

	counter := metrics.Messages.WithLabelValues("bogus", metrics.OutcomeIgnored)
	before := testutil.ToFloat64(counter)
	if err := b.Handle(context.Background(), nil, Message{Type: "bogus"}); err != nil {
		t.Fatalf("unknown type should not fail: %v", err)
	}
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("ignored counter moved by %v", got)
	}
}

func TestHandleRefreshAndNotices(t *testing.T) {
	path := writeTasks(t, seedTasks)
	b := openBoard(t, path, Options{})
	asker := newFakePeer("asker")
	bystander := newFakePeer("bystander")
	b.Join(asker)
	b.Join(bystander)
	asker.drain()
	bystander.drain()

	if err := b.Handle(context.Background(), asker, Message{Type: TypeRefreshTasks}); err != nil {
		t.Fatal(err)
	}
	asker.next(t, TypeUpdate)
	select {
	case msg := <-bystander.out:
		t.Errorf("bystander should not be refreshed, got %s", msg.Type)
	default:
	}

	data, _ := json.Marshal("saved")
	if err := b.Handle(context.Background(), asker, Message{Type: TypeOnInfo, Data: data}); err != nil {
		t.Fatal(err)
	}
	notice := asker.next(t, TypeNotice)
	if notice.Level != "info" || notice.Message != "saved" {
		t.Errorf("unexpected notice %+v", notice)
	}

	if err := b.Handle(context.Background(), asker, Message{Type: TypeOnError, Data: json.RawMessage(`{"code":1}`)}); err != nil {
		t.Fatal(err)
	}
	notice = asker.next(t, TypeNotice)
	if notice.Level != "error" || notice.Message != `{"code":1}` {
		t.Errorf("unexpected notice %+v", notice)
	}
}

func TestConcurrentMutationsAreSerialized(t *testing.T) {
	path := writeTasks(t, seedTasks)
	b := openBoard(t, path, Options{})

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- b.Handle(context.Background(), nil, Message{Type: TypeCreateTask, Task: &task.Task{
				Description: fmt.Sprintf("Task %d", i),
				Category:    task.Category("backend"),
			}})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("create failed: %v", err)
		}
	}

	if got := len(loadTasks(t, path).Tasks); got != n+2 {
		t.Errorf("expected %d tasks, got %d", n+2, got)
	}
}

func TestExternalEditPushesUpdate(t *testing.T) {
	path := writeTasks(t, seedTasks)
	b := openBoard(t, path, Options{})
	peer := newFakePeer("p")
	b.Join(peer)
	peer.drain()

	edited := `[{"description":"Only","category":"backend","steps":[]}]`
	if err := os.WriteFile(path, []byte(edited), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-peer.out:
			if msg.Type == TypeUpdate && msg.Data.Stats.Total == 1 {
				return
			}
		case <-deadline:
			t.Fatal("external edit not pushed")
		}
	}
}

func TestDeletedFileClosesBoard(t *testing.T) {
	path := writeTasks(t, seedTasks)
	closed := make(chan *Board, 1)
	b := openBoard(t, path, Options{OnClose: func(b *Board) { closed <- b }})
	peer := newFakePeer("p")
	b.Join(peer)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	msg := peer.next(t, TypeClosed)
	if !strings.Contains(msg.Message, "prd.json was deleted") {
		t.Errorf("unexpected closed message %q", msg.Message)
	}
	select {
	case <-b.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not closed")
	}
	if got := <-closed; got != b {
		t.Error("OnClose got a different board")
	}
	if err := b.Handle(context.Background(), peer, Message{Type: TypeRefreshTasks}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := b.Join(newFakePeer("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on join, got %v", err)
	}
}

func TestSetTaskFile(t *testing.T) {
	first := writeTasks(t, seedTasks)
	second := writeTasks(t, `[{"description":"Elsewhere","category":"backend","steps":[]}]`)
	b := openBoard(t, first, Options{})
	peer := newFakePeer("p")
	b.Join(peer)
	peer.drain()

	if err := b.SetTaskFile(second); err != nil {
		t.Fatal(err)
	}
	msg := peer.next(t, TypeUpdate)
	if msg.Data.Stats.Total != 1 {
		t.Errorf("expected the second file's task, got %d", msg.Data.Stats.Total)
	}
	if b.Path() != second {
		t.Errorf("Path() = %s", b.Path())
	}

	// The old file is no longer watched.
	peer.drain()
	os.Remove(first)
	select {
	case msg := <-peer.out:
		if msg.Type == TypeClosed {
			t.Error("board closed for a file it no longer shows")
		}
	case <-time.After(10 * testDebounce):
	}
}

func TestMutationRunsHook(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hook scripts use sh")
	}
	dir := t.TempDir()
	out := filepath.Join(dir, "hook.out")
	script := filepath.Join(dir, "hook.sh")
	body := fmt.Sprintf("#!/bin/sh\necho \"$1 $2 $3\" >> %s\n", out)
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}

	path := writeTasks(t, seedTasks)
	b := openBoard(t, path, Options{HookCommand: script})
	if err := b.Handle(context.Background(), nil, Message{Type: TypeUpdateTaskStatus, TaskID: "a", NewStatus: "completed"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Handle(context.Background(), nil, Message{Type: TypeDeleteTask, TaskID: "a"}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("hook did not run: %v", err)
	}
	want := "status a completed\ndelete a completed\n"
	if string(data) != want {
		t.Errorf("hook output = %q, want %q", data, want)
	}
}

func TestFailingHookDoesNotFailMutation(t *testing.T) {
	path := writeTasks(t, seedTasks)
	b := openBoard(t, path, Options{HookCommand: filepath.Join(t.TempDir(), "missing-hook")})
	if err := b.Handle(context.Background(), nil, Message{Type: TypeUpdateTaskStatus, TaskID: "a", NewStatus: "completed"}); err != nil {
		t.Fatalf("mutation failed because of hook: %v", err)
	}
	if got := loadTasks(t, path).Get("a").Status; got != task.StatusCompleted {
		t.Errorf("status = %s", got)
	}
}
