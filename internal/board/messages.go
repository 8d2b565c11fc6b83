package board

import (
	"encoding/json"
	"strings"

	"github.com/nibzard/ralphban-go/internal/task"
)

// Inbound message types sent by a view.
const (
	TypeUpdateTaskStatus = "updateTaskStatus"
	TypeCreateTask       = "createTask"
	TypeUpdateTask       = "updateTask"
	TypeDeleteTask       = "deleteTask"
	TypeRefreshTasks     = "refreshTasks"
	TypeOnInfo           = "onInfo"
	TypeOnError          = "onError"
)

// Outbound message types pushed to a view.
const (
	TypeUpdate = "update"
	TypeError  = "error"
	TypeClosed = "closed"
	TypeNotice = "notice"
)

// Message is one inbound message from a view.
type Message struct {
	Type      string          `json:"type"`
	TaskID    string          `json:"taskId,omitempty"`
	NewStatus string          `json:"newStatus,omitempty"`
	Task      *task.Task      `json:"task,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`

	// OriginalKey addresses the task an updateTask replaces when the edit
	// changes its key, e.g. renaming a task that has no id.
	OriginalKey string `json:"originalKey,omitempty"`
}

// Text returns Data as text: the decoded string when Data is a JSON string,
// otherwise the raw JSON.
func (m Message) Text() string {
	if len(m.Data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Data, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(m.Data))
}

// Snapshot is the full board state carried by an update message.
type Snapshot struct {
	File        string        `json:"file"`
	Feature     string        `json:"feature,omitempty"`
	Description string        `json:"description,omitempty"`
	Tasks       []task.Task   `json:"tasks"`
	Columns     []task.Column `json:"columns"`
	Stats       task.Stats    `json:"stats"`
	// Blocked holds the keys of tasks with an unfinished dependency.
	Blocked map[string]bool `json:"blocked,omitempty"`
}

// NewSnapshot derives the board state from a loaded file. name is the
// display name of the file.
func NewSnapshot(name string, f *task.File) *Snapshot {
	tasks := f.Tasks
	if tasks == nil {
		tasks = []task.Task{}
	}
	s := &Snapshot{
		File:        name,
		Feature:     f.Feature(),
		Description: f.Description(),
		Tasks:       tasks,
		Columns:     task.Columns(tasks),
		Stats:       task.ComputeStats(tasks),
	}
	for _, node := range task.Dependencies(tasks) {
		if node.IsBlocked() {
			if s.Blocked == nil {
				s.Blocked = make(map[string]bool)
			}
			s.Blocked[node.Task.Key()] = true
		}
	}
	return s
}

// Outbound is one message pushed to a view.
type Outbound struct {
	Type       string    `json:"type"`
	Data       *Snapshot `json:"data,omitempty"`
	Categories []string  `json:"categories,omitempty"`
	Message    string    `json:"message,omitempty"`
	Errors     []string  `json:"errors,omitempty"`
	Level      string    `json:"level,omitempty"`
}

// UpdateMessage wraps a snapshot in an update message.
func UpdateMessage(s *Snapshot, categories []string) Outbound {
	return Outbound{Type: TypeUpdate, Data: s, Categories: categories}
}

// ErrorMessage builds an error message.
func ErrorMessage(message string, errs []string) Outbound {
	return Outbound{Type: TypeError, Message: message, Errors: errs}
}

// NoticeMessage builds an informational or error notice.
func NoticeMessage(level, message string) Outbound {
	return Outbound{Type: TypeNotice, Level: level, Message: message}
}

// ClosedMessage tells a view its board has gone away.
func ClosedMessage(message string) Outbound {
	return Outbound{Type: TypeClosed, Message: message}
}
