package task

import (
	"fmt"
	"strings"
	"time"
)

// now is replaced in tests.
var now = time.Now

// IndexOf returns the index of the first task whose key equals key, or -1.
func (f *File) IndexOf(key string) int {
	for i := range f.Tasks {
		if f.Tasks[i].Key() == key {
			return i
		}
	}
	return -1
}

// Get returns a task by key, or nil if not found.
func (f *File) Get(key string) *Task {
	if i := f.IndexOf(key); i >= 0 {
		return &f.Tasks[i]
	}
	return nil
}

// Lookup finds a task by key first and by description second, the same
// order dependency names resolve in. It returns nil when nothing matches.
func (f *File) Lookup(ref string) *Task {
	if t := f.Get(ref); t != nil {
		return t
	}
	for i := range f.Tasks {
		if f.Tasks[i].Description == ref {
			return &f.Tasks[i]
		}
	}
	return nil
}

// SetStatus updates the status of the task addressed by key.
func (f *File) SetStatus(key string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	i := f.IndexOf(key)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, key)
	}
	f.Tasks[i].Status = status
	return nil
}

// Add appends a task, generating an id when it has none and defaulting the
// status to pending. It returns the stored task.
func (f *File) Add(t Task) (Task, error) {
	if strings.TrimSpace(t.Description) == "" {
		return Task{}, fmt.Errorf("task description is required")
	}
	if t.ID == "" {
		t.ID = GenerateID(t.Description)
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Steps == nil {
		t.Steps = []string{}
	}
	f.Tasks = append(f.Tasks, t)
	return t, nil
}

// Replace swaps the task with the same key as t for t, keeping its position.
func (f *File) Replace(t Task) error {
	return f.ReplaceKey(t.Key(), t)
}

// ReplaceKey swaps the task addressed by key for t, keeping its position.
// t may carry a different key, which is how a task without an id is renamed.
func (f *File) ReplaceKey(key string, t Task) error {
	if t.Key() == "" {
		return fmt.Errorf("task must have either an id or description")
	}
	i := f.IndexOf(key)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, key)
	}
	if j := f.IndexOf(t.Key()); j >= 0 && j != i {
		return fmt.Errorf("another task already uses %q", t.Key())
	}
	if t.Steps == nil {
		t.Steps = []string{}
	}
	f.Tasks[i] = t
	return nil
}

// Delete removes the task addressed by key.
func (f *File) Delete(key string) error {
	i := f.IndexOf(key)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, key)
	}
	f.Tasks = append(f.Tasks[:i], f.Tasks[i+1:]...)
	return nil
}

// GenerateID builds a task id from a description slug and the current time
// in milliseconds, e.g. "wire-payment-form-1718000000000".
func GenerateID(description string) string {
	slug := Slugify(description)
	ms := now().UnixMilli()
	if slug == "" {
		return fmt.Sprintf("task-%d", ms)
	}
	return fmt.Sprintf("%s-%d", slug, ms)
}

// Slugify lowercases s and collapses every run of characters outside
// [a-z0-9] into a single hyphen, trimming hyphens at both ends.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}
