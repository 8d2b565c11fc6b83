package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Status represents a task status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in board column order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}

var statusLabels = map[Status]string{
	StatusPending:    "Pending",
	StatusInProgress: "In Progress",
	StatusCompleted:  "Completed",
	StatusCancelled:  "Cancelled",
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the column label for s.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// ParseStatus parses a status name, accepting a few spelling variants
// ("in-progress", "In Progress", "done", "canceled").
func ParseStatus(input string) (Status, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	switch s {
	case "pending", "todo":
		return StatusPending, nil
	case "in_progress", "doing":
		return StatusInProgress, nil
	case "completed", "done":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("invalid status %q, must be one of: pending, in_progress, completed, cancelled", input)
}

// Category is the functional area a task belongs to.
type Category string

const (
	CategoryFrontend       Category = "frontend"
	CategoryBackend        Category = "backend"
	CategoryDatabase       Category = "database"
	CategoryTesting        Category = "testing"
	CategoryDocumentation  Category = "documentation"
	CategoryInfrastructure Category = "infrastructure"
	CategorySecurity       Category = "security"
	CategoryFunctional     Category = "functional"
)

// DefaultCategories returns the category allow-list used when no custom list
// is configured.
func DefaultCategories() []string {
	return []string{
		string(CategoryFrontend),
		string(CategoryBackend),
		string(CategoryDatabase),
		string(CategoryTesting),
		string(CategoryDocumentation),
		string(CategoryInfrastructure),
		string(CategorySecurity),
		string(CategoryFunctional),
	}
}

// ErrTaskNotFound is returned when no task matches a key.
var ErrTaskNotFound = errors.New("task not found")

// Task is a single card on the board.
//
// Fields the board does not know about are kept and written back unchanged.
type Task struct {
	ID           string
	Description  string
	Status       Status
	Category     Category
	Steps        []string
	Dependencies []string
	// Passes is tri-state: nil with PassesSet=false means absent, nil with
	// PassesSet=true means an explicit null.
	Passes    *bool
	PassesSet bool
	Priority  string

	extra     map[string]json.RawMessage
	extraKeys []string
}

// Key returns the identity used to address t: its id when set, otherwise
// its description.
func (t Task) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.Description
}

// SetPasses sets the passes flag; nil writes an explicit null.
func (t *Task) SetPasses(v *bool) {
	t.Passes = v
	t.PassesSet = true
}

// EffectiveStatus returns the column a task is shown in. An explicit
// passes=true always means completed.
func (t Task) EffectiveStatus() Status {
	if t.Passes != nil && *t.Passes {
		return StatusCompleted
	}
	if strings.TrimSpace(string(t.Status)) != "" {
		return t.Status
	}
	return StatusPending
}

// IsCompleted reports whether t counts as done. An explicit passes flag
// overrides the status.
func (t Task) IsCompleted() bool {
	if t.Passes != nil {
		return *t.Passes
	}
	return t.Status == StatusCompleted
}

// knownTaskKeys lists the fields decoded into Task, in write order.
var knownTaskKeys = []string{"id", "description", "status", "category", "steps", "dependencies", "passes", "priority"}

// UnmarshalJSON decodes a task and keeps unknown fields.
func (t *Task) UnmarshalJSON(data []byte) error {
	keys, err := objectKeys(data)
	if err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out Task
	for _, key := range keys {
		value := raw[key]
		var err error
		switch key {
		case "id":
			err = json.Unmarshal(value, &out.ID)
		case "description":
			err = json.Unmarshal(value, &out.Description)
		case "status":
			err = json.Unmarshal(value, &out.Status)
		case "category":
			err = json.Unmarshal(value, &out.Category)
		case "steps":
			err = json.Unmarshal(value, &out.Steps)
		case "dependencies":
			err = json.Unmarshal(value, &out.Dependencies)
		case "passes":
			out.PassesSet = true
			err = json.Unmarshal(value, &out.Passes)
		case "priority":
			err = json.Unmarshal(value, &out.Priority)
		default:
			if out.extra == nil {
				out.extra = make(map[string]json.RawMessage)
			}
			out.extra[key] = value
			out.extraKeys = append(out.extraKeys, key)
		}
		if err != nil {
			return fmt.Errorf("decode task field %q: %w", key, err)
		}
	}
	*t = out
	return nil
}

// MarshalJSON encodes known fields first, then preserved unknown fields.
func (t Task) MarshalJSON() ([]byte, error) {
	w := newObjectWriter()
	if t.ID != "" {
		w.field("id", t.ID)
	}
	w.field("description", t.Description)
	if t.Status != "" {
		w.field("status", t.Status)
	}
	w.field("category", t.Category)
	steps := t.Steps
	if steps == nil {
		steps = []string{}
	}
	w.field("steps", steps)
	if t.Dependencies != nil {
		w.field("dependencies", t.Dependencies)
	}
	if t.PassesSet || t.Passes != nil {
		w.field("passes", t.Passes)
	}
	if t.Priority != "" {
		w.field("priority", t.Priority)
	}
	for _, key := range t.extraKeys {
		w.raw(key, t.extra[key])
	}
	return w.bytes()
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	c := t
	c.Steps = cloneStrings(t.Steps)
	c.Dependencies = cloneStrings(t.Dependencies)
	if t.Passes != nil {
		v := *t.Passes
		c.Passes = &v
	}
	if t.extra != nil {
		c.extra = make(map[string]json.RawMessage, len(t.extra))
		for k, v := range t.extra {
			c.extra[k] = v
		}
		c.extraKeys = cloneStrings(t.extraKeys)
	}
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// objectWriter builds a JSON object with a fixed key order.
type objectWriter struct {
	buf   bytes.Buffer
	err   error
	count int
}

func newObjectWriter() *objectWriter {
	w := &objectWriter{}
	w.buf.WriteByte('{')
	return w
}

func (w *objectWriter) field(key string, value any) {
	if w.err != nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		w.err = fmt.Errorf("encode field %q: %w", key, err)
		return
	}
	w.raw(key, data)
}

func (w *objectWriter) raw(key string, value json.RawMessage) {
	if w.err != nil {
		return
	}
	if w.count > 0 {
		w.buf.WriteByte(',')
	}
	name, _ := json.Marshal(key)
	w.buf.Write(name)
	w.buf.WriteByte(':')
	if len(value) == 0 {
		w.buf.WriteString("null")
	} else {
		w.buf.Write(value)
	}
	w.count++
}

func (w *objectWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	w.buf.WriteByte('}')
	return w.buf.Bytes(), nil
}

// objectKeys returns the top-level keys of a JSON object in document order.
func objectKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object")
	}
	var keys []string
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key")
		}
		if !seen[key] {
			keys = append(keys, key)
			seen[key] = true
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
