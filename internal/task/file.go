package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ParseError reports a task file that could not be read, decoded or
// validated. Errors holds one line per underlying problem.
type ParseError struct {
	Message string
	Errors  []string
}

func (e *ParseError) Error() string {
	return e.Message
}

// File is a task list together with the document it was read from.
type File struct {
	Tasks []Task

	// wrapped is true when the document is an object with a "tasks" property.
	wrapped bool
	fields  map[string]json.RawMessage
	keys    []string
}

// NewDocument returns a wrapped task file with the default template.
func NewDocument(feature string) *File {
	if feature == "" {
		feature = "New Feature"
	}
	f := &File{Tasks: []Task{}, wrapped: true, fields: make(map[string]json.RawMessage)}
	f.setField("feature", feature)
	f.setField("description", "Created via Ralphban")
	f.keys = append(f.keys, "tasks")
	return f
}

func (f *File) setField(key string, value any) {
	data, _ := json.Marshal(value)
	if _, ok := f.fields[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.fields[key] = data
}

// Wrapped reports whether the file stores its tasks under a "tasks" property.
func (f *File) Wrapped() bool {
	return f.wrapped
}

// Feature returns the "feature" metadata field, if any.
func (f *File) Feature() string {
	return f.stringField("feature")
}

// Description returns the top-level "description" metadata field, if any.
func (f *File) Description() string {
	return f.stringField("description")
}

func (f *File) stringField(key string) string {
	raw, ok := f.fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Parse decodes and validates a task file. name is only used in error
// messages. A nil validator uses DefaultValidator.
func Parse(data []byte, name string, v *Validator) (*File, error) {
	if v == nil {
		v = DefaultValidator()
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{
			Message: fmt.Sprintf("failed to parse JSON in file: %s", name),
			Errors:  []string{err.Error()},
		}
	}

	result := v.Validate(doc)
	if !result.Valid {
		msgs := result.Messages()
		if len(msgs) == 0 {
			msgs = []string{"unknown validation error"}
		}
		return nil, &ParseError{
			Message: fmt.Sprintf("JSON validation failed for file: %s", name),
			Errors:  msgs,
		}
	}

	f, err := decodeDocument(data)
	if err != nil {
		return nil, &ParseError{
			Message: fmt.Sprintf("failed to read or validate task file: %s", name),
			Errors:  []string{err.Error()},
		}
	}
	return f, nil
}

func decodeDocument(data []byte) (*File, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var tasks []Task
		if err := json.Unmarshal(trimmed, &tasks); err != nil {
			return nil, err
		}
		if tasks == nil {
			tasks = []Task{}
		}
		return &File{Tasks: tasks}, nil
	}

	keys, err := objectKeys(trimmed)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, err
	}
	var tasks []Task
	if err := json.Unmarshal(fields["tasks"], &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	if tasks == nil {
		tasks = []Task{}
	}
	delete(fields, "tasks")
	return &File{Tasks: tasks, wrapped: true, fields: fields, keys: keys}, nil
}

// Load reads and parses a task file from path. Read failures are reported
// as *ParseError as well.
func Load(path string, v *Validator) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{
			Message: fmt.Sprintf("failed to read or validate task file: %s", path),
			Errors:  []string{err.Error()},
		}
	}
	return Parse(data, path, v)
}

// MarshalJSON encodes the file in its original shape.
func (f *File) MarshalJSON() ([]byte, error) {
	tasks := f.Tasks
	if tasks == nil {
		tasks = []Task{}
	}
	if !f.wrapped {
		return json.Marshal(tasks)
	}

	w := newObjectWriter()
	wroteTasks := false
	for _, key := range f.keys {
		if key == "tasks" {
			w.field("tasks", tasks)
			wroteTasks = true
			continue
		}
		if raw, ok := f.fields[key]; ok {
			w.raw(key, raw)
		}
	}
	if !wroteTasks {
		w.field("tasks", tasks)
	}
	return w.bytes()
}

// Encode returns the file as indented JSON with a trailing newline.
func (f *File) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal task file: %w", err)
	}
	return append(data, '\n'), nil
}

// Check validates the file as it would be written, so a mutation that breaks
// the document can be rejected before it reaches disk. A nil validator uses
// DefaultValidator.
func (f *File) Check(v *Validator) error {
	if v == nil {
		v = DefaultValidator()
	}
	data, err := f.Encode()
	if err != nil {
		return err
	}
	result := v.ValidateBytes(data)
	if result.Valid {
		return nil
	}
	msgs := result.Messages()
	if len(msgs) == 0 {
		msgs = []string{"unknown validation error"}
	}
	return &ParseError{Message: "task file would fail validation", Errors: msgs}
}

// Save writes the file to path through a temporary sibling file that is
// renamed over the target.
func (f *File) Save(path string) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, mode); err != nil {
		return fmt.Errorf("write task file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace task file: %w", err)
	}
	return nil
}

// ErrFileExists is returned by Create when the target already exists.
var ErrFileExists = errors.New("task file already exists")

// Create writes a new task file from the default template. It refuses to
// overwrite an existing file.
func Create(path, feature string) (*File, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileExists, path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat task file: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create task file dir: %w", err)
		}
	}
	f := NewDocument(feature)
	if err := f.Save(path); err != nil {
		return nil, err
	}
	return f, nil
}
