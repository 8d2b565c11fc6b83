package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// bundledSchemaURL is the resource name the bundled schema is compiled under.
const bundledSchemaURL = "ralphban://task-schema.json"

// bundledSchemaTemplate is the bundled task schema; %s receives the category
// enum.
const bundledSchemaTemplate = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "Ralphban Task List",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["description", "category", "steps"],
    "properties": {
      "id": { "type": "string" },
      "description": { "type": "string" },
      "status": { "type": "string", "enum": ["pending", "in_progress", "completed", "cancelled"] },
      "category": { "type": "string", "enum": %s },
      "steps": { "type": "array", "items": { "type": "string" } },
      "dependencies": { "type": "array", "items": { "type": "string" } },
      "passes": { "type": ["boolean", "null"] },
      "priority": { "type": "string" }
    }
  }
}`

// BundledSchema returns the bundled schema JSON for the given categories.
// An empty list uses DefaultCategories.
func BundledSchema(categories []string) ([]byte, error) {
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	enum, err := json.Marshal(categories)
	if err != nil {
		return nil, fmt.Errorf("marshal categories: %w", err)
	}
	return []byte(fmt.Sprintf(bundledSchemaTemplate, enum)), nil
}

// ValidationError represents a validation error with context.
type ValidationError struct {
	Path string // JSON pointer to the error location, "root" for the document
	Err  error  // Underlying error
}

func (e *ValidationError) Error() string {
	path := e.Path
	if path == "" {
		path = "root"
	}
	return fmt.Sprintf("%s: %s", path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidationResult contains validation results.
type ValidationResult struct {
	Valid  bool
	Errors []error
}

// Messages returns the errors formatted as "path: message" lines.
func (r *ValidationResult) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, err := range r.Errors {
		out = append(out, err.Error())
	}
	return out
}

// ValidatorOptions controls how a Validator is built.
type ValidatorOptions struct {
	// SchemaPath replaces the bundled schema when set.
	SchemaPath string
	// Categories is the category allow-list for the bundled schema.
	Categories []string
}

// Validator validates decoded task documents. It is safe for concurrent use.
type Validator struct {
	schema     *jsonschema.Schema
	categories []string
}

// NewValidator compiles the schema described by opts.
func NewValidator(opts ValidatorOptions) (*Validator, error) {
	categories := opts.Categories
	if len(categories) == 0 {
		categories = DefaultCategories()
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	var (
		schema *jsonschema.Schema
		err    error
	)
	if opts.SchemaPath != "" {
		absPath, absErr := filepath.Abs(opts.SchemaPath)
		if absErr != nil {
			return nil, fmt.Errorf("invalid schema path: %w", absErr)
		}
		if _, statErr := os.Stat(absPath); statErr != nil {
			return nil, fmt.Errorf("schema file: %w", statErr)
		}
		schema, err = compiler.Compile(absPath)
	} else {
		data, dataErr := BundledSchema(categories)
		if dataErr != nil {
			return nil, dataErr
		}
		if addErr := compiler.AddResource(bundledSchemaURL, strings.NewReader(string(data))); addErr != nil {
			return nil, fmt.Errorf("add bundled schema: %w", addErr)
		}
		schema, err = compiler.Compile(bundledSchemaURL)
	}
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{schema: schema, categories: append([]string(nil), categories...)}, nil
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
	defaultErr       error
)

// DefaultValidator returns the shared validator for the bundled schema and
// default categories.
func DefaultValidator() *Validator {
	defaultOnce.Do(func() {
		defaultValidator, defaultErr = NewValidator(ValidatorOptions{})
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("bundled task schema does not compile: %v", defaultErr))
	}
	return defaultValidator
}

// Categories returns the category allow-list the validator was built with.
func (v *Validator) Categories() []string {
	return append([]string(nil), v.categories...)
}

// Validate validates a decoded JSON value. Objects with a "tasks" property
// are validated by their tasks array.
func (v *Validator) Validate(doc any) *ValidationResult {
	result := &ValidationResult{Valid: true, Errors: make([]error, 0)}

	if obj, ok := doc.(map[string]any); ok {
		if tasks, ok := obj["tasks"]; ok {
			doc = tasks
		}
	}

	if err := v.schema.Validate(doc); err != nil {
		result.Valid = false
		appendSchemaErrors(result, err)
	}
	return result
}

// ValidateBytes decodes data and validates it.
func (v *Validator) ValidateBytes(data []byte) *ValidationResult {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return &ValidationResult{
			Valid:  false,
			Errors: []error{&ValidationError{Err: fmt.Errorf("invalid JSON: %w", err)}},
		}
	}
	return v.Validate(doc)
}

func appendSchemaErrors(result *ValidationResult, err error) {
	if err == nil {
		return
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		result.Errors = append(result.Errors, err)
		return
	}

	collectSchemaErrors(result, ve)
}

func collectSchemaErrors(result *ValidationResult, err *jsonschema.ValidationError) {
	if err == nil {
		return
	}

	if len(err.Causes) == 0 {
		result.Errors = append(result.Errors, &ValidationError{
			Path: err.InstanceLocation,
			Err:  errors.New(err.Message),
		})
		return
	}

	for _, cause := range err.Causes {
		collectSchemaErrors(result, cause)
	}
}
