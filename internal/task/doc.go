// Package task parses, validates, and updates Kanban task files.
//
// A task file is either a bare JSON array of tasks or an object that wraps
// the array in a "tasks" property alongside free-form metadata:
//
//	{
//	  "feature": "Checkout",
//	  "description": "Created via Ralphban",
//	  "tasks": [
//	    {
//	      "id": "wire-payment-form-1718000000000",
//	      "description": "Wire payment form",
//	      "status": "in_progress",
//	      "category": "frontend",
//	      "steps": ["render fields", "submit to API"],
//	      "dependencies": ["Expose payment API"],
//	      "passes": null,
//	      "priority": "high"
//	    }
//	  ]
//	}
//
// # Validation
//
// Every file is validated against a bundled JSON Schema (draft 2020-12) before
// use. Each task needs a string description, a category from the allow-list
// and an array of step strings. Status is optional and, when present, one of
// pending, in_progress, completed or cancelled. The passes flag is optional
// and may be a boolean or null. A custom schema file can replace the bundled
// one.
//
// # Identity
//
// Tasks are addressed by key: the id when set, otherwise the description.
// Renaming a description that doubles as a key while another client edits
// the same task is ambiguous; the last write wins.
//
// # File Format
//
// When writing task files, the package:
//   - keeps the on-disk shape (array stays array, wrapped stays wrapped)
//   - keeps unknown top-level and task fields in their original order
//   - uses 2-space indentation and a trailing newline
//   - writes to a sibling .tmp file and renames it over the target
package task
