package config

// ExampleConfig returns an example configuration showing all available options.
func ExampleConfig() string {
	return `# ralphban configuration file
# Values can be overridden by RALPHBAN_* environment variables or CLI flags

# Workspace root (default: current directory)
# root = "."

# Glob patterns matched against root-relative paths
file_patterns = ["**/*.prd.json", "**/prd.json", "**/tasks.json"]

# Directory names never descended into
exclude_dirs = ["node_modules", ".git", ".vscode", "out", "dist"]

# Matches kept per pattern, and parallel validation workers
max_scan_results = 100
scan_workers = 4

# Task file opened by default when several exist
default_file = "prd.json"

# Category allow-list enforced by the bundled schema
categories = ["frontend", "backend", "database", "testing", "documentation", "infrastructure", "security", "functional"]

# Schema override (default: .ralphban/task-schema.json when present)
# schema_file = "task-schema.json"

# Board server
addr = "127.0.0.1:7878"
open_browser = false

# Quiet period before an external file change is pushed to views
debounce_ms = 300

# Command run after each task change with: <action> <task-key> <status> <file>
# hook_command = "/path/to/hook.sh"

# Logging (log_dir supports ~ expansion and %VAR% on Windows)
log_dir = "~/.ralphban"
log_level = "info"
log_format = "text"
log_timestamps = false
log_caller = false
`
}
