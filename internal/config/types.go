package config

import (
	"time"

	"github.com/nibzard/ralphban-go/internal/boarddir"
	"github.com/nibzard/ralphban-go/internal/scan"
	"github.com/nibzard/ralphban-go/internal/task"
)

// Source represents where a configuration value came from.
type Source string

const (
	SourceDefault  Source = "default"
	SourceUserFile Source = "user file"
	SourceProjFile Source = "project file"
	SourceEnv      Source = "environment"
	SourceFlag     Source = "flag"
)

// Default values.
const (
	DefaultAddr       = "127.0.0.1:7878"
	DefaultFile       = boarddir.DefaultTaskFile
	DefaultLogDir     = "~/.ralphban"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
	DefaultDebounceMS = 300
	DefaultWorkers    = 4
)

// Config holds the full configuration for ralphban.
type Config struct {
	// Workspace root that task files are discovered under and confined to.
	Root string `toml:"root"`

	// Discovery
	FilePatterns   []string `toml:"file_patterns"`
	ExcludeDirs    []string `toml:"exclude_dirs"`
	MaxScanResults int      `toml:"max_scan_results"`
	ScanWorkers    int      `toml:"scan_workers"`
	DefaultFile    string   `toml:"default_file"`

	// Validation
	Categories []string `toml:"categories"`
	SchemaFile string   `toml:"schema_file"`

	// Server
	Addr        string `toml:"addr"`
	OpenBrowser bool   `toml:"open_browser"`
	DebounceMS  int    `toml:"debounce_ms"`

	// Hooks
	HookCommand string `toml:"hook_command"`

	// Logging configuration
	LogDir        string `toml:"log_dir"`
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
	LogTimestamps bool   `toml:"log_timestamps"`
	LogCaller     bool   `toml:"log_caller"`
}

// ConfigWithSources holds configuration along with source information for each field.
type ConfigWithSources struct {
	Config  *Config
	Sources map[string]Source
	// Files lists the config files that were read, lowest priority first.
	Files []string
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	cfg.FilePatterns = append([]string(nil), scan.DefaultPatterns...)
	cfg.ExcludeDirs = append([]string(nil), scan.DefaultExcludes...)
	cfg.MaxScanResults = scan.DefaultMaxResults
	cfg.ScanWorkers = DefaultWorkers
	cfg.DefaultFile = DefaultFile
	cfg.Categories = task.DefaultCategories()
	cfg.Addr = DefaultAddr
	cfg.DebounceMS = DefaultDebounceMS
	cfg.LogDir = DefaultLogDir
	cfg.LogLevel = DefaultLogLevel
	cfg.LogFormat = DefaultLogFormat
}

// Debounce returns the watcher quiet period.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// ScanOptions returns discovery options validating with v.
func (c *Config) ScanOptions(v *task.Validator) scan.Options {
	return scan.Options{
		Patterns:   c.FilePatterns,
		Excludes:   c.ExcludeDirs,
		MaxResults: c.MaxScanResults,
		Workers:    c.ScanWorkers,
		Validator:  v,
	}
}

// Validator compiles the task schema: the schema file when one is
// configured, otherwise the bundled schema with the configured categories.
func (c *Config) Validator() (*task.Validator, error) {
	return task.NewValidator(task.ValidatorOptions{
		SchemaPath: c.SchemaFile,
		Categories: c.Categories,
	})
}
