package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/nibzard/ralphban-go/internal/boarddir"
	"github.com/nibzard/ralphban-go/internal/utils"
)

// Load loads configuration from multiple sources in priority order:
// 1. Defaults
// 2. User config file (~/.ralphban/ralphban.toml or OS-specific config dir)
// 3. Project config file in the current directory
// 4. Environment variables
// 5. CLI flags
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cws, err := LoadWithSources(fs, args)
	if err != nil {
		return nil, err
	}
	return cws.Config, nil
}

// LoadWithSources loads configuration and tracks the source of each value.
func LoadWithSources(fs *flag.FlagSet, args []string) (*ConfigWithSources, error) {
	cfg := &Config{}
	cws := &ConfigWithSources{Config: cfg, Sources: make(map[string]Source)}

	// 1. Set defaults (all fields start with default source)
	setDefaults(cfg)
	for _, key := range Keys() {
		cws.Sources[key] = SourceDefault
	}

	// 2. Try to load from user config file
	if path := findUserConfigFile(); path != "" {
		if err := loadConfigFile(cfg, path, cws.Sources, SourceUserFile); err != nil {
			return nil, fmt.Errorf("loading user config file %s: %w", path, err)
		}
		cws.Files = append(cws.Files, path)
	}

	// 3. Try to load from project config file (overrides user config)
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	if path := findProjectConfigFile(wd); path != "" && !containsPath(cws.Files, path) {
		if err := loadConfigFile(cfg, path, cws.Sources, SourceProjFile); err != nil {
			return nil, fmt.Errorf("loading project config file %s: %w", path, err)
		}
		cws.Files = append(cws.Files, path)
	}

	// 4. Override from environment
	if err := loadFromEnv(cfg, cws.Sources); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	// 5. Parse CLI flags (they override everything)
	if err := parseFlags(cfg, fs, args, cws.Sources); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// 6. Compute derived values
	if err := finalizeConfig(cfg, wd); err != nil {
		return nil, fmt.Errorf("finalizing config: %w", err)
	}
	return cws, nil
}

// loadConfigFile decodes a TOML file over cfg. Only keys present in the
// file change cfg, and only those are attributed to source.
func loadConfigFile(cfg *Config, path string, sources map[string]Source, source Source) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	for _, key := range Keys() {
		if md.IsDefined(key) {
			sources[key] = source
		}
	}
	return nil
}

// finalizeConfig computes derived values and resolves paths.
func finalizeConfig(cfg *Config, wd string) error {
	if cfg.Root == "" {
		cfg.Root = wd
	}
	root, err := filepath.Abs(expandPath(cfg.Root))
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}
	cfg.Root = root
	cfg.LogDir = expandPath(cfg.LogDir)

	// A schema in the project state directory is picked up without config.
	if cfg.SchemaFile == "" {
		if _, err := os.Stat(boarddir.SchemaPath(cfg.Root)); err == nil {
			cfg.SchemaFile = boarddir.SchemaPath(cfg.Root)
		}
	} else {
		cfg.SchemaFile = expandPath(cfg.SchemaFile)
		if !filepath.IsAbs(cfg.SchemaFile) {
			cfg.SchemaFile = filepath.Join(cfg.Root, cfg.SchemaFile)
		}
	}

	cfg.FilePatterns = utils.Dedupe(cfg.FilePatterns)
	cfg.ExcludeDirs = utils.Dedupe(cfg.ExcludeDirs)
	cfg.Categories = utils.Dedupe(cfg.Categories)
	return nil
}

// Problems reports settings that would keep the board from working.
func (c *Config) Problems() []string {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "addr is empty")
	}
	if len(c.FilePatterns) == 0 {
		problems = append(problems, "file_patterns is empty")
	}
	if len(c.Categories) == 0 {
		problems = append(problems, "categories is empty")
	}
	if !strings.HasSuffix(c.DefaultFile, ".json") {
		problems = append(problems, fmt.Sprintf("default_file %q must end in .json", c.DefaultFile))
	}
	if c.DebounceMS < 0 {
		problems = append(problems, "debounce_ms must not be negative")
	}
	if c.MaxScanResults <= 0 {
		problems = append(problems, "max_scan_results must be positive")
	}
	if c.ScanWorkers <= 0 {
		problems = append(problems, "scan_workers must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "logfmt":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q is not one of text, json, logfmt", c.LogFormat))
	}
	if c.SchemaFile != "" {
		if _, err := os.Stat(c.SchemaFile); err != nil {
			problems = append(problems, fmt.Sprintf("schema_file: %v", err))
		}
	}
	return problems
}

func containsPath(paths []string, path string) bool {
	for _, p := range paths {
		if filepath.Clean(p) == filepath.Clean(path) {
			return true
		}
	}
	return false
}
