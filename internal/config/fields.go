package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nibzard/ralphban-go/internal/utils"
)

// setting binds one config key to its environment variable and CLI flag.
type setting struct {
	key     string
	flag    string
	usage   string
	boolean bool
	set     func(c *Config, v string) error
	get     func(c *Config) string
}

// envName returns the environment variable for s, e.g. RALPHBAN_LOG_LEVEL.
func (s setting) envName() string {
	return "RALPHBAN_" + strings.ToUpper(s.key)
}

func stringSetting(key, flag, usage string, field func(*Config) *string) setting {
	return setting{
		key: key, flag: flag, usage: usage,
		set: func(c *Config, v string) error {
			*field(c) = strings.TrimSpace(v)
			return nil
		},
		get: func(c *Config) string { return *field(c) },
	}
}

func intSetting(key, flag, usage string, field func(*Config) *int) setting {
	return setting{
		key: key, flag: flag, usage: usage,
		set: func(c *Config, v string) error {
			i, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: invalid integer %q", key, v)
			}
			*field(c) = i
			return nil
		},
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
	}
}

func boolSetting(key, flag, usage string, field func(*Config) *bool) setting {
	return setting{
		key: key, flag: flag, usage: usage, boolean: true,
		set: func(c *Config, v string) error {
			b, err := parseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*field(c) = b
			return nil
		},
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
	}
}

// listSetting parses comma-separated values; an empty value clears the list.
func listSetting(key, flag, usage string, field func(*Config) *[]string) setting {
	return setting{
		key: key, flag: flag, usage: usage,
		set: func(c *Config, v string) error {
			*field(c) = utils.Dedupe(utils.SplitAndTrim(v, ","))
			return nil
		},
		get: func(c *Config) string { return strings.Join(*field(c), ",") },
	}
}

// settings lists every configurable key in display order.
var settings = []setting{
	stringSetting("root", "root", "Workspace root (default: current directory)",
		func(c *Config) *string { return &c.Root }),
	listSetting("file_patterns", "patterns", "Comma-separated glob patterns for task files",
		func(c *Config) *[]string { return &c.FilePatterns }),
	listSetting("exclude_dirs", "exclude", "Comma-separated directory names skipped during discovery",
		func(c *Config) *[]string { return &c.ExcludeDirs }),
	intSetting("max_scan_results", "max-scan-results", "Maximum matches kept per pattern",
		func(c *Config) *int { return &c.MaxScanResults }),
	intSetting("scan_workers", "scan-workers", "Parallel validation workers during discovery",
		func(c *Config) *int { return &c.ScanWorkers }),
	stringSetting("default_file", "default-file", "Task file name preferred when several exist",
		func(c *Config) *string { return &c.DefaultFile }),
	listSetting("categories", "categories", "Comma-separated category allow-list",
		func(c *Config) *[]string { return &c.Categories }),
	stringSetting("schema_file", "schema", "Task schema override (default: .ralphban/task-schema.json when present)",
		func(c *Config) *string { return &c.SchemaFile }),
	stringSetting("addr", "addr", "Listen address for the board server",
		func(c *Config) *string { return &c.Addr }),
	boolSetting("open_browser", "open", "Open the board in a browser after starting",
		func(c *Config) *bool { return &c.OpenBrowser }),
	intSetting("debounce_ms", "debounce-ms", "File watcher quiet period in milliseconds",
		func(c *Config) *int { return &c.DebounceMS }),
	stringSetting("hook_command", "hook", "Command run after each task change",
		func(c *Config) *string { return &c.HookCommand }),
	stringSetting("log_dir", "log-dir", "Log directory",
		func(c *Config) *string { return &c.LogDir }),
	stringSetting("log_level", "log-level", "Log level (debug, info, warn, error)",
		func(c *Config) *string { return &c.LogLevel }),
	stringSetting("log_format", "log-format", "Log format (text, json, logfmt)",
		func(c *Config) *string { return &c.LogFormat }),
	boolSetting("log_timestamps", "log-timestamps", "Show timestamps in logs",
		func(c *Config) *bool { return &c.LogTimestamps }),
	boolSetting("log_caller", "log-caller", "Show caller location in logs",
		func(c *Config) *bool { return &c.LogCaller }),
}

// Keys returns the config keys in display order.
func Keys() []string {
	keys := make([]string, len(settings))
	for i, s := range settings {
		keys[i] = s.key
	}
	return keys
}

// Value returns the string form of key, or false for an unknown key.
func (c *Config) Value(key string) (string, bool) {
	for _, s := range settings {
		if s.key == key {
			return s.get(c), true
		}
	}
	return "", false
}

// parseBool accepts the usual spellings of true and false.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
