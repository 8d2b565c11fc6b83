// Package config handles configuration loading and defaults.
//
// Configuration is loaded from multiple sources in priority order:
// 1. Built-in defaults
// 2. User config file (~/.ralphban/ralphban.toml or OS-specific config directory)
// 3. Project config file (ralphban.toml, .ralphban.toml or .ralphban/ralphban.toml)
// 4. Environment variables (RALPHBAN_*)
// 5. CLI flags
//
// Each level overrides the previous one, so CLI flags take precedence.
//
// User-level config locations:
// - ~/.ralphban/ralphban.toml (preferred)
// - Windows: %APPDATA%\ralphban\ralphban.toml
// - macOS: ~/Library/Application Support/ralphban/ralphban.toml
// - Linux/BSD: $XDG_CONFIG_HOME/ralphban/ralphban.toml or ~/.config/ralphban/ralphban.toml
package config
