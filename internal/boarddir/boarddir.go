// Package boarddir provides constants and paths for the .ralphban directory.
package boarddir

import "path/filepath"

const (
	// Dir is the name of the per-project state directory.
	Dir = ".ralphban"

	// DefaultTaskFile is the file name preferred when several task files exist.
	DefaultTaskFile = "prd.json"

	// DefaultSchemaFile overrides the bundled task schema when present in Dir.
	DefaultSchemaFile = "task-schema.json"

	// DefaultConfigFile is the project config file name.
	DefaultConfigFile = "ralphban.toml"

	// TemplatesDir holds page template overrides inside Dir.
	TemplatesDir = "templates"
)

// DirPath returns the .ralphban directory within workDir.
func DirPath(workDir string) string {
	if workDir == "" {
		workDir = "."
	}
	return filepath.Join(workDir, Dir)
}

// SchemaPath returns the schema override path within workDir.
func SchemaPath(workDir string) string {
	return filepath.Join(DirPath(workDir), DefaultSchemaFile)
}

// ConfigPath returns the config file path inside the .ralphban directory.
func ConfigPath(workDir string) string {
	return filepath.Join(DirPath(workDir), DefaultConfigFile)
}

// TemplatesPath returns the template override directory within workDir.
func TemplatesPath(workDir string) string {
	return filepath.Join(DirPath(workDir), TemplatesDir)
}
