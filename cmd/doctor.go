package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/nibzard/ralphban-go/internal/logging"
	"github.com/nibzard/ralphban-go/internal/scan"
	"github.com/nibzard/ralphban-go/internal/task"
	"github.com/nibzard/ralphban-go/internal/utils"
)

// errDoctorFailed is returned when any check fails.
var errDoctorFailed = errors.New("doctor checks failed")

// doctorCommand checks the config, the schema and every candidate task file.
func (a *app) doctorCommand(ctx context.Context, args []string) error {
	fs := a.newFlagSet("doctor")
	verbose := fs.Bool("v", false, "Show every task file, not only failures")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return a.runDoctor(ctx, *verbose)
}

func (a *app) runDoctor(ctx context.Context, verbose bool) error {
	w := a.stdout
	fmt.Fprintln(w, "ralphban doctor")
	fmt.Fprintln(w, "===============")
	fmt.Fprintln(w)

	allOK := true

	fmt.Fprintf(w, "Workspace root: %s\n", a.cfg.Root)
	if info, err := os.Stat(a.cfg.Root); err != nil {
		fmt.Fprintf(w, "  ❌ Error: %v\n", err)
		allOK = false
	} else if !info.IsDir() {
		fmt.Fprintln(w, "  ❌ Error: not a directory")
		allOK = false
	} else {
		fmt.Fprintln(w, "  ✅ OK")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Config:")
	if len(a.sources.Files) == 0 {
		fmt.Fprintln(w, "  ⚠️  No config file (using defaults)")
	}
	for _, f := range a.sources.Files {
		fmt.Fprintf(w, "  File: %s\n", f)
	}
	if problems := a.cfg.Problems(); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(w, "  ❌ %s\n", p)
		}
		allOK = false
	} else {
		fmt.Fprintln(w, "  ✅ OK")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Schema:")
	if a.cfg.SchemaFile != "" {
		fmt.Fprintf(w, "  File: %s\n", a.cfg.SchemaFile)
	} else {
		fmt.Fprintln(w, "  Bundled schema")
	}
	v, err := a.validator()
	if err != nil {
		fmt.Fprintf(w, "  ❌ %v\n", err)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "⚠️  Some checks failed.")
		return errDoctorFailed
	}
	fmt.Fprintf(w, "  ✅ OK (categories: %v)\n", v.Categories())
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Task files:")
	reports, err := scan.Inspect(ctx, a.cfg.Root, a.cfg.ScanOptions(v))
	if err != nil {
		return fmt.Errorf("scanning task files: %w", err)
	}
	if len(reports) == 0 {
		fmt.Fprintf(w, "  ⚠️  None match %v (create one with `ralphban new`)\n", a.cfg.FilePatterns)
	}
	failed := 0
	for _, r := range reports {
		if r.Err == nil {
			if verbose {
				fmt.Fprintf(w, "  ✅ %s\n", r.Board.Path)
			}
			continue
		}
		failed++
		fmt.Fprintf(w, "  ❌ %s\n", r.Board.Path)
		for _, line := range explainTaskFile(r.Board.Abs, v, r.Err) {
			fmt.Fprintf(w, "     - %s\n", line)
		}
	}
	if failed > 0 {
		allOK = false
	} else if !verbose && len(reports) > 0 {
		fmt.Fprintf(w, "  ✅ %d valid\n", len(reports))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Log directory:")
	if dir, err := logging.FindLogDir(a.cfg.LogDir, a.cfg.Root); err != nil {
		fmt.Fprintf(w, "  ❌ %v\n", err)
		allOK = false
	} else if _, err := os.Stat(dir); err != nil {
		fmt.Fprintf(w, "  ⚠️  %s (created on first serve)\n", dir)
	} else {
		fmt.Fprintf(w, "  ✅ %s\n", dir)
	}
	fmt.Fprintln(w)

	if allOK {
		fmt.Fprintln(w, "✅ All checks passed!")
		return nil
	}
	fmt.Fprintln(w, "⚠️  Some checks failed.")
	return errDoctorFailed
}

// explainTaskFile lists the problems with one task file, naming schema
// violations by readable path such as tasks[0].category.
func explainTaskFile(path string, v *task.Validator, loadErr error) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return []string{err.Error()}
	}
	result := v.ValidateBytes(data)
	if result.Valid {
		var pe *task.ParseError
		if errors.As(loadErr, &pe) {
			return pe.Errors
		}
		return []string{loadErr.Error()}
	}

	// Schema paths are relative to the task array, which only wrapped files
	// keep under a "tasks" key.
	prefix := ""
	var wrapper map[string]json.RawMessage
	if json.Unmarshal(data, &wrapper) == nil {
		if _, ok := wrapper["tasks"]; ok {
			prefix = "/tasks"
		}
	}

	lines := make([]string, 0, len(result.Errors))
	for _, err := range result.Errors {
		var ve *task.ValidationError
		if !errors.As(err, &ve) {
			lines = append(lines, err.Error())
			continue
		}
		where := "document"
		if ve.Path != "" {
			where = utils.JSONPointerToPath(prefix + ve.Path)
		}
		lines = append(lines, fmt.Sprintf("%s: %v", where, ve.Err))
	}
	return lines
}
