package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/nibzard/ralphban-go/internal/hooks"
	"github.com/nibzard/ralphban-go/internal/scan"
	"github.com/nibzard/ralphban-go/internal/task"
)

// boardSummary is one row of `ralphban ls`.
type boardSummary struct {
	scan.Board
	Feature string     `json:"feature,omitempty"`
	Stats   task.Stats `json:"stats"`
}

// lsCommand lists the valid task files under the workspace root.
func (a *app) lsCommand(ctx context.Context, args []string) error {
	fs := a.newFlagSet("ls")
	asJSON := fs.Bool("json", false, "Print the list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	v, err := a.validator()
	if err != nil {
		return err
	}
	boards, err := scan.Find(ctx, a.cfg.Root, a.cfg.ScanOptions(v))
	if err != nil {
		return err
	}

	summaries := make([]boardSummary, 0, len(boards))
	for _, b := range boards {
		f, err := task.Load(b.Abs, v)
		if err != nil {
			// Changed since discovery; skip like discovery does.
			continue
		}
		summaries = append(summaries, boardSummary{
			Board:   b,
			Feature: f.Feature(),
			Stats:   task.ComputeStats(f.Tasks),
		})
	}

	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}
	if len(summaries) == 0 {
		fmt.Fprintf(a.stdout, "No task files found under %s.\n", a.cfg.Root)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(a.stdout)
	t.AppendHeader(table.Row{"Path", "Feature", "Tasks", "In Progress", "Completed", "Done"})
	for _, s := range summaries {
		t.AppendRow(table.Row{
			s.Path,
			s.Feature,
			s.Stats.Total,
			s.Stats.ByStatus[task.StatusInProgress],
			s.Stats.Completed,
			fmt.Sprintf("%d%%", s.Stats.Percent),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
	return nil
}

// newCommand creates a task file from the default template.
func (a *app) newCommand(args []string) error {
	fs := a.newFlagSet("new")
	feature := fs.String("feature", "", "Feature name stored in the new file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args()[1:])
	}

	path := fs.Arg(0)
	if path == "" {
		path = filepath.Join(a.cfg.Root, a.cfg.DefaultFile)
	}
	if filepath.Ext(path) != ".json" {
		return fmt.Errorf("task file must end in .json: %s", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	rel, err := scan.RelPath(a.cfg.Root, abs)
	if err != nil {
		return err
	}
	if _, err := task.Create(abs, *feature); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Created %s\n", rel)
	if !scan.IsTaskFile(a.cfg.Root, abs, a.cfg.FilePatterns) {
		fmt.Fprintf(a.stderr, "Warning: %s does not match file_patterns and will not be discovered\n", rel)
	}
	return nil
}

// moveCommand sets the status of one task, addressed by id or, failing
// that, by description.
func (a *app) moveCommand(ctx context.Context, args []string) error {
	fs := a.newFlagSet("move")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 || fs.NArg() > 3 {
		return fmt.Errorf("usage: ralphban move <task> <status> [file]")
	}
	key := fs.Arg(0)
	status, err := task.ParseStatus(fs.Arg(1))
	if err != nil {
		return err
	}

	v, err := a.validator()
	if err != nil {
		return err
	}
	abs, rel, err := a.resolveTaskFile(ctx, fs.Arg(2), v)
	if err != nil {
		return err
	}

	f, err := task.Load(abs, v)
	if err != nil {
		return err
	}
	moved := f.Lookup(key)
	if moved == nil {
		return fmt.Errorf("%w: %q", task.ErrTaskNotFound, key)
	}
	if err := f.SetStatus(moved.Key(), status); err != nil {
		return err
	}
	if err := f.Save(abs); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Moved %q to %s in %s\n", key, status.Label(), rel)

	if _, err := hooks.Invoke(ctx, hooks.Options{
		Command: a.cfg.HookCommand,
		Action:  "status",
		TaskKey: moved.Key(),
		Status:  string(moved.EffectiveStatus()),
		File:    abs,
		WorkDir: a.cfg.Root,
		Stdout:  a.stderr,
		Stderr:  a.stderr,
	}); err != nil {
		fmt.Fprintf(a.stderr, "Warning: hook failed: %v\n", err)
	}
	return nil
}
