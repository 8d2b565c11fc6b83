// Package cmd implements the CLI command structure for ralphban.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/nibzard/ralphban-go/internal/board"
	"github.com/nibzard/ralphban-go/internal/config"
	"github.com/nibzard/ralphban-go/internal/logging"
	"github.com/nibzard/ralphban-go/internal/scan"
	"github.com/nibzard/ralphban-go/internal/task"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Run executes the ralphban CLI.
func Run(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("ralphban", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		printUsage(fs, stderr)
	}
	help := fs.Bool("help", false, "Show help")
	fs.BoolVar(help, "h", false, "Show help")
	showVersion := fs.Bool("version", false, "Show version")
	fs.BoolVar(showVersion, "v", false, "Show version")

	cws, err := config.LoadWithSources(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("loading config: %w", err)
	}
	if *help {
		printUsage(fs, stdout)
		return nil
	}
	if *showVersion {
		return versionCommand(stdout)
	}

	a := &app{cfg: cws.Config, sources: cws, stdout: stdout, stderr: stderr}

	// If no args or first arg is a flag, use "serve" as default
	subcommand := "serve"
	remaining := fs.Args()
	if len(remaining) > 0 && !strings.HasPrefix(remaining[0], "-") {
		subcommand = remaining[0]
		remaining = remaining[1:]
	}

	switch subcommand {
	case "serve":
		return a.serveCommand(ctx, remaining)
	case "tui":
		return a.tuiCommand(ctx, remaining)
	case "ls":
		return a.lsCommand(ctx, remaining)
	case "doctor":
		return a.doctorCommand(ctx, remaining)
	case "new":
		return a.newCommand(remaining)
	case "move":
		return a.moveCommand(ctx, remaining)
	case "tail":
		return a.tailCommand(ctx, remaining)
	case "config":
		return a.configCommand(remaining)
	case "version":
		return versionCommand(stdout)
	case "help":
		printUsage(fs, stdout)
		return nil
	default:
		// A task file path on its own serves that file.
		if scan.Exists(subcommand) {
			return a.serveCommand(ctx, append([]string{subcommand}, remaining...))
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", subcommand)
		printUsage(fs, stderr)
		return fmt.Errorf("unknown command: %s", subcommand)
	}
}

// app carries the loaded configuration and output streams to subcommands.
type app struct {
	cfg     *config.Config
	sources *config.ConfigWithSources
	stdout  io.Writer
	stderr  io.Writer
}

// newFlagSet returns a subcommand flag set writing usage to stderr.
func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("ralphban "+name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// validator compiles the configured schema.
func (a *app) validator() (*task.Validator, error) {
	v, err := a.cfg.Validator()
	if err != nil {
		return nil, fmt.Errorf("loading task schema: %w", err)
	}
	return v, nil
}

// resolveTaskFile turns a CLI argument into an absolute task file path
// inside the workspace root. With no argument it picks the default file the
// same way the board page does.
func (a *app) resolveTaskFile(ctx context.Context, arg string, v *task.Validator) (string, string, error) {
	if arg == "" {
		b, ok, err := scan.FindByName(ctx, a.cfg.Root, a.cfg.DefaultFile, a.cfg.ScanOptions(v))
		if err != nil {
			return "", "", err
		}
		if !ok {
			return "", "", fmt.Errorf("no task files found under %s (create one with `ralphban new`)", a.cfg.Root)
		}
		return b.Abs, b.Path, nil
	}

	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", "", err
	}
	rel, err := scan.RelPath(a.cfg.Root, abs)
	if err != nil {
		return "", "", err
	}
	if !scan.Exists(abs) {
		return "", "", fmt.Errorf("task file not found: %s", arg)
	}
	return abs, rel, nil
}

// newLogger builds the console and run-log pair. The console is skipped
// when quiet is set, e.g. while the terminal board owns the screen.
func (a *app) newLogger(quiet bool) (*logging.Logger, func()) {
	console := logging.NewConsoleFromConfig(a.stderr, a.cfg.LogLevel, a.cfg.LogFormat, a.cfg.LogTimestamps, a.cfg.LogCaller)
	run, err := logging.NewRunLogger(a.cfg.LogDir, a.cfg.Root)
	if err != nil {
		console.Warn("run log disabled", "err", err)
		run = nil
	}
	if quiet {
		console = nil
	}
	cleanup := func() {
		if run != nil {
			_ = run.Close()
		}
	}
	return logging.New(console, run), cleanup
}

// boardOptions returns the shared board settings.
func (a *app) boardOptions(v *task.Validator, logger *logging.Logger) board.Options {
	return board.Options{
		Validator:   v,
		Categories:  v.Categories(),
		Debounce:    a.cfg.Debounce(),
		Logger:      logger,
		HookCommand: a.cfg.HookCommand,
		HookDir:     a.cfg.Root,
	}
}

// tailCommand tails the latest log file.
func (a *app) tailCommand(ctx context.Context, args []string) error {
	fs := a.newFlagSet("tail")
	follow := fs.Bool("f", false, "Follow the log (like tail -f)")
	fs.BoolVar(follow, "follow", false, "Follow the log (like tail -f)")
	n := fs.Int("n", 0, "Number of lines to show (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	logDir, err := logging.FindLogDir(a.cfg.LogDir, a.cfg.Root)
	if err != nil {
		return fmt.Errorf("finding log directory: %w", err)
	}
	logPath, err := logging.FindLatestLog(logDir)
	if err != nil {
		return fmt.Errorf("finding latest log: %w", err)
	}
	if logPath == "" {
		fmt.Fprintln(a.stdout, "No log files found.")
		return nil
	}

	fmt.Fprintf(a.stderr, "Tailing: %s\n", logPath)
	if *follow {
		fmt.Fprintln(a.stderr, "(Ctrl+C to stop)")
	}
	return logging.TailLog(ctx, a.stdout, logPath, *n, *follow)
}

// configCommand prints the effective configuration and where each value
// came from.
func (a *app) configCommand(args []string) error {
	fs := a.newFlagSet("config")
	example := fs.Bool("example", false, "Print an example config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *example {
		fmt.Fprint(a.stdout, config.ExampleConfig())
		return nil
	}

	for _, f := range a.sources.Files {
		fmt.Fprintf(a.stdout, "Config file: %s\n", f)
	}
	t := table.NewWriter()
	t.SetOutputMirror(a.stdout)
	t.AppendHeader(table.Row{"Key", "Value", "Source"})
	for _, key := range config.Keys() {
		value, _ := a.cfg.Value(key)
		t.AppendRow(table.Row{key, value, a.sources.Sources[key]})
	}
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
	return nil
}

// versionCommand prints version information.
func versionCommand(w io.Writer) error {
	fmt.Fprintf(w, "ralphban version %s\n", Version)
	return nil
}

// printUsage prints the usage message.
func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "ralphban - Kanban boards for PRD task files")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  ralphban [options] [command] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve [file]              Serve boards over HTTP (default command)")
	fmt.Fprintln(w, "  tui [file]                Open a board in the terminal")
	fmt.Fprintln(w, "  ls                        List discovered task files")
	fmt.Fprintln(w, "  doctor                    Check config and validate every task file")
	fmt.Fprintln(w, "  new [path]                Create a task file")
	fmt.Fprintln(w, "  move <task> <status> [file]  Move a task to another status")
	fmt.Fprintln(w, "  tail                      Tail the latest board log")
	fmt.Fprintln(w, "  config                    Show the effective configuration")
	fmt.Fprintln(w, "  version                   Show version information")
	fmt.Fprintln(w, "  help                      Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global Options:")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Command Options:")
	fmt.Fprintln(w, "  ls -json                  Print the list as JSON")
	fmt.Fprintln(w, "  doctor -v                 Show every task file, not only failures")
	fmt.Fprintln(w, "  new -feature string       Feature name stored in the new file")
	fmt.Fprintln(w, "  tail -f, -n int           Follow the log / show the last n lines")
	fmt.Fprintln(w, "  config -example           Print an example config file")
}
