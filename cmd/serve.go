package cmd

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/nibzard/ralphban-go/internal/board"
	"github.com/nibzard/ralphban-go/internal/server"
	"github.com/nibzard/ralphban-go/internal/ui"
)

// serveCommand runs the board server until ctx is cancelled.
func (a *app) serveCommand(ctx context.Context, args []string) error {
	fs := a.newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args()[1:])
	}

	v, err := a.validator()
	if err != nil {
		return err
	}

	// An explicit file is opened directly; otherwise the selector page is.
	var rel string
	if fs.NArg() == 1 {
		if _, rel, err = a.resolveTaskFile(ctx, fs.Arg(0), v); err != nil {
			return err
		}
	}

	logger, cleanup := a.newLogger(false)
	defer cleanup()

	srv, err := server.New(server.Config{
		Root:        a.cfg.Root,
		Addr:        a.cfg.Addr,
		DefaultFile: a.cfg.DefaultFile,
		Scan:        a.cfg.ScanOptions(v),
		Board:       a.boardOptions(v, logger),
		Logger:      logger,
		OnListen: func(baseURL string) {
			url := baseURL + "/"
			if rel != "" {
				url = baseURL + server.BoardURL(rel)
			}
			fmt.Fprintf(a.stdout, "Serving boards under %s at %s\n", a.cfg.Root, url)
			if a.cfg.OpenBrowser {
				if err := openBrowser(url); err != nil {
					logger.Warn("", "could not open browser", "err", err)
				}
			}
		},
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

// tuiCommand opens one board in the terminal.
func (a *app) tuiCommand(ctx context.Context, args []string) error {
	fs := a.newFlagSet("tui")
	noAlt := fs.Bool("no-alt-screen", false, "Render inline instead of on the alternate screen")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args()[1:])
	}
	if !ui.IsTTY(a.stdout) {
		return fmt.Errorf("tui requires a TTY")
	}

	v, err := a.validator()
	if err != nil {
		return err
	}
	abs, rel, err := a.resolveTaskFile(ctx, fs.Arg(0), v)
	if err != nil {
		return err
	}

	logger, cleanup := a.newLogger(true)
	defer cleanup()

	opts := a.boardOptions(v, logger)
	opts.Name = rel
	b, err := board.Open(abs, opts)
	if err != nil {
		return err
	}
	defer b.Close()

	return ui.RunTUI(ctx, b, ui.WithAltScreen(!*noAlt), ui.WithIO(nil, a.stdout))
}

// openBrowser asks the desktop to open url.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
