// Package hooks invokes the external post-mutation hook.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Options configures a hook invocation. The command receives
// <action> <task-key> <status> <file> as arguments.
type Options struct {
	Command string
	Action  string
	TaskKey string
	Status  string
	File    string
	WorkDir string

	// Stdout and Stderr default to discarding output.
	Stdout io.Writer
	Stderr io.Writer
}

// Result captures the outcome of a hook invocation.
type Result struct {
	Ran      bool
	Command  []string
	ExitCode int
}

// Invoke runs the hook command. An empty command is a no-op.
func Invoke(ctx context.Context, opts Options) (Result, error) {
	if opts.Command == "" {
		return Result{}, nil
	}
	if opts.Action == "" {
		return Result{}, fmt.Errorf("hook action is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	args := []string{opts.Action, opts.TaskKey, opts.Status, opts.File}
	cmd := exec.CommandContext(ctx, opts.Command, args...)
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	err := cmd.Run()
	result := Result{
		Ran:      true,
		Command:  cmd.Args,
		ExitCode: exitCodeFromError(err),
	}
	if err != nil {
		return result, fmt.Errorf("hook command failed: %w", err)
	}
	return result, nil
}

func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
