package processor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// Runner executes a command to completion and returns its standard output.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner runs commands as local subprocesses. The process is killed when
// ctx is done; no other timeout is applied.
type ExecRunner struct {
	Env []string // optional environment, inherited from the parent when nil

	// Stderr receives the engine's standard error on every run, including
	// successful ones. Defaults to os.Stderr.
	Stderr io.Writer
}

func (r ExecRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Env = r.Env

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	passthrough := r.Stderr
	if passthrough == nil {
		passthrough = os.Stderr
	}
	c.Stderr = io.MultiWriter(&stderr, passthrough)

	if err := c.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, &ExtractionError{
			Command:  cmd,
			ExitCode: exitCode,
			Stderr:   stderr.String(),
			Err:      err,
		}
	}

	return stdout.Bytes(), nil
}
