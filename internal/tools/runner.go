package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// CommandResult is the captured output of a finished system command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Output returns stdout, falling back to stderr when stdout is empty.
func (c CommandResult) Output() string {
	if out := strings.TrimSpace(c.Stdout); out != "" {
		return out
	}
	return strings.TrimSpace(c.Stderr)
}

// Runner executes system binaries. Tests substitute canned output.
type Runner interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ExecRunner runs real processes through os/exec.
type ExecRunner struct{}

func (ExecRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// Run returns an error only when the process could not be started or was
// killed by ctx. A non-zero exit code is reported in the result.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}
