package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Result is the outcome of one command execution
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// Succeeded reports whether the command exited with status 0 in time.
func (r *Result) Succeeded() bool {
	return !r.TimedOut && r.ExitCode == 0
}

// Executor runs a command string with a wall-clock limit.
// Non-zero exits and timeouts are reported in Result, not as errors; the
// error return is reserved for commands that could not be started.
type Executor interface {
	Run(ctx context.Context, command string, timeout time.Duration) (*Result, error)
}

// ShellExecutor runs commands through "sh -c".
type ShellExecutor struct {
	// Shell defaults to "sh".
	Shell string
	// MaxOutput caps captured bytes per stream; zero means 64 KiB.
	MaxOutput int
}

// NewShellExecutor creates a shell executor with default settings
func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{Shell: "sh", MaxOutput: 64 << 10}
}

// Run executes command and waits for it to finish or for timeout to expire.
// On timeout the whole process group is killed.
func (e *ShellExecutor) Run(ctx context.Context, command string, timeout time.Duration) (*Result, error) {
	shell := e.Shell
	if shell == "" {
		shell = "sh"
	}
	limit := e.MaxOutput
	if limit <= 0 {
		limit = 64 << 10
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, shell, "-c", command)
	stdout := &cappedBuffer{limit: limit}
	stderr := &cappedBuffer{limit: limit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// grandchildren may hold the pipes open after the shell is killed
	cmd.WaitDelay = time.Second
	configureProcessGroup(cmd)

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}

	// the shell exited but a background child still holds the output pipes
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
		return result, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("failed to start command: %w", err)
	}

	return result, nil
}

// Describe renders a failed result as a compact error detail.
func Describe(r *Result, timeout time.Duration) string {
	var b strings.Builder
	if r.TimedOut {
		fmt.Fprintf(&b, "timed out after %s", timeout)
	} else {
		fmt.Fprintf(&b, "exit code %d", r.ExitCode)
	}
	if s := strings.TrimSpace(r.Stderr); s != "" {
		b.WriteString("\nstderr: ")
		b.WriteString(s)
	}
	if s := strings.TrimSpace(r.Stdout); s != "" {
		b.WriteString("\nstdout: ")
		b.WriteString(s)
	}
	return b.String()
}

type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	// report everything as written so the child never sees EPIPE
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	return c.buf.String()
}
