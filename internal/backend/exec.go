package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/upkit-dev/upkit/internal/errs"
)

// RunResult is the captured output of a subprocess invocation.
type RunResult struct {
	Stdout string
	Stderr string
}

// Run executes name with args, multiplexing stdout/stderr to progress (one
// goroutine per stream via errgroup, spec §5: "one task per stream...
// purely to multiplex progress output") while also buffering each stream
// for error reporting. On timeout the whole process group is killed, not
// just the immediate child, mirroring the teacher's hook runner
// (internal/hooks/hooks_unix.go) so that subprocess-spawned descendants
// never survive a timeout.
func Run(ctx context.Context, progress io.Writer, timeout time.Duration, name string, args ...string) (RunResult, error) {
	return RunWithEnv(ctx, progress, timeout, nil, name, args...)
}

// RunWithEnv is Run with additional environment variables appended to the
// child's inherited environment (e.g. a backend pinning its own data
// directory via MISE_DATA_DIR, CARGO_INSTALL_ROOT, GOBIN).
func RunWithEnv(ctx context.Context, progress io.Writer, timeout time.Duration, extraEnv []string, name string, args ...string) (RunResult, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(extraEnv) > 0 {
		cmd.Env = append(cmd.Environ(), extraEnv...)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return RunResult{}, errs.Exec("opening stdout pipe", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return RunResult{}, errs.Exec("opening stderr pipe", err)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	g := new(errgroup.Group)
	g.Go(func() error { return muxStream(stdoutPipe, &stdoutBuf, progress) })
	g.Go(func() error { return muxStream(stderrPipe, &stderrBuf, progress) })

	if err := cmd.Start(); err != nil {
		return RunResult{}, errs.Exec(fmt.Sprintf("starting %s", name), err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-cctx.Done():
		if cmd.Process != nil {
			if killErr := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); killErr != nil && !errors.Is(killErr, syscall.ESRCH) {
				return RunResult{}, errs.Exec("killing process group", killErr)
			}
		}
		<-done
		_ = g.Wait()
		result := RunResult{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
		return result, errs.Exec(fmt.Sprintf("%s timed out after %s", name, timeout), cctx.Err())

	case waitErr := <-done:
		_ = g.Wait()
		result := RunResult{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
		if waitErr != nil {
			return result, errs.Exec(fmt.Sprintf("%s: %s", name, tailLines(stderrBuf.String(), 20)), waitErr)
		}
		return result, nil
	}
}

func muxStream(r io.Reader, buf *bytes.Buffer, progress io.Writer) error {
	var w io.Writer = buf
	if progress != nil {
		w = io.MultiWriter(buf, progress)
	}
	_, err := io.Copy(w, r)
	return err
}

// tailLines returns the last n lines of s, for compact error context
// (spec §7 ExecError: "reported with captured stderr tail").
func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
