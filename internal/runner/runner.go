// Package runner starts a build process and feeds its output through a classifier.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"buildwatch/internal/classifier"
	"buildwatch/pkg/outputlog"

	"github.com/charmbracelet/x/ansi"
	"github.com/creack/pty"
)

// MaxLineSize is the longest line handed to the classifier. Longer output lines are split.
const MaxLineSize = outputlog.MaxChunkSize

// Options describes the process to run.
type Options struct {
	Command []string
	Dir     string
	Env     []string // appended to the current environment
	// UsePTY attaches the child's stdout to a pseudo-terminal. Stderr stays a pipe.
	UsePTY bool
	// StripANSI removes terminal escape sequences before lines reach the classifier. The output
	// log keeps them.
	StripANSI bool
	// OutputLog receives a raw recording of both streams and the exit code. Optional.
	OutputLog io.Writer
	// StatsInterval is how often process statistics are sampled. Zero means 200ms.
	StatsInterval time.Duration
}

// Result describes a finished run.
type Result struct {
	ExitCode int
	Signal   string // set when the process was terminated by a signal
	Duration time.Duration
	Stats    Stats
	Report   []string // failure report lines replayed at exit
}

// Run starts the command, classifies its output until it exits and reports the exit to the
// classifier. A non-zero exit code is not an error.
func Run(ctx context.Context, opts Options, c *classifier.Classifier) (Result, error) {
	var result Result
	if len(opts.Command) == 0 {
		return result, errors.New("no command given")
	}

	cmd := exec.CommandContext(ctx, opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Kill the whole group so grandchildren release the pipes too.
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	var recorder *outputlog.Writer
	if opts.OutputLog != nil {
		recorder = outputlog.NewWriter(opts.OutputLog)
	}

	stdout, closeTTY, err := attachStdout(cmd, opts.UsePTY)
	if err != nil {
		return result, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdout.Close()
		closeTTY()
		return result, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		closeTTY()
		return result, fmt.Errorf("failed to start %s: %w", opts.Command[0], err)
	}
	// The child holds its own copy of the terminal.
	closeTTY()

	slog.Debug("process started", "pid", cmd.Process.Pid, "command", strings.Join(opts.Command, " "), "pty", opts.UsePTY)

	sampler := newSampler(cmd.Process.Pid, opts.StatsInterval)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		readLines(stdout, classifier.StreamStdout, recorder, opts.StripANSI, c)
	}()
	go func() {
		defer wg.Done()
		readLines(stderr, classifier.StreamStderr, recorder, opts.StripANSI, c)
	}()

	// Readers drain the pipes before Wait closes them.
	wg.Wait()
	result.Stats = sampler.stop()
	waitErr := cmd.Wait()
	if opts.UsePTY {
		_ = stdout.Close()
	}
	result.Duration = time.Since(start)

	result.ExitCode, result.Signal = exitStatus(cmd, waitErr)
	slog.Debug("process finished", "pid", cmd.Process.Pid, "exit_code", result.ExitCode, "signal", result.Signal, "duration", result.Duration)

	result.Report = c.OnProcessFinished(result.ExitCode)

	if recorder != nil {
		recorder.WriteExit(result.ExitCode)
		if err := recorder.Close(); err != nil {
			return result, fmt.Errorf("failed to write output log: %w", err)
		}
	}

	var execErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &execErr) {
		return result, fmt.Errorf("failed to wait for process: %w", waitErr)
	}
	return result, nil
}

// attachStdout returns the reader for the child's stdout. With usePTY the child writes to the
// terminal side of a new pty; closeTTY releases the parent's copy once the child has started.
func attachStdout(cmd *exec.Cmd, usePTY bool) (io.ReadCloser, func(), error) {
	if !usePTY {
		r, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create stdout pipe: %w", err)
		}
		return r, func() {}, nil
	}

	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open pty: %w", err)
	}
	_ = pty.Setsize(ptmx, &pty.Winsize{Rows: 24, Cols: 200})
	cmd.Stdout = tty
	return ptmx, func() { _ = tty.Close() }, nil
}

// readLines feeds every line of r to c, recording it first when recorder is set. The reader is
// drained until EOF so the child never blocks on a full pipe.
func readLines(r io.Reader, stream classifier.Stream, recorder *outputlog.Writer, strip bool, c *classifier.Classifier) {
	emit := func(b []byte) {
		line := string(b)
		if recorder != nil {
			recorder.WriteLine(string(stream), line)
		}
		if strip {
			line = ansi.Strip(line)
		}
		c.Feed(classifier.LogLine{Stream: stream, Line: line})
	}

	// ReadLine drops the \r\n a pty writes as well as a plain \n.
	br := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	for {
		frag, isPrefix, err := br.ReadLine()
		if err != nil {
			if len(buf) > 0 {
				emit(buf)
			}
			// Reading the pty master fails with EIO once the child closed the terminal.
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) && !errors.Is(err, os.ErrClosed) {
				slog.Warn("reading process output failed", "stream", stream, "error", err)
				_, _ = io.Copy(io.Discard, r)
			}
			return
		}
		buf = append(buf, frag...)
		for len(buf) > MaxLineSize {
			emit(buf[:MaxLineSize])
			buf = buf[MaxLineSize:]
		}
		if isPrefix {
			continue
		}
		emit(buf)
		buf = buf[:0]
	}
}

func exitStatus(cmd *exec.Cmd, waitErr error) (int, string) {
	if cmd.ProcessState == nil {
		if waitErr != nil {
			return 1, ""
		}
		return 0, ""
	}
	if status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal()), status.Signal().String()
	}
	return cmd.ProcessState.ExitCode(), ""
}
