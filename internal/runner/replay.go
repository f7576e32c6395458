package runner

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"buildwatch/internal/classifier"
	"buildwatch/pkg/outputlog"

	"github.com/charmbracelet/x/ansi"
)

// ErrNoExitRecord is returned by Replay when the recording ends without an exit record.
var ErrNoExitRecord = errors.New("output log has no exit record")

// Replay feeds a recorded output log through c in recording order. The recorded exit code is
// passed to OnProcessFinished. A recording without one is finished with exit code 1 so the
// withheld report is not lost, and ErrNoExitRecord is returned alongside the result.
// With stripANSI escape sequences are removed from every line first.
func Replay(r io.Reader, c *classifier.Classifier, stripANSI bool) (Result, error) {
	var result Result
	reader := outputlog.NewReader(r)

	exitCode := -1
	var first, last outputlog.Chunk
	for {
		chunk, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("failed to read output log: %w", err)
		}
		if first.Timestamp.IsZero() {
			first = chunk
		}
		last = chunk

		switch chunk.Stream {
		case outputlog.StreamStdout, outputlog.StreamStderr:
			line := string(chunk.Line)
			if stripANSI {
				line = ansi.Strip(line)
			}
			c.Feed(classifier.LogLine{Stream: classifier.Stream(chunk.Stream), Line: line})
		case outputlog.StreamExit:
			code, err := strconv.Atoi(string(chunk.Line))
			if err != nil {
				return result, fmt.Errorf("invalid exit record %q: %w", chunk.Line, err)
			}
			exitCode = code
		}
	}

	if !first.Timestamp.IsZero() {
		result.Duration = last.Timestamp.Sub(first.Timestamp)
	}

	if exitCode < 0 {
		result.ExitCode = 1
		result.Report = c.OnProcessFinished(result.ExitCode)
		return result, ErrNoExitRecord
	}
	result.ExitCode = exitCode
	result.Report = c.OnProcessFinished(exitCode)
	return result, nil
}
