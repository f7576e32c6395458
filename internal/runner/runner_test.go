package runner

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"buildwatch/internal/buildlog"
	"buildwatch/internal/classifier"
	"buildwatch/pkg/outputlog"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

const failingBuild = `
echo '> Task :compileJava'
echo 'warning: [deprecation] Foo is deprecated' >&2
echo '' >&2
echo 'FAILURE: Build failed with an exception.' >&2
echo '  at Foo.bar' >&2
exit 1
`

func shell(script string) []string {
	return []string{"sh", "-c", script}
}

func TestRun_FailingBuild(t *testing.T) {
	rec := &buildlog.Recorder{}
	c := classifier.New(rec, classifier.DefaultConfig())

	result, err := Run(context.Background(), Options{Command: shell(failingBuild)}, c)
	require.NoError(t, err)
	require.Equal(t, 1, result.ExitCode)
	require.Empty(t, result.Signal)
	require.Greater(t, result.Duration, time.Duration(0))

	require.Equal(t, []string{"", "FAILURE: Build failed with an exception.", "  at Foo.bar"}, result.Report)
	require.Equal(t, []string{"> Task :compileJava"}, rec.Texts(buildlog.LevelMessage))
	require.Equal(t, []string{
		"warning: [deprecation] Foo is deprecated",
		"",
		"FAILURE: Build failed with an exception.",
		"  at Foo.bar",
	}, rec.Texts(buildlog.LevelWarning))
	require.Equal(t, []string{classifier.DefaultReportName}, rec.Texts(buildlog.LevelActivityStarted))
	require.Equal(t, []string{classifier.DefaultReportName}, rec.Texts(buildlog.LevelActivityFinished))

	// The report comes last, after the plain warning.
	entries := rec.Entries()
	require.Equal(t, buildlog.Entry{Level: buildlog.LevelActivityFinished, Text: classifier.DefaultReportName}, entries[len(entries)-1])
}

func TestRun_ExitCode(t *testing.T) {
	rec := &buildlog.Recorder{}
	result, err := Run(context.Background(), Options{Command: shell("echo out; exit 3")}, classifier.New(rec, classifier.Config{}))
	require.NoError(t, err)
	require.Equal(t, 3, result.ExitCode)
	require.Empty(t, result.Report)
	// No report was buffered, the framing is still emitted for a failed build.
	require.Equal(t, []string{classifier.DefaultReportName}, rec.Texts(buildlog.LevelActivityStarted))
}

func TestRun_Success(t *testing.T) {
	rec := &buildlog.Recorder{}
	result, err := Run(context.Background(), Options{
		Command: shell(`echo "dir=$(pwd) value=$BUILDWATCH_TEST"`),
		Dir:     t.TempDir(),
		Env:     []string{"BUILDWATCH_TEST=42"},
	}, classifier.New(rec, classifier.Config{}))
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)

	messages := rec.Texts(buildlog.LevelMessage)
	require.Len(t, messages, 1)
	require.Contains(t, messages[0], "value=42")
	require.Empty(t, rec.Texts(buildlog.LevelActivityStarted))
}

func TestRun_EmptyCommand(t *testing.T) {
	_, err := Run(context.Background(), Options{}, classifier.New(&buildlog.Recorder{}, classifier.Config{}))
	require.Error(t, err)
}

func TestRun_StartError(t *testing.T) {
	_, err := Run(context.Background(), Options{Command: []string{"/nonexistent/buildwatch-test"}}, classifier.New(&buildlog.Recorder{}, classifier.Config{}))
	require.Error(t, err)
}

func TestRun_LongLine(t *testing.T) {
	rec := &buildlog.Recorder{}
	_, err := Run(context.Background(), Options{
		Command: shell("head -c 200000 /dev/zero | tr '\\0' x; echo"),
	}, classifier.New(rec, classifier.Config{}))
	require.NoError(t, err)

	messages := rec.Texts(buildlog.LevelMessage)
	require.Len(t, messages, 1)
	require.Len(t, messages[0], 200000)
}

func TestRun_OverlongLineIsSplit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var log bytes.Buffer
	rec := &buildlog.Recorder{}
	result, err := Run(ctx, Options{
		Command:   shell("head -c 3000000 /dev/zero | tr '\\0' x; echo; echo after"),
		OutputLog: &log,
	}, classifier.New(rec, classifier.Config{}))
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.Empty(t, result.Signal)

	messages := rec.Texts(buildlog.LevelMessage)
	require.Len(t, messages, 4)
	require.Len(t, messages[0], MaxLineSize)
	require.Len(t, messages[1], MaxLineSize)
	require.Len(t, messages[2], 3000000-2*MaxLineSize)
	require.Equal(t, "after", messages[3])

	replayed := &buildlog.Recorder{}
	_, err = Replay(bytes.NewReader(log.Bytes()), classifier.New(replayed, classifier.Config{}), false)
	require.NoError(t, err)
	require.Equal(t, messages, replayed.Texts(buildlog.LevelMessage))
}

func TestRun_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := Run(ctx, Options{Command: shell("echo started; sleep 30; echo never")}, classifier.New(&buildlog.Recorder{}, classifier.Config{}))
	require.NoError(t, err)
	require.Less(t, time.Since(start), 10*time.Second)
	require.Equal(t, "killed", result.Signal)
	require.Equal(t, 128+9, result.ExitCode)
}

func TestRun_OutputLogAndReplay(t *testing.T) {
	var log bytes.Buffer
	live := &buildlog.Recorder{}
	result, err := Run(context.Background(), Options{
		Command:   shell(failingBuild),
		OutputLog: &log,
	}, classifier.New(live, classifier.Config{}))
	require.NoError(t, err)

	chunks, err := outputlog.NewReader(bytes.NewReader(log.Bytes())).Chunks()
	require.NoError(t, err)
	require.Len(t, chunks, 6)
	require.Equal(t, outputlog.StreamExit, chunks[len(chunks)-1].Stream)
	require.Equal(t, "1", string(chunks[len(chunks)-1].Line))

	replayed := &buildlog.Recorder{}
	replay, err := Replay(bytes.NewReader(log.Bytes()), classifier.New(replayed, classifier.Config{}), false)
	require.NoError(t, err)
	require.Equal(t, result.ExitCode, replay.ExitCode)
	require.Equal(t, result.Report, replay.Report)

	for _, level := range []buildlog.Level{
		buildlog.LevelMessage,
		buildlog.LevelWarning,
		buildlog.LevelActivityStarted,
		buildlog.LevelActivityFinished,
	} {
		require.Equal(t, live.Texts(level), replayed.Texts(level), "level %s", level)
	}
}

func TestReplay_NoExitRecord(t *testing.T) {
	var log bytes.Buffer
	w := outputlog.NewWriter(&log)
	w.WriteLine(outputlog.StreamStderr, "")
	w.WriteLine(outputlog.StreamStderr, "FAILURE: Build failed with an exception.")
	require.NoError(t, w.Close())

	rec := &buildlog.Recorder{}
	result, err := Replay(&log, classifier.New(rec, classifier.Config{}), false)
	require.ErrorIs(t, err, ErrNoExitRecord)
	require.Equal(t, 1, result.ExitCode)
	require.Equal(t, []string{"", "FAILURE: Build failed with an exception."}, result.Report)
}

func TestReplay_Corrupt(t *testing.T) {
	_, err := Replay(strings.NewReader("stdout nonsense"), classifier.New(&buildlog.Recorder{}, classifier.Config{}), false)
	require.Error(t, err)

	_, err = Replay(strings.NewReader("stdout 2026-01-01T00:00:00.000000000Z 9223372036854775807: x\n"), classifier.New(&buildlog.Recorder{}, classifier.Config{}), false)
	require.ErrorContains(t, err, "exceeds")
}

func TestRun_StripANSI(t *testing.T) {
	var log bytes.Buffer
	script := `printf '\033[32mok\033[0m\n'; printf '\n' >&2; printf '\033[31mFAILURE:\033[0m Build failed\n' >&2; exit 1`

	rec := &buildlog.Recorder{}
	result, err := Run(context.Background(), Options{
		Command:   shell(script),
		StripANSI: true,
		OutputLog: &log,
	}, classifier.New(rec, classifier.Config{}))
	require.NoError(t, err)
	require.Equal(t, []string{"ok"}, rec.Texts(buildlog.LevelMessage))
	require.Equal(t, []string{"", "FAILURE: Build failed"}, result.Report)

	// The recording keeps the raw bytes.
	all, err := outputlog.NewReader(bytes.NewReader(log.Bytes())).All()
	require.NoError(t, err)
	require.Equal(t, "\x1b[32mok\x1b[0m", string(all[outputlog.StreamStdout]))

	replayed := &buildlog.Recorder{}
	replay, err := Replay(bytes.NewReader(log.Bytes()), classifier.New(replayed, classifier.Config{}), true)
	require.NoError(t, err)
	require.Equal(t, result.Report, replay.Report)
}

func TestRun_PTY(t *testing.T) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	_ = ptmx.Close()
	_ = tty.Close()

	rec := &buildlog.Recorder{}
	result, err := Run(context.Background(), Options{
		Command: shell(`if [ -t 1 ]; then echo tty; else echo pipe; fi; if [ -t 2 ]; then echo tty >&2; else echo pipe >&2; fi`),
		UsePTY:  true,
	}, classifier.New(rec, classifier.Config{}))
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.Equal(t, []string{"tty"}, rec.Texts(buildlog.LevelMessage))
	require.Equal(t, []string{"pipe"}, rec.Texts(buildlog.LevelWarning))
}

func TestRun_Stats(t *testing.T) {
	result, err := Run(context.Background(), Options{
		Command:       shell("sleep 0.3"),
		StatsInterval: 20 * time.Millisecond,
	}, classifier.New(&buildlog.Recorder{}, classifier.Config{}))
	require.NoError(t, err)
	require.Positive(t, result.Stats.Samples)
}
