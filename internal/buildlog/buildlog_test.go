package buildlog

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"buildwatch/pkg/servicemsg"

	"github.com/stretchr/testify/require"
)

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	logger.Message("compiling")
	logger.Warning("deprecated API")
	logger.ActivityStarted("report")
	logger.ActivityFinished("report")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "level=INFO")
	require.Contains(t, lines[0], "msg=compiling")
	require.Contains(t, lines[1], "level=WARN")
	require.Contains(t, lines[1], `msg="deprecated API"`)
	require.Contains(t, lines[2], "activity=report")
	require.Contains(t, lines[3], `msg="activity finished"`)
}

func TestServiceMessageLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewServiceMessageLogger(&buf)

	logger.Message("##teamcity[testStarted name='a']")
	logger.ActivityStarted("Gradle failure report")
	logger.Warning("FAILURE: it's [broken]")
	logger.ActivityFinished("Gradle failure report")

	expected := "##teamcity[testStarted name='a']\n" +
		"##teamcity[blockOpened name='Gradle failure report']\n" +
		"##teamcity[message status='WARNING' text='FAILURE: it|'s |[broken|]']\n" +
		"##teamcity[blockClosed name='Gradle failure report']\n"
	require.Equal(t, expected, buf.String())
}

func TestTeeAndDecoderLogger(t *testing.T) {
	rec := &Recorder{}
	dec := servicemsg.NewFlowDecoder()
	logger := Tee(rec, DecoderLogger(dec))

	logger.Message("##teamcity[testStarted name='a' flowId='1']")
	logger.Warning("##teamcity[testFinished name='a' flowId='1']")
	logger.ActivityStarted("x")
	logger.ActivityFinished("x")

	require.Equal(t, []Entry{
		{Level: LevelMessage, Text: "##teamcity[testStarted name='a' flowId='1']"},
		{Level: LevelWarning, Text: "##teamcity[testFinished name='a' flowId='1']"},
		{Level: LevelActivityStarted, Text: "x"},
		{Level: LevelActivityFinished, Text: "x"},
	}, rec.Entries())
	require.Equal(t, []string{"##teamcity[testStarted name='a' flowId='1']"}, dec.Messages())
}

func TestRecorder(t *testing.T) {
	rec := &Recorder{}
	rec.Message("a")
	rec.Warning("b")
	rec.Message("c")

	require.Equal(t, []string{"a", "c"}, rec.Texts(LevelMessage))
	require.Equal(t, []string{"b"}, rec.Texts(LevelWarning))

	rec.Reset()
	require.Empty(t, rec.Entries())
}
