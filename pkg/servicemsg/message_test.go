package servicemsg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantName  string
		wantValue string
		wantAttrs map[string]string
	}{
		{
			name:      "attributes",
			input:     "##teamcity[testStarted name='my.Test' flowId='12']",
			wantName:  "testStarted",
			wantAttrs: map[string]string{"name": "my.Test", "flowId": "12"},
		},
		{
			name:      "single value",
			input:     "##teamcity[progressMessage 'Compiling sources']",
			wantName:  "progressMessage",
			wantValue: "Compiling sources",
			wantAttrs: map[string]string{},
		},
		{
			name:      "no arguments",
			input:     "##teamcity[enableServiceMessages]",
			wantName:  "enableServiceMessages",
			wantAttrs: map[string]string{},
		},
		{
			name:      "escapes",
			input:     "##teamcity[message text='it|'s |[1|] a||b|nnext|r' status='NORMAL']",
			wantName:  "message",
			wantAttrs: map[string]string{"text": "it's [1] a|b\nnext\r", "status": "NORMAL"},
		},
		{
			name:      "unicode escape",
			input:     "##teamcity[message text='|0x00e9t|0x00e9']",
			wantName:  "message",
			wantAttrs: map[string]string{"text": "été"},
		},
		{
			name:      "extra whitespace",
			input:     "##teamcity[testFinished  name = 'x'   duration='5' ]",
			wantName:  "testFinished",
			wantAttrs: map[string]string{"name": "x", "duration": "5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.wantName, msg.Name)
			require.Equal(t, tt.wantValue, msg.Value)
			require.Equal(t, tt.wantAttrs, msg.Attrs)
			require.Equal(t, tt.input, msg.Raw)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "no frame", input: "testStarted name='x'"},
		{name: "empty frame", input: "##teamcity[]"},
		{name: "missing equals", input: "##teamcity[testStarted name 'x' flowId='1']"},
		{name: "unquoted value", input: "##teamcity[testStarted name=x]"},
		{name: "unterminated value", input: "##teamcity[testStarted name='x]"},
		{name: "unknown escape", input: "##teamcity[message text='|q']"},
		{name: "text after value", input: "##teamcity[progressMessage 'a' 'b']"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestEscapeUnescape(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"it's",
		"a|b",
		"[bracketed]",
		"line1\nline2\r",
	}
	for _, in := range inputs {
		out, err := Unescape(Escape(in))
		require.NoError(t, err)
		require.Equal(t, in, out)
	}
	require.Equal(t, "|[x|]", Escape("[x]"))
}

func TestFormat(t *testing.T) {
	got := Format("testStarted", map[string]string{"flowId": "1", "name": "a'b", "captureStandardOutput": "true"})
	require.Equal(t, "##teamcity[testStarted name='a|'b' captureStandardOutput='true' flowId='1']", got)

	msg, err := Parse(got)
	require.NoError(t, err)
	require.Equal(t, "a'b", msg.Attr("name"))
	require.Equal(t, "1", msg.FlowID())
}
