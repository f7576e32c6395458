package outputlog

import (
	"fmt"
	"regexp"
	"time"
)

const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
	StreamExit   = "exit"

	// TimeFormat is the timestamp layout of a record.
	TimeFormat = "2006-01-02T15:04:05.000000000Z"

	// MaxChunkSize is the largest record content a Reader accepts.
	MaxChunkSize = 1024 * 1024
)

var streamName = regexp.MustCompile(`^[a-zA-Z0-9_./-]{1,64}$`)

// Chunk is one record of the log.
type Chunk struct {
	Stream    string
	Timestamp time.Time // UTC
	Line      []byte
}

// ValidStream reports whether name may be used as a stream name.
func ValidStream(name string) bool {
	return streamName.MatchString(name)
}

// FormatChunk formats chunk as "stream timestamp length: content\n".
func FormatChunk(chunk Chunk) []byte {
	timestamp := chunk.Timestamp.UTC().Format(TimeFormat)
	result := fmt.Appendf(nil, "%s %s %d: ", chunk.Stream, timestamp, len(chunk.Line))
	result = append(result, chunk.Line...)
	return append(result, '\n')
}
