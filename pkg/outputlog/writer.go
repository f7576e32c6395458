package outputlog

import (
	"fmt"
	"io"
	"strconv"
	"time"
)

// Writer records chunks from several goroutines into one io.Writer. A single goroutine owns the
// io.Writer, so records are never interleaved.
type Writer struct {
	chunks chan Chunk
	done   chan struct{}
	err    error
}

// NewWriter starts the writer goroutine. It runs until Close is called.
func NewWriter(w io.Writer) *Writer {
	ow := &Writer{
		chunks: make(chan Chunk, 100),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(ow.done)
		for chunk := range ow.chunks {
			if ow.err != nil {
				continue
			}
			if _, err := w.Write(FormatChunk(chunk)); err != nil {
				ow.err = fmt.Errorf("write %s record: %w", chunk.Stream, err)
			}
		}
	}()

	return ow
}

// WriteLine records line on stream, timestamped now.
func (o *Writer) WriteLine(stream, line string) {
	o.chunks <- Chunk{
		Stream:    stream,
		Timestamp: time.Now().UTC(),
		Line:      []byte(line),
	}
}

// WriteExit records the exit code of the recorded process.
func (o *Writer) WriteExit(code int) {
	o.WriteLine(StreamExit, strconv.Itoa(code))
}

// Close waits for pending records and returns the first write error.
func (o *Writer) Close() error {
	close(o.chunks)
	<-o.done
	return o.err
}
