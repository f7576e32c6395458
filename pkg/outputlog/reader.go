package outputlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Reader parses records from an output log.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next record. It returns io.EOF when the log ends cleanly between records and
// io.ErrUnexpectedEOF when it ends inside one.
func (o *Reader) Next() (Chunk, error) {
	var chunk Chunk

	stream, err := o.r.ReadString(' ')
	if err != nil {
		if errors.Is(err, io.EOF) && stream == "" {
			return chunk, io.EOF
		}
		return chunk, fmt.Errorf("reading stream: %w", unexpected(err))
	}
	chunk.Stream = strings.TrimSuffix(stream, " ")
	if !ValidStream(chunk.Stream) {
		return chunk, fmt.Errorf("invalid stream name %q", chunk.Stream)
	}

	timestampStr, err := o.r.ReadString(' ')
	if err != nil {
		return chunk, fmt.Errorf("reading timestamp: %w", unexpected(err))
	}
	chunk.Timestamp, err = time.Parse(TimeFormat, strings.TrimSuffix(timestampStr, " "))
	if err != nil {
		return chunk, fmt.Errorf("parsing timestamp: %w", err)
	}

	lengthStr, err := o.r.ReadString(':')
	if err != nil {
		return chunk, fmt.Errorf("reading length: %w", unexpected(err))
	}
	length, err := strconv.Atoi(strings.TrimSuffix(lengthStr, ":"))
	if err != nil || length < 0 {
		return chunk, fmt.Errorf("parsing length %q: invalid", lengthStr)
	}
	if length > MaxChunkSize {
		return chunk, fmt.Errorf("record length %d exceeds %d bytes", length, MaxChunkSize)
	}

	b, err := o.r.ReadByte()
	if err != nil {
		return chunk, fmt.Errorf("reading space after colon: %w", unexpected(err))
	}
	if b != ' ' {
		return chunk, fmt.Errorf("expected space after colon, got %q", b)
	}

	chunk.Line = make([]byte, length)
	if _, err := io.ReadFull(o.r, chunk.Line); err != nil {
		return chunk, fmt.Errorf("reading content (%d bytes): %w", length, unexpected(err))
	}

	b, err = o.r.ReadByte()
	if err != nil {
		return chunk, fmt.Errorf("reading final newline: %w", unexpected(err))
	}
	if b != '\n' {
		return chunk, fmt.Errorf("expected newline separator, got %q", b)
	}

	return chunk, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Chunks reads every remaining record.
func (o *Reader) Chunks() ([]Chunk, error) {
	var chunks []Chunk
	for {
		chunk, err := o.Next()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}

// All returns the concatenated content per stream. Timestamps are dropped.
func (o *Reader) All() (map[string][]byte, error) {
	result := make(map[string][]byte)
	chunks, err := o.Chunks()
	for _, chunk := range chunks {
		result[chunk.Stream] = append(result[chunk.Stream], chunk.Line...)
	}
	return result, err
}
