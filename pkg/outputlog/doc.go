// Package outputlog records the output streams of a build run into one multiplexed log so the
// run can be replayed later through the same classification pipeline.
//
// # Format
//
// Each record has the form:
//
//	stream timestamp length: content\n
//
// A separator \n is always written after content, so content may itself end with \n.
//
// # Fields
//
//   - stream: matches [a-zA-Z0-9_./-]{1,64}. The recorder uses stdout, stderr and exit.
//   - timestamp: UTC timestamp, 2006-01-02T15:04:05.000000000Z
//   - length: byte length of content
//   - content: exactly length bytes; may contain newlines and binary data
//
// # Examples
//
//	stdout 2025-01-07T12:00:00.000000000Z 15: > Task :compile
//	stderr 2025-01-07T12:00:01.000000000Z 4: warn
//	stderr 2025-01-07T12:00:01.000000000Z 21: FAILURE: Build failed
//	exit 2025-01-07T12:00:02.000000000Z 1: 1
//
// The exit record carries the decimal exit code of the recorded process and is the last
// record of a complete recording.
package outputlog
