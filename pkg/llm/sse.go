package llm

import (
	"bufio"
	"io"
	"strings"
)

// sseDoneSentinel is the literal end-of-stream payload used by
// OpenAI-style SSE streams.
const sseDoneSentinel = "[DONE]"

// scanSSE reads an SSE body line by line and invokes fn with the payload of
// every data: line. Blank lines, comments, and non-data fields are skipped.
// fn returns false to stop early. The reader error, if any, is returned so
// callers can distinguish truncation from normal end of stream.
func scanSSE(r io.Reader, fn func(data string) bool) error {
	scanner := bufio.NewScanner(r)
	// Provider chunks can exceed the default 64KB token limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		if !fn(strings.TrimSpace(data)) {
			return nil
		}
	}
	return scanner.Err()
}
