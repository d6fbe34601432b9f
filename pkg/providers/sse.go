package providers

import (
	"bufio"
	"io"
	"strings"
)

const maxSSELine = 1 << 20

// SSEReader reads Server-Sent Events from a streaming response body.
type SSEReader struct {
	scanner *bufio.Scanner
}

// NewSSEReader creates a reader over r.
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &SSEReader{scanner: scanner}
}

// Next returns the next event's name and data. Multiple data lines are joined
// with newlines. It returns io.EOF when the body ends.
func (r *SSEReader) Next() (event, data string, err error) {
	var lines []string
	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if len(lines) > 0 || event != "" {
				return event, strings.Join(lines, "\n"), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			lines = append(lines, value)
		}
	}

	if err := r.scanner.Err(); err != nil {
		return "", "", err
	}
	if len(lines) > 0 {
		return event, strings.Join(lines, "\n"), nil
	}
	return "", "", io.EOF
}
