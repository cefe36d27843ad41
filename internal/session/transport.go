package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// MaxLineSize is the longest input line accepted. A longer line ends the
// stream with bufio.ErrTooLong.
const MaxLineSize = 16 << 20

// Transport frames JSON-RPC messages as single lines. It holds the only
// reference to the output writer, so nothing else can interleave bytes into
// the protocol stream.
type Transport struct {
	scanner *bufio.Scanner

	mu  sync.Mutex
	out *bufio.Writer
}

// NewTransport wraps in and out.
func NewTransport(in io.Reader, out io.Writer) *Transport {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &Transport{
		scanner: scanner,
		out:     bufio.NewWriter(out),
	}
}

// ReadLine returns the next non-blank line, or io.EOF when input is closed.
// The returned slice is owned by the caller.
func (t *Transport) ReadLine() ([]byte, error) {
	for t.scanner.Scan() {
		line := bytes.TrimSpace(t.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return append([]byte(nil), line...), nil
	}
	if err := t.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	return nil, io.EOF
}

// Write encodes msg as one line and flushes it.
func (t *Transport) Write(msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.out.Write(b); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := t.out.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := t.out.Flush(); err != nil {
		return fmt.Errorf("failed to flush message: %w", err)
	}
	return nil
}
