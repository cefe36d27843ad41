package session

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestTransportReadSkipsBlankLines(t *testing.T) {
	t.Parallel()
	tr := NewTransport(strings.NewReader("\n  \n{\"a\":1}\r\n\n{\"b\":2}"), io.Discard)

	first, err := tr.ReadLine()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(first) != `{"a":1}` {
		t.Fatalf("unexpected first line %q", first)
	}
	second, err := tr.ReadLine()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(second) != `{"b":2}` {
		t.Fatalf("unexpected second line %q", second)
	}
	if _, err := tr.ReadLine(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestTransportReturnedLineIsCopied(t *testing.T) {
	t.Parallel()
	tr := NewTransport(strings.NewReader("first\nsecond\n"), io.Discard)
	first, _ := tr.ReadLine()
	_, _ = tr.ReadLine()
	if string(first) != "first" {
		t.Fatalf("expected first line to survive later reads, got %q", first)
	}
}

func TestTransportWriteOneLinePerMessage(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	tr := NewTransport(strings.NewReader(""), &out)

	if err := tr.Write(map[string]string{"text": "multi\nline"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out.String())
	}
	if lines[0] != `{"text":"multi\nline"}` {
		t.Fatalf("unexpected first line %q", lines[0])
	}
}

func TestTransportWriteUnencodable(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	tr := NewTransport(strings.NewReader(""), &out)
	if err := tr.Write(make(chan int)); err == nil {
		t.Fatal("expected encode error")
	}
	if out.Len() != 0 {
		t.Fatalf("expected nothing written, got %q", out.String())
	}
}
