package poptable

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/ivoronin/dupesim/internal/record"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := Entry{Hash: record.Hash{1, 2, 3}, Count: 42, Size: 1024}
	line := Encode(e)

	got, ok, err := Decode(line)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got != e {
		t.Errorf("round trip mismatch: want %+v, got %+v", e, got)
	}
}

func TestDecodeSkipsNegativeMarkedLines(t *testing.T) {
	cases := []string{
		strings.Repeat("a", 40) + "  -5  1024",
		strings.Repeat("a", 40) + "  5  -1024",
		strings.Repeat("a", 40) + "  --  --",
	}

	for _, line := range cases {
		_, ok, err := Decode(line)
		if err != nil {
			t.Errorf("Decode(%q): unexpected error %v", line, err)
		}
		if ok {
			t.Errorf("Decode(%q): expected ok=false", line)
		}
	}
}

func TestDecodeMalformedLine(t *testing.T) {
	cases := []string{
		"too few tokens",
		strings.Repeat("a", 40) + "  5",
		strings.Repeat("a", 40) + " 5  1024", // single space, not two
		"zz  5  1024",                        // wrong hash length
	}

	for _, line := range cases {
		_, _, err := Decode(line)
		if !errors.Is(err, ErrMalformedLine) {
			t.Errorf("Decode(%q): expected ErrMalformedLine, got %v", line, err)
		}
	}
}

func TestReaderSkipsAndReturnsEntries(t *testing.T) {
	input := strings.Join([]string{
		Encode(Entry{Hash: record.Hash{1}, Count: 1, Size: 10}),
		strings.Repeat("b", 40) + "  -1  10",
		Encode(Entry{Hash: record.Hash{2}, Count: 2, Size: 20}),
	}, "\n")

	r := NewReader(strings.NewReader(input))

	var got []Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, e)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(got), got)
	}
	if got[0].Count != 1 || got[1].Count != 2 {
		t.Errorf("unexpected entries: %+v", got)
	}
}

func TestWriterRoundTripsThroughReader(t *testing.T) {
	entries := []Entry{
		{Hash: record.Hash{1}, Count: 1, Size: 10},
		{Hash: record.Hash{2}, Count: 2, Size: 20},
	}

	var buf strings.Builder
	w := NewWriter(&buf)
	for _, e := range entries {
		if err := w.Write(e); err != nil {
			t.Fatal(err)
		}
	}

	r := NewReader(strings.NewReader(buf.String()))
	var got []Entry
	r.All(func(e Entry, err error) bool {
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		got = append(got, e)
		return true
	})

	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i := range entries {
		if got[i] != entries[i] {
			t.Errorf("entry %d: got %+v, want %+v", i, got[i], entries[i])
		}
	}
}
