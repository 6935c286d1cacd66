// Package poptable reads and writes the popularity-table text format: one
// record per line, three tokens separated by exactly two ASCII spaces,
// `<40-char lowercase hex hash>  <decimal count>  <decimal size>`. Lines
// whose count or size token contains a "-" are malformed in a specific,
// historically-preserved way and must be skipped silently by consumers
// that build upload streams from the table.
package poptable

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ivoronin/dupesim/internal/record"
)

const sep = "  "

// Entry is one line of a popularity table: a file hash, the number of
// clients known to possess it, and its size in bytes.
type Entry struct {
	Hash  record.Hash
	Count uint64
	Size  uint64
}

// ErrMalformedLine is returned when a line does not split into exactly three
// two-space-separated tokens. It is distinct from the silent "-" skip rule.
var ErrMalformedLine = errors.New("poptable: malformed line")

// negative reports whether a token contains the "-" the source format uses
// to mark a negative or otherwise unusable count/size; such lines are
// dropped, not reported as errors.
func negative(tok string) bool {
	return strings.Contains(tok, "-")
}

// Decode parses one line (without its trailing newline). ok is false when
// the line should be dropped silently under the "-" rule; err is non-nil
// only for a genuinely malformed line.
func Decode(line string) (e Entry, ok bool, err error) {
	tokens := strings.Split(line, sep)
	if len(tokens) != 3 {
		return Entry{}, false, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}

	hashTok, countTok, sizeTok := tokens[0], tokens[1], tokens[2]

	if negative(countTok) || negative(sizeTok) {
		return Entry{}, false, nil
	}

	if len(hashTok) != record.HashSize*2 {
		return Entry{}, false, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}

	raw, err := hex.DecodeString(hashTok)
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: %q: %w", ErrMalformedLine, line, err)
	}
	var h record.Hash
	copy(h[:], raw)

	count, err := strconv.ParseUint(countTok, 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: %q: %w", ErrMalformedLine, line, err)
	}

	size, err := strconv.ParseUint(sizeTok, 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: %q: %w", ErrMalformedLine, line, err)
	}

	return Entry{Hash: h, Count: count, Size: size}, true, nil
}

// Encode renders e in the on-disk format, without a trailing newline. The
// hash is always exactly HashSize*2 hex characters since Hash is fixed-width.
func Encode(e Entry) string {
	return fmt.Sprintf("%x%s%d%s%d", e.Hash[:], sep, e.Count, sep, e.Size)
}

// Reader yields Entry values from a popularity table, silently dropping
// "-"-marked lines per the format's skip rule.
type Reader struct {
	s *bufio.Scanner
}

// NewReader wraps r for line-at-a-time popularity table reading.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{s: s}
}

// Next returns the next well-formed entry, transparently skipping dropped
// lines, or io.EOF when the input is exhausted.
func (r *Reader) Next() (Entry, error) {
	for r.s.Scan() {
		line := r.s.Text()
		if line == "" {
			continue
		}

		e, ok, err := Decode(line)
		if err != nil {
			return Entry{}, err
		}
		if !ok {
			continue
		}

		return e, nil
	}

	if err := r.s.Err(); err != nil {
		return Entry{}, err
	}

	return Entry{}, io.EOF
}

// All iterates every well-formed entry in the table, stopping at the first
// error or when yield returns false.
func (r *Reader) All(yield func(Entry, error) bool) {
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if !yield(e, err) {
			return
		}
		if err != nil {
			return
		}
	}
}

// Writer emits popularity table entries, one per line.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w for line-at-a-time popularity table writing.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write appends e as one line.
func (w *Writer) Write(e Entry) error {
	_, err := fmt.Fprintf(w.w, "%s\n", Encode(e))
	return err
}
