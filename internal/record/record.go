// Package record implements the packed upload-event wire format shared by
// the stream generator and the simulators: 25 bytes per event, big-endian,
// with the 40-bit size in the leading 5 bytes and the 160-bit hash in the
// trailing 20 bytes.
package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// HashSize is the width of a full file hash in bytes (160 bits).
const HashSize = 20

// sizeBytes is the width of the packed size field in bytes (40 bits).
const sizeBytes = 5

// Len is the total length of one packed record.
const Len = sizeBytes + HashSize

// MaxSize is the largest size value that fits the packed 40-bit field.
const MaxSize = 1<<(sizeBytes*8) - 1

// Hash is a full-width file identifier. Its fixed width makes the
// spec's "hash >= 2^160" overflow case unrepresentable: any Hash value
// already fits in exactly 160 bits.
type Hash [HashSize]byte

// Record is one upload event: a file identifier and its size in bytes.
type Record struct {
	Hash Hash
	Size uint64
}

// ErrOverflow is returned by Encode when Size does not fit in 40 bits.
var ErrOverflow = errors.New("record: size does not fit in 40 bits")

// ErrTruncatedRecord is returned by a Decoder when the stream ends in the
// middle of a record.
var ErrTruncatedRecord = errors.New("record: truncated record at end of stream")

// Encode packs r into its 25-byte wire form.
func Encode(r Record) ([Len]byte, error) {
	var buf [Len]byte
	if r.Size > MaxSize {
		return buf, fmt.Errorf("%w: %d", ErrOverflow, r.Size)
	}

	buf[0] = byte(r.Size >> 32)
	buf[1] = byte(r.Size >> 24)
	buf[2] = byte(r.Size >> 16)
	buf[3] = byte(r.Size >> 8)
	buf[4] = byte(r.Size)
	copy(buf[sizeBytes:], r.Hash[:])

	return buf, nil
}

// Decode unpacks a 25-byte wire record. It does not validate length; callers
// reading from a stream should use Decoder instead.
func Decode(buf [Len]byte) Record {
	size := uint64(buf[0])<<32 | uint64(buf[1])<<24 | uint64(buf[2])<<16 |
		uint64(buf[3])<<8 | uint64(buf[4])

	var h Hash
	copy(h[:], buf[sizeBytes:])

	return Record{Hash: h, Size: size}
}

// Decoder reads a lazy, single-pass, restartable sequence of records from a
// byte stream. It consumes exactly Len bytes per record and never buffers
// more than one record's worth of memory beyond the underlying reader's
// internal buffer.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r for record-at-a-time decoding.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next record, io.EOF at a clean end of stream, or
// ErrTruncatedRecord if the stream ends mid-record.
func (d *Decoder) Next() (Record, error) {
	var buf [Len]byte

	n, err := io.ReadFull(d.r, buf[:])
	switch {
	case err == nil:
		return Decode(buf), nil
	case errors.Is(err, io.EOF) && n == 0:
		return Record{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF) || (errors.Is(err, io.EOF) && n > 0):
		return Record{}, ErrTruncatedRecord
	default:
		return Record{}, err
	}
}

// All returns an iterator over every record in the stream, stopping at the
// first error (including io.EOF, which is not surfaced to the callback).
// The yielded error is non-nil only for ErrTruncatedRecord or an I/O error.
func (d *Decoder) All(yield func(Record, error) bool) {
	for {
		rec, err := d.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if !yield(rec, err) {
			return
		}
		if err != nil {
			return
		}
	}
}
