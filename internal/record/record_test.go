package record

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Record{
		{Hash: Hash{}, Size: 0},
		{Hash: Hash{0xff}, Size: MaxSize},
		{Hash: Hash{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, Size: 12345},
	}

	for _, want := range cases {
		buf, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%+v): %v", want, err)
		}
		got := Decode(buf)
		if got != want {
			t.Errorf("round trip mismatch: want %+v, got %+v", want, got)
		}
	}
}

func TestEncodeOverflow(t *testing.T) {
	_, err := Encode(Record{Size: MaxSize + 1})
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestWireLayout(t *testing.T) {
	r := Record{Hash: Hash{0x01, 0x02}, Size: 0x0102030405}
	buf, err := Encode(r)
	if err != nil {
		t.Fatal(err)
	}

	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x01, 0x02}
	if !bytes.Equal(buf[:7], want) {
		t.Errorf("layout mismatch: got % x, want % x", buf[:7], want)
	}
}

func TestDecoderSequence(t *testing.T) {
	var buf bytes.Buffer
	want := []Record{
		{Hash: Hash{1}, Size: 10},
		{Hash: Hash{2}, Size: 20},
		{Hash: Hash{3}, Size: 30},
	}
	for _, r := range want {
		enc, err := Encode(r)
		if err != nil {
			t.Fatal(err)
		}
		buf.Write(enc[:])
	}

	dec := NewDecoder(&buf)
	var got []Record
	for {
		r, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, r)
	}

	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDecoderTruncatedRecord(t *testing.T) {
	buf := bytes.NewReader(make([]byte, Len-1))
	dec := NewDecoder(buf)

	_, err := dec.Next()
	if !errors.Is(err, ErrTruncatedRecord) {
		t.Fatalf("expected ErrTruncatedRecord, got %v", err)
	}
}

func TestDecoderEmptyStream(t *testing.T) {
	dec := NewDecoder(bytes.NewReader(nil))
	_, err := dec.Next()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestDecoderAllStopsOnTruncation(t *testing.T) {
	full, err := Encode(Record{Hash: Hash{9}, Size: 1})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	buf.Write(full[:])
	buf.Write(make([]byte, 3)) // partial trailing record

	dec := NewDecoder(&buf)
	var gotErr error
	n := 0
	dec.All(func(_ Record, err error) bool {
		n++
		gotErr = err
		return err == nil
	})

	if n != 2 {
		t.Fatalf("expected 2 callback invocations (1 ok + 1 error), got %d", n)
	}
	if !errors.Is(gotErr, ErrTruncatedRecord) {
		t.Fatalf("expected ErrTruncatedRecord, got %v", gotErr)
	}
}
