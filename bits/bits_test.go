package bits

import (
	"math/rand"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteBits(0b101, 3)
	w.WriteBits(0, 0)
	w.WriteBits(0xFFFF, 16)
	w.WriteBits(1, 1)
	w.WriteBits(0xDEADBEEFCAFEBABE, 64)
	w.WriteBits(42, 7)
	data := w.Bytes()

	r := NewReader(data)
	checkRead(t, r, 3, 0b101)
	checkRead(t, r, 0, 0)
	checkRead(t, r, 16, 0xFFFF)
	checkRead(t, r, 1, 1)
	checkRead(t, r, 64, 0xDEADBEEFCAFEBABE)
	checkRead(t, r, 7, 42)
}

func TestRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	widths := make([]uint, 1000)
	values := make([]uint64, len(widths))
	w := NewWriter()
	for i := range widths {
		width := uint(rng.Intn(65))
		var v uint64
		if width == 64 {
			v = rng.Uint64()
		} else if width > 0 {
			v = rng.Uint64() & (1<<width - 1)
		}
		widths[i], values[i] = width, v
		w.WriteBits(v, width)
	}
	r := NewReader(w.Bytes())
	for i := range widths {
		checkRead(t, r, widths[i], values[i])
	}
}

func TestReadPastEnd(t *testing.T) {
	w := NewWriter()
	w.WriteBits(3, 2)
	r := NewReader(w.Bytes())
	// The final byte is zero-padded, so reads succeed until the padding
	// runs out, then fail.
	if _, err := r.ReadBits(8); err != nil {
		t.Fatalf("read within padding failed: %v", err)
	}
	if _, err := r.ReadBits(1); err != ErrOutOfBits {
		t.Errorf("got %v, wanted ErrOutOfBits", err)
	}
}

func TestReset(t *testing.T) {
	w := NewWriter()
	w.WriteBits(9, 5)
	data := w.Bytes()
	r := NewReader(data)
	checkRead(t, r, 5, 9)
	r.Reset(data)
	checkRead(t, r, 5, 9)
}

func TestWriterLen(t *testing.T) {
	w := NewWriter()
	for i, want := range []int{1, 1, 2, 9} {
		switch i {
		case 0:
			w.WriteBits(1, 1)
		case 1:
			w.WriteBits(0x7f, 7)
		case 2:
			w.WriteBits(0xff, 8)
		case 3:
			w.WriteBits(0, 56)
		}
		if got := w.Len(); got != want {
			t.Errorf("after write %d: Len() = %d, wanted %d", i, got, want)
		}
	}
}

func checkRead(t *testing.T, r *Reader, width uint, want uint64) {
	t.Helper()
	got, err := r.ReadBits(width)
	if err != nil {
		t.Fatalf("ReadBits(%d) failed: %v", width, err)
	}
	if got != want {
		t.Errorf("ReadBits(%d) = %#x, wanted %#x", width, got, want)
	}
}
