// Package bits provides bit-level I/O for fixed-width packed integers.
//
// Values are packed least-significant-bit first, so a stream of n-bit
// values occupies ceil(count*n/8) bytes with no per-value framing. Width 0
// is allowed and reads back as 0, which lets a codec skip columns whose
// value range is empty.
package bits

import "errors"

// ErrOutOfBits is returned when a read runs past the end of the buffer.
var ErrOutOfBits = errors.New("bits: out of bits")

// Writer appends fixed-width values to a byte buffer.
type Writer struct {
	buf   []byte
	cur   uint64
	nbits uint
}

// NewWriter creates an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteBits appends the low width bits of v. Width must be 0..64 and v
// must fit in width bits.
func (w *Writer) WriteBits(v uint64, width uint) {
	if width == 0 {
		return
	}
	if width > 64 {
		panic("bits: width out of range")
	}
	if width < 64 && v>>width != 0 {
		panic("bits: value wider than declared width")
	}
	w.cur |= v << w.nbits // keeps the low 64-nbits bits of v
	total := w.nbits + width
	if total < 64 {
		w.nbits = total
		return
	}
	for i := 0; i < 8; i++ {
		w.buf = append(w.buf, byte(w.cur>>(8*i)))
	}
	rem := total - 64 // bits of v that did not fit the flushed word
	if rem > 0 {
		w.cur = v >> (width - rem)
	} else {
		w.cur = 0
	}
	w.nbits = rem
}

// Len reports the number of bytes Bytes would currently return.
func (w *Writer) Len() int {
	return len(w.buf) + int(w.nbits+7)/8
}

// Bytes returns the packed stream, padding the final partial byte with
// zero bits. The writer must not be used afterwards.
func (w *Writer) Bytes() []byte {
	for w.nbits > 0 {
		w.buf = append(w.buf, byte(w.cur))
		w.cur >>= 8
		if w.nbits >= 8 {
			w.nbits -= 8
		} else {
			w.nbits = 0
		}
	}
	return w.buf
}

// Reader extracts fixed-width values from a byte buffer produced by
// Writer. It reads directly from the slice and never copies it.
type Reader struct {
	buf []byte
	pos uint64 // bit offset
}

// NewReader creates a reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

// Reset rebinds the reader to data and rewinds it.
func (r *Reader) Reset(data []byte) {
	r.buf = data
	r.pos = 0
}

// ReadBits extracts the next width-bit value. Width must be 0..64.
func (r *Reader) ReadBits(width uint) (uint64, error) {
	if width == 0 {
		return 0, nil
	}
	if width > 64 {
		panic("bits: width out of range")
	}
	end := r.pos + uint64(width)
	if end > uint64(len(r.buf))*8 {
		return 0, ErrOutOfBits
	}
	var v uint64
	var got uint
	byteOff := r.pos >> 3
	bitOff := uint(r.pos & 7)
	for got < width {
		chunk := uint64(r.buf[byteOff]) >> bitOff
		take := 8 - bitOff
		if take > width-got {
			take = width - got
		}
		v |= (chunk & (1<<take - 1)) << got
		got += take
		bitOff = 0
		byteOff++
	}
	r.pos = end
	return v, nil
}
