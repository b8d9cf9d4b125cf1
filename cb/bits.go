package cb

import "fmt"

// bitReader reads big-endian bit fields from a byte slice, most significant bit first.
type bitReader struct {
	data []byte
	pos  int
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

// Read the next n bits (n <= 32) as unsigned integer.
func (r *bitReader) Read(n int) (uint32, error) {
	if n < 0 || n > 32 {
		return 0, fmt.Errorf("cannot read %d bits at once", n)
	}
	if r.pos+n > len(r.data)*8 {
		return 0, fmt.Errorf("cannot read %d bits at bit %d, only %d bits available", n, r.pos, len(r.data)*8)
	}
	var result uint32
	for i := 0; i < n; i++ {
		b := r.data[r.pos/8]
		bit := (b >> (7 - uint(r.pos%8))) & 0x01
		result = result<<1 | uint32(bit)
		r.pos++
	}
	return result, nil
}

// Align skips the remaining bits of the current byte.
func (r *bitReader) Align() {
	if r.pos%8 != 0 {
		r.pos += 8 - r.pos%8
	}
}

// bitWriter is the counterpart of bitReader.
type bitWriter struct {
	data []byte
	pos  int
}

// Write the lowest n bits of value.
func (w *bitWriter) Write(value uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.pos%8 == 0 {
			w.data = append(w.data, 0)
		}
		if (value>>uint(i))&0x01 != 0 {
			w.data[len(w.data)-1] |= 0x80 >> uint(w.pos%8)
		}
		w.pos++
	}
}

// Align pads the current byte with zero bits.
func (w *bitWriter) Align() {
	if w.pos%8 != 0 {
		w.pos += 8 - w.pos%8
	}
}

func (w *bitWriter) Bytes() []byte {
	return w.data
}
