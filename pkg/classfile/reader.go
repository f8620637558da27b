package classfile

import (
	"encoding/binary"
)

// reader is a big-endian cursor over class-file bytes. Every read is bounds
// checked and fails with a TruncatedFile LoadError.
type reader struct {
	buf  []byte
	off  int
	base int // offset of buf[0] within the whole file
}

func newReader(b []byte) *reader {
	return &reader{buf: b}
}

func (r *reader) pos() int {
	return r.base + r.off
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) need(n int) error {
	if n < 0 || r.remaining() < n {
		return loadErr(TruncatedFile, "", r.pos(), nil)
	}
	return nil
}

func (r *reader) u1() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) u2() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u4() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) u8() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

// bytes returns a copy so parsed structures never alias the input buffer.
func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+n])
	r.off += n
	return out, nil
}

// sub carves the next n bytes into an independent reader.
func (r *reader) sub(n int) (*reader, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	s := &reader{buf: r.buf[r.off : r.off+n], base: r.pos()}
	r.off += n
	return s, nil
}

// writer accumulates big-endian output for serialisation.
type writer struct {
	buf []byte
}

func (w *writer) u1(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) u2(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *writer) u4(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *writer) u8(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *writer) raw(b []byte) {
	w.buf = append(w.buf, b...)
}
