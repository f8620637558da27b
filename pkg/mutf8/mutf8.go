// Package mutf8 decodes and encodes the modified UTF-8 text format used by
// class-file constant pools.
//
// Modified UTF-8 differs from standard UTF-8 in two ways: the NUL character is
// written as the two-byte sequence C0 80, and supplementary characters are
// written as a surrogate pair, each half taking three bytes. Four-byte forms
// never appear.
package mutf8

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// byteClass describes one leading-byte form by mask/value pair.
type byteClass struct {
	mask  byte
	value byte
	size  int
}

// Order matters: the narrowest mask must be tried first.
var classes = [...]byteClass{
	{mask: 0x80, value: 0x00, size: 1}, // 0xxxxxxx
	{mask: 0xE0, value: 0xC0, size: 2}, // 110xxxxx 10xxxxxx
	{mask: 0xF0, value: 0xE0, size: 3}, // 1110xxxx 10xxxxxx 10xxxxxx
}

// DecodeError reports malformed modified UTF-8 input.
type DecodeError struct {
	Offset int    // byte offset of the offending sequence
	Byte   byte   // the byte that could not be decoded
	Reason string // short description
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("mutf8: %s at offset %d (byte 0x%02X)", e.Reason, e.Offset, e.Byte)
}

func sequenceSize(b byte) int {
	for _, c := range classes {
		if b&c.mask == c.value {
			return c.size
		}
	}
	return 0
}

// decodeUnits turns the byte stream into UTF-16 code units.
func decodeUnits(b []byte) ([]uint16, error) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		lead := b[i]
		if lead == 0x00 {
			return nil, &DecodeError{Offset: i, Byte: lead, Reason: "NUL byte"}
		}
		size := sequenceSize(lead)
		if size == 0 {
			return nil, &DecodeError{Offset: i, Byte: lead, Reason: "invalid leading byte"}
		}
		if i+size > len(b) {
			return nil, &DecodeError{Offset: i, Byte: lead, Reason: "truncated sequence"}
		}
		for j := 1; j < size; j++ {
			if b[i+j]&0xC0 != 0x80 {
				return nil, &DecodeError{Offset: i + j, Byte: b[i+j], Reason: "invalid continuation byte"}
			}
		}

		var u uint16
		switch size {
		case 1:
			u = uint16(lead)
		case 2:
			u = uint16(lead&0x1F)<<6 | uint16(b[i+1]&0x3F)
		case 3:
			u = uint16(lead&0x0F)<<12 | uint16(b[i+1]&0x3F)<<6 | uint16(b[i+2]&0x3F)
		}
		// Only the shortest form is accepted, except C0 80 for NUL.
		if (size == 2 && u < 0x80 && u != 0) || (size == 3 && u < 0x800) {
			return nil, &DecodeError{Offset: i, Byte: lead, Reason: "overlong sequence"}
		}
		units = append(units, u)
		i += size
	}
	return units, nil
}

// Decode converts modified UTF-8 bytes into a Go string.
//
// Surrogate pairs are combined into one supplementary rune. A lone surrogate
// has no UTF-8 form, so it is kept as its original three bytes; Encode writes
// it back unchanged.
func Decode(b []byte) (string, error) {
	units, err := decodeUnits(b)
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, len(b))
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case utf16.IsSurrogate(rune(u)):
			if u < 0xDC00 && i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF {
				out = utf8.AppendRune(out, utf16.DecodeRune(rune(u), rune(units[i+1])))
				i++
				continue
			}
			out = appendUnit3(out, u)
		default:
			out = utf8.AppendRune(out, rune(u))
		}
	}
	return string(out), nil
}

// Encode converts a Go string into modified UTF-8.
func Encode(s string) []byte {
	out := make([]byte, 0, len(s)+2)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			if isRawSurrogate(s[i:]) {
				out = append(out, s[i], s[i+1], s[i+2])
				i += 3
				continue
			}
			r = utf8.RuneError
		}
		i += size

		switch {
		case r == 0:
			out = append(out, 0xC0, 0x80)
		case r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			out = appendUnit3(out, uint16(r))
		default:
			hi, lo := utf16.EncodeRune(r)
			out = appendUnit3(out, uint16(hi))
			out = appendUnit3(out, uint16(lo))
		}
	}
	return out
}

// Valid reports whether b is well-formed modified UTF-8.
func Valid(b []byte) bool {
	_, err := decodeUnits(b)
	return err == nil
}

// RuneCount returns the number of UTF-16 code units encoded in b, which is the
// length a Java string built from b would report.
func RuneCount(b []byte) (int, error) {
	units, err := decodeUnits(b)
	if err != nil {
		return 0, err
	}
	return len(units), nil
}

func appendUnit3(out []byte, u uint16) []byte {
	return append(out, 0xE0|byte(u>>12), 0x80|byte(u>>6)&0x3F, 0x80|byte(u&0x3F))
}

// isRawSurrogate matches ED A0..BF 80..BF, the three-byte form of U+D800..U+DFFF.
func isRawSurrogate(s string) bool {
	return len(s) >= 3 && s[0] == 0xED && s[1] >= 0xA0 && s[1] <= 0xBF && s[2]&0xC0 == 0x80
}
