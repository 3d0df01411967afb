// Package leb128 implements a bounds-checked cursor over a byte slice that
// decodes LEB128-family integers. The Dex class-data, Vdex verifier-deps,
// quickening-hint and 021 compact-offset-table decoders share this one
// cursor type instead of each hand-rolling pointer arithmetic, the way the
// upstream C sources do; internal/dex's string-data reader decodes its
// length prefix with its own small helper.
package leb128

import "github.com/kestrelsec/vdextract/internal/verrors"

// Cursor walks a byte slice from start to end, tracking a current read
// position the way a lexer tracks source position.
type Cursor struct {
	data    []byte
	start   int
	current int
	end     int
}

// NewCursor returns a Cursor over data[0:len(data)].
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data, end: len(data)}
}

// NewCursorAt returns a Cursor over data starting at offset off.
func NewCursorAt(data []byte, off int) *Cursor {
	return &Cursor{data: data, start: off, current: off, end: len(data)}
}

func (c *Cursor) isAtEnd() bool { return c.current >= c.end }

// Pos returns the current byte offset into the underlying slice.
func (c *Cursor) Pos() int { return c.current }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return c.end - c.current }

// Clone returns an independent cursor over the same backing slice at the
// current position, letting a caller peek a value without consuming it
// from the original cursor.
func (c *Cursor) Clone() *Cursor {
	cp := *c
	return &cp
}

func (c *Cursor) advance() (byte, bool) {
	if c.isAtEnd() {
		return 0, false
	}
	b := c.data[c.current]
	c.current++
	return b, true
}

// ReadULEB128 decodes an unsigned LEB128 value, LSB-first 7-bit groups with
// high-bit continuation, per the Dex file format.
func (c *Cursor) ReadULEB128() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, ok := c.advance()
		if !ok {
			return 0, verrors.New(verrors.VerifierDepsOverflow, "ULEB128 read past end of slice")
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, verrors.New(verrors.MalformedDex, "ULEB128 value too long")
		}
	}
}

// ReadULEB128p1 decodes a ULEB128p1 value: the encoded value is the real
// value plus one, so an encoded 0 decodes to -1. Used for Dex fields that
// default to "no value".
func (c *Cursor) ReadULEB128p1() (int64, error) {
	v, err := c.ReadULEB128()
	if err != nil {
		return 0, err
	}
	return int64(v) - 1, nil
}

// ReadSLEB128 decodes a signed LEB128 value.
func (c *Cursor) ReadSLEB128() (int32, error) {
	var result int32
	var shift uint
	var b byte
	ok := true
	for {
		b, ok = c.advance()
		if !ok {
			return 0, verrors.New(verrors.VerifierDepsOverflow, "SLEB128 read past end of slice")
		}
		result |= int32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 35 {
			return 0, verrors.New(verrors.MalformedDex, "SLEB128 value too long")
		}
	}
	if shift < 32 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}

// ReadBytes consumes and returns n raw bytes.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if c.current+n > c.end {
		return nil, verrors.New(verrors.VerifierDepsOverflow, "raw read past end of slice")
	}
	b := c.data[c.current : c.current+n]
	c.current += n
	return b, nil
}

// ReadCString reads bytes up to and including the next NUL and returns the
// bytes before it, matching the Dex extraStrings encoding.
func (c *Cursor) ReadCString() (string, error) {
	start := c.current
	for {
		b, ok := c.advance()
		if !ok {
			return "", verrors.New(verrors.VerifierDepsOverflow, "unterminated string")
		}
		if b == 0 {
			return string(c.data[start : c.current-1]), nil
		}
	}
}

// WriteULEB128Fixed encodes value into buf[off:off+width] as an unsigned
// LEB128 value padded with non-minimal continuation groups so it occupies
// exactly width bytes. A ULEB128 reader still decodes it correctly — it
// only ever checks the continuation bit, never minimality — which is what
// lets a rewrite clear bits out of an access-flags entry without shifting
// every class-data entry that follows it in the stream.
func WriteULEB128Fixed(buf []byte, off int, value uint32, width int) {
	for i := 0; i < width; i++ {
		b := byte(value & 0x7f)
		value >>= 7
		if i != width-1 {
			b |= 0x80
		}
		buf[off+i] = b
	}
}

// ReadU4 reads a little-endian uint32.
func (c *Cursor) ReadU4() (uint32, error) {
	b, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}
