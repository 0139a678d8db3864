// Package wire implements the byte-level plumbing of the TDS connection
// layer: a position-tracking binary builder, the packet codec, the incoming
// and outgoing message streams, the prelogin codec and the login-response
// token scanner.
package wire

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

var ucs2 = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// EncodeUCS2 transcodes s to UCS-2LE.
func EncodeUCS2(s string) ([]byte, error) {
	out, err := ucs2.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q as UCS-2: %w", s, err)
	}
	return out, nil
}

// DecodeUCS2 transcodes UCS-2LE bytes back to a string.
func DecodeUCS2(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", fmt.Errorf("illegal UCS-2 length %d", len(b))
	}
	out, err := ucs2.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("failed to decode UCS-2: %w", err)
	}
	return string(out), nil
}

// Builder is an append-only binary writer that tracks its write position and
// grows on demand. All multi-byte writers are explicit about endianness
// because TDS mixes both: packet headers and the prelogin directory are
// big-endian, the login record and token stream are little-endian.
type Builder struct {
	buf []byte
}

// NewBuilder returns a Builder with the given initial capacity.
func NewBuilder(capacity int) *Builder {
	return &Builder{buf: make([]byte, 0, capacity)}
}

// Len returns the current write position.
func (b *Builder) Len() int { return len(b.buf) }

// Bytes returns the accumulated buffer. The slice is only valid until the
// next write.
func (b *Builder) Bytes() []byte { return b.buf }

// Reset truncates the buffer to zero length, keeping capacity.
func (b *Builder) Reset() { b.buf = b.buf[:0] }

// WriteByte appends a single byte. The error is always nil; the signature
// satisfies io.ByteWriter.
func (b *Builder) WriteByte(v byte) error {
	b.buf = append(b.buf, v)
	return nil
}

func (b *Builder) WriteBytes(p []byte) {
	b.buf = append(b.buf, p...)
}

func (b *Builder) WriteUint16BE(v uint16) {
	b.buf = binary.BigEndian.AppendUint16(b.buf, v)
}

func (b *Builder) WriteUint16LE(v uint16) {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, v)
}

func (b *Builder) WriteUint32BE(v uint32) {
	b.buf = binary.BigEndian.AppendUint32(b.buf, v)
}

func (b *Builder) WriteUint32LE(v uint32) {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
}

func (b *Builder) WriteUint64LE(v uint64) {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, v)
}

func (b *Builder) WriteInt32LE(v int32) {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(v))
}

// WriteUCS2 appends s transcoded to UCS-2LE and returns the byte count.
func (b *Builder) WriteUCS2(s string) (int, error) {
	enc, err := EncodeUCS2(s)
	if err != nil {
		return 0, err
	}
	b.buf = append(b.buf, enc...)
	return len(enc), nil
}

// WriteBVarChar appends a B_VARCHAR: a 1-byte character count followed by
// the UCS-2LE text.
func (b *Builder) WriteBVarChar(s string) error {
	enc, err := EncodeUCS2(s)
	if err != nil {
		return err
	}
	n := len(enc) / 2
	if n > 0xFF {
		return fmt.Errorf("B_VARCHAR too long: %d characters", n)
	}
	b.WriteByte(byte(n))
	b.buf = append(b.buf, enc...)
	return nil
}

// WriteUSVarChar appends a US_VARCHAR: a 2-byte little-endian character
// count followed by the UCS-2LE text.
func (b *Builder) WriteUSVarChar(s string) error {
	enc, err := EncodeUCS2(s)
	if err != nil {
		return err
	}
	n := len(enc) / 2
	if n > 0xFFFF {
		return fmt.Errorf("US_VARCHAR too long: %d characters", n)
	}
	b.WriteUint16LE(uint16(n))
	b.buf = append(b.buf, enc...)
	return nil
}

// WriteBVarByte appends a length-prefixed byte string (1-byte length).
func (b *Builder) WriteBVarByte(p []byte) error {
	if len(p) > 0xFF {
		return fmt.Errorf("B_VARBYTE too long: %d bytes", len(p))
	}
	b.WriteByte(byte(len(p)))
	b.buf = append(b.buf, p...)
	return nil
}

// WriteASCIIZ appends s as raw bytes followed by a NUL terminator.
func (b *Builder) WriteASCIIZ(s string) {
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
}
