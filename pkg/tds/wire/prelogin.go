package wire

import (
	"bytes"
	"encoding/binary"

	models "github.com/tabwire/tds/pkg/models/tds"
)

// preloginEntrySize is one TLV directory entry: id, offset, length.
const preloginEntrySize = 5

type preloginField struct {
	id    byte
	value []byte
}

// EncodePrelogin writes the option directory followed by the value block,
// terminator last. Directory order is ascending option id; offsets and
// lengths are big-endian.
func EncodePrelogin(opts *models.PreloginOptions) ([]byte, error) {
	version := NewBuilder(6)
	version.WriteByte(opts.Version.Major)
	version.WriteByte(opts.Version.Minor)
	version.WriteUint16BE(opts.Version.Build)
	version.WriteUint16BE(opts.Version.SubBuild)

	instance := NewBuilder(len(opts.Instance) + 1)
	instance.WriteASCIIZ(opts.Instance)

	thread := NewBuilder(4)
	thread.WriteUint32BE(opts.ThreadID)

	mars := byte(0)
	if opts.MARS {
		mars = 1
	}

	fields := []preloginField{
		{models.PreloginVersion, version.Bytes()},
		{models.PreloginEncryption, []byte{byte(opts.Encryption)}},
		{models.PreloginInstance, instance.Bytes()},
		{models.PreloginThreadID, thread.Bytes()},
		{models.PreloginMARS, []byte{mars}},
	}
	if opts.TraceID != nil {
		trace := NewBuilder(36)
		trace.WriteBytes(opts.TraceID.ConnID[:])
		trace.WriteBytes(opts.TraceID.ActivityID[:])
		trace.WriteUint32LE(opts.TraceID.ActivitySeq)
		fields = append(fields, preloginField{models.PreloginTraceID, trace.Bytes()})
	}

	b := NewBuilder(64)
	offset := uint16(preloginEntrySize*len(fields) + 1)
	for _, f := range fields {
		b.WriteByte(f.id)
		b.WriteUint16BE(offset)
		b.WriteUint16BE(uint16(len(f.value)))
		offset += uint16(len(f.value))
	}
	b.WriteByte(models.PreloginTerminator)
	for _, f := range fields {
		b.WriteBytes(f.value)
	}
	return b.Bytes(), nil
}

// DecodePrelogin parses a prelogin payload back into options. It fails with
// a ProtocolError when the terminator is missing, a directory entry points
// outside the buffer, or the mandatory version option is absent.
func DecodePrelogin(data []byte) (*models.PreloginOptions, error) {
	opts := &models.PreloginOptions{}
	seenVersion := false

	pos := 0
	for {
		if pos >= len(data) {
			return nil, models.NewProtocolErrorf("prelogin payload has no terminator")
		}
		id := data[pos]
		if id == models.PreloginTerminator {
			break
		}
		if pos+preloginEntrySize > len(data) {
			return nil, models.NewProtocolErrorf("prelogin directory entry for option %#x is truncated", id)
		}
		off := binary.BigEndian.Uint16(data[pos+1:])
		length := binary.BigEndian.Uint16(data[pos+3:])
		end := int(off) + int(length)
		if end > len(data) {
			return nil, models.NewProtocolErrorf("prelogin option %#x points past the payload (offset %d, length %d)", id, off, length)
		}
		value := data[off:end]

		switch id {
		case models.PreloginVersion:
			if len(value) < 6 {
				return nil, models.NewProtocolErrorf("prelogin version option has %d bytes, want 6", len(value))
			}
			opts.Version = models.PreloginVersionValue{
				Major:    value[0],
				Minor:    value[1],
				Build:    binary.BigEndian.Uint16(value[2:]),
				SubBuild: binary.BigEndian.Uint16(value[4:]),
			}
			seenVersion = true
		case models.PreloginEncryption:
			if len(value) != 1 {
				return nil, models.NewProtocolErrorf("prelogin encryption option has %d bytes, want 1", len(value))
			}
			opts.Encryption = models.EncryptionMode(value[0])
		case models.PreloginInstance:
			opts.Instance = string(bytes.TrimRight(value, "\x00"))
		case models.PreloginThreadID:
			if len(value) >= 4 {
				opts.ThreadID = binary.BigEndian.Uint32(value)
			}
		case models.PreloginMARS:
			if len(value) != 1 {
				return nil, models.NewProtocolErrorf("prelogin mars option has %d bytes, want 1", len(value))
			}
			opts.MARS = value[0] != 0
		case models.PreloginTraceID:
			if len(value) != 36 {
				return nil, models.NewProtocolErrorf("prelogin trace option has %d bytes, want 36", len(value))
			}
			trace := &models.TraceID{ActivitySeq: binary.LittleEndian.Uint32(value[32:])}
			copy(trace.ConnID[:], value[:16])
			copy(trace.ActivityID[:], value[16:32])
			opts.TraceID = trace
		default:
			// Unrecognized options (fedauth, nonce) are tolerated.
		}
		pos += preloginEntrySize
	}

	if !seenVersion {
		return nil, models.NewProtocolErrorf("prelogin payload is missing the mandatory version option")
	}
	return opts, nil
}
