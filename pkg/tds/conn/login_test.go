package conn

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "github.com/tabwire/tds/pkg/models/tds"
	"github.com/tabwire/tds/pkg/tds/wire"
)

func TestManglePassword(t *testing.T) {
	enc, err := wire.EncodeUCS2("sa")
	require.NoError(t, err)
	// 0x73 -> nibble swap 0x37 -> xor 0xA5 = 0x92, 0x00 -> 0xA5,
	// 0x61 -> 0x16 -> 0xB3.
	assert.Equal(t, []byte{0x92, 0xA5, 0xB3, 0xA5}, manglePassword(enc))
}

func TestManglePasswordRoundTrip(t *testing.T) {
	enc, err := wire.EncodeUCS2("s3cr3t!")
	require.NoError(t, err)
	original := append([]byte(nil), enc...)

	// The inverse undoes the steps in reverse order: XOR 0xA5 first, then
	// swap the nibbles back.
	mangled := manglePassword(enc)
	restored := make([]byte, len(mangled))
	for i, ch := range mangled {
		ch ^= 0xA5
		restored[i] = ((ch << 4) & 0xf0) | (ch >> 4)
	}
	assert.Equal(t, original, restored)
}

func TestEncodeLogin7Layout(t *testing.T) {
	login := &models.Login7{
		TDSVersion: models.VerTDS74,
		PacketSize: 4096,
		ClientPID:  1234,
		HostName:   "apphost",
		UserName:   "sa",
		Password:   "secret",
		AppName:    "tabwire",
		ServerName: "db01",
		CtlIntName: "tabwire",
		Database:   "orders",
		ClientID:   [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
	}
	rec, err := EncodeLogin7(login)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(rec), login7FixedSize)
	assert.Equal(t, uint32(len(rec)), binary.LittleEndian.Uint32(rec[0:4]), "length field covers the whole record")
	assert.Equal(t, models.VerTDS74, binary.LittleEndian.Uint32(rec[4:8]))
	assert.Equal(t, uint32(4096), binary.LittleEndian.Uint32(rec[8:12]))
	assert.Equal(t, uint32(1234), binary.LittleEndian.Uint32(rec[16:20]))
	assert.Equal(t, login.ClientID[:], rec[72:78])

	// Directory entries are offset/character-count pairs from byte 36.
	readDir := func(slot int) (int, int) {
		base := 36 + 4*slot
		return int(binary.LittleEndian.Uint16(rec[base:])),
			int(binary.LittleEndian.Uint16(rec[base+2:]))
	}
	fieldAt := func(slot int) string {
		off, chars := readDir(slot)
		s, err := wire.DecodeUCS2(rec[off : off+2*chars])
		require.NoError(t, err)
		return s
	}

	hostOff, hostChars := readDir(0)
	assert.Equal(t, login7FixedSize, hostOff, "variable data starts right after the fixed header")
	assert.Equal(t, len("apphost"), hostChars)
	assert.Equal(t, "apphost", fieldAt(0))
	assert.Equal(t, "sa", fieldAt(1))
	assert.Equal(t, "tabwire", fieldAt(3))
	assert.Equal(t, "db01", fieldAt(4))
	assert.Equal(t, "orders", fieldAt(8))

	extOff, extChars := readDir(5)
	assert.NotZero(t, extOff)
	assert.Zero(t, extChars, "extension slot stays empty")
}

func TestEncodeLogin7PasswordNotInClear(t *testing.T) {
	login := &models.Login7{TDSVersion: models.VerTDS74, UserName: "sa", Password: "hunter22"}
	rec, err := EncodeLogin7(login)
	require.NoError(t, err)

	plain, err := wire.EncodeUCS2("hunter22")
	require.NoError(t, err)
	assert.False(t, bytes.Contains(rec, plain), "password must be obfuscated")

	pwOff := int(binary.LittleEndian.Uint16(rec[44:]))
	pwChars := int(binary.LittleEndian.Uint16(rec[46:]))
	require.Equal(t, len("hunter22"), pwChars)
	assert.Equal(t, manglePassword(plain), rec[pwOff:pwOff+2*pwChars])
}

func TestEncodeLogin7EmptyFields(t *testing.T) {
	rec, err := EncodeLogin7(&models.Login7{TDSVersion: models.VerTDS74})
	require.NoError(t, err)
	assert.Len(t, rec, login7FixedSize)
}
