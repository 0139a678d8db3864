package wire

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	models "github.com/tabwire/tds/pkg/models/tds"
)

func appendToken(t *testing.T, b *Builder, typ models.TokenType, body func(*Builder)) {
	t.Helper()
	inner := NewBuilder(64)
	body(inner)
	b.WriteByte(byte(typ))
	b.WriteUint16LE(uint16(inner.Len()))
	b.WriteBytes(inner.Bytes())
}

func appendDone(b *Builder, status uint16) {
	b.WriteByte(byte(models.TokenDone))
	b.WriteUint16LE(status)
	b.WriteUint16LE(0)
	b.WriteUint64LE(0)
}

func TestTokenReaderLoginAck(t *testing.T) {
	b := NewBuilder(64)
	appendToken(t, b, models.TokenLoginAck, func(body *Builder) {
		body.WriteByte(1)
		body.WriteUint32BE(models.VerTDS74)
		require.NoError(t, body.WriteBVarChar("Microsoft SQL Server"))
		body.WriteBytes([]byte{16, 0, 0x10, 0x4C})
	})
	appendDone(b, 0)

	tr := NewTokenReader(b.Bytes(), zap.NewNop())
	typ, v, err := tr.Next()
	require.NoError(t, err)
	require.Equal(t, models.TokenLoginAck, typ)
	ack := v.(*models.LoginAck)
	assert.Equal(t, byte(1), ack.Interface)
	assert.Equal(t, models.VerTDS74, ack.TDSVersion)
	assert.Equal(t, "Microsoft SQL Server", ack.ProgName)
	major, minor, build := ack.ServerVersion()
	assert.Equal(t, uint8(16), major)
	assert.Equal(t, uint8(0), minor)
	assert.Equal(t, uint16(0x104C), build)

	typ, v, err = tr.Next()
	require.NoError(t, err)
	require.Equal(t, models.TokenDone, typ)
	assert.Equal(t, uint16(0), v.(*models.Done).Status)

	_, _, err = tr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTokenReaderErrorAndInfo(t *testing.T) {
	writeServerError := func(body *Builder) {
		body.WriteUint32LE(40501)
		body.WriteByte(1)
		body.WriteByte(20)
		require.NoError(t, body.WriteUSVarChar("The service is currently busy."))
		require.NoError(t, body.WriteBVarChar("sqlhost"))
		require.NoError(t, body.WriteBVarChar(""))
		body.WriteInt32LE(1)
	}

	b := NewBuilder(128)
	appendToken(t, b, models.TokenError, writeServerError)
	appendToken(t, b, models.TokenInfo, writeServerError)

	tr := NewTokenReader(b.Bytes(), zap.NewNop())
	for _, want := range []models.TokenType{models.TokenError, models.TokenInfo} {
		typ, v, err := tr.Next()
		require.NoError(t, err)
		require.Equal(t, want, typ)
		se := v.(*models.ServerError)
		assert.Equal(t, int32(40501), se.Number)
		assert.Equal(t, byte(1), se.State)
		assert.Equal(t, byte(20), se.Class)
		assert.Equal(t, "The service is currently busy.", se.Message)
		assert.Equal(t, "sqlhost", se.ServerName)
		assert.Empty(t, se.ProcName)
		assert.Equal(t, int32(1), se.LineNo)
		assert.True(t, se.Transient())
	}
}

func TestTokenReaderEnvChange(t *testing.T) {
	b := NewBuilder(128)
	appendToken(t, b, models.TokenEnvChange, func(body *Builder) {
		body.WriteByte(models.EnvTypePacketSize)
		require.NoError(t, body.WriteBVarChar("8192"))
		require.NoError(t, body.WriteBVarChar("4096"))
	})
	appendToken(t, b, models.TokenEnvChange, func(body *Builder) {
		body.WriteByte(models.EnvTypeDatabase)
		require.NoError(t, body.WriteBVarChar("orders"))
		require.NoError(t, body.WriteBVarChar("master"))
	})
	// A collation change (type 7) must be skipped without desyncing.
	appendToken(t, b, models.TokenEnvChange, func(body *Builder) {
		body.WriteByte(7)
		body.WriteBytes([]byte{5, 0x09, 0x04, 0xD0, 0x00, 0x34, 0})
	})
	appendDone(b, 0)

	tr := NewTokenReader(b.Bytes(), zap.NewNop())
	typ, v, err := tr.Next()
	require.NoError(t, err)
	require.Equal(t, models.TokenEnvChange, typ)
	env := v.(*models.EnvChange)
	assert.Equal(t, models.EnvTypePacketSize, env.Type)
	assert.Equal(t, "8192", env.NewValue)
	assert.Equal(t, "4096", env.OldValue)

	_, v, err = tr.Next()
	require.NoError(t, err)
	env = v.(*models.EnvChange)
	assert.Equal(t, models.EnvTypeDatabase, env.Type)
	assert.Equal(t, "orders", env.NewValue)

	_, v, err = tr.Next()
	require.NoError(t, err)
	assert.Equal(t, byte(7), v.(*models.EnvChange).Type)

	typ, _, err = tr.Next()
	require.NoError(t, err)
	assert.Equal(t, models.TokenDone, typ)
}

func TestTokenReaderDoneStatus(t *testing.T) {
	b := NewBuilder(32)
	appendDone(b, models.DoneMore|models.DoneError)

	tr := NewTokenReader(b.Bytes(), zap.NewNop())
	_, v, err := tr.Next()
	require.NoError(t, err)
	done := v.(*models.Done)
	assert.NotZero(t, done.Status&models.DoneMore)
	assert.NotZero(t, done.Status&models.DoneError)
}

func TestTokenReaderUnknownToken(t *testing.T) {
	tr := NewTokenReader([]byte{0x81, 0x00, 0x00}, zap.NewNop()) // COLMETADATA
	_, _, err := tr.Next()
	require.Error(t, err)
	assert.True(t, models.IsProtocolError(err))
}

func TestTokenReaderTruncatedBody(t *testing.T) {
	b := NewBuilder(16)
	b.WriteByte(byte(models.TokenLoginAck))
	b.WriteUint16LE(50) // declares more than remains
	b.WriteBytes([]byte{1, 2, 3})

	tr := NewTokenReader(b.Bytes(), zap.NewNop())
	_, _, err := tr.Next()
	require.Error(t, err)
	assert.True(t, models.IsProtocolError(err))
}
