package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"go.uber.org/zap"

	models "github.com/tabwire/tds/pkg/models/tds"
)

// TokenReader walks the token stream of a drained response message. It only
// understands the tokens a login response may carry; anything else is a
// protocol violation at this stage of the session.
type TokenReader struct {
	r      *bytes.Reader
	logger *zap.Logger
}

// NewTokenReader scans data, the fully reassembled payload of one response
// message.
func NewTokenReader(data []byte, logger *zap.Logger) *TokenReader {
	return &TokenReader{r: bytes.NewReader(data), logger: logger}
}

// Next decodes one token. ERROR and INFO both yield a *models.ServerError
// (they share a layout); callers distinguish them by the returned type.
// io.EOF signals a cleanly exhausted stream.
func (tr *TokenReader) Next() (models.TokenType, any, error) {
	tb, err := tr.r.ReadByte()
	if err != nil {
		return 0, nil, io.EOF
	}
	t := models.TokenType(tb)

	switch t {
	case models.TokenError, models.TokenInfo:
		v, err := tr.readServerError()
		if err != nil {
			return t, nil, models.NewProtocolErrorf("malformed %s token: %v", t, err)
		}
		return t, v, nil
	case models.TokenLoginAck:
		v, err := tr.readLoginAck()
		if err != nil {
			return t, nil, models.NewProtocolErrorf("malformed LOGINACK token: %v", err)
		}
		return t, v, nil
	case models.TokenEnvChange:
		v, err := tr.readEnvChange()
		if err != nil {
			return t, nil, models.NewProtocolErrorf("malformed ENVCHANGE token: %v", err)
		}
		return t, v, nil
	case models.TokenDone:
		v, err := tr.readDone()
		if err != nil {
			return t, nil, models.NewProtocolErrorf("malformed DONE token: %v", err)
		}
		return t, v, nil
	default:
		return t, nil, models.NewProtocolErrorf("unexpected token %#x in login response", tb)
	}
}

// body reads the 2-byte little-endian token length and returns the token
// body as its own reader.
func (tr *TokenReader) body() (*bytes.Reader, error) {
	length, err := readUint16LE(tr.r)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(tr.r, raw); err != nil {
		return nil, fmt.Errorf("token body truncated: %w", err)
	}
	return bytes.NewReader(raw), nil
}

func (tr *TokenReader) readServerError() (*models.ServerError, error) {
	r, err := tr.body()
	if err != nil {
		return nil, err
	}
	e := &models.ServerError{}
	num, err := readUint32LE(r)
	if err != nil {
		return nil, err
	}
	e.Number = int32(num)
	if e.State, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if e.Class, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if e.Message, err = readUSVarChar(r); err != nil {
		return nil, err
	}
	if e.ServerName, err = readBVarChar(r); err != nil {
		return nil, err
	}
	if e.ProcName, err = readBVarChar(r); err != nil {
		return nil, err
	}
	line, err := readUint32LE(r)
	if err != nil {
		return nil, err
	}
	e.LineNo = int32(line)
	return e, nil
}

func (tr *TokenReader) readLoginAck() (*models.LoginAck, error) {
	r, err := tr.body()
	if err != nil {
		return nil, err
	}
	ack := &models.LoginAck{}
	if ack.Interface, err = r.ReadByte(); err != nil {
		return nil, err
	}
	// The negotiated TDS version inside LOGINACK is big-endian, unlike the
	// rest of the token stream.
	var ver [4]byte
	if _, err := io.ReadFull(r, ver[:]); err != nil {
		return nil, err
	}
	ack.TDSVersion = binary.BigEndian.Uint32(ver[:])
	if ack.ProgName, err = readBVarChar(r); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, ack.ProgVer[:]); err != nil {
		return nil, err
	}
	return ack, nil
}

func (tr *TokenReader) readEnvChange() (*models.EnvChange, error) {
	r, err := tr.body()
	if err != nil {
		return nil, err
	}
	env := &models.EnvChange{}
	if env.Type, err = r.ReadByte(); err != nil {
		return nil, err
	}
	switch env.Type {
	case models.EnvTypeDatabase, models.EnvTypeLanguage, models.EnvTypePacketSize:
		if env.NewValue, err = readBVarChar(r); err != nil {
			return nil, err
		}
		if env.OldValue, err = readBVarChar(r); err != nil {
			return nil, err
		}
	default:
		// Other environment changes are not interesting during login; the
		// body reader already consumed the declared length.
		tr.logger.Debug("skipping envchange", zap.Uint8("env_type", env.Type))
	}
	return env, nil
}

func (tr *TokenReader) readDone() (*models.Done, error) {
	var raw [12]byte
	if _, err := io.ReadFull(tr.r, raw[:]); err != nil {
		return nil, fmt.Errorf("token body truncated: %w", err)
	}
	return &models.Done{
		Status:   binary.LittleEndian.Uint16(raw[0:]),
		CurCmd:   binary.LittleEndian.Uint16(raw[2:]),
		RowCount: binary.LittleEndian.Uint64(raw[4:]),
	}, nil
}

// Little-endian read helpers for the token stream.

func readUint16LE(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readUint32LE(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// readBVarChar reads a 1-byte character count followed by UCS-2LE text.
func readBVarChar(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	return readUCS2(r, int(n))
}

// readUSVarChar reads a 2-byte character count followed by UCS-2LE text.
func readUSVarChar(r *bytes.Reader) (string, error) {
	n, err := readUint16LE(r)
	if err != nil {
		return "", err
	}
	return readUCS2(r, int(n))
}

func readUCS2(r *bytes.Reader, chars int) (string, error) {
	raw := make([]byte, chars*2)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}
	return DecodeUCS2(raw)
}
