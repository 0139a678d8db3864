// Package conn drives a single TDS connection attempt: it encodes the LOGIN7
// record and runs the prelogin/login handshake state machine over one
// transport.
package conn

import (
	"fmt"

	models "github.com/tabwire/tds/pkg/models/tds"
	"github.com/tabwire/tds/pkg/tds/wire"
)

// login7FixedSize is the size of the LOGIN7 fixed header, including the
// offset/length directory and the trailing SSPI long length.
const login7FixedSize = 94

// manglePassword obfuscates a UCS-2LE password in place the way LOGIN7
// requires: swap the nibbles of every byte, then XOR with 0xA5.
func manglePassword(p []byte) []byte {
	for i, ch := range p {
		p[i] = (((ch << 4) & 0xf0) | (ch >> 4)) ^ 0xA5
	}
	return p
}

// EncodeLogin7 serializes l into a LOGIN7 record ready to be framed as a
// Login7 message. Strings travel as UCS-2LE addressed by the offset/length
// directory in the fixed header; directory lengths count characters, except
// the SSPI entry which counts bytes.
func EncodeLogin7(l *models.Login7) ([]byte, error) {
	var encErr error
	ucs2 := func(s string) []byte {
		out, err := wire.EncodeUCS2(s)
		if err != nil && encErr == nil {
			encErr = err
		}
		return out
	}

	hostname := ucs2(l.HostName)
	username := ucs2(l.UserName)
	password := manglePassword(ucs2(l.Password))
	appname := ucs2(l.AppName)
	servername := ucs2(l.ServerName)
	ctlintname := ucs2(l.CtlIntName)
	language := ucs2(l.Language)
	database := ucs2(l.Database)
	atchdbfile := ucs2(l.AtchDBFile)
	changepassword := manglePassword(ucs2(l.ChangePassword))
	if encErr != nil {
		return nil, fmt.Errorf("failed to encode login record: %w", encErr)
	}

	// Variable data in directory order. The extension slot stays empty.
	sections := [][]byte{
		hostname, username, password, appname, servername,
		nil, // extension
		ctlintname, language, database,
		l.SSPI, atchdbfile, changepassword,
	}
	total := login7FixedSize
	for _, s := range sections {
		total += len(s)
	}

	b := wire.NewBuilder(total)
	b.WriteUint32LE(uint32(total))
	b.WriteUint32LE(l.TDSVersion)
	b.WriteUint32LE(l.PacketSize)
	b.WriteUint32LE(l.ClientProgVer)
	b.WriteUint32LE(l.ClientPID)
	b.WriteUint32LE(l.ConnectionID)
	b.WriteByte(l.OptionFlags1)
	b.WriteByte(l.OptionFlags2)
	b.WriteByte(l.TypeFlags)
	b.WriteByte(l.OptionFlags3)
	b.WriteInt32LE(l.ClientTimeZone)
	b.WriteUint32LE(l.ClientLCID)

	offset := uint16(login7FixedSize)
	dirEntry := func(data []byte, lengthUnit int) {
		b.WriteUint16LE(offset)
		b.WriteUint16LE(uint16(len(data) / lengthUnit))
		offset += uint16(len(data))
	}
	dirEntry(hostname, 2)
	dirEntry(username, 2)
	dirEntry(password, 2)
	dirEntry(appname, 2)
	dirEntry(servername, 2)
	dirEntry(nil, 2) // extension
	dirEntry(ctlintname, 2)
	dirEntry(language, 2)
	dirEntry(database, 2)
	b.WriteBytes(l.ClientID[:])
	dirEntry(l.SSPI, 1)
	dirEntry(atchdbfile, 2)
	dirEntry(changepassword, 2)
	b.WriteUint32LE(0) // long SSPI length, unused

	for _, s := range sections {
		b.WriteBytes(s)
	}
	return b.Bytes(), nil
}
