// Package tds holds the wire-level model for the TDS protocol: packet
// framing types, prelogin negotiation options, login records, the tokens of
// a login response, and the error taxonomy of the connection layer.
package tds

// PacketType identifies the semantic kind of a logical message.
// ref: https://learn.microsoft.com/en-us/openspecs/windows_protocols/ms-tds/9b4a463c-2634-4a4b-ac35-bebfff2fb0f7
type PacketType byte

const (
	PacketSQLBatch  PacketType = 1
	PacketRPC       PacketType = 3
	PacketReply     PacketType = 4
	PacketAttention PacketType = 6
	PacketBulkLoad  PacketType = 7
	PacketTransMgr  PacketType = 14
	PacketLogin7    PacketType = 16
	PacketSSPI      PacketType = 17
	PacketPrelogin  PacketType = 18
)

func (t PacketType) String() string {
	switch t {
	case PacketSQLBatch:
		return "SQL_BATCH"
	case PacketRPC:
		return "RPC"
	case PacketReply:
		return "REPLY"
	case PacketAttention:
		return "ATTENTION"
	case PacketBulkLoad:
		return "BULK_LOAD"
	case PacketTransMgr:
		return "TRANS_MGR"
	case PacketLogin7:
		return "LOGIN7"
	case PacketSSPI:
		return "SSPI"
	case PacketPrelogin:
		return "PRELOGIN"
	default:
		return "UNKNOWN"
	}
}

// Packet status bits.
const (
	StatusEOM             byte = 0x01 // last packet of the message
	StatusIgnore          byte = 0x02
	StatusResetConnection byte = 0x08
)

const (
	// HeaderSize is the fixed TDS packet header length.
	HeaderSize = 8

	// MinPacketSize and MaxPacketSize bound the negotiable packet size.
	MinPacketSize = 512
	MaxPacketSize = 32767

	// DefaultPacketSize is used when the configuration does not override it.
	DefaultPacketSize = 4096
)

// TDS protocol versions (big-endian on the wire inside LOGINACK).
const (
	VerTDS72 uint32 = 0x72090002
	VerTDS73 uint32 = 0x730A0003
	VerTDS74 uint32 = 0x74000004
)

// TokenType identifies a token inside a server response message.
type TokenType byte

const (
	TokenError         TokenType = 0xAA
	TokenInfo          TokenType = 0xAB
	TokenLoginAck      TokenType = 0xAD
	TokenFeatureExtAck TokenType = 0xAE
	TokenEnvChange     TokenType = 0xE3
	TokenDone          TokenType = 0xFD
)

func (t TokenType) String() string {
	switch t {
	case TokenError:
		return "ERROR"
	case TokenInfo:
		return "INFO"
	case TokenLoginAck:
		return "LOGINACK"
	case TokenFeatureExtAck:
		return "FEATUREEXTACK"
	case TokenEnvChange:
		return "ENVCHANGE"
	case TokenDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// ENVCHANGE types handled during login.
const (
	EnvTypeDatabase   byte = 1
	EnvTypeLanguage   byte = 2
	EnvTypePacketSize byte = 4
)
