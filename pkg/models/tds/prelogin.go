package tds

// Prelogin option ids as they appear in the TLV directory.
// ref: https://learn.microsoft.com/en-us/openspecs/windows_protocols/ms-tds/60f56408-0188-4cd5-8b90-25c6f2423868
const (
	PreloginVersion         byte = 0
	PreloginEncryption      byte = 1
	PreloginInstance        byte = 2
	PreloginThreadID        byte = 3
	PreloginMARS            byte = 4
	PreloginTraceID         byte = 5
	PreloginFedAuthRequired byte = 6
	PreloginTerminator      byte = 0xFF
)

// EncryptionMode is the 1-byte encryption negotiation value.
type EncryptionMode byte

const (
	EncryptionOff          EncryptionMode = 0 // available but off
	EncryptionOn           EncryptionMode = 1 // available and on
	EncryptionNotSupported EncryptionMode = 2
	EncryptionRequired     EncryptionMode = 3
)

func (m EncryptionMode) String() string {
	switch m {
	case EncryptionOff:
		return "off"
	case EncryptionOn:
		return "on"
	case EncryptionNotSupported:
		return "not-supported"
	case EncryptionRequired:
		return "required"
	default:
		return "invalid"
	}
}

// PreloginVersionValue is the 6-byte VERSION option payload.
type PreloginVersionValue struct {
	Major    uint8  `json:"major" yaml:"major"`
	Minor    uint8  `json:"minor" yaml:"minor"`
	Build    uint16 `json:"build" yaml:"build"`
	SubBuild uint16 `json:"sub_build" yaml:"sub_build"`
}

// TraceID is the 36-byte TRACEID option payload: a connection id GUID, an
// activity id GUID and an activity sequence number.
type TraceID struct {
	ConnID      [16]byte `json:"conn_id" yaml:"conn_id,flow"`
	ActivityID  [16]byte `json:"activity_id" yaml:"activity_id,flow"`
	ActivitySeq uint32   `json:"activity_seq" yaml:"activity_seq"`
}

// PreloginOptions is the decoded form of a prelogin payload. Version,
// Encryption, Instance, ThreadID and MARS are always present in an encoded
// option set; TraceID is optional.
type PreloginOptions struct {
	Version    PreloginVersionValue `json:"version" yaml:"version"`
	Encryption EncryptionMode       `json:"encryption" yaml:"encryption"`
	Instance   string               `json:"instance" yaml:"instance"`
	ThreadID   uint32               `json:"thread_id" yaml:"thread_id"`
	MARS       bool                 `json:"mars" yaml:"mars"`
	TraceID    *TraceID             `json:"trace_id,omitempty" yaml:"trace_id,omitempty"`
}
