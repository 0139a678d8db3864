package tds

import "fmt"

// SessionContext carries what the handshake negotiated. It is handed to the
// query execution layer once the connection is established and is never
// mutated afterwards.
type SessionContext struct {
	TDSVersion    uint32 `json:"tds_version" yaml:"tds_version"`
	ServerProgram string `json:"server_program" yaml:"server_program"`
	ServerMajor   uint8  `json:"server_major" yaml:"server_major"`
	ServerMinor   uint8  `json:"server_minor" yaml:"server_minor"`
	ServerBuild   uint16 `json:"server_build" yaml:"server_build"`
	PacketSize    int    `json:"packet_size" yaml:"packet_size"`
	Database      string `json:"database" yaml:"database"`
	Language      string `json:"language" yaml:"language"`
	Encrypted     bool   `json:"encrypted" yaml:"encrypted"`
}

// ServerVersion renders the server version as "prog major.minor.build".
func (s *SessionContext) ServerVersion() string {
	return fmt.Sprintf("%s %d.%d.%d", s.ServerProgram, s.ServerMajor, s.ServerMinor, s.ServerBuild)
}

// OutcomeKind classifies how a handshake attempt ended.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeTransient
	OutcomeFatal
	OutcomeTimeout
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient-failure"
	case OutcomeFatal:
		return "fatal-failure"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Outcome is the contract between the handshake state machine and the
// retry controller: exactly one of Session or Err is meaningful.
type Outcome struct {
	Kind    OutcomeKind
	Session *SessionContext
	Err     error
}

func SuccessOutcome(s *SessionContext) *Outcome {
	return &Outcome{Kind: OutcomeSuccess, Session: s}
}

func TransientOutcome(err error) *Outcome {
	return &Outcome{Kind: OutcomeTransient, Err: err}
}

func FatalOutcome(err error) *Outcome {
	return &Outcome{Kind: OutcomeFatal, Err: err}
}

func TimeoutOutcome(err error) *Outcome {
	return &Outcome{Kind: OutcomeTimeout, Err: err}
}
