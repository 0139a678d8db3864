package tds

import (
	"errors"
	"fmt"
	"time"
)

// ProtocolError reports malformed framing, an unexpected message type or a
// truncated payload. It is always fatal and never retried.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "tds: protocol error: " + e.Reason
}

// NewProtocolErrorf builds a ProtocolError with a formatted reason.
func NewProtocolErrorf(format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// IsProtocolError reports whether err wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// ServerError is a decoded ERROR token (also used for INFO tokens, which
// share the layout on the wire).
type ServerError struct {
	Number     int32  `json:"number" yaml:"number"`
	State      byte   `json:"state" yaml:"state"`
	Class      byte   `json:"class" yaml:"class"`
	Message    string `json:"message" yaml:"message"`
	ServerName string `json:"server_name" yaml:"server_name"`
	ProcName   string `json:"proc_name" yaml:"proc_name"`
	LineNo     int32  `json:"line_no" yaml:"line_no"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("tds: server error %d (state %d, class %d): %s", e.Number, e.State, e.Class, e.Message)
}

// transientErrorNumbers is the fixed set of server error codes that indicate
// a condition expected to resolve itself shortly, so the login is worth
// retrying. Kept as one table so its contents are testable in isolation.
var transientErrorNumbers = map[int32]struct{}{
	4060:  {}, // cannot open database requested by the login
	10928: {}, // resource limit reached
	10929: {}, // resource governance limit reached
	40197: {}, // service error processing the request
	40501: {}, // service is currently busy
	40613: {}, // database unavailable or in failover
}

// Transient reports whether this error code is in the retryable set.
func (e *ServerError) Transient() bool {
	_, ok := transientErrorNumbers[e.Number]
	return ok
}

// TransientErrorNumbers returns the retryable error codes, for diagnostics.
func TransientErrorNumbers() []int32 {
	out := make([]int32, 0, len(transientErrorNumbers))
	for n := range transientErrorNumbers {
		out = append(out, n)
	}
	return out
}

// TimeoutError reports that the overall connect deadline was exceeded. It is
// terminal: no further attempt is made regardless of remaining retry budget.
type TimeoutError struct {
	Phase   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tds: connection timed out during %s (connect timeout %s)", e.Phase, e.Timeout)
}

// IsTimeout reports whether err wraps a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Fatal configuration mismatches discovered during encryption negotiation.
var (
	ErrEncryptionRequired = errors.New("tds: server requires encryption but no TLS wrapper is configured")
	ErrEncryptionRefused  = errors.New("tds: encryption requested but the server does not support it")
)
