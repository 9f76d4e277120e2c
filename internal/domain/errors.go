package domain

import (
	"errors"
	"net"
	"os"
)

// Error kinds surfaced by a connection. All of them are per-connection except
// ErrCorpusUnavailable at startup under the snapshot policy.
var (
	ErrAuthFailed         = errors.New("authentication failed")
	ErrTimeout            = errors.New("request timed out")
	ErrMalformedRequest   = errors.New("malformed request")
	ErrCorpusUnavailable  = errors.New("corpus unavailable")
	ErrTransportHandshake = errors.New("transport handshake failed")
	ErrOverloaded         = errors.New("server overloaded")
)

// Classify maps an error to the verdict the client receives and a short
// reason used as a log field and metrics label.
func Classify(err error) (Verdict, string) {
	switch {
	case err == nil:
		return VerdictInternalError, "unknown"
	case errors.Is(err, ErrAuthFailed):
		return VerdictAuthFailed, "auth"
	case errors.Is(err, ErrMalformedRequest):
		return VerdictInvalidInput, "malformed"
	case errors.Is(err, ErrTimeout), IsTimeout(err):
		return VerdictTimeout, "timeout"
	case errors.Is(err, ErrCorpusUnavailable):
		return VerdictInternalError, "corpus"
	case errors.Is(err, ErrOverloaded):
		return VerdictInternalError, "overloaded"
	case errors.Is(err, ErrTransportHandshake):
		return VerdictInternalError, "handshake"
	default:
		return VerdictInternalError, "internal"
	}
}

// IsTimeout reports whether err is a network deadline expiry
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
