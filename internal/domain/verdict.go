// Package domain holds the protocol vocabulary shared by the server, the
// authenticators and the client: the closed set of verdicts, their wire
// strings, and the error kinds that map onto them.
package domain

import "fmt"

// Verdict is the outcome of a single query connection
type Verdict int

const (
	VerdictExists Verdict = iota
	VerdictNotFound
	VerdictAuthFailed
	VerdictTimeout
	VerdictInvalidInput
	VerdictInternalError
)

// Wire strings written to the client. AuthFailed and the busy string carry no
// trailing newline, matching deployed clients.
const (
	WireExists       = "STRING EXISTS\n"
	WireNotFound     = "STRING NOT FOUND\n"
	WireAuthFailed   = "Authentication failed - PSK mismatch."
	WireUnavailable  = "Could not handle your request. Please try again later."
	WireInvalidInput = "One or more invalid input."
)

// AllVerdicts lists every verdict in declaration order
var AllVerdicts = []Verdict{
	VerdictExists,
	VerdictNotFound,
	VerdictAuthFailed,
	VerdictTimeout,
	VerdictInvalidInput,
	VerdictInternalError,
}

// Wire returns the exact bytes sent to the client for this verdict
func (v Verdict) Wire() string {
	switch v {
	case VerdictExists:
		return WireExists
	case VerdictNotFound:
		return WireNotFound
	case VerdictAuthFailed:
		return WireAuthFailed
	case VerdictInvalidInput:
		return WireInvalidInput
	default:
		// Timeout and internal errors share the busy string on the wire
		return WireUnavailable
	}
}

// String returns the verdict name used in logs and metrics labels
func (v Verdict) String() string {
	switch v {
	case VerdictExists:
		return "exists"
	case VerdictNotFound:
		return "not_found"
	case VerdictAuthFailed:
		return "auth_failed"
	case VerdictTimeout:
		return "timeout"
	case VerdictInvalidInput:
		return "invalid_input"
	case VerdictInternalError:
		return "internal_error"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// ParseWire maps a server response back to a verdict. The busy string is
// reported as VerdictInternalError since the wire cannot tell it from a timeout.
func ParseWire(s string) (Verdict, error) {
	switch s {
	case WireExists:
		return VerdictExists, nil
	case WireNotFound:
		return VerdictNotFound, nil
	case WireAuthFailed:
		return VerdictAuthFailed, nil
	case WireInvalidInput:
		return VerdictInvalidInput, nil
	case WireUnavailable:
		return VerdictInternalError, nil
	default:
		return 0, fmt.Errorf("unrecognized server response %q", s)
	}
}

// VerdictFor maps a search result to its verdict
func VerdictFor(found bool) Verdict {
	if found {
		return VerdictExists
	}
	return VerdictNotFound
}
