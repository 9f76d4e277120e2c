// Package auth validates the credential carried at the front of a query
// request and strips it to expose the payload.
//
// Strategies are selected once from configuration:
//   - none: the whole request is the payload
//   - tolerant_none: no authentication, but a leading shared-secret hash is
//     stripped when a client sends one anyway
//   - shared_secret_hash: the request must start with the hex digest of the
//     shared secret
//   - keyed_hmac: the request is a 32-byte keyed digest of the payload
//     followed by the payload. The digest is SHA-256(key || payload) by
//     default or HMAC-SHA256 with security.keyed_digest: hmac_sha256
//     where key is PBKDF2-HMAC-SHA256 of the secret with an empty salt
//   - transport_tls: authentication is delegated to the TLS layer; the
//     request is handled as with none
package auth

import (
	"fmt"

	"github.com/sirosfoundation/linesearch/pkg/config"
)

// Mode represents an authentication strategy
type Mode string

const (
	ModeNone             Mode = config.AuthModeNone
	ModeTolerantNone     Mode = config.AuthModeTolerantNone
	ModeSharedSecretHash Mode = config.AuthModeSharedSecretHash
	ModeKeyedHMAC        Mode = config.AuthModeKeyedHMAC
	ModeTransportTLS     Mode = config.AuthModeTransportTLS
)

// ValidModes lists all valid authentication modes
var ValidModes = []Mode{ModeNone, ModeTolerantNone, ModeSharedSecretHash, ModeKeyedHMAC, ModeTransportTLS}

// IsValid checks if a mode string is valid
func (m Mode) IsValid() bool {
	for _, valid := range ValidModes {
		if m == valid {
			return true
		}
	}
	return false
}

// ParseMode parses a mode string into a Mode, returning an error if invalid
func ParseMode(s string) (Mode, error) {
	mode := Mode(s)
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid auth mode %q, valid modes: %v", s, ValidModes)
	}
	return mode, nil
}

// Authenticator checks the credential prefix of a request.
// Implementations are immutable after construction and safe for concurrent use.
type Authenticator interface {
	// Authenticate returns the request payload with the credential removed.
	// On mismatch it returns an error wrapping domain.ErrAuthFailed.
	// An empty payload is not an authentication decision.
	Authenticate(request []byte) ([]byte, error)

	// Mode returns the strategy implemented
	Mode() Mode
}

// Factory creates an Authenticator from the security configuration
type Factory func(cfg config.SecurityConfig) (Authenticator, error)

// registry of authenticator factories
var factories = make(map[Mode]Factory)

// Register registers a factory for a mode
func Register(mode Mode, factory Factory) {
	factories[mode] = factory
}

// New creates the authenticator selected by cfg.AuthMode
func New(cfg config.SecurityConfig) (Authenticator, error) {
	mode, err := ParseMode(cfg.AuthMode)
	if err != nil {
		return nil, err
	}

	factory, ok := factories[mode]
	if !ok {
		return nil, fmt.Errorf("no authenticator registered for mode %q", mode)
	}
	return factory(cfg)
}
