package auth

import "github.com/sirosfoundation/linesearch/pkg/config"

func init() {
	Register(ModeNone, func(config.SecurityConfig) (Authenticator, error) {
		return None{mode: ModeNone}, nil
	})
	// TLS authenticates the channel; the request itself carries no credential
	Register(ModeTransportTLS, func(config.SecurityConfig) (Authenticator, error) {
		return None{mode: ModeTransportTLS}, nil
	})
}

// None accepts every request unchanged
type None struct {
	mode Mode
}

// NewNone returns an authenticator that accepts every request
func NewNone() None {
	return None{mode: ModeNone}
}

// Authenticate returns the request as the payload
func (n None) Authenticate(request []byte) ([]byte, error) {
	return request, nil
}

// Mode returns ModeNone, or ModeTransportTLS when selected for a TLS listener
func (n None) Mode() Mode {
	if n.mode == "" {
		return ModeNone
	}
	return n.mode
}
