package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/sirosfoundation/linesearch/internal/domain"
	"github.com/sirosfoundation/linesearch/pkg/config"
)

func init() {
	Register(ModeSharedSecretHash, func(cfg config.SecurityConfig) (Authenticator, error) {
		return NewSharedSecretHash(cfg.SharedSecret, cfg.HashAlgorithm)
	})
	Register(ModeTolerantNone, func(cfg config.SecurityConfig) (Authenticator, error) {
		return NewTolerantNone(cfg.SharedSecret, cfg.HashAlgorithm)
	})
}

// SharedSecretDigest returns the lowercase hex digest of secret that clients
// send as the request prefix. algorithm is "sha256" (default) or "blake3".
func SharedSecretDigest(secret, algorithm string) (string, error) {
	switch algorithm {
	case "", "sha256":
		sum := sha256.Sum256([]byte(secret))
		return hex.EncodeToString(sum[:]), nil
	case "blake3":
		sum := blake3.Sum256([]byte(secret))
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// SharedSecretHash authenticates requests prefixed with the shared-secret digest
type SharedSecretHash struct {
	credential *Credential
}

// NewSharedSecretHash derives the expected prefix once from secret
func NewSharedSecretHash(secret, algorithm string) (*SharedSecretHash, error) {
	if secret == "" {
		return nil, fmt.Errorf("shared secret is empty")
	}
	digest, err := SharedSecretDigest(secret, algorithm)
	if err != nil {
		return nil, err
	}
	return &SharedSecretHash{credential: NewCredential([]byte(digest))}, nil
}

// Authenticate checks and strips the digest prefix
func (a *SharedSecretHash) Authenticate(request []byte) ([]byte, error) {
	ok, err := a.credential.HasPrefix(request)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: shared secret hash prefix mismatch", domain.ErrAuthFailed)
	}
	return request[a.credential.Len():], nil
}

// Mode returns ModeSharedSecretHash
func (a *SharedSecretHash) Mode() Mode {
	return ModeSharedSecretHash
}

// TolerantNone never rejects a request. When the request begins with the
// shared-secret digest it is stripped, for clients still configured to send
// one; otherwise the request is the payload unchanged.
type TolerantNone struct {
	credential *Credential
}

// NewTolerantNone derives the digest to strip from secret
func NewTolerantNone(secret, algorithm string) (*TolerantNone, error) {
	if secret == "" {
		return nil, fmt.Errorf("shared secret is empty")
	}
	digest, err := SharedSecretDigest(secret, algorithm)
	if err != nil {
		return nil, err
	}
	return &TolerantNone{credential: NewCredential([]byte(digest))}, nil
}

// Authenticate strips a matching digest prefix if present
func (a *TolerantNone) Authenticate(request []byte) ([]byte, error) {
	ok, err := a.credential.HasPrefix(request)
	if err != nil {
		return nil, err
	}
	if ok {
		return request[a.credential.Len():], nil
	}
	return request, nil
}

// Mode returns ModeTolerantNone
func (a *TolerantNone) Mode() Mode {
	return ModeTolerantNone
}
