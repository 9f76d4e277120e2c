package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/sirosfoundation/linesearch/internal/domain"
	"github.com/sirosfoundation/linesearch/pkg/config"
)

// DigestSize is the length of the keyed_hmac request prefix for either
// construction
const DigestSize = sha256.Size

func init() {
	Register(ModeKeyedHMAC, func(cfg config.SecurityConfig) (Authenticator, error) {
		return NewKeyedHMAC(cfg.SharedSecret, cfg.HMACIterations, cfg.KeyedDigest)
	})
}

// Signer computes the keyed digest sent in front of a keyed_hmac payload
type Signer func(key, payload []byte) []byte

// SignerFor returns the digest construction named by security.keyed_digest.
// An empty name selects prefix_sha256.
func SignerFor(construction string) (Signer, error) {
	switch construction {
	case "", config.KeyedDigestPrefixSHA256:
		return DigestPayload, nil
	case config.KeyedDigestHMACSHA256:
		return SignPayload, nil
	default:
		return nil, fmt.Errorf("unsupported keyed digest: %s", construction)
	}
}

// DeriveHMACKey stretches the shared secret with PBKDF2-HMAC-SHA256 and an
// empty salt, so client and server derive the same key independently.
func DeriveHMACKey(secret string, iterations int) []byte {
	return pbkdf2.Key([]byte(secret), nil, iterations, sha256.Size, sha256.New)
}

// DigestPayload returns SHA-256(key || payload), the construction deployed
// keyed_hmac clients send
func DigestPayload(key, payload []byte) []byte {
	h := sha256.New()
	h.Write(key)
	h.Write(payload)
	return h.Sum(nil)
}

// SignPayload returns the HMAC-SHA256 of payload under key
func SignPayload(key, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil)
}

// KeyedHMAC authenticates requests of the form [digest][payload] where digest
// is computed over payload with the derived key.
type KeyedHMAC struct {
	key  *Credential
	sign Signer
}

// NewKeyedHMAC derives the key once from secret. construction selects the
// digest, see SignerFor.
func NewKeyedHMAC(secret string, iterations int, construction string) (*KeyedHMAC, error) {
	if secret == "" {
		return nil, fmt.Errorf("shared secret is empty")
	}
	if iterations < 1 {
		return nil, fmt.Errorf("invalid pbkdf2 iteration count: %d", iterations)
	}
	sign, err := SignerFor(construction)
	if err != nil {
		return nil, err
	}
	return &KeyedHMAC{key: NewCredential(DeriveHMACKey(secret, iterations)), sign: sign}, nil
}

// Authenticate recomputes the digest over the payload and compares it to the
// received prefix
func (a *KeyedHMAC) Authenticate(request []byte) ([]byte, error) {
	if len(request) < DigestSize {
		return nil, fmt.Errorf("%w: request shorter than keyed digest", domain.ErrAuthFailed)
	}

	received, payload := request[:DigestSize], request[DigestSize:]
	ok, err := a.key.With(func(key []byte) bool {
		return hmac.Equal(received, a.sign(key, payload))
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: keyed digest mismatch", domain.ErrAuthFailed)
	}
	return payload, nil
}

// Mode returns ModeKeyedHMAC
func (a *KeyedHMAC) Mode() Mode {
	return ModeKeyedHMAC
}
