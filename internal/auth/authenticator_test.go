package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"

	"github.com/sirosfoundation/linesearch/internal/domain"
	"github.com/sirosfoundation/linesearch/pkg/config"
)

// test iterations keep PBKDF2 cheap
const testIterations = 1000

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestParseMode(t *testing.T) {
	for _, m := range ValidModes {
		got, err := ParseMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := ParseMode("kerberos")
	assert.Error(t, err)
}

func TestNew_SelectsStrategy(t *testing.T) {
	tests := []struct {
		cfg  config.SecurityConfig
		want Mode
	}{
		{config.SecurityConfig{AuthMode: "none"}, ModeNone},
		{config.SecurityConfig{AuthMode: "transport_tls"}, ModeTransportTLS},
		{config.SecurityConfig{AuthMode: "tolerant_none", SharedSecret: "x", HashAlgorithm: "sha256"}, ModeTolerantNone},
		{config.SecurityConfig{AuthMode: "shared_secret_hash", SharedSecret: "x", HashAlgorithm: "sha256"}, ModeSharedSecretHash},
		{config.SecurityConfig{AuthMode: "keyed_hmac", SharedSecret: "x", HMACIterations: testIterations}, ModeKeyedHMAC},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			a, err := New(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Mode())
		})
	}

	_, err := New(config.SecurityConfig{AuthMode: "bogus"})
	assert.Error(t, err)

	_, err = New(config.SecurityConfig{AuthMode: "shared_secret_hash"})
	assert.Error(t, err, "empty secret must be rejected")
}

func TestNone(t *testing.T) {
	a := NewNone()
	payload, err := a.Authenticate([]byte("beta"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(payload))

	// A hash-shaped prefix is part of the payload under plain none
	h := sha256Hex("x")
	payload, err = a.Authenticate([]byte(h + "beta"))
	require.NoError(t, err)
	assert.Equal(t, h+"beta", string(payload))
}

func TestSharedSecretDigest(t *testing.T) {
	d, err := SharedSecretDigest("x", "sha256")
	require.NoError(t, err)
	assert.Equal(t, sha256Hex("x"), d)
	assert.Len(t, d, 64)

	d, err = SharedSecretDigest("x", "")
	require.NoError(t, err)
	assert.Equal(t, sha256Hex("x"), d)

	b, err := SharedSecretDigest("x", "blake3")
	require.NoError(t, err)
	assert.Len(t, b, 64)
	assert.NotEqual(t, d, b)

	_, err = SharedSecretDigest("x", "md5")
	assert.Error(t, err)
}

func TestSharedSecretHash(t *testing.T) {
	a, err := NewSharedSecretHash("x", "sha256")
	require.NoError(t, err)
	h := sha256Hex("x")

	tests := []struct {
		name        string
		request     string
		wantPayload string
		wantErr     bool
	}{
		{"valid", h + "beta", "beta", false},
		{"valid empty payload", h, "", false},
		{"wrong secret", sha256Hex("y") + "beta", "", true},
		{"raw wrong secret", "y" + "beta", "", true},
		{"no prefix", "beta", "", true},
		{"truncated hash", h[:63], "", true},
		{"empty", "", "", true},
		{"uppercase hex", strings.ToUpper(h) + "beta", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := a.Authenticate([]byte(tt.request))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrAuthFailed)
				assert.Nil(t, payload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPayload, string(payload))
		})
	}
}

func TestSharedSecretHash_Blake3(t *testing.T) {
	a, err := NewSharedSecretHash("x", "blake3")
	require.NoError(t, err)

	digest, err := SharedSecretDigest("x", "blake3")
	require.NoError(t, err)

	payload, err := a.Authenticate([]byte(digest + "gamma"))
	require.NoError(t, err)
	assert.Equal(t, "gamma", string(payload))

	_, err = a.Authenticate([]byte(sha256Hex("x") + "gamma"))
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
}

func TestTolerantNone(t *testing.T) {
	a, err := NewTolerantNone("x", "sha256")
	require.NoError(t, err)
	h := sha256Hex("x")

	payload, err := a.Authenticate([]byte(h + "beta"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(payload))

	payload, err = a.Authenticate([]byte("beta"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(payload))

	// A different hash is not stripped
	other := sha256Hex("y")
	payload, err = a.Authenticate([]byte(other + "beta"))
	require.NoError(t, err)
	assert.Equal(t, other+"beta", string(payload))
}

func TestKeyedHMAC(t *testing.T) {
	tests := []struct {
		construction string
		sign         Signer
	}{
		{config.KeyedDigestPrefixSHA256, DigestPayload},
		{config.KeyedDigestHMACSHA256, SignPayload},
	}

	for _, tt := range tests {
		t.Run(tt.construction, func(t *testing.T) {
			a, err := NewKeyedHMAC("x", testIterations, tt.construction)
			require.NoError(t, err)

			key := DeriveHMACKey("x", testIterations)
			sign := func(payload string) []byte {
				return append(tt.sign(key, []byte(payload)), payload...)
			}

			t.Run("valid", func(t *testing.T) {
				payload, err := a.Authenticate(sign("beta"))
				require.NoError(t, err)
				assert.Equal(t, "beta", string(payload))
			})

			t.Run("tampered payload", func(t *testing.T) {
				req := sign("beta")
				req[len(req)-1] = 'x'
				_, err := a.Authenticate(req)
				assert.ErrorIs(t, err, domain.ErrAuthFailed)
			})

			t.Run("wrong key", func(t *testing.T) {
				wrong := DeriveHMACKey("y", testIterations)
				req := append(tt.sign(wrong, []byte("beta")), "beta"...)
				_, err := a.Authenticate(req)
				assert.ErrorIs(t, err, domain.ErrAuthFailed)
			})

			t.Run("wrong iteration count", func(t *testing.T) {
				wrong := DeriveHMACKey("x", testIterations+1)
				req := append(tt.sign(wrong, []byte("beta")), "beta"...)
				_, err := a.Authenticate(req)
				assert.ErrorIs(t, err, domain.ErrAuthFailed)
			})

			t.Run("short request", func(t *testing.T) {
				_, err := a.Authenticate([]byte("beta"))
				assert.ErrorIs(t, err, domain.ErrAuthFailed)
			})

			t.Run("empty payload authenticates", func(t *testing.T) {
				payload, err := a.Authenticate(sign(""))
				require.NoError(t, err)
				assert.Empty(t, payload)
			})
		})
	}

	t.Run("constructions are not interchangeable", func(t *testing.T) {
		a, err := NewKeyedHMAC("x", testIterations, config.KeyedDigestPrefixSHA256)
		require.NoError(t, err)
		key := DeriveHMACKey("x", testIterations)
		_, err = a.Authenticate(append(SignPayload(key, []byte("beta")), "beta"...))
		assert.ErrorIs(t, err, domain.ErrAuthFailed)
	})

	t.Run("invalid construction", func(t *testing.T) {
		_, err := NewKeyedHMAC("", testIterations, "")
		assert.Error(t, err)
		_, err = NewKeyedHMAC("x", 0, "")
		assert.Error(t, err)
		_, err = NewKeyedHMAC("x", testIterations, "md5")
		assert.Error(t, err)
	})
}

// Requests framed the way deployed clients do it: PBKDF2-HMAC-SHA256 over
// the secret with an empty salt, then SHA-256 over derived key and message.
func TestKeyedHMAC_DeployedClientFraming(t *testing.T) {
	derived := pbkdf2.Key([]byte("356"), []byte{}, testIterations, 32, sha256.New)
	h := sha256.New()
	h.Write(derived)
	h.Write([]byte("beta"))
	request := append(h.Sum(nil), "beta"...)

	a, err := New(config.SecurityConfig{
		AuthMode:       config.AuthModeKeyedHMAC,
		SharedSecret:   "356",
		HMACIterations: testIterations,
		KeyedDigest:    config.DefaultConfig().Security.KeyedDigest,
	})
	require.NoError(t, err)

	payload, err := a.Authenticate(request)
	require.NoError(t, err)
	assert.Equal(t, "beta", string(payload))
}

func TestCredential_HasPrefix(t *testing.T) {
	c := NewCredential([]byte("secret"))
	assert.Equal(t, 6, c.Len())

	ok, err := c.HasPrefix([]byte("secret-and-more"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.HasPrefix([]byte("sec"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.HasPrefix([]byte("Secret"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewCredential_WipesInput(t *testing.T) {
	material := []byte("secret")
	NewCredential(material)
	assert.NotEqual(t, "secret", string(material))
}
