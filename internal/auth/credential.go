package auth

import (
	"crypto/subtle"
	"fmt"

	"github.com/awnumar/memguard"
)

// Credential holds derived verification material in a memguard enclave so
// it stays encrypted at rest in process memory.
type Credential struct {
	enclave *memguard.Enclave
	size    int
}

// NewCredential seals material into an enclave. The input slice is wiped.
func NewCredential(material []byte) *Credential {
	size := len(material)
	return &Credential{
		enclave: memguard.NewEnclave(material),
		size:    size,
	}
}

// Len returns the size of the sealed material
func (c *Credential) Len() int {
	return c.size
}

// With opens the enclave and passes the plaintext to fn. The plaintext is
// destroyed when fn returns and must not be retained.
func (c *Credential) With(fn func(material []byte) bool) (bool, error) {
	buf, err := c.enclave.Open()
	if err != nil {
		return false, fmt.Errorf("failed to open credential enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes()), nil
}

// HasPrefix reports in constant time whether data starts with the material.
// The length check comes first so a short request never indexes out of range.
func (c *Credential) HasPrefix(data []byte) (bool, error) {
	if len(data) < c.size {
		return false, nil
	}
	return c.With(func(material []byte) bool {
		return subtle.ConstantTimeCompare(data[:c.size], material) == 1
	})
}
