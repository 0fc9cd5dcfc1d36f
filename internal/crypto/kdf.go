package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters for the process key
// Security is prioritized over performance
//
// N=2^18 (~256MB RAM, 0.5-2s) is paid once per process start,
// never per record.
const (
	DefaultScryptN = 1 << 18
	scryptR        = 8
	scryptP        = 1
)

// DevelopmentSecret is the fallback secret for non-production profiles.
// It is public knowledge: anything encrypted under it is effectively plaintext.
const DevelopmentSecret = "local-keystore-development-only"

// KDFParams tunes key derivation. Tests use a small N.
type KDFParams struct {
	N int
}

// DeriveKey derives the 32-byte process key from the configured secret.
// secret must be []byte for security (caller should zero it after use)
func DeriveKey(secret, salt []byte, params KDFParams) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("secret cannot be empty")
	}
	if len(salt) == 0 {
		return nil, errors.New("salt cannot be empty")
	}
	n := params.N
	if n == 0 {
		n = DefaultScryptN
	}

	key, err := scrypt.Key(secret, salt, n, scryptR, scryptP, KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}
