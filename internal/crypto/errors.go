package crypto

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKeyLength is returned when the process key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("invalid key length")

	// ErrAuthenticationFailed is returned when a blob does not verify under the key.
	// Tampered data and wrong keys are indistinguishable on purpose.
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// CryptoError reports a failed cipher operation.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// IsAuthenticationFailed checks if err is a failed tag verification
func IsAuthenticationFailed(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}
