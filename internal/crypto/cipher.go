package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/AlexZinkM/local-keystore/internal/model"
)

// KeySize is the AES-256 key length.
const KeySize = 32

// Encrypt seals plaintext under key with AES-256-GCM.
// A fresh random nonce is drawn on every call, so the same secret never
// encrypts to the same blob twice.
func Encrypt(plaintext, key []byte) (model.EncryptedBlob, error) {
	aesGCM, err := newGCM("encrypt", key)
	if err != nil {
		return model.EncryptedBlob{}, err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return model.EncryptedBlob{}, &CryptoError{Op: "encrypt", Err: fmt.Errorf("failed to generate nonce: %w", err)}
	}

	// Seal appends the tag to the ciphertext; split it out for storage
	sealed := aesGCM.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - aesGCM.Overhead()

	return model.EncryptedBlob{
		Nonce:      nonce,
		Ciphertext: append([]byte(nil), sealed[:split]...),
		Tag:        append([]byte(nil), sealed[split:]...),
	}, nil
}

// Decrypt opens blob under key. The tag is verified before any plaintext is
// returned. Caller should clear() the result after use.
func Decrypt(blob model.EncryptedBlob, key []byte) ([]byte, error) {
	aesGCM, err := newGCM("decrypt", key)
	if err != nil {
		return nil, err
	}

	if len(blob.Nonce) != aesGCM.NonceSize() || len(blob.Tag) != aesGCM.Overhead() {
		return nil, &CryptoError{Op: "decrypt", Err: ErrAuthenticationFailed}
	}

	sealed := make([]byte, 0, len(blob.Ciphertext)+len(blob.Tag))
	sealed = append(sealed, blob.Ciphertext...)
	sealed = append(sealed, blob.Tag...)

	plaintext, err := aesGCM.Open(nil, blob.Nonce, sealed, nil)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: ErrAuthenticationFailed}
	}
	return plaintext, nil
}

func newGCM(op string, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, &CryptoError{Op: op, Err: fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyLength, KeySize, len(key))}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &CryptoError{Op: op, Err: fmt.Errorf("failed to create cipher: %w", err)}
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &CryptoError{Op: op, Err: fmt.Errorf("failed to create GCM: %w", err)}
	}
	return aesGCM, nil
}
