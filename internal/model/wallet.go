package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

const (
	NonceSize = 12 // AES-GCM standard nonce
	TagSize   = 16 // AES-GCM authentication tag
)

// EncryptedBlob is an encrypted secret together with what is needed to verify and open it.
// []byte fields are stored as base64 in JSON.
type EncryptedBlob struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	Tag        []byte `json:"tag"`
}

// Clone returns a deep copy of the blob.
func (b EncryptedBlob) Clone() EncryptedBlob {
	return EncryptedBlob{
		Nonce:      append([]byte(nil), b.Nonce...),
		Ciphertext: append([]byte(nil), b.Ciphertext...),
		Tag:        append([]byte(nil), b.Tag...),
	}
}

// WalletRecord is one wallet in the keystore.
type WalletRecord struct {
	PublicKey           string        `json:"publicKey"`
	EncryptedPrivateKey EncryptedBlob `json:"encryptedPrivateKey"`
	Label               string        `json:"label"`
	Balance             uint64        `json:"balance"` // lamports, last known value from chain
	LastUpdated         time.Time     `json:"lastUpdated"`
}

// Clone returns a deep copy of the record, so callers can't reach into directory state.
func (r WalletRecord) Clone() WalletRecord {
	r.EncryptedPrivateKey = r.EncryptedPrivateKey.Clone()
	return r
}

// Validate checks the record against the keystore schema.
func (r *WalletRecord) Validate() error {
	if r.PublicKey == "" {
		return errors.New("publicKey is required")
	}
	if _, err := solana.PublicKeyFromBase58(r.PublicKey); err != nil {
		return fmt.Errorf("publicKey is not a valid Solana address: %w", err)
	}
	if len(r.EncryptedPrivateKey.Nonce) != NonceSize {
		return fmt.Errorf("encryptedPrivateKey.nonce must be %d bytes, got %d", NonceSize, len(r.EncryptedPrivateKey.Nonce))
	}
	if len(r.EncryptedPrivateKey.Tag) != TagSize {
		return fmt.Errorf("encryptedPrivateKey.tag must be %d bytes, got %d", TagSize, len(r.EncryptedPrivateKey.Tag))
	}
	if len(r.EncryptedPrivateKey.Ciphertext) == 0 {
		return errors.New("encryptedPrivateKey.ciphertext is required")
	}
	if r.LastUpdated.IsZero() {
		return errors.New("lastUpdated is required")
	}
	return nil
}

// ValidateRecords validates every record and enforces publicKey uniqueness.
func ValidateRecords(records []WalletRecord) error {
	seen := make(map[string]struct{}, len(records))
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, ok := seen[records[i].PublicKey]; ok {
			return fmt.Errorf("record %d: duplicate publicKey %s", i, records[i].PublicKey)
		}
		seen[records[i].PublicKey] = struct{}{}
	}
	return nil
}

// CloneRecords deep-copies a record slice.
func CloneRecords(records []WalletRecord) []WalletRecord {
	out := make([]WalletRecord, len(records))
	for i := range records {
		out[i] = records[i].Clone()
	}
	return out
}
