// Package store persists the keystore snapshot.
//
// A snapshot is the full ordered list of wallet records. Save replaces the
// previous snapshot as one operation: a later Load sees either the old
// snapshot or the new one, never a mix. Records arrive here with the private
// key already encrypted; the store never handles plaintext secrets.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlexZinkM/local-keystore/internal/model"
)

// Store loads and saves keystore snapshots.
type Store interface {
	Load(ctx context.Context) ([]model.WalletRecord, error)
	Save(ctx context.Context, records []model.WalletRecord) error
	Close() error
}

// Backend names.
const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

// Open returns the store for backend at path.
func Open(backend, path string, timeout time.Duration) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(path, timeout)
	case BackendBolt:
		return OpenBoltStore(path, timeout)
	default:
		return nil, fmt.Errorf("unknown keystore backend %q", backend)
	}
}

// Kind classifies a StoreError.
type Kind int

const (
	// SchemaInvalid means persisted or submitted data violates the record schema.
	SchemaInvalid Kind = iota + 1
	// IOFailure means the underlying read or write failed or timed out.
	IOFailure
)

func (k Kind) String() string {
	switch k {
	case SchemaInvalid:
		return "schema invalid"
	case IOFailure:
		return "io failure"
	default:
		return "unknown"
	}
}

// StoreError reports a failed Load or Save.
type StoreError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a StoreError of the given kind.
func IsKind(err error, kind Kind) bool {
	var serr *StoreError
	return errors.As(err, &serr) && serr.Kind == kind
}

func schemaErr(op string, err error) error {
	return &StoreError{Op: op, Kind: SchemaInvalid, Err: err}
}

func ioErr(op string, err error) error {
	return &StoreError{Op: op, Kind: IOFailure, Err: err}
}
