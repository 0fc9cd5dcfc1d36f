// Package directory is the authoritative in-memory view of the keystore.
//
// Every mutating operation follows the same order: compute the next snapshot
// from a copy of the current one, persist it, and only then publish it. A
// failed persist leaves the view untouched and records the failure in
// LastError. Mutations are serialized, so two concurrent adds can never both
// build on the same stale snapshot.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/AlexZinkM/local-keystore/internal/crypto"
	"github.com/AlexZinkM/local-keystore/internal/keygen"
	"github.com/AlexZinkM/local-keystore/internal/model"
	"github.com/AlexZinkM/local-keystore/internal/store"
)

var (
	// ErrNotFound is returned by lookups of an unknown public key.
	ErrNotFound = errors.New("wallet not found")

	// ErrKeyMismatch means a stored secret does not derive the record's public key.
	ErrKeyMismatch = errors.New("private key does not match address")
)

// KeyGenerator is the part of keygen.Generator the directory needs.
type KeyGenerator interface {
	GenerateOne() (keygen.KeyPair, error)
	Submit(ctx context.Context, count int) <-chan keygen.Batch
}

// State is a point-in-time copy of the directory for observers.
type State struct {
	Records   []model.WalletRecord
	IsBusy    bool
	LastError string
}

// Directory owns the wallet records of one keystore.
type Directory struct {
	store store.Store
	gen   KeyGenerator
	key   []byte
	log   *zap.Logger
	now   func() time.Time

	opMu sync.Mutex // serializes read-modify-persist-commit

	mu       sync.RWMutex // guards the published view
	records  []model.WalletRecord
	inflight int
	lastErr  string

	subMu   sync.Mutex
	subs    map[int]chan State
	nextSub int
}

// Option configures a Directory.
type Option func(*Directory)

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Directory) {
		d.log = log
	}
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		d.now = now
	}
}

// New loads the persisted keystore and returns a Directory over it.
// key is the 32-byte process key; the Directory keeps its own copy.
// A keystore that fails to load is returned as an error: starting with an
// empty view would let the next save overwrite it.
func New(ctx context.Context, st store.Store, gen KeyGenerator, key []byte, opts ...Option) (*Directory, error) {
	if len(key) != crypto.KeySize {
		return nil, &crypto.CryptoError{Op: "init", Err: crypto.ErrInvalidKeyLength}
	}

	d := &Directory{
		store: st,
		gen:   gen,
		key:   append([]byte(nil), key...),
		log:   zap.NewNop(),
		now:   time.Now,
		subs:  make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(d)
	}

	records, err := st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load keystore: %w", err)
	}
	d.records = records
	d.log.Info("keystore loaded", zap.Int("wallets", len(records)))
	return d, nil
}

// AddWallet generates a keypair, stores its encrypted secret under a new record
// labeled label with zero balance, and returns the record.
func (d *Directory) AddWallet(ctx context.Context, label string) (model.WalletRecord, error) {
	d.enter()

	kp, err := d.gen.GenerateOne()
	if err != nil {
		d.exit("add wallet", nil, err)
		return model.WalletRecord{}, err
	}
	defer clear(kp.SecretKey)

	var added model.WalletRecord
	err = d.mutate(ctx, "add wallet", func(records []model.WalletRecord) ([]model.WalletRecord, bool, error) {
		rec, err := d.newRecord(kp, label)
		if err != nil {
			return nil, false, err
		}
		added = rec
		return append(records, rec), true, nil
	})
	if err != nil {
		return model.WalletRecord{}, err
	}

	d.log.Info("wallet added", zap.String("publicKey", added.PublicKey), zap.String("label", label))
	return added.Clone(), nil
}

// AddWallets generates count keypairs on the worker pool and adds them as one
// batch labeled "<labelPrefix> #n". Either every wallet is added or none is.
// Cancelling ctx abandons the generation; nothing is persisted.
func (d *Directory) AddWallets(ctx context.Context, labelPrefix string, count int) ([]model.WalletRecord, error) {
	d.enter()

	if labelPrefix == "" {
		labelPrefix = "Wallet"
	}

	done := d.gen.Submit(ctx, count)
	var batch keygen.Batch
	select {
	case batch = <-done:
	case <-ctx.Done():
		discardBatch(done)
		err := &keygen.GenerationError{Count: count, Err: ctx.Err()}
		d.exit("add wallets", nil, err)
		return nil, err
	}
	if batch.Err != nil {
		d.exit("add wallets", nil, batch.Err)
		return nil, batch.Err
	}
	defer wipeBatch(batch)

	var added []model.WalletRecord
	err := d.mutate(ctx, "add wallets", func(records []model.WalletRecord) ([]model.WalletRecord, bool, error) {
		added = make([]model.WalletRecord, 0, len(batch.Keys))
		for i, kp := range batch.Keys {
			rec, err := d.newRecord(kp, fmt.Sprintf("%s #%d", labelPrefix, i+1))
			if err != nil {
				return nil, false, err
			}
			added = append(added, rec)
		}
		return append(records, added...), len(added) > 0, nil
	})
	if err != nil {
		return nil, err
	}

	d.log.Info("wallets added", zap.Int("count", len(added)))
	return model.CloneRecords(added), nil
}

// RemoveWallet deletes the record with publicKey. Removing an unknown key is a no-op.
func (d *Directory) RemoveWallet(ctx context.Context, publicKey string) error {
	d.enter()
	err := d.mutate(ctx, "remove wallet", func(records []model.WalletRecord) ([]model.WalletRecord, bool, error) {
		i := indexOf(records, publicKey)
		if i < 0 {
			return nil, false, nil
		}
		return append(records[:i], records[i+1:]...), true, nil
	})
	if err == nil {
		d.log.Info("wallet removed", zap.String("publicKey", publicKey))
	}
	return err
}

// UpdateWalletBalance sets the cached balance (lamports) of publicKey.
// Unknown keys are a no-op. Setting the balance it already has is a no-op too:
// nothing is persisted, lastUpdated stays, and the last error is kept.
func (d *Directory) UpdateWalletBalance(ctx context.Context, publicKey string, lamports uint64) error {
	if rec, ok := d.GetWallet(publicKey); ok && rec.Balance == lamports {
		return nil
	}

	d.enter()
	return d.mutate(ctx, "update balance", func(records []model.WalletRecord) ([]model.WalletRecord, bool, error) {
		i := indexOf(records, publicKey)
		if i < 0 || records[i].Balance == lamports {
			return nil, false, nil
		}
		records[i].Balance = lamports
		records[i].LastUpdated = d.stamp(records[i].LastUpdated)
		return records, true, nil
	})
}

// RenameWallet changes the label of publicKey. Unknown keys are a no-op.
func (d *Directory) RenameWallet(ctx context.Context, publicKey, label string) error {
	d.enter()
	return d.mutate(ctx, "rename wallet", func(records []model.WalletRecord) ([]model.WalletRecord, bool, error) {
		i := indexOf(records, publicKey)
		if i < 0 {
			return nil, false, nil
		}
		records[i].Label = label
		records[i].LastUpdated = d.stamp(records[i].LastUpdated)
		return records, true, nil
	})
}

// GetWallet looks up publicKey in the current view.
func (d *Directory) GetWallet(publicKey string) (model.WalletRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	i := indexOf(d.records, publicKey)
	if i < 0 {
		return model.WalletRecord{}, false
	}
	return d.records[i].Clone(), true
}

// GetAllWallets returns a copy of every record in order.
func (d *Directory) GetAllWallets() []model.WalletRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return model.CloneRecords(d.records)
}

// State returns a copy of the records together with the busy flag and last error.
func (d *Directory) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stateLocked()
}

// LastError returns the message of the last failed operation, or "".
func (d *Directory) LastError() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastErr
}

// IsBusy reports whether a mutating operation is in progress.
func (d *Directory) IsBusy() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.inflight > 0
}

// DecryptSecretKey returns the 64-byte secret key of publicKey after checking
// that it derives publicKey. Caller should clear() the result after use.
func (d *Directory) DecryptSecretKey(publicKey string) (solana.PrivateKey, error) {
	rec, ok := d.GetWallet(publicKey)
	if !ok {
		return nil, ErrNotFound
	}

	secret, err := crypto.Decrypt(rec.EncryptedPrivateKey, d.key)
	if err != nil {
		return nil, err
	}
	if len(secret) != 64 {
		clear(secret)
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(secret))
	}

	priv := solana.PrivateKey(secret)
	if priv.PublicKey().String() != publicKey {
		clear(secret)
		return nil, ErrKeyMismatch
	}
	return priv, nil
}

// newRecord encrypts kp's secret under the process key.
func (d *Directory) newRecord(kp keygen.KeyPair, label string) (model.WalletRecord, error) {
	blob, err := crypto.Encrypt(kp.SecretKey, d.key)
	if err != nil {
		return model.WalletRecord{}, err
	}
	return model.WalletRecord{
		PublicKey:           kp.PublicKey.String(),
		EncryptedPrivateKey: blob,
		Label:               label,
		Balance:             0,
		LastUpdated:         d.now().UTC(),
	}, nil
}

// stamp returns the new lastUpdated, never earlier than prev.
func (d *Directory) stamp(prev time.Time) time.Time {
	now := d.now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

// mutate runs fn on a private copy of the records and commits the result only
// after the store accepted it. fn reports whether anything changed; unchanged
// snapshots are not persisted. The caller must have called enter.
func (d *Directory) mutate(ctx context.Context, op string, fn func([]model.WalletRecord) ([]model.WalletRecord, bool, error)) error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.mu.RLock()
	snapshot := model.CloneRecords(d.records)
	d.mu.RUnlock()

	next, changed, err := fn(snapshot)
	if err != nil {
		d.exit(op, nil, err)
		return err
	}
	if !changed {
		d.exit(op, nil, nil)
		return nil
	}

	if err := d.store.Save(ctx, next); err != nil {
		d.exit(op, nil, err)
		return err
	}
	d.exit(op, next, nil)
	return nil
}

// enter marks an operation as started and clears the last error.
func (d *Directory) enter() {
	d.mu.Lock()
	d.inflight++
	d.lastErr = ""
	d.mu.Unlock()
	d.publish()
}

// exit ends an operation: commits next when non-nil, or records err.
func (d *Directory) exit(op string, next []model.WalletRecord, err error) {
	d.mu.Lock()
	switch {
	case err != nil:
		d.lastErr = fmt.Sprintf("%s: %v", op, err)
	case next != nil:
		d.records = next
	}
	d.inflight--
	d.mu.Unlock()

	if err != nil {
		d.log.Error("wallet operation failed", zap.String("op", op), zap.Error(err))
	}
	d.publish()
}

func (d *Directory) stateLocked() State {
	return State{
		Records:   model.CloneRecords(d.records),
		IsBusy:    d.inflight > 0,
		LastError: d.lastErr,
	}
}

// discardBatch wipes a batch nobody will consume. One already delivered is
// wiped before returning; a late one is wiped when it arrives.
func discardBatch(done <-chan keygen.Batch) {
	select {
	case late, ok := <-done:
		if ok {
			wipeBatch(late)
		}
	default:
		go func() {
			for late := range done {
				wipeBatch(late)
			}
		}()
	}
}

func wipeBatch(b keygen.Batch) {
	for i := range b.Keys {
		clear(b.Keys[i].SecretKey)
	}
}

func indexOf(records []model.WalletRecord, publicKey string) int {
	for i := range records {
		if records[i].PublicKey == publicKey {
			return i
		}
	}
	return -1
}
