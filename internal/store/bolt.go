package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"

	"github.com/AlexZinkM/local-keystore/internal/model"
)

const (
	metaBucket    = "meta"
	walletsBucket = "wallets"
	versionKey    = "version"
)

// BoltStore keeps the keystore in a BoltDB file. Each Save rewrites the wallets
// bucket inside one bbolt transaction, so the snapshot swap is atomic.
type BoltStore struct {
	db      *bbolt.DB
	timeout time.Duration
}

// errSaveAbandoned rolls back a write whose caller already gave up on it.
var errSaveAbandoned = errors.New("save abandoned")

// states of an in-flight Save
const (
	savePending int32 = iota
	saveCommitting
	saveAbandoned
)

// OpenBoltStore opens a BoltDB-backed store at the provided path.
// timeout bounds the wait for the file lock and every Save.
func OpenBoltStore(path string, timeout time.Duration) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("keystore path is required")
	}
	if timeout <= 0 {
		timeout = DefaultIOTimeout
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, ioErr("open", fmt.Errorf("open keystore db: %w", err))
	}

	s := &BoltStore{db: db, timeout: timeout}
	if err := s.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, ioErr("open", err)
	}
	return s, nil
}

// Close closes the underlying BoltDB database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load reads every wallet record in insertion order.
func (s *BoltStore) Load(ctx context.Context) ([]model.WalletRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, ioErr("load", err)
	}

	records := []model.WalletRecord{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		if v := meta.Get([]byte(versionKey)); v != nil {
			version, err := strconv.Atoi(string(v))
			if err != nil || version != documentVersion {
				return schemaErr("load", fmt.Errorf("%w: %q", ErrUnknownVersion, v))
			}
		}

		return tx.Bucket([]byte(walletsBucket)).ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return schemaErr("load", fmt.Errorf("record %s: %w", k, err))
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		var serr *StoreError
		if errors.As(err, &serr) {
			return nil, err
		}
		return nil, ioErr("load", err)
	}

	if err := model.ValidateRecords(records); err != nil {
		return nil, schemaErr("load", err)
	}
	return records, nil
}

// Save replaces the persisted snapshot with records in a single transaction.
func (s *BoltStore) Save(ctx context.Context, records []model.WalletRecord) error {
	if err := model.ValidateRecords(records); err != nil {
		return schemaErr("save", err)
	}
	if err := ctx.Err(); err != nil {
		return ioErr("save", err)
	}

	payloads := make([][]byte, len(records))
	for i := range records {
		payload, err := json.Marshal(records[i])
		if err != nil {
			return schemaErr("save", fmt.Errorf("marshal record: %w", err))
		}
		payloads[i] = payload
	}

	var state atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.db.Update(func(tx *bbolt.Tx) error {
			if state.Load() == saveAbandoned {
				return errSaveAbandoned
			}
			if err := writeSnapshot(tx, payloads); err != nil {
				return err
			}
			// Past this point the commit runs to completion.
			if !state.CompareAndSwap(savePending, saveCommitting) {
				return errSaveAbandoned
			}
			return nil
		})
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-done:
	case <-timer.C:
		err = abandon(&state, done, fmt.Errorf("write did not finish within %s", s.timeout))
	case <-ctx.Done():
		err = abandon(&state, done, ctx.Err())
	}
	if err != nil {
		return ioErr("save", err)
	}
	return nil
}

// abandon gives up on a pending Save. A write that already reached its commit
// cannot be stopped, so its result is awaited instead.
func abandon(state *atomic.Int32, done <-chan error, cause error) error {
	if state.CompareAndSwap(savePending, saveAbandoned) {
		return cause
	}
	return <-done
}

func writeSnapshot(tx *bbolt.Tx, payloads [][]byte) error {
	if err := tx.DeleteBucket([]byte(walletsBucket)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
		return fmt.Errorf("drop wallets bucket: %w", err)
	}
	bucket, err := tx.CreateBucket([]byte(walletsBucket))
	if err != nil {
		return fmt.Errorf("create wallets bucket: %w", err)
	}
	for i, payload := range payloads {
		if err := bucket.Put(recordKey(i), payload); err != nil {
			return fmt.Errorf("put record %d: %w", i, err)
		}
	}
	return tx.Bucket([]byte(metaBucket)).Put([]byte(versionKey), []byte(strconv.Itoa(documentVersion)))
}

func (s *BoltStore) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{metaBucket, walletsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// recordKey keeps byte order equal to slice order.
func recordKey(i int) []byte {
	return []byte(fmt.Sprintf("%08d", i))
}
