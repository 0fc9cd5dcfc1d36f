package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AlexZinkM/local-keystore/internal/model"
)

// DefaultIOTimeout bounds the write phase of a Save.
const DefaultIOTimeout = 5 * time.Second

// FileStore keeps the keystore as a single JSON document on local disk.
//
// Save writes the new snapshot to a temp file in the same directory, syncs it,
// and renames it over the old file. The rename is the commit point: a failed
// or timed-out write leaves the previous snapshot untouched.
type FileStore struct {
	path    string
	timeout time.Duration

	mu sync.Mutex // serializes Save

	// afterStage runs once the temp file is written, before commit. Tests only.
	afterStage func() error
}

// NewFileStore creates a FileStore at path. timeout <= 0 uses DefaultIOTimeout.
func NewFileStore(path string, timeout time.Duration) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("keystore path is required")
	}
	if timeout <= 0 {
		timeout = DefaultIOTimeout
	}
	return &FileStore{path: filepath.Clean(path), timeout: timeout}, nil
}

// Path returns the keystore file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the keystore file. A missing file is an empty keystore; a
// zero-byte file is treated as truncated and rejected.
func (s *FileStore) Load(ctx context.Context) ([]model.WalletRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, ioErr("load", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.WalletRecord{}, nil
		}
		return nil, ioErr("load", fmt.Errorf("failed to read file: %w", err))
	}
	if len(data) == 0 {
		// Save never writes an empty file.
		return nil, schemaErr("load", errors.New("file is empty"))
	}

	records, err := decodeDocument(data)
	if err != nil {
		return nil, schemaErr("load", err)
	}
	return records, nil
}

// Save replaces the persisted snapshot with records.
func (s *FileStore) Save(ctx context.Context, records []model.WalletRecord) error {
	if err := model.ValidateRecords(records); err != nil {
		return schemaErr("save", err)
	}
	data, err := encodeDocument(records)
	if err != nil {
		return schemaErr("save", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ioErr("save", err)
	}

	type staged struct {
		tmp string
		err error
	}
	hook := s.afterStage
	ch := make(chan staged, 1)
	go func() {
		tmp, err := s.stage(data, hook)
		ch <- staged{tmp: tmp, err: err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	// The stage goroutine may still finish after we give up; it never commits on its own.
	discard := func() {
		go func() {
			if late := <-ch; late.err == nil {
				_ = os.Remove(late.tmp)
			}
		}()
	}

	var st staged
	select {
	case st = <-ch:
	case <-timer.C:
		discard()
		return ioErr("save", fmt.Errorf("write did not finish within %s", s.timeout))
	case <-ctx.Done():
		discard()
		return ioErr("save", ctx.Err())
	}
	if st.err != nil {
		return ioErr("save", st.err)
	}

	// Commit. Not cancellable once started.
	if err := os.Rename(st.tmp, s.path); err != nil {
		_ = os.Remove(st.tmp)
		return ioErr("save", fmt.Errorf("failed to replace keystore: %w", err))
	}
	// Best effort: the new snapshot is already visible.
	_ = syncDir(filepath.Dir(s.path))
	return nil
}

// Close is a no-op; FileStore holds no open handles between calls.
func (s *FileStore) Close() error {
	return nil
}

// stage writes data to a synced temp file next to the target and returns its path.
func (s *FileStore) stage(data []byte, afterStage func() error) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()

	fail := func(err error) (string, error) {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}

	if err := f.Chmod(0600); err != nil {
		return fail(fmt.Errorf("failed to set permissions: %w", err))
	}
	if _, err := f.Write(data); err != nil {
		return fail(fmt.Errorf("failed to write file: %w", err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync file: %w", err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	if afterStage != nil {
		if err := afterStage(); err != nil {
			_ = os.Remove(tmp)
			return "", err
		}
	}
	return tmp, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open keystore dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync keystore dir: %w", err)
	}
	return nil
}
