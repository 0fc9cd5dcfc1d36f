// Package app wires configuration into a running keystore.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/AlexZinkM/local-keystore/internal/config"
	"github.com/AlexZinkM/local-keystore/internal/crypto"
	"github.com/AlexZinkM/local-keystore/internal/directory"
	"github.com/AlexZinkM/local-keystore/internal/keygen"
	"github.com/AlexZinkM/local-keystore/internal/store"
)

// ProcessKey resolves the keystore secret and derives the process key from it.
// The secret is wiped before returning; caller should clear() the key on exit.
func ProcessKey(cfg *config.Config, log *zap.Logger) ([]byte, error) {
	secret, source, err := config.KeystoreSecret(cfg, crypto.DevelopmentSecret)
	if err != nil {
		return nil, err
	}
	defer clear(secret)

	if source == config.SecretFromFallback {
		log.Warn("!!! KEYSTORE_SECRET is not set: using the built-in development secret. " +
			"Keys stored under it are NOT protected. Never use this keystore for real funds. !!!")
	} else {
		log.Info("keystore secret loaded", zap.String("source", string(source)))
	}

	key, err := crypto.DeriveKey(secret, []byte(cfg.KeystoreSalt), crypto.KDFParams{N: cfg.ScryptN})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// Keystore is an opened store with the directory over it.
type Keystore struct {
	Store     store.Store
	Directory *directory.Directory
}

// Close releases the underlying store.
func (k *Keystore) Close() error {
	return k.Store.Close()
}

// OpenKeystore opens the configured backend and loads the directory.
func OpenKeystore(ctx context.Context, cfg *config.Config, key []byte, log *zap.Logger) (*Keystore, error) {
	st, err := store.Open(cfg.KeystoreBackend, cfg.KeystorePath, cfg.IOTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open keystore: %w", err)
	}

	gen := keygen.New(keygen.WithWorkers(cfg.KeygenWorkers))
	dir, err := directory.New(ctx, st, gen, key, directory.WithLogger(log.Named("directory")))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &Keystore{Store: st, Directory: dir}, nil
}
