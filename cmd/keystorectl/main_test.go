package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AlexZinkM/local-keystore/internal/app"
	"github.com/AlexZinkM/local-keystore/internal/config"
	"github.com/AlexZinkM/local-keystore/internal/store"
)

// seedKeystore creates a file keystore with count wallets under the env secret.
func seedKeystore(t *testing.T, count int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keystore.json")
	t.Setenv("KEYSTORE_PATH", path)
	t.Setenv("KEYSTORE_BACKEND", "file")
	t.Setenv("KEYSTORE_SECRET", "correct horse battery staple")
	t.Setenv("KEYSTORE_SCRYPT_N", "1024")

	cfg, err := config.Load()
	require.NoError(t, err)
	key, err := app.ProcessKey(cfg, zap.NewNop())
	require.NoError(t, err)

	ks, err := app.OpenKeystore(context.Background(), cfg, key, zap.NewNop())
	require.NoError(t, err)
	defer ks.Close()

	_, err = ks.Directory.AddWallets(context.Background(), "Seed", count)
	require.NoError(t, err)
	return path
}

func TestVerify(t *testing.T) {
	seedKeystore(t, 2)

	var out bytes.Buffer
	require.NoError(t, run([]string{"verify"}, &out))
	assert.Equal(t, 2, strings.Count(out.String(), "OK\t"))
}

func TestVerifyDetectsSwappedKeys(t *testing.T) {
	path := seedKeystore(t, 2)

	st, err := store.NewFileStore(path, 0)
	require.NoError(t, err)
	records, err := st.Load(context.Background())
	require.NoError(t, err)
	records[0].EncryptedPrivateKey, records[1].EncryptedPrivateKey = records[1].EncryptedPrivateKey, records[0].EncryptedPrivateKey
	require.NoError(t, st.Save(context.Background(), records))

	var out bytes.Buffer
	err = run([]string{"verify"}, &out)
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(out.String(), "FAIL\t"))
}

func TestVerifyWrongSecret(t *testing.T) {
	seedKeystore(t, 1)
	t.Setenv("KEYSTORE_SECRET", "wrong")

	var out bytes.Buffer
	require.Error(t, run([]string{"verify"}, &out))
	assert.Contains(t, out.String(), "FAIL\t")
}

func TestMigrateAndList(t *testing.T) {
	src := seedKeystore(t, 3)
	dst := filepath.Join(t.TempDir(), "keystore.db")

	var out bytes.Buffer
	require.NoError(t, run([]string{"migrate", "--from", src, "--to", dst}, &out))
	assert.Contains(t, out.String(), "migrated 3 records")

	// flags alone locate the keystore and leave the environment alone
	t.Setenv("KEYSTORE_PATH", "")
	out.Reset()
	require.NoError(t, run([]string{"list", "--backend", "bolt", "--path", dst}, &out))
	assert.Equal(t, "", os.Getenv("KEYSTORE_PATH"))
	assert.Equal(t, "file", os.Getenv("KEYSTORE_BACKEND"))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Seed #1")

	// the target now has records
	err := run([]string{"migrate", "--from", src, "--to", dst}, &out)
	assert.Error(t, err)
	require.NoError(t, run([]string{"migrate", "--from", src, "--to", dst, "--force"}, &out))
}

func TestMigrateRequiresPaths(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run([]string{"migrate", "--from", "x"}, &out))
}
