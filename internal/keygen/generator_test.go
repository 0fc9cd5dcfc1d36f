package keygen

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOne(t *testing.T) {
	g := New()
	kp, err := g.GenerateOne()
	require.NoError(t, err)

	assert.Len(t, kp.SecretKey, 64)
	assert.True(t, kp.SecretKey.PublicKey().Equals(kp.PublicKey))

	other, err := g.GenerateOne()
	require.NoError(t, err)
	assert.False(t, other.PublicKey.Equals(kp.PublicKey))
}

func TestGenerateManyDistinct(t *testing.T) {
	g := New(WithWorkers(3))
	keys, err := g.GenerateMany(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, keys, 5)

	pubs := make(map[solana.PublicKey]struct{})
	for i, kp := range keys {
		pubs[kp.PublicKey] = struct{}{}
		assert.True(t, kp.SecretKey.PublicKey().Equals(kp.PublicKey))
		for j := i + 1; j < len(keys); j++ {
			assert.False(t, bytes.Equal(kp.SecretKey[:32], keys[j].SecretKey[:32]), "keys %d and %d share a seed", i, j)
		}
	}
	assert.Len(t, pubs, 5)
}

func TestSubmitReturnsBeforeWorkFinishes(t *testing.T) {
	release := make(chan struct{})
	g := New(WithKeySource(func() (solana.PrivateKey, error) {
		<-release
		return solana.NewRandomPrivateKey()
	}))

	done := g.Submit(context.Background(), 2)
	select {
	case <-done:
		t.Fatal("batch delivered before workers ran")
	default:
	}

	close(release)
	select {
	case batch := <-done:
		require.NoError(t, batch.Err)
		assert.Len(t, batch.Keys, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("batch never delivered")
	}
}

func TestGenerateManyFailsWholeBatch(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("entropy exhausted")
	g := New(WithWorkers(1), WithKeySource(func() (solana.PrivateKey, error) {
		if calls.Add(1) == 3 {
			return nil, boom
		}
		return solana.NewRandomPrivateKey()
	}))

	keys, err := g.GenerateMany(context.Background(), 5)
	assert.Nil(t, keys)
	require.Error(t, err)
	assert.True(t, IsGenerationError(err))
	assert.ErrorIs(t, err, boom)
}

func TestGenerateManyRecoversWorkerPanic(t *testing.T) {
	g := New(WithKeySource(func() (solana.PrivateKey, error) {
		panic("worker crashed")
	}))

	keys, err := g.GenerateMany(context.Background(), 2)
	assert.Nil(t, keys)
	require.Error(t, err)
	assert.True(t, IsGenerationError(err))
	assert.Contains(t, err.Error(), "worker crashed")
}

func TestSubmitCancelDiscardsBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 10)
	g := New(WithWorkers(1), WithKeySource(func() (solana.PrivateKey, error) {
		started <- struct{}{}
		time.Sleep(10 * time.Millisecond)
		return solana.NewRandomPrivateKey()
	}))

	done := g.Submit(ctx, 10)
	<-started
	cancel()

	batch := <-done
	assert.Nil(t, batch.Keys)
	require.Error(t, batch.Err)
	assert.ErrorIs(t, batch.Err, context.Canceled)

	_, open := <-done
	assert.False(t, open)
}

func TestSubmitBounds(t *testing.T) {
	g := New()

	keys, err := g.GenerateMany(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = g.GenerateMany(context.Background(), MaxBatch+1)
	assert.True(t, IsGenerationError(err))

	_, err = g.GenerateMany(context.Background(), -1)
	assert.True(t, IsGenerationError(err))
}

func TestGenerateOneRejectsShortKey(t *testing.T) {
	g := New(WithKeySource(func() (solana.PrivateKey, error) {
		return solana.PrivateKey(make([]byte, 32)), nil
	}))
	_, err := g.GenerateOne()
	assert.True(t, IsGenerationError(err))
}
