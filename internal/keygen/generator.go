// Package keygen produces Solana keypairs, singly or in batches on a worker pool.
package keygen

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"
)

// MaxBatch caps a single bulk request.
const MaxBatch = 1000

// KeyPair is a freshly generated wallet key. SecretKey is the full 64-byte
// ed25519 private key (seed + public key); caller should clear() it after use.
type KeyPair struct {
	PublicKey solana.PublicKey
	SecretKey solana.PrivateKey
}

// Batch is the single completion message of a bulk request.
// Exactly one of Keys and Err is set.
type Batch struct {
	Keys []KeyPair
	Err  error
}

// GenerationError reports a failed generation request. The whole batch is lost.
type GenerationError struct {
	Count int
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to generate %d keypairs: %v", e.Count, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsGenerationError checks if error is GenerationError
func IsGenerationError(err error) bool {
	var gerr *GenerationError
	return errors.As(err, &gerr)
}

// Generator runs key generation off the caller's goroutine.
// It holds no reference to any store; workers only see the request and return keys.
type Generator struct {
	workers int
	newKey  func() (solana.PrivateKey, error)
}

// Option configures a Generator.
type Option func(*Generator)

// WithWorkers sets the worker pool size. n <= 0 means runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.workers = n
		}
	}
}

// WithKeySource replaces the random key source. Used by tests to inject failures.
func WithKeySource(fn func() (solana.PrivateKey, error)) Option {
	return func(g *Generator) {
		g.newKey = fn
	}
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		workers: runtime.NumCPU(),
		newKey:  solana.NewRandomPrivateKey,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateOne produces one keypair on the calling goroutine.
func (g *Generator) GenerateOne() (KeyPair, error) {
	kp, err := g.generate()
	if err != nil {
		return KeyPair{}, &GenerationError{Count: 1, Err: err}
	}
	return kp, nil
}

// Submit starts generating count keypairs and returns immediately.
// The returned channel receives exactly one Batch and is then closed.
// Cancelling ctx stops the workers and the batch carries the cancellation error;
// nobody has to read the channel for the workers to exit.
func (g *Generator) Submit(ctx context.Context, count int) <-chan Batch {
	done := make(chan Batch, 1)

	if count < 0 || count > MaxBatch {
		done <- Batch{Err: &GenerationError{Count: count, Err: fmt.Errorf("count must be between 0 and %d", MaxBatch)}}
		close(done)
		return done
	}

	go func() {
		defer close(done)
		keys, err := g.run(ctx, count)
		if err != nil {
			done <- Batch{Err: &GenerationError{Count: count, Err: err}}
			return
		}
		done <- Batch{Keys: keys}
	}()
	return done
}

// GenerateMany generates count keypairs on the worker pool and waits for the batch.
func (g *Generator) GenerateMany(ctx context.Context, count int) ([]KeyPair, error) {
	batch := <-g.Submit(ctx, count)
	return batch.Keys, batch.Err
}

func (g *Generator) run(ctx context.Context, count int) ([]KeyPair, error) {
	keys := make([]KeyPair, count)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)

	for i := 0; i < count; i++ {
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker panic: %v", r)
				}
			}()
			if err := egCtx.Err(); err != nil {
				return err
			}
			kp, err := g.generate()
			if err != nil {
				return err
			}
			// each worker owns its own slot
			keys[i] = kp
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		wipe(keys)
		return nil, err
	}
	// a cancel that raced the last worker still discards the batch
	if err := ctx.Err(); err != nil {
		wipe(keys)
		return nil, err
	}
	return keys, nil
}

func (g *Generator) generate() (KeyPair, error) {
	priv, err := g.newKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate keypair: %w", err)
	}
	if len(priv) != 64 {
		return KeyPair{}, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(priv))
	}
	return KeyPair{PublicKey: priv.PublicKey(), SecretKey: priv}, nil
}

func wipe(keys []KeyPair) {
	for i := range keys {
		clear(keys[i].SecretKey)
	}
}
