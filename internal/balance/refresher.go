// Package balance keeps the cached wallet balances in step with the chain.
package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/AlexZinkM/local-keystore/internal/directory"
	"github.com/AlexZinkM/local-keystore/internal/model"
)

// Chain reads the balance of an address in lamports.
type Chain interface {
	Balance(ctx context.Context, address string) (uint64, error)
}

// Wallets is the part of directory.Directory the refresher writes through.
type Wallets interface {
	GetWallet(publicKey string) (model.WalletRecord, bool)
	GetAllWallets() []model.WalletRecord
	UpdateWalletBalance(ctx context.Context, publicKey string, lamports uint64) error
}

var _ Wallets = (*directory.Directory)(nil)

// Refresher polls the chain for every wallet and stores the results.
type Refresher struct {
	wallets Wallets
	chain   Chain
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewRefresher builds a Refresher issuing at most rps chain calls per second.
func NewRefresher(wallets Wallets, chain Chain, rps float64, log *zap.Logger) *Refresher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Refresher{
		wallets: wallets,
		chain:   chain,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log,
	}
}

// ChainError reports a failed balance lookup. The record is left untouched.
type ChainError struct {
	PublicKey string
	Err       error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("failed to fetch balance of %s: %v", e.PublicKey, e.Err)
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

// IsChainError checks if error is ChainError
func IsChainError(err error) bool {
	var cerr *ChainError
	return errors.As(err, &cerr)
}

// Result is the outcome of one RefreshAll pass.
type Result struct {
	Updated int
	Failed  int
}

// RefreshOne fetches and stores the balance of publicKey.
func (r *Refresher) RefreshOne(ctx context.Context, publicKey string) (model.WalletRecord, error) {
	cached, ok := r.wallets.GetWallet(publicKey)
	if !ok {
		return model.WalletRecord{}, directory.ErrNotFound
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return model.WalletRecord{}, err
	}

	lamports, err := r.chain.Balance(ctx, publicKey)
	if err != nil {
		return model.WalletRecord{}, &ChainError{PublicKey: publicKey, Err: err}
	}
	// an unchanged balance is not written back
	if lamports != cached.Balance {
		if err := r.wallets.UpdateWalletBalance(ctx, publicKey, lamports); err != nil {
			return model.WalletRecord{}, err
		}
	}

	rec, ok := r.wallets.GetWallet(publicKey)
	if !ok {
		// removed while we were asking the chain
		return model.WalletRecord{}, directory.ErrNotFound
	}
	return rec, nil
}

// RefreshAll refreshes every wallet once. A chain failure for one wallet is
// logged and skipped. Only ctx cancellation stops the pass early.
func (r *Refresher) RefreshAll(ctx context.Context) (Result, error) {
	var res Result
	for _, rec := range r.wallets.GetAllWallets() {
		_, err := r.RefreshOne(ctx, rec.PublicKey)
		switch {
		case err == nil:
			res.Updated++
		case ctx.Err() != nil:
			return res, ctx.Err()
		case errors.Is(err, directory.ErrNotFound):
		default:
			res.Failed++
			r.log.Warn("balance refresh failed", zap.String("publicKey", rec.PublicKey), zap.Error(err))
		}
	}
	return res, nil
}

// Run refreshes all wallets every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		r.log.Info("balance refresher disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := r.RefreshAll(ctx)
		if err != nil {
			return
		}
		r.log.Debug("balances refreshed", zap.Int("updated", res.Updated), zap.Int("failed", res.Failed))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
