package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/AlexZinkM/local-keystore/internal/model"
)

// DefaultRequestTimeout bounds a single RPC call.
const DefaultRequestTimeout = 15 * time.Second

// SolanaClient is a client for working with Solana RPC.
// It only reads chain state; it never sees key material.
type SolanaClient struct {
	rpcClient *rpc.Client
	rpcURL    string
	timeout   time.Duration
}

// NewSolanaClient creates a new Solana client for the given RPC endpoint.
func NewSolanaClient(rpcURL string) *SolanaClient {
	return &SolanaClient{
		rpcClient: rpc.New(rpcURL),
		rpcURL:    rpcURL,
		timeout:   DefaultRequestTimeout,
	}
}

// Balance gets SOL balance in lamports for address
func (c *SolanaClient) Balance(ctx context.Context, address string) (uint64, error) {
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("invalid Solana address: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	balance, err := c.rpcClient.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get SOL balance from %s: %w", c.rpcURL, err)
	}
	return balance.Value, nil
}

// RecentTransactions lists the newest signatures touching address, newest first.
func (c *SolanaClient) RecentTransactions(ctx context.Context, address string, limit int) ([]model.Transaction, error) {
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid Solana address: %w", err)
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sigs, err := c.rpcClient.GetSignaturesForAddressWithOpts(ctx, owner, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures from %s: %w", c.rpcURL, err)
	}

	txs := make([]model.Transaction, 0, len(sigs))
	for _, sig := range sigs {
		tx := model.Transaction{
			TxID:        sig.Signature.String(),
			BlockNumber: sig.Slot,
			Status:      "success",
		}
		if sig.Err != nil {
			tx.Status = "failed"
		}
		if sig.BlockTime != nil {
			ts := sig.BlockTime.Time()
			tx.Timestamp = &ts
		}
		txs = append(txs, tx)
	}
	return txs, nil
}
