package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcServer answers JSON-RPC calls with canned results keyed by method.
func rpcServer(t *testing.T, results map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     any    `json:"id"`
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if result, ok := results[req.Method]; ok {
			resp["result"] = result
		} else {
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testAddress(t *testing.T) string {
	t.Helper()
	priv, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return priv.PublicKey().String()
}

func TestBalance(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"getBalance": map[string]any{"context": map[string]any{"slot": 1}, "value": 2_500_000_000},
	})
	c := NewSolanaClient(srv.URL)

	lamports, err := c.Balance(context.Background(), testAddress(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000_000), lamports)
}

func TestBalanceErrors(t *testing.T) {
	srv := rpcServer(t, nil)
	c := NewSolanaClient(srv.URL)

	_, err := c.Balance(context.Background(), "not-an-address")
	assert.Error(t, err)

	_, err = c.Balance(context.Background(), testAddress(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), srv.URL)

	_, err = c.RecentTransactions(context.Background(), testAddress(t), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), srv.URL)
}

func TestRecentTransactions(t *testing.T) {
	var sig solana.Signature
	for i := range sig {
		sig[i] = byte(i + 1)
	}
	srv := rpcServer(t, map[string]any{
		"getSignaturesForAddress": []any{
			map[string]any{"signature": sig.String(), "slot": 10, "err": nil, "blockTime": 1700000000, "confirmationStatus": "confirmed"},
			map[string]any{"signature": sig.String(), "slot": 9, "err": map[string]any{"InstructionError": []any{0, "Custom"}}, "blockTime": nil},
		},
	})
	c := NewSolanaClient(srv.URL)

	txs, err := c.RecentTransactions(context.Background(), testAddress(t), 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, sig.String(), txs[0].TxID)
	assert.Equal(t, uint64(10), txs[0].BlockNumber)
	assert.Equal(t, "success", txs[0].Status)
	require.NotNil(t, txs[0].Timestamp)
	assert.Equal(t, int64(1700000000), txs[0].Timestamp.Unix())

	assert.Equal(t, "failed", txs[1].Status)
	assert.Nil(t, txs[1].Timestamp)
}
