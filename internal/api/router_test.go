package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AlexZinkM/local-keystore/internal/balance"
	"github.com/AlexZinkM/local-keystore/internal/crypto"
	"github.com/AlexZinkM/local-keystore/internal/directory"
	"github.com/AlexZinkM/local-keystore/internal/handler"
	"github.com/AlexZinkM/local-keystore/internal/keygen"
	"github.com/AlexZinkM/local-keystore/internal/model"
	"github.com/AlexZinkM/local-keystore/internal/store"
)

type fakeChain struct {
	mu       sync.Mutex
	lamports uint64
	err      error
}

func (c *fakeChain) set(lamports uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lamports, c.err = lamports, err
}

func (c *fakeChain) Balance(context.Context, string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lamports, c.err
}

func (c *fakeChain) RecentTransactions(_ context.Context, address string, limit int) ([]model.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return []model.Transaction{{TxID: "sig-" + address[:4], BlockNumber: 7, Status: "success"}}, nil
}

type testServer struct {
	srv   *httptest.Server
	dir   *directory.Directory
	chain *fakeChain
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	key := make([]byte, crypto.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "keystore.json"), time.Second)
	require.NoError(t, err)
	d, err := directory.New(context.Background(), st, keygen.New(keygen.WithWorkers(2)), key)
	require.NoError(t, err)

	chain := &fakeChain{}
	h := handler.NewWalletHandler(d, balance.NewRefresher(d, chain, 1000, nil), chain, zap.NewNop())
	srv := httptest.NewServer(SetupRouter(h, zap.NewNop()))
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, dir: d, chain: chain}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestWalletLifecycle(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/wallets", model.AddWalletRequest{Label: "main"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[model.WalletResponse](t, resp)
	assert.Equal(t, "main", created.Label)
	assert.Equal(t, "0.000000000", created.Balance)

	resp = s.do(t, http.MethodPut, "/wallets/"+created.PublicKey+"/balance", model.BalanceRequest{Balance: "1.5"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[model.WalletResponse](t, resp)
	assert.Equal(t, uint64(1_500_000_000), updated.Lamports)
	assert.Equal(t, "1.500000000", updated.Balance)

	resp = s.do(t, http.MethodPatch, "/wallets/"+created.PublicKey, model.RenameRequest{Label: "savings"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "savings", decode[model.WalletResponse](t, resp).Label)

	resp = s.do(t, http.MethodGet, "/wallets", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]model.WalletResponse](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, created.PublicKey, list[0].PublicKey)

	resp = s.do(t, http.MethodDelete, "/wallets/"+created.PublicKey, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/wallets/"+created.PublicKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decode[model.ErrorResponse](t, resp).Code)

	// removing again is not an error
	resp = s.do(t, http.MethodDelete, "/wallets/"+created.PublicKey, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAddWalletWithoutBody(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/wallets", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Empty(t, decode[model.WalletResponse](t, resp).Label)
}

func TestBulkAdd(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/wallets/bulk", model.BulkAddRequest{LabelPrefix: "Batch", Count: 3})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	recs := decode[[]model.WalletResponse](t, resp)
	require.Len(t, recs, 3)
	assert.Equal(t, "Batch #1", recs[0].Label)
	assert.Equal(t, "Batch #3", recs[2].Label)

	for _, count := range []int{0, keygen.MaxBatch + 1} {
		resp = s.do(t, http.MethodPost, "/wallets/bulk", model.BulkAddRequest{Count: count})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
	assert.Len(t, s.dir.GetAllWallets(), 3)
}

func TestUpdateBalanceRejectsBadAmount(t *testing.T) {
	s := newTestServer(t)
	rec, err := s.dir.AddWallet(context.Background(), "main")
	require.NoError(t, err)

	for _, amount := range []string{"", "abc", "-1", "0.0000000001"} {
		resp := s.do(t, http.MethodPut, "/wallets/"+rec.PublicKey+"/balance", model.BalanceRequest{Balance: amount})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, amount)
	}
}

func TestRefreshBalance(t *testing.T) {
	s := newTestServer(t)
	rec, err := s.dir.AddWallet(context.Background(), "main")
	require.NoError(t, err)

	s.chain.set(250_000_000, nil)
	resp := s.do(t, http.MethodPost, "/wallets/"+rec.PublicKey+"/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0.250000000", decode[model.WalletResponse](t, resp).Balance)

	s.chain.set(0, errors.New("rpc down"))
	resp = s.do(t, http.MethodPost, "/wallets/"+rec.PublicKey+"/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	got, _ := s.dir.GetWallet(rec.PublicKey)
	assert.Equal(t, uint64(250_000_000), got.Balance)
}

func TestTransactions(t *testing.T) {
	s := newTestServer(t)
	rec, err := s.dir.AddWallet(context.Background(), "main")
	require.NoError(t, err)

	resp := s.do(t, http.MethodGet, "/wallets/"+rec.PublicKey+"/transactions?limit=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[model.TransactionsResponse](t, resp)
	assert.Equal(t, rec.PublicKey, body.PublicKey)
	require.Len(t, body.Transactions, 1)

	resp = s.do(t, http.MethodGet, "/wallets/"+rec.PublicKey+"/transactions?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/wallets/unknown/transactions", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQRCode(t *testing.T) {
	s := newTestServer(t)
	rec, err := s.dir.AddWallet(context.Background(), "main")
	require.NoError(t, err)

	resp := s.do(t, http.MethodGet, "/wallets/"+rec.PublicKey+"/qr", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	var png bytes.Buffer
	_, err = png.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png.Bytes(), []byte("\x89PNG")))
}

func TestState(t *testing.T) {
	s := newTestServer(t)
	_, err := s.dir.AddWallet(context.Background(), "main")
	require.NoError(t, err)

	resp := s.do(t, http.MethodGet, "/state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[model.StateResponse](t, resp)
	assert.Len(t, state.Wallets, 1)
	assert.False(t, state.IsBusy)
	assert.Empty(t, state.LastError)
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/wallets", nil)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	req, err := http.NewRequest(http.MethodGet, s.srv.URL+"/state", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "abc-123", resp2.Header.Get(RequestIDHeader))
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, http.MethodPut, "/state", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
