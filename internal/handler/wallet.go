package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/AlexZinkM/local-keystore/internal/balance"
	"github.com/AlexZinkM/local-keystore/internal/common"
	"github.com/AlexZinkM/local-keystore/internal/directory"
	"github.com/AlexZinkM/local-keystore/internal/keygen"
	"github.com/AlexZinkM/local-keystore/internal/model"
	"github.com/AlexZinkM/local-keystore/internal/store"
)

// TransactionReader lists recent chain activity of an address.
type TransactionReader interface {
	RecentTransactions(ctx context.Context, address string, limit int) ([]model.Transaction, error)
}

// WalletHandler serves the wallet directory over HTTP.
type WalletHandler struct {
	wallets   *directory.Directory
	refresher *balance.Refresher
	txs       TransactionReader
	log       *zap.Logger
}

// NewWalletHandler creates a new WalletHandler
func NewWalletHandler(wallets *directory.Directory, refresher *balance.Refresher, txs TransactionReader, log *zap.Logger) *WalletHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WalletHandler{
		wallets:   wallets,
		refresher: refresher,
		txs:       txs,
		log:       log,
	}
}

// ListWallets handles GET /wallets
// @Summary      List wallets
// @Description  Returns every wallet in the keystore. Encrypted keys are never included.
// @Tags         wallets
// @Produce      json
// @Success      200  {array}   model.WalletResponse
// @Router       /wallets [get]
func (h *WalletHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toResponses(h.wallets.GetAllWallets()))
}

// AddWallet handles POST /wallets
// @Summary      Create wallet
// @Description  Generates a new keypair and stores its encrypted secret
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        request  body      model.AddWalletRequest  false  "Wallet label"
// @Success      201      {object}  model.WalletResponse
// @Failure      500      {object}  model.ErrorResponse
// @Router       /wallets [post]
func (h *WalletHandler) AddWallet(w http.ResponseWriter, r *http.Request) {
	var req model.AddWalletRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	rec, err := h.wallets.AddWallet(r.Context(), req.Label)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(rec))
}

// AddWallets handles POST /wallets/bulk
// @Summary      Create wallets in bulk
// @Description  Generates count keypairs on the worker pool. Either all are stored or none.
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        request  body      model.BulkAddRequest  true  "Label prefix and count"
// @Success      201      {array}   model.WalletResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      500      {object}  model.ErrorResponse
// @Router       /wallets/bulk [post]
func (h *WalletHandler) AddWallets(w http.ResponseWriter, r *http.Request) {
	var req model.BulkAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Count < 1 || req.Count > keygen.MaxBatch {
		writeError(w, http.StatusBadRequest, "bad_request", "count must be between 1 and "+strconv.Itoa(keygen.MaxBatch))
		return
	}

	recs, err := h.wallets.AddWallets(r.Context(), req.LabelPrefix, req.Count)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponses(recs))
}

// GetWallet handles GET /wallets/{publicKey}
// @Summary      Get wallet
// @Tags         wallets
// @Produce      json
// @Param        publicKey  path      string  true  "Base58 public key"
// @Success      200        {object}  model.WalletResponse
// @Failure      404        {object}  model.ErrorResponse
// @Router       /wallets/{publicKey} [get]
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.wallets.GetWallet(r.PathValue("publicKey"))
	if !ok {
		h.writeFailure(w, directory.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

// RemoveWallet handles DELETE /wallets/{publicKey}
// @Summary      Remove wallet
// @Description  Deletes the wallet and its encrypted key. Removing an unknown wallet succeeds.
// @Tags         wallets
// @Param        publicKey  path  string  true  "Base58 public key"
// @Success      204
// @Failure      500  {object}  model.ErrorResponse
// @Router       /wallets/{publicKey} [delete]
func (h *WalletHandler) RemoveWallet(w http.ResponseWriter, r *http.Request) {
	if err := h.wallets.RemoveWallet(r.Context(), r.PathValue("publicKey")); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateBalance handles PUT /wallets/{publicKey}/balance
// @Summary      Set cached balance
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        publicKey  path      string                true  "Base58 public key"
// @Param        request    body      model.BalanceRequest  true  "Balance in SOL"
// @Success      200        {object}  model.WalletResponse
// @Failure      400        {object}  model.ErrorResponse
// @Failure      404        {object}  model.ErrorResponse
// @Router       /wallets/{publicKey}/balance [put]
func (h *WalletHandler) UpdateBalance(w http.ResponseWriter, r *http.Request) {
	publicKey := r.PathValue("publicKey")

	var req model.BalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	lamports, err := common.SOLToLamports(req.Balance)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if err := h.wallets.UpdateWalletBalance(r.Context(), publicKey, lamports); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.GetWallet(w, r)
}

// RenameWallet handles PATCH /wallets/{publicKey}
// @Summary      Rename wallet
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        publicKey  path      string               true  "Base58 public key"
// @Param        request    body      model.RenameRequest  true  "New label"
// @Success      200        {object}  model.WalletResponse
// @Failure      404        {object}  model.ErrorResponse
// @Router       /wallets/{publicKey} [patch]
func (h *WalletHandler) RenameWallet(w http.ResponseWriter, r *http.Request) {
	var req model.RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if err := h.wallets.RenameWallet(r.Context(), r.PathValue("publicKey"), req.Label); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.GetWallet(w, r)
}

// RefreshBalance handles POST /wallets/{publicKey}/refresh
// @Summary      Refresh balance from chain
// @Tags         wallets
// @Produce      json
// @Param        publicKey  path      string  true  "Base58 public key"
// @Success      200        {object}  model.WalletResponse
// @Failure      404        {object}  model.ErrorResponse
// @Failure      502        {object}  model.ErrorResponse
// @Router       /wallets/{publicKey}/refresh [post]
func (h *WalletHandler) RefreshBalance(w http.ResponseWriter, r *http.Request) {
	rec, err := h.refresher.RefreshOne(r.Context(), r.PathValue("publicKey"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

// Transactions handles GET /wallets/{publicKey}/transactions
// @Summary      Recent transactions
// @Description  Lists the newest signatures touching the wallet
// @Tags         wallets
// @Produce      json
// @Param        publicKey  path      string  true   "Base58 public key"
// @Param        limit      query     int     false  "Max entries (1-1000, default 100)"
// @Success      200        {object}  model.TransactionsResponse
// @Failure      404        {object}  model.ErrorResponse
// @Failure      502        {object}  model.ErrorResponse
// @Router       /wallets/{publicKey}/transactions [get]
func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	publicKey := r.PathValue("publicKey")
	if _, ok := h.wallets.GetWallet(publicKey); !ok {
		h.writeFailure(w, directory.ErrNotFound)
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid limit: use 1-1000")
			return
		}
		limit = n
	}

	txs, err := h.txs.RecentTransactions(r.Context(), publicKey, limit)
	if err != nil {
		h.log.Warn("transaction lookup failed", zap.String("publicKey", publicKey), zap.Error(err))
		writeError(w, http.StatusBadGateway, "chain_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.TransactionsResponse{
		PublicKey:    publicKey,
		Transactions: txs,
	})
}

// QRCode handles GET /wallets/{publicKey}/qr
// @Summary      Address QR code
// @Tags         wallets
// @Produce      png
// @Param        publicKey  path  string  true  "Base58 public key"
// @Success      200
// @Failure      404  {object}  model.ErrorResponse
// @Router       /wallets/{publicKey}/qr [get]
func (h *WalletHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	publicKey := r.PathValue("publicKey")
	if _, ok := h.wallets.GetWallet(publicKey); !ok {
		h.writeFailure(w, directory.ErrNotFound)
		return
	}

	qr, err := qrcode.New(publicKey, qrcode.Medium)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	png, err := qr.PNG(256)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// GetState handles GET /state
// @Summary      Directory state
// @Description  Wallets together with the busy flag and the last error
// @Tags         wallets
// @Produce      json
// @Success      200  {object}  model.StateResponse
// @Router       /state [get]
func (h *WalletHandler) GetState(w http.ResponseWriter, r *http.Request) {
	s := h.wallets.State()
	writeJSON(w, http.StatusOK, model.StateResponse{
		Wallets:   toResponses(s.Records),
		IsBusy:    s.IsBusy,
		LastError: s.LastError,
	})
}

// writeFailure maps domain errors to status codes.
func (h *WalletHandler) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusRequestTimeout, "cancelled", err.Error())
	case store.IsKind(err, store.IOFailure), store.IsKind(err, store.SchemaInvalid):
		writeError(w, http.StatusInternalServerError, "store_failure", err.Error())
	case keygen.IsGenerationError(err):
		writeError(w, http.StatusInternalServerError, "generation_failed", err.Error())
	case balance.IsChainError(err):
		writeError(w, http.StatusBadGateway, "chain_unavailable", err.Error())
	default:
		h.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code})
}

// decodeOptional decodes a JSON body when one is present.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}
	return true
}

func toResponse(rec model.WalletRecord) model.WalletResponse {
	return model.WalletResponse{
		PublicKey:   rec.PublicKey,
		Label:       rec.Label,
		Balance:     common.LamportsToSOL(rec.Balance),
		Lamports:    rec.Balance,
		LastUpdated: rec.LastUpdated,
	}
}

func toResponses(recs []model.WalletRecord) []model.WalletResponse {
	out := make([]model.WalletResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toResponse(rec))
	}
	return out
}
