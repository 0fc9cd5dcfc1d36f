package api

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	_ "github.com/AlexZinkM/local-keystore/docs"
	"github.com/AlexZinkM/local-keystore/internal/handler"
)

// SetupRouter sets up router with handlers
func SetupRouter(walletHandler *handler.WalletHandler, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("GET /swagger/", httpSwagger.WrapHandler)

	// Wallet endpoints
	mux.HandleFunc("GET /wallets", walletHandler.ListWallets)
	mux.HandleFunc("POST /wallets", walletHandler.AddWallet)
	mux.HandleFunc("POST /wallets/bulk", walletHandler.AddWallets)
	mux.HandleFunc("GET /wallets/{publicKey}", walletHandler.GetWallet)
	mux.HandleFunc("DELETE /wallets/{publicKey}", walletHandler.RemoveWallet)
	mux.HandleFunc("PATCH /wallets/{publicKey}", walletHandler.RenameWallet)
	mux.HandleFunc("PUT /wallets/{publicKey}/balance", walletHandler.UpdateBalance)
	mux.HandleFunc("POST /wallets/{publicKey}/refresh", walletHandler.RefreshBalance)
	mux.HandleFunc("GET /wallets/{publicKey}/transactions", walletHandler.Transactions)
	mux.HandleFunc("GET /wallets/{publicKey}/qr", walletHandler.QRCode)
	mux.HandleFunc("GET /state", walletHandler.GetState)

	return requestID(accessLog(log, mux))
}
