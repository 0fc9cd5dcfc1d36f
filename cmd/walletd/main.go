// Command walletd serves the local keystore over HTTP.
//
// @title        Local Keystore API
// @version      1.0
// @description  Encrypted local Solana keystore with a wallet directory.
// @BasePath     /
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/AlexZinkM/local-keystore/internal/api"
	"github.com/AlexZinkM/local-keystore/internal/app"
	"github.com/AlexZinkM/local-keystore/internal/balance"
	"github.com/AlexZinkM/local-keystore/internal/client"
	"github.com/AlexZinkM/local-keystore/internal/config"
	"github.com/AlexZinkM/local-keystore/internal/handler"
	"github.com/AlexZinkM/local-keystore/internal/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "walletd:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.Init(); err != nil {
		return err
	}
	cfg := config.Get()

	log, err := logger.New(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	key, err := app.ProcessKey(cfg, log)
	if err != nil {
		return err
	}
	defer clear(key)

	ks, err := app.OpenKeystore(ctx, cfg, key, log)
	if err != nil {
		return err
	}
	defer ks.Close()

	chain := client.NewSolanaClient(cfg.SolanaRPCURL)
	refresher := balance.NewRefresher(ks.Directory, chain, cfg.BalanceRPS, log.Named("balance"))
	go refresher.Run(ctx, cfg.RefreshInterval)

	walletHandler := handler.NewWalletHandler(ks.Directory, refresher, chain, log.Named("handler"))
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.SetupRouter(walletHandler, log.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("profile", cfg.Profile))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
