package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"bazaar/config"
	"bazaar/ledger"
	"bazaar/native/fees"
	"bazaar/native/market"
	"bazaar/observability"
	"bazaar/observability/logging"
	"bazaar/rpc"
	"bazaar/state"
	"bazaar/storage"
)

func main() {
	var configPath string
	var memory bool
	flag.StringVar(&configPath, "config", "./config.toml", "path to the TOML config file")
	flag.BoolVar(&memory, "memory", false, "run with an in-memory store instead of the data directory")
	flag.Parse()

	env := os.Getenv("BAZAAR_ENV")
	logger := logging.Setup("bazaard", env)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	operator, err := config.ParseAddress(cfg.Operator)
	if err != nil {
		logger.Error("invalid operator address", "error", err)
		os.Exit(1)
	}
	feeCollector, err := config.ParseAddress(cfg.FeeCollector)
	if err != nil {
		logger.Error("invalid fee collector address", "error", err)
		os.Exit(1)
	}

	var db storage.Database
	if memory {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "exchange"))
		if err != nil {
			logger.Error("failed to open database", "dir", cfg.DataDir, "error", err)
			os.Exit(1)
		}
		db = ldb
	}
	defer db.Close()

	manager := state.NewManager(db)
	payments := ledger.NewPaymentLedger(manager)
	custody := ledger.NewCustodyLedger(manager)

	policy := fees.NewPolicy(operator)
	policy.SetState(manager)
	policy.SetPauses(cfg)

	engine := market.NewEngine()
	engine.SetState(manager)
	engine.SetCustody(custody)
	engine.SetPayments(payments)
	engine.SetFeePolicy(policy)
	engine.SetFeeCollector(feeCollector)
	engine.SetNativeToken(cfg.NativeToken)
	engine.SetPauses(cfg)

	metrics := observability.NewMetrics("bazaar")
	limiter := rpc.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	server := rpc.NewServer(engine, policy, payments, custody, metrics, logger, cfg.RPCAuthToken, limiter)

	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc listening", "address", cfg.RPCAddress, "network", cfg.NetworkName)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("rpc server failed", "error", err)
		os.Exit(1)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown did not complete cleanly", "error", err)
	}
}
