package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vouchernet/config"
	"vouchernet/core/events"
	"vouchernet/core/state"
	nativecommon "vouchernet/native/common"
	"vouchernet/native/market"
	"vouchernet/observability/logging"
	"vouchernet/observability/otel"
	"vouchernet/rpc"
	"vouchernet/storage"
)

const eventBufferSize = 1024

var genesisMarkerKey = []byte("genesis/seeded")

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memory := flag.Bool("memory", false, "DEV ONLY: keep all state in memory instead of the data directory")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VNET_ENV"))
	logger := logging.Setup("vouchernetd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := otel.Init(ctx, otel.Config{
		ServiceName: "vouchernetd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		logger.Error("Failed to initialise telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	var db storage.Database
	if *memory {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("Failed to open database", slog.Any("error", err), slog.String("dir", cfg.DataDir))
			os.Exit(1)
		}
		db = ldb
	}
	defer db.Close()

	manager := state.NewManager(db)
	if err := seedGenesis(manager, cfg.Genesis); err != nil {
		logger.Error("Failed to seed genesis balances", slog.Any("error", err))
		os.Exit(1)
	}

	engine, recorder, err := buildEngine(manager, cfg)
	if err != nil {
		logger.Error("Failed to assemble market engine", slog.Any("error", err))
		os.Exit(1)
	}
	server := rpc.NewServer(engine)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("JSON-RPC listening", slog.String("addr", cfg.RPCAddress))
		errCh <- server.Start(cfg.RPCAddress)
	}()

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Metrics listening", slog.String("addr", cfg.MetricsAddress))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		logger.Error("Server failed", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("Stopped", slog.Int("bufferedEvents", len(recorder.Events())))
}

func buildEngine(manager *state.Manager, cfg *config.Config) (*market.Engine, *events.Recorder, error) {
	pool, err := parsePool(cfg.PoolAddress)
	if err != nil {
		return nil, nil, err
	}

	recorder := events.NewRecorder(eventBufferSize)

	engine := market.NewEngine()
	engine.SetState(manager)
	engine.Ledger().SetState(manager)
	engine.SetBank(manager.Bank(market.VaultAddress()))
	engine.SetToken(manager.TokenLedger())
	engine.SetPermitVerifier(market.NewPermitVerifier())
	engine.SetPauses(nativecommon.NewSwitchboard())
	engine.SetPool(pool)
	engine.SetWindows(cfg.ComplainWindowSecs, cfg.CancelWindowSecs)
	engine.SetEmitter(recorder)
	return engine, recorder, nil
}

func parsePool(value string) ([20]byte, error) {
	var pool [20]byte
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return pool, fmt.Errorf("invalid pool address %q", value)
	}
	copy(pool[:], common.HexToAddress(trimmed).Bytes())
	return pool, nil
}

// seedGenesis credits the configured genesis balances exactly once per data
// directory.
func seedGenesis(manager *state.Manager, accounts []config.GenesisAccount) error {
	var seeded uint64
	found, err := manager.KVGet(genesisMarkerKey, &seeded)
	if err != nil {
		return err
	}
	if found && seeded == 1 {
		return nil
	}
	for _, account := range accounts {
		if !common.IsHexAddress(account.Address) {
			return fmt.Errorf("invalid genesis address %q", account.Address)
		}
		var addr [20]byte
		copy(addr[:], common.HexToAddress(account.Address).Bytes())
		asset, err := market.NormalizeAsset(account.Asset)
		if err != nil {
			return err
		}
		balance, ok := new(big.Int).SetString(strings.TrimSpace(account.Balance), 10)
		if !ok || balance.Sign() < 0 {
			return fmt.Errorf("invalid genesis balance %q for %s", account.Balance, account.Address)
		}
		if err := manager.Credit(addr, asset, balance); err != nil {
			return err
		}
	}
	return manager.KVPut(genesisMarkerKey, uint64(1))
}
