// Command lottod runs the lottery settlement engine.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/time/rate"

	"github.com/lottoledger/lotto-engine/internal/bank"
	"github.com/lottoledger/lotto-engine/internal/config"
	"github.com/lottoledger/lotto-engine/internal/logging"
	"github.com/lottoledger/lotto-engine/internal/metrics"
	"github.com/lottoledger/lotto-engine/internal/middleware"
	"github.com/lottoledger/lotto-engine/internal/oracle"
	"github.com/lottoledger/lotto-engine/services/lotto"
	"github.com/lottoledger/lotto-engine/services/lotto/api"
)

func main() {
	log := logging.NewDefault("lottod")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("lottod exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *logging.Logger) error {
	store, err := buildStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}

	ledger := buildBank(cfg.Bank, log)
	requester := buildOracle(cfg.Oracle, log)

	engine := lotto.New(store, ledger, requester, log)

	if cfg.GenesisPath != "" {
		if err := seedGenesis(ctx, engine, cfg.GenesisPath, log); err != nil {
			return err
		}
	}

	var sweeper *lotto.Sweeper
	if cfg.Sweeper.Enabled {
		sweeper, err = lotto.NewSweeper(engine, cfg.Sweeper.Schedule, log)
		if err != nil {
			return err
		}
		sweeper.Start()
	}

	router := mux.NewRouter()
	router.Use(middleware.RequestID(), middleware.RequestLogging(log), metrics.InstrumentHandler)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	handlers := api.New(engine, log)
	handlers.Register(router,
		middleware.CallerAuth([]byte(cfg.Auth.JWTSecret)),
		middleware.RateLimit(rate.Limit(cfg.Auth.RateLimitRPS), cfg.Auth.RateLimitBurst),
	)

	server := &http.Server{
		Addr:         cfg.HTTP.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTP.ListenAddr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	if sweeper != nil {
		<-sweeper.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildStore(ctx context.Context, cfg config.StoreConfig, log *logging.Logger) (lotto.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		return lotto.NewMemoryStore(), nil
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	store := lotto.NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	log.Info("connected to postgres")
	return store, nil
}

func buildBank(cfg config.BankConfig, log *logging.Logger) lotto.Bank {
	if cfg.BaseURL == "" {
		log.Warn("BANK_BASE_URL not set, using in-memory bank")
		return bank.NewMemoryBank()
	}
	return bank.NewLedgerClient(bank.Config{
		BaseURL:   cfg.BaseURL,
		AuthToken: cfg.AuthToken,
		Account:   cfg.Account,
	}, log)
}

func buildOracle(cfg config.OracleConfig, log *logging.Logger) lotto.RandomnessRequester {
	if cfg.BaseURL == "" {
		log.Warn("ORACLE_BASE_URL not set, randomness requests will be recorded only")
		return oracle.NewRecorder()
	}
	return oracle.NewClient(oracle.Config{
		BaseURL:     cfg.BaseURL,
		AuthToken:   cfg.AuthToken,
		CallbackURL: cfg.CallbackURL,
	}, log)
}

// seedGenesis initializes the engine configuration on first start. An
// already-initialized store is left untouched.
func seedGenesis(ctx context.Context, engine *lotto.Service, path string, log *logging.Logger) error {
	genesis, err := config.LoadGenesis(path)
	if err != nil {
		return err
	}
	_, err = engine.InitConfig(ctx, lotto.Config{
		Manager:                   genesis.Manager,
		OracleAddress:             genesis.OracleAddress,
		CommunityPool:             genesis.CommunityPool,
		ProtocolCommissionPercent: genesis.ProtocolCommissionPercent,
		CreatorCommissionPercent:  genesis.CreatorCommissionPercent,
	})
	if errors.Is(err, lotto.ErrConfigExists) {
		log.Info("configuration already initialized, skipping genesis")
		return nil
	}
	if err != nil {
		return err
	}
	log.WithField("manager", genesis.Manager).Info("configuration initialized from genesis")
	return nil
}
