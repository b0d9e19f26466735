package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/vitwit/x402gov"
	"github.com/vitwit/x402gov/audit"
	"github.com/vitwit/x402gov/blockhash"
	"github.com/vitwit/x402gov/breaker"
	"github.com/vitwit/x402gov/clients"
	"github.com/vitwit/x402gov/config"
	"github.com/vitwit/x402gov/delegation"
	"github.com/vitwit/x402gov/gas"
	"github.com/vitwit/x402gov/governance"
	"github.com/vitwit/x402gov/ledger"
	"github.com/vitwit/x402gov/logger"
	"github.com/vitwit/x402gov/metrics"
	"github.com/vitwit/x402gov/replay"
	"github.com/vitwit/x402gov/sanctions"
	"github.com/vitwit/x402gov/server"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "facilitator: %v\n", err)
		os.Exit(1)
	}

	zl := logger.NewZapLogger(cfg.Logger.Level).(*logger.ZapLogger)
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Error("facilitator stopped", map[string]any{"error": err})
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.ZapLogger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var rec metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Metrics.Enabled {
		rec = metrics.NewPrometheusRecorder(reg)
	}

	rpc := ledger.NewRPC(cfg.Solana.RPCURL)
	commitment := cfg.Solana.LedgerCommitment()

	opts := []clients.SolanaOption{
		clients.WithCommitment(commitment),
		clients.WithConfirmation(cfg.Solana.ConfirmTimeout, cfg.Solana.ConfirmPollInterval),
		clients.WithLogger(log),
		clients.WithMetrics(rec),
	}
	if cfg.Solana.HasFeePayer() {
		signer, err := loadSigner(cfg.Solana)
		if err != nil {
			return err
		}
		opts = append(opts,
			clients.WithSigner(signer),
			clients.WithGasManager(gas.NewManager(rpc, gas.Config{
				FeePayer:         signer.PublicKey(),
				Threshold:        cfg.Gas.ThresholdLamports,
				FeePerSettlement: cfg.Gas.FeePerSettlement,
				Commitment:       commitment,
				WarnInterval:     cfg.Gas.WarnInterval,
			}, log, rec)),
		)
	} else {
		log.Warn("no fee payer configured, settlement is disabled", nil)
	}

	client, err := clients.NewSolanaClientWithLedger(cfg.Solana.NetworkID(), rpc, opts...)
	if err != nil {
		return err
	}

	x := x402gov.New(nil,
		x402gov.WithLogger(log),
		x402gov.WithMetrics(rec),
		x402gov.WithTimeout(cfg.Server.RequestTimeout),
		x402gov.WithRetry(cfg.Solana.VerifyRetries, cfg.Solana.VerifyRetryDelay),
	)
	defer x.Close()
	if err := x.AddClient(client); err != nil {
		return err
	}

	gov, cleanup, err := buildGovernance(ctx, cfg, client.Ledger(), log, rec)
	if err != nil {
		return err
	}
	defer cleanup()
	x.UseGovernance(gov)

	srvOpts := []server.Option{
		server.WithLogger(log),
		server.WithRequestTimeout(cfg.Server.RequestTimeout),
	}
	if cfg.Metrics.Enabled {
		srvOpts = append(srvOpts, server.WithMetricsHandler(cfg.Metrics.Path, reg))
	}
	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.New(x, srvOpts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("facilitator listening", map[string]any{
			"addr":      cfg.Server.Addr,
			"network":   cfg.Solana.Network,
			"fee_payer": client.FeePayer().String(),
			"version":   x402gov.Version,
		})
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	log.Info("shutting down", nil)
	return httpSrv.Shutdown(shutdownCtx)
}

func loadSigner(s config.SolanaConfig) (*clients.KeypairSigner, error) {
	if s.FeePayerKey != "" {
		return clients.KeypairSignerFromBase58(s.FeePayerKey)
	}
	return clients.LoadKeypairSigner(s.FeePayerKeypair)
}

// buildGovernance wires the orchestrator's stateful components from cfg. The
// returned cleanup releases connections the orchestrator does not own.
func buildGovernance(ctx context.Context, cfg *config.Config, reader ledger.Reader, log *logger.ZapLogger, rec metrics.Recorder) (*governance.Orchestrator, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*governance.Orchestrator, func(), error) {
		cleanup()
		return nil, nil, err
	}

	policy, err := cfg.Governance.Policy()
	if err != nil {
		return fail(err)
	}

	var store replay.Store
	switch cfg.Replay.Backend {
	case config.ReplayRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err))
		}
		store = replay.NewRedisStore(rdb, cfg.Replay.Prefix)
	default:
		store = replay.NewMemoryStore(replay.WithSweepInterval(cfg.Replay.SweepInterval))
	}

	var sinks []audit.Sink
	if cfg.Audit.Stdout {
		sinks = append(sinks, audit.NewZapSink(log.Zap().Named("audit")))
	}
	if cfg.Audit.PostgresDSN != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.Audit.PostgresDSN)
		if err != nil {
			return fail(fmt.Errorf("audit dsn: %w", err))
		}
		if cfg.Audit.MaxConns > 0 {
			poolCfg.MaxConns = cfg.Audit.MaxConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fail(fmt.Errorf("audit pool: %w", err))
		}
		closers = append(closers, pool.Close)
		pg, err := audit.NewPostgresSink(pool, cfg.Audit.Table)
		if err != nil {
			return fail(err)
		}
		if err := pg.Migrate(ctx); err != nil {
			return fail(err)
		}
		sinks = append(sinks, pg)
	}

	screener, err := buildScreener(ctx, cfg.Sanctions, log, rec)
	if err != nil {
		return fail(err)
	}

	commitment := cfg.Solana.LedgerCommitment()
	gov, err := governance.New(policy, governance.Components{
		Ledger:    reader,
		Replay:    replay.NewGuard(store, log),
		Sanctions: screener,
		Breaker:   breaker.New(cfg.Breaker, log, rec),
		Blockhash: blockhash.NewValidator(reader,
			blockhash.WithMaxAge(cfg.Governance.BlockhashMaxAge),
			blockhash.WithCommitment(commitment),
			blockhash.WithLogger(log),
		),
		Delegation: delegation.NewValidator(reader,
			delegation.WithCommitment(commitment),
			delegation.WithLogger(log),
		),
		Audit: audit.New(log, sinks...),
	}, governance.WithLogger(log), governance.WithMetrics(rec))
	if err != nil {
		return fail(err)
	}
	return gov, cleanup, nil
}

// buildScreener loads the configured sanctions list. Without a path it only
// succeeds when fail_closed is explicitly false, and then every screen skips.
func buildScreener(ctx context.Context, cfg config.SanctionsConfig, log logger.Logger, rec metrics.Recorder) (*sanctions.Screener, error) {
	var src sanctions.Source
	if cfg.Path != "" {
		src = sanctions.FileSource{Path: cfg.Path, List: cfg.List}
	}
	screener, err := sanctions.New(ctx, src,
		sanctions.WithFailClosed(cfg.FailClosed),
		sanctions.WithLogger(log),
		sanctions.WithMetrics(rec),
	)
	if err != nil {
		return nil, fmt.Errorf("sanctions: %w", err)
	}
	if cfg.Path != "" && cfg.Watch {
		if err := screener.Watch(ctx, cfg.Path, cfg.List); err != nil {
			log.Warn("sanctions list watch disabled", map[string]any{"error": err})
		}
	}
	return screener, nil
}
