package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/ledger"
	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/nonce"
	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/pg"
	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/server"
	"github.com/gauntletlabs/gauntlet/utils/pkg/logger"
	"github.com/gauntletlabs/gauntlet/utils/pkg/retry"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultListenAddr = "0.0.0.0:8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "Address to listen on for the HTTP API")
	pgConnStrFlag := flag.String("pg-conn-str", "", "Postgres connection string (or set PG_CONN_STR env var)")
	runMigrationsFlag := flag.Bool("run-migrations", false, "Run database migrations on startup (or set RUN_MIGRATIONS=true env var)")
	corsOriginsFlag := flag.StringSlice("cors-allowed-origins", nil, "Allowed CORS origins for the HTTP API (empty disables CORS)")

	minTierFlag := flag.Uint8("min-tier", 1, "Lowest valid bounty tier ID")
	maxTierFlag := flag.Uint8("max-tier", 4, "Highest valid bounty tier ID")
	recoveryWindowFlag := flag.Duration("recovery-window", 24*time.Hour, "Idle time required before a jackpot can be recovered")
	maxDecisionAgeFlag := flag.Duration("max-decision-age", 15*time.Minute, "Maximum age of a signed settlement decision before it is refused as stale")
	priceResetFlag := flag.Bool("price-reset-on-settle", false, "Reset the price curve after every settlement instead of escalating for the tier's lifetime")

	rateLimitFlag := flag.Int("rate-limit-per-minute", 120, "Per-IP rate limit for write endpoints (requests per minute)")
	rateLimitBurstFlag := flag.Int("rate-limit-burst", 20, "Per-IP burst allowance for write endpoints")
	monitorIntervalFlag := flag.Duration("monitor-interval", time.Minute, "How often the stale-tier monitor re-scans registries (0 disables)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 10*time.Second, "Maximum time to wait for in-flight requests during graceful shutdown")

	flag.Parse()

	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	// Override flags with environment variables if set
	if envConnStr := os.Getenv("PG_CONN_STR"); envConnStr != "" {
		*pgConnStrFlag = envConnStr
	}
	if envListenAddr := os.Getenv("LISTEN_ADDR"); envListenAddr != "" {
		*listenAddrFlag = envListenAddr
	}
	if os.Getenv("RUN_MIGRATIONS") == "true" {
		*runMigrationsFlag = true
	}

	if *pgConnStrFlag == "" {
		return fmt.Errorf("--pg-conn-str or PG_CONN_STR is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *runMigrationsFlag {
		if err := pg.Migrate(log, *pgConnStrFlag); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// The database frequently comes up alongside the daemon, so tolerate a
	// brief window where connections are refused.
	var pool *pgxpool.Pool
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		var err error
		pool, err = pg.NewPool(ctx, pg.Config{
			Logger:  log,
			ConnStr: *pgConnStrFlag,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()

	store, err := ledger.NewStore(ledger.Config{
		Logger:             log,
		Pool:               pool,
		MinTier:            *minTierFlag,
		MaxTier:            *maxTierFlag,
		RecoveryWindow:     *recoveryWindowFlag,
		MaxDecisionAge:     *maxDecisionAgeFlag,
		PriceResetOnSettle: *priceResetFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create ledger store: %w", err)
	}

	allocator, err := nonce.NewAllocator(nonce.Config{Logger: log, Pool: pool})
	if err != nil {
		return fmt.Errorf("failed to create nonce allocator: %w", err)
	}

	srv, err := server.New(server.Config{
		Logger:    log,
		Pool:      pool,
		Store:     store,
		Allocator: allocator,

		ListenAddr:      *listenAddrFlag,
		ShutdownTimeout: *shutdownTimeoutFlag,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},

		CORSAllowedOrigins: *corsOriginsFlag,
		RateLimitPerMinute: *rateLimitFlag,
		RateLimitBurst:     *rateLimitBurstFlag,
		MonitorInterval:    *monitorIntervalFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info("starting ledgerd",
		"version", version,
		"commit", commit,
		"listen_addr", *listenAddrFlag,
		"min_tier", *minTierFlag,
		"max_tier", *maxTierFlag,
	)

	return srv.Run(ctx)
}
