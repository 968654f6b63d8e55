package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/ledger"
	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/nonce"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Store     *ledger.Store
	Allocator *nonce.Allocator
	Clock     clockwork.Clock

	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	VersionInfo       VersionInfo

	CORSAllowedOrigins []string

	// Per-IP rate limit for the write endpoints. Reads are unthrottled.
	RateLimitPerMinute int
	RateLimitBurst     int

	// MonitorInterval is how often the stale-tier monitor re-scans
	// registries. Zero disables the monitor.
	MonitorInterval time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("postgres pool is required")
	}
	if cfg.Store == nil {
		return errors.New("ledger store is required")
	}
	if cfg.Allocator == nil {
		return errors.New("nonce allocator is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = 120
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 20
	}
	return nil
}
