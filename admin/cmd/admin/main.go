package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/joho/godotenv"

	"github.com/gauntletlabs/gauntlet/admin/internal/admin"
	"github.com/gauntletlabs/gauntlet/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// PostgreSQL configuration
	pgConnStrFlag := flag.String("pg-conn-str", "", "Postgres connection string (or set PG_CONN_STR env var)")

	// Commands
	pgMigrateFlag := flag.Bool("pg-migrate", false, "Run ledger database migrations using goose")
	pgMigrateDownFlag := flag.Bool("pg-migrate-down", false, "Roll back the last ledger database migration")
	pgMigrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show ledger database migration status")
	initTierFlag := flag.Bool("init-tier", false, "Create a bounty registry for a tier")
	fundFlag := flag.Bool("fund", false, "Credit an account balance (operator on-ramp)")
	recoverFlag := flag.Bool("recover", false, "Recover an idle tier's jackpot to the treasury")
	priceFlag := flag.Bool("price", false, "Show the current entry price and registry state for a tier")

	// Command options
	tierFlag := flag.Uint8("tier", 0, "Bounty tier ID")
	baseFeeFlag := flag.Uint64("base-fee", 0, "Base entry fee in base units (for --init-tier)")
	authorityFlag := flag.String("authority", "", "Settlement authority public key, base58 (for --init-tier)")
	jackpotDestFlag := flag.String("jackpot-dest", "", "Jackpot destination account, base58 (for --init-tier)")
	treasuryDestFlag := flag.String("treasury-dest", "", "Treasury destination account, base58 (for --init-tier)")
	addressFlag := flag.String("address", "", "Account address, base58 (for --fund)")
	amountFlag := flag.Uint64("amount", 0, "Amount in base units (for --fund)")
	authorityKeyfileFlag := flag.String("authority-keyfile", "", "Path to the authority's Solana keygen file (for --recover)")
	authorityKeyFlag := flag.String("authority-key", "", "Authority private key, base58 (for --recover; prefer --authority-keyfile)")

	flag.Parse()

	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	if envConnStr := os.Getenv("PG_CONN_STR"); envConnStr != "" {
		*pgConnStrFlag = envConnStr
	}
	if *pgConnStrFlag == "" {
		return fmt.Errorf("--pg-conn-str or PG_CONN_STR is required")
	}

	ctx := context.Background()

	// Execute commands
	if *pgMigrateFlag {
		return admin.PgMigrateUp(log, *pgConnStrFlag)
	}

	if *pgMigrateDownFlag {
		return admin.PgMigrateDown(log, *pgConnStrFlag)
	}

	if *pgMigrateStatusFlag {
		return admin.PgMigrateStatus(log, *pgConnStrFlag)
	}

	if *initTierFlag {
		if *tierFlag == 0 {
			return fmt.Errorf("--tier is required for --init-tier")
		}
		if *baseFeeFlag == 0 {
			return fmt.Errorf("--base-fee is required for --init-tier")
		}
		if *authorityFlag == "" || *jackpotDestFlag == "" || *treasuryDestFlag == "" {
			return fmt.Errorf("--authority, --jackpot-dest and --treasury-dest are required for --init-tier")
		}
		return admin.InitTier(ctx, log, *pgConnStrFlag, admin.InitTierConfig{
			TierID:       *tierFlag,
			BaseFee:      *baseFeeFlag,
			Authority:    *authorityFlag,
			JackpotDest:  *jackpotDestFlag,
			TreasuryDest: *treasuryDestFlag,
		})
	}

	if *fundFlag {
		if *addressFlag == "" {
			return fmt.Errorf("--address is required for --fund")
		}
		if *amountFlag == 0 {
			return fmt.Errorf("--amount is required for --fund")
		}
		return admin.Fund(ctx, log, *pgConnStrFlag, *addressFlag, *amountFlag)
	}

	if *recoverFlag {
		if *tierFlag == 0 {
			return fmt.Errorf("--tier is required for --recover")
		}
		return admin.Recover(ctx, log, *pgConnStrFlag, admin.RecoverConfig{
			TierID:           *tierFlag,
			AuthorityKeyfile: *authorityKeyfileFlag,
			AuthorityKey:     *authorityKeyFlag,
		})
	}

	if *priceFlag {
		if *tierFlag == 0 {
			return fmt.Errorf("--tier is required for --price")
		}
		return admin.Price(ctx, log, *pgConnStrFlag, *tierFlag)
	}

	flag.Usage()
	return nil
}
