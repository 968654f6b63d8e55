package nonce_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/ledger"
	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/nonce"
	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/pgtest"
	gauntlettesting "github.com/gauntletlabs/gauntlet/utils/pkg/testing"
)

var testDB *pgtest.DB

func TestMain(m *testing.M) {
	ctx := context.Background()
	log := slog.Default()

	var err error
	testDB, err = pgtest.NewDB(ctx, log, nil)
	if err != nil {
		slog.Error("failed to start PostgreSQL container", "error", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	os.Exit(code)
}

func randKey(t *testing.T) solana.PublicKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key.PublicKey()
}

func TestAllocator_NextAndConfirm(t *testing.T) {
	pool := pgtest.NewTestPool(t, testDB)
	pgtest.Reset(t, pool)
	ctx := t.Context()

	allocator, err := nonce.NewAllocator(nonce.Config{
		Logger: gauntlettesting.NewLogger(),
		Pool:   pool,
	})
	require.NoError(t, err)

	payer := randKey(t)

	// Unknown payers start at zero.
	next, err := allocator.Next(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), next)

	require.NoError(t, allocator.Confirm(ctx, payer, 0))
	next, err = allocator.Next(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)

	// Out-of-order confirmations never move the counter backwards.
	require.NoError(t, allocator.Confirm(ctx, payer, 5))
	require.NoError(t, allocator.Confirm(ctx, payer, 2))
	next, err = allocator.Next(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), next)

	// Payers are independent.
	next, err = allocator.Next(ctx, randKey(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), next)
}

func TestAllocator_ReconcilesFromLedger(t *testing.T) {
	pool := pgtest.NewTestPool(t, testDB)
	pgtest.Reset(t, pool)
	ctx := t.Context()

	allocator, err := nonce.NewAllocator(nonce.Config{
		Logger: gauntlettesting.NewLogger(),
		Pool:   pool,
	})
	require.NoError(t, err)

	store, err := ledger.NewStore(ledger.Config{
		Logger: gauntlettesting.NewLogger(),
		Pool:   pool,
	})
	require.NoError(t, err)

	authority := randKey(t)
	_, err = store.Initialize(ctx, 1, 10_000_000, authority, randKey(t), randKey(t))
	require.NoError(t, err)

	payer := randKey(t)
	require.NoError(t, store.Credit(ctx, payer, 100_000_000))

	// Entries land on the ledger but the advisory counter is never
	// confirmed, simulating a crash between payment and confirmation.
	_, err = store.ProcessEntry(ctx, 1, payer, 0, 10_000_000)
	require.NoError(t, err)
	_, err = store.ProcessEntry(ctx, 1, payer, 1, 10_078_000)
	require.NoError(t, err)

	// Next reconciles against MAX(nonce)+1 from the ledger.
	next, err := allocator.Next(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next)

	// A lagging confirmation cannot drag it back down.
	require.NoError(t, allocator.Confirm(ctx, payer, 0))
	next, err = allocator.Next(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next)
}
