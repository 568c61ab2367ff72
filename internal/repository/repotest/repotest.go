// Package repotest provides a throwaway SQLite store for tests.
package repotest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rongwang/shinobu-server/internal/config"
	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/rongwang/shinobu-server/internal/repository"
	"github.com/stretchr/testify/require"
)

// NewSQLite opens a fresh SQLite database in a temporary directory.
// The connection is closed when the test ends.
func NewSQLite(t testing.TB) *repository.SQLRepository {
	t.Helper()

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Driver:     config.DriverSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "test.db"),
		},
	}
	db, err := config.SetupDatabase(cfg)
	require.NoError(t, err, "Failed to set up test database")
	t.Cleanup(func() { db.Close() })

	return repository.NewSQLRepository(db)
}

// CreateUser inserts a user with the given balance and returns its id
func CreateUser(t testing.TB, repo repository.Repository, name string, balance int64) models.ActorID {
	t.Helper()

	user := &models.User{
		Email:     name + "@example.com",
		Name:      name,
		Password:  "not-a-hash",
		Balance:   balance,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user.ID
}

// Balance returns the user's current balance
func Balance(t testing.TB, repo repository.Repository, id models.ActorID) int64 {
	t.Helper()

	user, err := repo.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return user.Balance
}

// Int64 returns a pointer to v
func Int64(v int64) *int64 {
	return &v
}

// Rarities is a three-tier ladder: Common (auto-upgrades), Rare (upgradable for 50), Epic (top)
var Rarities = []models.Rarity{
	{Value: 1, Name: "Common", Colour: 0xaaaaaa, Weight: 70, Refund: 5, UpgradeCost: Int64(20), AutoUpgrade: true},
	{Value: 2, Name: "Rare", Colour: 0x3366ff, Weight: 25, Refund: 15, UpgradeCost: Int64(50)},
	{Value: 3, Name: "Epic", Colour: 0xaa33ff, Weight: 5, Refund: 40},
}

// SeedCatalog writes Rarities, one batch "launch" with the given characters and one pack
// "Starter" (cost 10, open since 2000-01-01) that offers the batch at every rarity with weight 1.
func SeedCatalog(t testing.TB, repo repository.Repository, characters ...models.Character) {
	t.Helper()
	ctx := context.Background()

	for _, r := range Rarities {
		require.NoError(t, repo.UpsertRarity(ctx, r))
	}
	require.NoError(t, repo.UpsertBatch(ctx, "launch"))
	for _, c := range characters {
		c.Batch = "launch"
		require.NoError(t, repo.UpsertCharacter(ctx, c))
	}
	require.NoError(t, repo.UpsertPack(ctx, models.Pack{
		Name:        "Starter",
		Cost:        10,
		Description: "The first pack",
		StartDate:   "2000-01-01",
	}))
	for _, r := range Rarities {
		require.NoError(t, repo.UpsertBatchInPack(ctx, models.BatchInPack{
			Pack: "Starter", Batch: "launch", Rarity: r.Value, Weight: 1,
		}))
	}
}

// GiveWaifu inserts a waifu directly and returns it fully populated
func GiveWaifu(t testing.TB, repo repository.Repository, owner models.ActorID, characterID int64, rarity int) models.Waifu {
	t.Helper()
	ctx := context.Background()

	id, err := repo.CreateWaifu(ctx, owner, characterID, rarity)
	require.NoError(t, err)
	waifu, err := repo.GetWaifu(ctx, id)
	require.NoError(t, err)
	return *waifu
}
