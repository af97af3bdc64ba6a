package postgres

import (
	"NetFlowRollup/internal/config"
	"NetFlowRollup/internal/engine/maintainer"
	"NetFlowRollup/internal/engine/upserter"
	"NetFlowRollup/internal/model"
	"context"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to the database named by NF_TEST_DATABASE_URL and skips
// the test when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("NF_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("NF_TEST_DATABASE_URL not set, skipping PostgreSQL integration test")
	}
	cfg := config.Default().Database
	cfg.URL = url
	cfg.Lifetime = time.Minute
	cfg.StmtTimeout = 10 * time.Second

	store, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_UpsertRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// A far-future month keeps the test clear of real partitions.
	ref := time.Date(2999, time.December, 1, 0, 0, 0, 0, time.UTC)
	for _, name := range []string{"nf_2999_12", "nf_3000_01"} {
		require.NoError(t, store.Exec(ctx, "DROP TABLE IF EXISTS "+name))
	}
	t.Cleanup(func() {
		for _, name := range []string{"nf_2999_12", "nf_3000_01"} {
			_ = store.Exec(context.Background(), "DROP TABLE IF EXISTS "+name)
		}
	})

	created, err := maintainer.New(store, netip.Prefix{}).EnsurePartitions(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"nf_2999_12", "nf_3000_01"}, created)

	ok, err := store.TableExists(ctx, "nf_3000_01")
	require.NoError(t, err)
	assert.True(t, ok)

	addr := netip.MustParseAddr("140.125.1.1")
	rows := []model.BatchRow{
		{Table: "nf_2999_12", Key: model.AggregationKey{Addr: addr, Date: model.Date{Year: 2999, Month: 12, Day: 31}, Hour: 23}, Count: model.FlowCount{ExternalIn: 5}},
		{Table: "nf_3000_01", Key: model.AggregationKey{Addr: addr, Date: model.Date{Year: 3000, Month: 1, Day: 1}, Hour: 0}, Count: model.FlowCount{InternalOut: 7}},
	}
	u, err := upserter.New(store, 100)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		res, err := u.FlushRows(ctx, rows)
		require.NoError(t, err)
		assert.Equal(t, 1, res.FallbackChunks)
	}

	var externalIn int64
	require.NoError(t, store.db.Raw("SELECT external_in FROM nf_2999_12 WHERE address = ?", "140.125.1.1").Scan(&externalIn).Error)
	assert.Equal(t, int64(10), externalIn)
}
