package maintainer

import (
	"NetFlowRollup/internal/storage/storagefake"
	"context"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestEnsurePartitions_CreatesCurrentAndNext(t *testing.T) {
	store := storagefake.New()
	m := New(store, netip.Prefix{})

	ref := time.Date(2024, time.December, 29, 23, 0, 0, 0, time.UTC)
	created, err := m.EnsurePartitions(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"nf_2024_12", "nf_2025_01"}, created)

	for _, name := range created {
		ok, err := store.TableExists(context.Background(), name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
}

func TestEnsurePartitions_Idempotent(t *testing.T) {
	store := storagefake.New("nf_2024_05")
	m := New(store, netip.Prefix{})
	ref := time.Date(2024, time.May, 15, 0, 0, 0, 0, time.UTC)

	created, err := m.EnsurePartitions(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"nf_2024_06"}, created)

	created, err = m.EnsurePartitions(context.Background(), ref)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Len(t, store.Calls(), 1, "only one CREATE was ever issued")
}

func TestEnsurePartitions_CreateError(t *testing.T) {
	store := storagefake.New()
	store.FailOn = func(q string, _ []any) error {
		if strings.Contains(q, "nf_2024_06") {
			return xerrors.New("permission denied")
		}
		return nil
	}
	m := New(store, netip.Prefix{})

	created, err := m.EnsurePartitions(context.Background(), time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create table nf_2024_06")
	assert.Equal(t, []string{"nf_2024_05"}, created)
}

func TestCreateTableDDL(t *testing.T) {
	ddl, err := CreateTableDDL("nf_2024_05", netip.Prefix{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ddl, "CREATE TABLE IF NOT EXISTS nf_2024_05 ("))
	assert.Contains(t, ddl, "address inet NOT NULL")
	assert.Contains(t, ddl, "hour smallint NOT NULL")
	assert.Contains(t, ddl, "CHECK ((hour >= 0) AND (hour <= 23))")
	assert.Contains(t, ddl, "PRIMARY KEY (address, date, hour)")
	assert.NotContains(t, ddl, "valid_address")

	ddl, err = CreateTableDDL("nf_2024_05", netip.MustParsePrefix("140.125.3.0/16"))
	require.NoError(t, err)
	assert.Contains(t, ddl, "CHECK (address << '140.125.0.0/16'::inet)")

	_, err = CreateTableDDL("users", netip.Prefix{})
	assert.Error(t, err)
}
