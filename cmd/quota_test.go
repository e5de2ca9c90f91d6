package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodjournal/insight-api/internal/config"
	"github.com/moodjournal/insight-api/internal/quota"
)

func fixedClock() time.Time { return time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC) }

func TestRunQuotaShow(t *testing.T) {
	ctx := context.Background()
	store := quota.NewMemoryStore()
	ledger := quota.NewLedger(store, quota.DefaultLimits(), quota.WithClock(fixedClock))
	_, _, err := store.Increment(ctx, "u1", ledger.Day(), 3)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runQuotaShow(ctx, &out, ledger, "u1"))

	text := out.String()
	assert.Contains(t, text, "2024-03-05")
	assert.Regexp(t, `tier\s+free`, text)
	assert.Regexp(t, `count\s+1`, text)
	assert.Regexp(t, `limit\s+3`, text)
	assert.Regexp(t, `remaining\s+2`, text)
}

func TestRunQuotaShow_RequiresUser(t *testing.T) {
	ledger := quota.NewLedger(quota.NewMemoryStore(), quota.DefaultLimits())
	err := runQuotaShow(context.Background(), &bytes.Buffer{}, ledger, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--user")
}

func TestRunQuotaSetTier(t *testing.T) {
	ctx := context.Background()
	ledger := quota.NewLedger(quota.NewMemoryStore(), quota.DefaultLimits())

	require.NoError(t, runQuotaSetTier(ctx, ledger, "u1", "premium"))

	var out bytes.Buffer
	require.NoError(t, runQuotaShow(ctx, &out, ledger, "u1"))
	assert.Regexp(t, `tier\s+premium`, out.String())
	assert.Regexp(t, `limit\s+30`, out.String())
}

func TestRunQuotaSetTier_RejectsUnknownTier(t *testing.T) {
	ledger := quota.NewLedger(quota.NewMemoryStore(), quota.DefaultLimits())
	err := runQuotaSetTier(context.Background(), ledger, "u1", "gold")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tier")
}

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestOpenLedger_SQLite(t *testing.T) {
	c := &config.Config{}
	c.Quota.Enabled = true
	c.Quota.Store = quota.BackendSQLite
	c.Quota.SQLitePath = filepath.Join(t.TempDir(), "quota.db")
	withConfig(t, c)

	ctx := context.Background()
	ledger, closeFn, err := openLedger(ctx)
	require.NoError(t, err)
	require.NoError(t, runQuotaSetTier(ctx, ledger, "u1", "plus"))
	closeFn()

	// A second open sees the persisted tier.
	ledger, closeFn, err = openLedger(ctx)
	require.NoError(t, err)
	defer closeFn()

	var out bytes.Buffer
	require.NoError(t, runQuotaShow(ctx, &out, ledger, "u1"))
	assert.Regexp(t, `tier\s+plus`, out.String())
	assert.Regexp(t, `limit\s+10`, out.String())
}

func TestOpenLedger_Disabled(t *testing.T) {
	c := &config.Config{}
	c.Quota.Store = quota.BackendMemory
	withConfig(t, c)

	_, _, err := openLedger(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestOpenLedger_InvalidStore(t *testing.T) {
	c := &config.Config{}
	c.Quota.Enabled = true
	c.Quota.Store = "etcd"
	withConfig(t, c)

	_, _, err := openLedger(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota.store must be")
}
