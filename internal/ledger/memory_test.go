package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryProvisionsOnFirstReference(t *testing.T) {
	ctx := context.Background()

	m := NewMemory(500)
	b, err := m.Balance(ctx, "alice")
	require.NoError(t, err)
	require.EqualValues(t, 500, b)

	after, err := m.Adjust(ctx, "bob", -200)
	require.NoError(t, err)
	require.EqualValues(t, 300, after)

	require.NoError(t, m.Set(ctx, "carol", 42))
	b, _ = m.Balance(ctx, "carol")
	require.EqualValues(t, 42, b)
}

func TestMemoryDoesNotEnforceNonNegative(t *testing.T) {
	m := NewMemory(10)
	after, err := m.Adjust(context.Background(), "alice", -25)
	require.NoError(t, err)
	require.EqualValues(t, -15, after)
}

func TestMemoryHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(100)
	_, _ = m.Adjust(ctx, "alice", -30)
	_, _ = m.Adjust(ctx, "alice", 75)
	require.NoError(t, m.Set(ctx, "alice", 1))

	txns, err := m.History(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	require.Equal(t, TxSet, txns[0].Type)
	require.EqualValues(t, 145, txns[0].BalanceBefore)
	require.Equal(t, TxCredit, txns[1].Type)
	require.EqualValues(t, 75, txns[1].Amount)
	require.NotEmpty(t, txns[1].ID)

	all, _ := m.History(ctx, "alice", 0)
	require.Len(t, all, 3)
	require.Equal(t, TxDebit, all[2].Type)
	require.EqualValues(t, 30, all[2].Amount)
}

func TestMemoryCooldowns(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	_, ok, err := m.LastCollected(ctx, "alice", "daily")
	require.NoError(t, err)
	require.False(t, ok)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, m.MarkCollected(ctx, "alice", "daily", at))
	got, ok, _ := m.LastCollected(ctx, "alice", "daily")
	require.True(t, ok)
	require.Equal(t, at, got)

	_, ok, _ = m.LastCollected(ctx, "alice", "weekly")
	require.False(t, ok)
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{Host: "bank-db", Port: "5432", Name: "bankdb", User: "u", Password: "p"}
	require.Equal(t, "host=bank-db port=5432 dbname=bankdb user=u password=p sslmode=disable", cfg.DSN())
}
