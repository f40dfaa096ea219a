package billing

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLedger(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	ledger := NewRedisLedger(client, time.Hour)

	seen, err := ledger.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, ledger.Mark(ctx, "evt_1"))
	// Marcar de novo não falha.
	require.NoError(t, ledger.Mark(ctx, "evt_1"))

	seen, err = ledger.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.True(t, mr.Exists(ledgerKeyPrefix+"evt_1"))

	// A retenção é limitada pelo TTL.
	mr.FastForward(2 * time.Hour)
	seen, err = ledger.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestNewRedisClient_URLInvalida(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "http://nao-e-redis")
	assert.Error(t, err)
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("sucesso - marca e encontra", func(t *testing.T) {
		ledger := NewMemoryLedger(10, time.Hour)

		seen, _ := ledger.Seen(ctx, "evt_1")
		assert.False(t, seen)

		require.NoError(t, ledger.Mark(ctx, "evt_1"))
		seen, _ = ledger.Seen(ctx, "evt_1")
		assert.True(t, seen)
	})

	t.Run("sucesso - capacidade limitada descarta o mais antigo", func(t *testing.T) {
		ledger := NewMemoryLedger(2, time.Hour)

		require.NoError(t, ledger.Mark(ctx, "evt_1"))
		require.NoError(t, ledger.Mark(ctx, "evt_2"))
		require.NoError(t, ledger.Mark(ctx, "evt_3"))

		seen, _ := ledger.Seen(ctx, "evt_1")
		assert.False(t, seen)
		seen, _ = ledger.Seen(ctx, "evt_3")
		assert.True(t, seen)
	})
}
