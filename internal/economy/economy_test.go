package economy

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/swarm-blackjack/casino-bot/internal/ledger"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newService(t *testing.T) (*Service, *ledger.Memory, *clock) {
	t.Helper()
	mem := ledger.NewMemory(500)
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(mem, nil, WithClock(clk.now), WithRand(rand.New(rand.NewSource(1)))), mem, clk
}

func TestPay(t *testing.T) {
	svc, mem, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Pay(ctx, "alice", "alice", 10)
	require.ErrorIs(t, err, ErrSelfPayment)
	_, err = svc.Pay(ctx, "alice", "bob", 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.Pay(ctx, "alice", "bob", 501)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	after, err := svc.Pay(ctx, "alice", "bob", 200)
	require.NoError(t, err)
	require.Equal(t, int64(300), after)
	bob, err := mem.Balance(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, int64(700), bob)
}

// creditFails rejects credits to one player.
type creditFails struct {
	*ledger.Memory
	victim string
}

func (c creditFails) Adjust(ctx context.Context, id string, delta int64) (int64, error) {
	if id == c.victim && delta > 0 {
		return 0, ledger.ErrUnavailable
	}
	return c.Memory.Adjust(ctx, id, delta)
}

func TestPayRefundsWhenCreditFails(t *testing.T) {
	mem := ledger.NewMemory(500)
	svc := New(mem, nil, WithLedger(creditFails{Memory: mem, victim: "bob"}))
	ctx := context.Background()

	_, err := svc.Pay(ctx, "alice", "bob", 100)
	require.ErrorIs(t, err, ledger.ErrUnavailable)
	bal, err := mem.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(500), bal)
}

func TestCollectHonoursCooldown(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()

	r, bal, err := svc.Collect(ctx, "alice", "daily")
	require.NoError(t, err)
	require.Equal(t, int64(25), r.Amount)
	require.Equal(t, int64(525), bal)

	clk.t = clk.t.Add(23 * time.Hour)
	_, _, err = svc.Collect(ctx, "alice", "daily")
	var cd *CooldownError
	require.True(t, errors.As(err, &cd))
	require.Equal(t, time.Hour, cd.Remaining)
	require.Contains(t, cd.Error(), "1h0m0s")

	// Other rewards keep their own clocks.
	_, bal, err = svc.Collect(ctx, "alice", "weekly")
	require.NoError(t, err)
	require.Equal(t, int64(625), bal)

	clk.t = clk.t.Add(time.Hour)
	_, bal, err = svc.Collect(ctx, "alice", "daily")
	require.NoError(t, err)
	require.Equal(t, int64(650), bal)

	_, _, err = svc.Collect(ctx, "alice", "hourly")
	require.ErrorIs(t, err, ErrUnknownReward)
}

func TestCoinFlip(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CoinFlip(ctx, "alice", "edge", 10)
	require.ErrorIs(t, err, ErrInvalidSide)
	_, err = svc.CoinFlip(ctx, "alice", "heads", -1)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.CoinFlip(ctx, "alice", "heads", 1000)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	bal := int64(500)
	for i := 0; i < 20; i++ {
		res, err := svc.CoinFlip(ctx, "alice", " Heads ", 10)
		require.NoError(t, err)
		require.Equal(t, res.Side == "heads", res.Won)
		if res.Won {
			bal += 10
		} else {
			bal -= 10
		}
		require.Equal(t, bal, res.Balance)
	}
}

func TestStatement(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, _, err := svc.Collect(ctx, "alice", "monthly")
	require.NoError(t, err)

	txs, err := svc.Statement(ctx, "alice", 5)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, int64(350), txs[0].Amount)
}

func TestSetBalanceIsOwnerOnly(t *testing.T) {
	mem := ledger.NewMemory(500)
	svc := New(mem, nil, WithOwner("owner"))
	ctx := context.Background()

	require.ErrorIs(t, svc.SetBalance(ctx, "alice", "alice", 9999), ErrNotOwner)
	require.ErrorIs(t, svc.SetBalance(ctx, "owner", "alice", -1), ErrNegativeBalance)
	require.NoError(t, svc.SetBalance(ctx, "owner", "alice", 0))
	bal, err := mem.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, bal)

	require.ErrorIs(t, New(mem, nil).SetBalance(ctx, "", "alice", 10), ErrNotOwner)
}
