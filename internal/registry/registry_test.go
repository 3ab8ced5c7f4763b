package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/swarm-blackjack/casino-bot/internal/cards"
	"github.com/swarm-blackjack/casino-bot/internal/ledger"
	"github.com/swarm-blackjack/casino-bot/internal/table"
)

type stubPresenter struct {
	updateErr error
	panics    bool
	updates   int
}

func (p *stubPresenter) Render(context.Context, table.Snapshot) (table.Handle, error) {
	return "h", nil
}

func (p *stubPresenter) Update(context.Context, table.Handle, table.Snapshot) error {
	if p.panics {
		panic("embed too large")
	}
	p.updates++
	return p.updateErr
}

func (p *stubPresenter) Close(context.Context, table.Handle, string, string) error { return nil }

func newTable(location string, p table.Presenter) *table.Table {
	return table.New(table.Options{
		Location:  location,
		Ledger:    ledger.NewMemory(500),
		Presenter: p,
		Deck:      cards.NewStackedDeck(),
	})
}

func TestAddRejectsLiveDuplicate(t *testing.T) {
	reg := New()
	a := newTable("c1", nil)
	require.NoError(t, reg.Add(a))
	require.ErrorIs(t, reg.Add(newTable("c1", nil)), ErrExists)

	a.Deactivate()
	_, err := reg.Get("c1")
	require.ErrorIs(t, err, ErrNotFound)

	b := newTable("c1", nil)
	require.NoError(t, reg.Add(b), "inactive tables can be replaced")
	got, err := reg.Get("c1")
	require.NoError(t, err)
	require.Same(t, b, got)

	reg.Remove(a)
	require.Equal(t, 1, reg.Len(), "removing a stale table keeps its replacement")
}

func TestTablesSortedByLocation(t *testing.T) {
	reg := New()
	for _, loc := range []string{"c3", "c1", "c2"} {
		require.NoError(t, reg.Add(newTable(loc, nil)))
	}
	var got []string
	for _, tbl := range reg.Tables() {
		got = append(got, tbl.Location())
	}
	require.Equal(t, []string{"c1", "c2", "c3"}, got)
}

func TestRunOnceTicksEveryTable(t *testing.T) {
	reg := New()
	p1, p2 := &stubPresenter{}, &stubPresenter{}
	require.NoError(t, reg.Add(newTable("c1", p1)))
	require.NoError(t, reg.Add(newTable("c2", p2)))

	s := NewScheduler(reg, nil)
	s.RunOnce(context.Background())
	s.RunOnce(context.Background())
	require.Equal(t, 2, p1.updates)
	require.Equal(t, 2, p2.updates)
}

func TestFailingTableIsIsolated(t *testing.T) {
	reg := New()
	good := &stubPresenter{}
	gone := &stubPresenter{updateErr: table.ErrSurfaceGone}
	boom := &stubPresenter{panics: true}
	require.NoError(t, reg.Add(newTable("a-gone", gone)))
	require.NoError(t, reg.Add(newTable("b-boom", boom)))
	require.NoError(t, reg.Add(newTable("c-good", good)))

	s := NewScheduler(reg, nil)
	s.RunOnce(context.Background())

	require.Equal(t, 1, good.updates)
	require.Equal(t, 1, reg.Len())
	_, err := reg.Get("c-good")
	require.NoError(t, err)
}

func TestEmptiedTableDroppedOnNextPass(t *testing.T) {
	reg := New()
	tbl := newTable("c1", &stubPresenter{})
	require.NoError(t, reg.Add(tbl))
	_, err := tbl.Join("alice")
	require.NoError(t, err)

	closed, err := tbl.Leave(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, closed)

	NewScheduler(reg, nil).RunOnce(context.Background())
	require.Zero(t, reg.Len())
}

func TestRunStopsWithContext(t *testing.T) {
	reg := New()
	p := &stubPresenter{}
	require.NoError(t, reg.Add(newTable("c1", p)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewScheduler(reg, nil, WithPeriod(5*time.Millisecond)).Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

// slowLedger delays credits but honors cancellation, like a driver would.
type slowLedger struct {
	*ledger.Memory
	delay time.Duration
}

func (l slowLedger) Adjust(ctx context.Context, id string, delta int64) (int64, error) {
	if delta > 0 {
		select {
		case <-time.After(l.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return l.Memory.Adjust(ctx, id, delta)
}

type panickyLedger struct{ *ledger.Memory }

func (l panickyLedger) Adjust(ctx context.Context, id string, delta int64) (int64, error) {
	if delta > 0 {
		panic("driver: bad connection state")
	}
	return l.Memory.Adjust(ctx, id, delta)
}

var quickSettings = table.Settings{MaxSeats: 5, BettingSeconds: 1, ActionSeconds: 1, PayoutSeconds: 5}

// natural deals the first seat a blackjack against a dealer 20.
func natural() *cards.Deck {
	c := func(rank string) cards.Card { return cards.Card{Suit: "spades", Rank: rank} }
	return cards.NewStackedDeck(c("10"), c("A"), c("K"), c("K"))
}

func betAlice(t *testing.T, tbl *table.Table) {
	t.Helper()
	_, err := tbl.Join("alice")
	require.NoError(t, err)
	_, err = tbl.PlaceBet(context.Background(), "alice", 100)
	require.NoError(t, err)
}

func TestSlowPayoutOutlivesTickTimeout(t *testing.T) {
	led := slowLedger{Memory: ledger.NewMemory(500), delay: 50 * time.Millisecond}
	tbl := table.New(table.Options{
		Location:  "c1",
		Ledger:    led,
		Presenter: &stubPresenter{},
		Settings:  quickSettings,
		Deck:      natural(),
	})
	reg := New()
	require.NoError(t, reg.Add(tbl))
	betAlice(t, tbl)

	s := NewScheduler(reg, nil, WithTickTimeout(10*time.Millisecond))
	s.RunOnce(context.Background())
	s.RunOnce(context.Background())

	require.Equal(t, table.Payouts, tbl.Phase())
	require.True(t, tbl.Active())
	bal, err := led.Balance(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(650), bal)
}

func TestPanicDuringSettleReleasesTable(t *testing.T) {
	tbl := table.New(table.Options{
		Location: "c1",
		Ledger:   panickyLedger{ledger.NewMemory(500)},
		Settings: quickSettings,
		Deck:     natural(),
	})
	reg := New()
	require.NoError(t, reg.Add(tbl))
	betAlice(t, tbl)

	s := NewScheduler(reg, nil)
	s.RunOnce(context.Background())
	s.RunOnce(context.Background())
	require.False(t, tbl.Active())
	require.Zero(t, reg.Len())

	done := make(chan table.Snapshot, 1)
	go func() { done <- tbl.Snapshot() }()
	select {
	case snap := <-done:
		require.False(t, snap.Active)
	case <-time.After(time.Second):
		t.Fatal("table lock still held after a recovered panic")
	}
	_, err := tbl.Join("bob")
	require.ErrorIs(t, err, table.ErrClosed)
}
