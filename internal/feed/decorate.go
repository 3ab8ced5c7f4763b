package feed

import (
	"context"
	"time"

	"github.com/swarm-blackjack/casino-bot/internal/ledger"
	"github.com/swarm-blackjack/casino-bot/internal/table"
)

// Presenter mirrors every successful render to the Bus and Redis. With a
// nil inner presenter it stands alone and hands out the location as the
// display handle, which lets the bot run headless behind the HTTP API.
type Presenter struct {
	inner table.Presenter
	bus   *Bus
	redis *Redis
}

func NewPresenter(inner table.Presenter, bus *Bus, redis *Redis) *Presenter {
	return &Presenter{inner: inner, bus: bus, redis: redis}
}

func (p *Presenter) Render(ctx context.Context, snap table.Snapshot) (table.Handle, error) {
	h := table.Handle(snap.Location)
	if p.inner != nil {
		var err error
		if h, err = p.inner.Render(ctx, snap); err != nil {
			return "", err
		}
	}
	p.fanOut(ctx, snap)
	return h, nil
}

func (p *Presenter) Update(ctx context.Context, h table.Handle, snap table.Snapshot) error {
	if p.inner != nil {
		if err := p.inner.Update(ctx, h, snap); err != nil {
			return err
		}
	}
	p.fanOut(ctx, snap)
	return nil
}

func (p *Presenter) Close(ctx context.Context, h table.Handle, location, reason string) error {
	if p.bus != nil {
		p.bus.CloseLocation(location, reason)
	}
	p.redis.PublishTable(ctx, TableEvent{Snapshot: table.Snapshot{Location: location}, Closed: true, Reason: reason})
	if p.inner == nil {
		return nil
	}
	return p.inner.Close(ctx, h, location, reason)
}

func (p *Presenter) fanOut(ctx context.Context, snap table.Snapshot) {
	if p.bus != nil {
		p.bus.Broadcast(snap)
	}
	p.redis.PublishTable(ctx, TableEvent{Snapshot: snap})
}

// Ledger publishes the resulting balance after every write.
type Ledger struct {
	ledger.Ledger
	redis *Redis
}

func NewLedger(inner ledger.Ledger, redis *Redis) *Ledger {
	return &Ledger{Ledger: inner, redis: redis}
}

func (l *Ledger) Adjust(ctx context.Context, playerID string, delta int64) (int64, error) {
	bal, err := l.Ledger.Adjust(ctx, playerID, delta)
	if err != nil {
		return bal, err
	}
	l.redis.PublishBalance(ctx, BalanceEvent{PlayerID: playerID, Balance: bal, Delta: delta, Timestamp: time.Now().UTC()})
	return bal, nil
}

func (l *Ledger) Set(ctx context.Context, playerID string, amount int64) error {
	if err := l.Ledger.Set(ctx, playerID, amount); err != nil {
		return err
	}
	l.redis.PublishBalance(ctx, BalanceEvent{PlayerID: playerID, Balance: amount, Timestamp: time.Now().UTC()})
	return nil
}
