// Package gateway is the boundary between inbound player intents and the
// live tables. Every call looks the table up again and lets the table
// re-validate phase and seat under its own lock.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/swarm-blackjack/casino-bot/internal/cards"
	"github.com/swarm-blackjack/casino-bot/internal/ledger"
	"github.com/swarm-blackjack/casino-bot/internal/registry"
	"github.com/swarm-blackjack/casino-bot/internal/table"
)

type Options struct {
	Registry  *registry.Registry
	Ledger    ledger.Ledger
	Presenter table.Presenter
	Settings  table.Settings
	// NewDeck supplies each new table's deck; nil means a shuffled deck.
	NewDeck func() *cards.Deck
	Logger  *zap.Logger
}

type Gateway struct {
	reg       *registry.Registry
	ledger    ledger.Ledger
	presenter table.Presenter
	settings  table.Settings
	newDeck   func() *cards.Deck
	log       *zap.Logger
}

func New(opts Options) *Gateway {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	newDeck := opts.NewDeck
	if newDeck == nil {
		newDeck = func() *cards.Deck { return cards.NewDeck(nil) }
	}
	return &Gateway{
		reg:       opts.Registry,
		ledger:    opts.Ledger,
		presenter: opts.Presenter,
		settings:  opts.Settings,
		newDeck:   newDeck,
		log:       log,
	}
}

// StartTable opens a table at location and seats the starter.
func (g *Gateway) StartTable(ctx context.Context, location, starter string) (*table.Table, error) {
	if _, err := g.reg.Get(location); err == nil {
		return nil, registry.ErrExists
	}

	t := table.New(table.Options{
		Location:  location,
		Ledger:    g.ledger,
		Presenter: g.presenter,
		Settings:  g.settings,
		Deck:      g.newDeck(),
		Logger:    g.log.Named("table"),
	})
	if starter != "" {
		if _, err := t.Join(starter); err != nil {
			return nil, err
		}
	}
	if err := t.Open(ctx); err != nil {
		return nil, err
	}
	if err := g.reg.Add(t); err != nil {
		// Lost a race with another start at the same location.
		t.Deactivate()
		g.closeQuietly(ctx, t, "Another table is already running here.")
		return nil, err
	}
	g.log.Info("table started", zap.String("location", location), zap.String("starter", starter))
	return t, nil
}

func (g *Gateway) closeQuietly(ctx context.Context, t *table.Table, reason string) {
	if g.presenter == nil {
		return
	}
	if err := g.presenter.Close(ctx, t.Handle(), t.Location(), reason); err != nil {
		g.log.Debug("close duplicate table", zap.Error(err))
	}
}

func (g *Gateway) table(location string) (*table.Table, error) {
	return g.reg.Get(location)
}

func (g *Gateway) Join(ctx context.Context, location, id string) (table.Role, error) {
	t, err := g.table(location)
	if err != nil {
		return 0, err
	}
	role, err := t.Join(id)
	if err != nil {
		return 0, err
	}
	g.refresh(ctx, t)
	return role, nil
}

// Leave detaches the identity; closed reports that the table shut down
// because nobody was left.
func (g *Gateway) Leave(ctx context.Context, location, id string) (closed bool, err error) {
	t, err := g.table(location)
	if err != nil {
		return false, err
	}
	closed, err = t.Leave(ctx, id)
	if err != nil {
		return false, err
	}
	if closed {
		g.log.Info("table emptied", zap.String("location", location))
		return true, nil
	}
	g.refresh(ctx, t)
	return false, nil
}

// PlaceBet returns the balance left after the wager.
func (g *Gateway) PlaceBet(ctx context.Context, location, id string, amount int64) (int64, error) {
	t, err := g.table(location)
	if err != nil {
		return 0, err
	}
	bal, err := t.PlaceBet(ctx, id, amount)
	if err != nil {
		return bal, err
	}
	g.refresh(ctx, t)
	return bal, nil
}

func (g *Gateway) Act(ctx context.Context, location, id, action string) (table.ActResult, error) {
	a, err := table.ParseAction(action)
	if err != nil {
		return table.ActResult{}, err
	}
	t, err := g.table(location)
	if err != nil {
		return table.ActResult{}, err
	}
	res, err := t.Act(id, a)
	if err != nil {
		return res, err
	}
	if res.Applied {
		g.refresh(ctx, t)
	}
	return res, nil
}

// Snapshot returns the current view of the table at location.
func (g *Gateway) Snapshot(location string) (table.Snapshot, error) {
	t, err := g.table(location)
	if err != nil {
		return table.Snapshot{}, err
	}
	return t.Snapshot(), nil
}

// refresh redraws after an intent. A failed redraw deactivates the table
// inside Refresh; the intent itself already succeeded.
func (g *Gateway) refresh(ctx context.Context, t *table.Table) {
	if err := t.Refresh(ctx); err != nil && !errors.Is(err, table.ErrClosed) {
		g.log.Warn("redraw after intent failed",
			zap.String("location", t.Location()), zap.Error(fmt.Errorf("refresh: %w", err)))
	}
}
