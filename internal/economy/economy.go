// Package economy holds the coin commands that sit beside the tables:
// balances, transfers, periodic rewards and a coin flip.
package economy

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/swarm-blackjack/casino-bot/internal/ledger"
)

var (
	ErrSelfPayment       = errors.New("cannot pay yourself")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownReward     = errors.New("unknown reward")
	ErrInvalidSide       = errors.New("side must be heads or tails")
	ErrNotOwner          = errors.New("only the bot owner can do that")
	ErrNegativeBalance   = errors.New("balance cannot be negative")
)

// CooldownError reports a reward that is not ready yet.
type CooldownError struct {
	Kind      string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s reward already collected, available again in %s", e.Kind, e.Remaining.Truncate(time.Second))
}

// Reward is a periodic payout.
type Reward struct {
	Kind     string
	Amount   int64
	Interval time.Duration
}

var Rewards = map[string]Reward{
	"daily":   {Kind: "daily", Amount: 25, Interval: 24 * time.Hour},
	"weekly":  {Kind: "weekly", Amount: 100, Interval: 7 * 24 * time.Hour},
	"monthly": {Kind: "monthly", Amount: 350, Interval: 30 * 24 * time.Hour},
}

// Store is what the economy needs from the bank.
type Store interface {
	ledger.Ledger
	ledger.Cooldowns
	ledger.Historian
}

type Service struct {
	ledger    ledger.Ledger
	cooldowns ledger.Cooldowns
	history   ledger.Historian
	log       *zap.Logger
	owner     string

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

type Option func(*Service)

func WithRand(rng *rand.Rand) Option { return func(s *Service) { s.rng = rng } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithOwner names the one identity allowed to overwrite balances. Without
// it SetBalance always fails.
func WithOwner(id string) Option { return func(s *Service) { s.owner = id } }

// WithLedger routes balance writes through l (for example a publishing
// wrapper) while cooldowns and history still come from the store.
func WithLedger(l ledger.Ledger) Option { return func(s *Service) { s.ledger = l } }

func New(store Store, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		ledger:    store,
		cooldowns: store,
		history:   store,
		log:       log,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Balance(ctx context.Context, playerID string) (int64, error) {
	return s.ledger.Balance(ctx, playerID)
}

// Pay moves amount from one player to another and returns the sender's
// new balance. If the credit fails the debit is reversed.
func (s *Service) Pay(ctx context.Context, from, to string, amount int64) (int64, error) {
	if from == to {
		return 0, ErrSelfPayment
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	bal, err := s.ledger.Balance(ctx, from)
	if err != nil {
		return 0, err
	}
	if bal < amount {
		return bal, ErrInsufficientFunds
	}
	after, err := s.ledger.Adjust(ctx, from, -amount)
	if err != nil {
		return 0, fmt.Errorf("debit sender: %w", err)
	}
	if _, err := s.ledger.Adjust(ctx, to, amount); err != nil {
		if _, rerr := s.ledger.Adjust(ctx, from, amount); rerr != nil {
			s.log.Error("transfer refund failed",
				zap.String("from", from), zap.Int64("amount", amount), zap.Error(rerr))
		}
		return 0, fmt.Errorf("credit recipient: %w", err)
	}
	s.log.Info("transfer", zap.String("from", from), zap.String("to", to), zap.Int64("amount", amount))
	return after, nil
}

// Collect pays out a periodic reward if its interval has passed since the
// last collection.
func (s *Service) Collect(ctx context.Context, playerID, kind string) (Reward, int64, error) {
	r, ok := Rewards[kind]
	if !ok {
		return Reward{}, 0, fmt.Errorf("%w: %q", ErrUnknownReward, kind)
	}
	now := s.now().UTC()
	last, ok, err := s.cooldowns.LastCollected(ctx, playerID, kind)
	if err != nil {
		return r, 0, err
	}
	if ok {
		if wait := last.Add(r.Interval).Sub(now); wait > 0 {
			return r, 0, &CooldownError{Kind: kind, Remaining: wait}
		}
	}
	bal, err := s.ledger.Adjust(ctx, playerID, r.Amount)
	if err != nil {
		return r, 0, err
	}
	if err := s.cooldowns.MarkCollected(ctx, playerID, kind, now); err != nil {
		return r, bal, err
	}
	return r, bal, nil
}

type FlipResult struct {
	Side    string
	Won     bool
	Balance int64
}

// CoinFlip wins or loses amount on an even-odds call of heads or tails.
func (s *Service) CoinFlip(ctx context.Context, playerID, side string, amount int64) (FlipResult, error) {
	side = strings.ToLower(strings.TrimSpace(side))
	if side != "heads" && side != "tails" {
		return FlipResult{}, ErrInvalidSide
	}
	if amount <= 0 {
		return FlipResult{}, ErrInvalidAmount
	}
	bal, err := s.ledger.Balance(ctx, playerID)
	if err != nil {
		return FlipResult{}, err
	}
	if bal < amount {
		return FlipResult{Balance: bal}, ErrInsufficientFunds
	}

	s.mu.Lock()
	landed := "heads"
	if s.rng.Intn(2) == 1 {
		landed = "tails"
	}
	s.mu.Unlock()

	res := FlipResult{Side: landed, Won: landed == side}
	delta := amount
	if !res.Won {
		delta = -amount
	}
	if res.Balance, err = s.ledger.Adjust(ctx, playerID, delta); err != nil {
		return FlipResult{}, err
	}
	return res, nil
}

// SetBalance overwrites a player's balance on the owner's behalf.
func (s *Service) SetBalance(ctx context.Context, actor, playerID string, amount int64) error {
	if s.owner == "" || actor != s.owner {
		return ErrNotOwner
	}
	if amount < 0 {
		return ErrNegativeBalance
	}
	if err := s.ledger.Set(ctx, playerID, amount); err != nil {
		return err
	}
	s.log.Info("balance set", zap.String("by", actor), zap.String("player", playerID), zap.Int64("amount", amount))
	return nil
}

// Statement returns the player's most recent ledger entries.
func (s *Service) Statement(ctx context.Context, playerID string, limit int) ([]ledger.Transaction, error) {
	return s.history.History(ctx, playerID, limit)
}
