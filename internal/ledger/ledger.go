// Package ledger holds player balances. Every operation provisions an
// unknown identity at the starting balance on first reference.
package ledger

import (
	"context"
	"errors"
	"time"
)

// DefaultStartingBalance is credited to an identity the first time it is seen.
const DefaultStartingBalance int64 = 500

// ErrUnavailable marks failures of the backing store. Callers abandon the
// operation in progress when they see it.
var ErrUnavailable = errors.New("ledger unavailable")

// Ledger is the balance contract consumed by tables and the economy.
// Each call is atomic for its one identity; there are no multi-key
// transactions. Non-negativity is not enforced here, callers pre-check.
type Ledger interface {
	Balance(ctx context.Context, playerID string) (int64, error)
	// Adjust adds delta (negative to debit) and returns the new balance.
	Adjust(ctx context.Context, playerID string, delta int64) (int64, error)
	// Set overwrites the balance. Admin path only.
	Set(ctx context.Context, playerID string, amount int64) error
}

// Cooldowns records when a periodic reward was last collected.
type Cooldowns interface {
	LastCollected(ctx context.Context, playerID, kind string) (time.Time, bool, error)
	MarkCollected(ctx context.Context, playerID, kind string, at time.Time) error
}

// Historian lists recent balance changes, newest first.
type Historian interface {
	History(ctx context.Context, playerID string, limit int) ([]Transaction, error)
}

type Transaction struct {
	ID            string    `json:"id"`
	PlayerID      string    `json:"playerId"`
	Type          string    `json:"type"`
	Amount        int64     `json:"amount"`
	BalanceBefore int64     `json:"balanceBefore"`
	BalanceAfter  int64     `json:"balanceAfter"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Transaction types.
const (
	TxCredit = "credit"
	TxDebit  = "debit"
	TxSet    = "set"
)

func txType(delta int64) string {
	if delta < 0 {
		return TxDebit
	}
	return TxCredit
}
