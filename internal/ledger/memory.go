package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Ledger used for local runs and tests.
type Memory struct {
	mu        sync.Mutex
	starting  int64
	balances  map[string]int64
	history   map[string][]Transaction
	cooldowns map[string]time.Time
	now       func() time.Time
}

func NewMemory(startingBalance int64) *Memory {
	return &Memory{
		starting:  startingBalance,
		balances:  make(map[string]int64),
		history:   make(map[string][]Transaction),
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
	}
}

// provision must be called with mu held.
func (m *Memory) provision(playerID string) int64 {
	b, ok := m.balances[playerID]
	if !ok {
		b = m.starting
		m.balances[playerID] = b
	}
	return b
}

func (m *Memory) Balance(_ context.Context, playerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provision(playerID), nil
}

func (m *Memory) Adjust(_ context.Context, playerID string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := m.provision(playerID)
	after := before + delta
	m.balances[playerID] = after
	amount := delta
	if amount < 0 {
		amount = -amount
	}
	m.record(playerID, txType(delta), amount, before, after)
	return after, nil
}

func (m *Memory) Set(_ context.Context, playerID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := m.provision(playerID)
	m.balances[playerID] = amount
	m.record(playerID, TxSet, amount, before, amount)
	return nil
}

func (m *Memory) record(playerID, typ string, amount, before, after int64) {
	m.history[playerID] = append(m.history[playerID], Transaction{
		ID:            uuid.NewString(),
		PlayerID:      playerID,
		Type:          typ,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     m.now().UTC(),
	})
}

func (m *Memory) History(_ context.Context, playerID string, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.history[playerID]
	out := make([]Transaction, 0, len(all))
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func cooldownKey(playerID, kind string) string { return playerID + "/" + kind }

func (m *Memory) LastCollected(_ context.Context, playerID, kind string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.cooldowns[cooldownKey(playerID, kind)]
	return at, ok, nil
}

func (m *Memory) MarkCollected(_ context.Context, playerID, kind string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldowns[cooldownKey(playerID, kind)] = at
	return nil
}
