// Package registry holds the live tables of a process and drives their ticks.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/swarm-blackjack/casino-bot/internal/table"
)

var (
	ErrExists   = errors.New("a table is already running here")
	ErrNotFound = errors.New("no table running here")
)

// Registry maps a location to its table. The registry lock only guards the
// map; each table serializes its own state.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*table.Table
}

func New() *Registry {
	return &Registry{tables: make(map[string]*table.Table)}
}

// Add registers t under its location unless a live table already holds it.
// An inactive table still in the map is replaced.
func (r *Registry) Add(t *table.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.tables[t.Location()]; ok && cur.Active() {
		return ErrExists
	}
	r.tables[t.Location()] = t
	return nil
}

// Get returns the active table at location.
func (r *Registry) Get(location string) (*table.Table, error) {
	r.mu.RLock()
	t, ok := r.tables[location]
	r.mu.RUnlock()
	if !ok || !t.Active() {
		return nil, ErrNotFound
	}
	return t, nil
}

// Remove drops the table at location if it is still t.
func (r *Registry) Remove(t *table.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.tables[t.Location()]; ok && cur == t {
		delete(r.tables, t.Location())
	}
}

// Tables returns the registered tables ordered by location.
func (r *Registry) Tables() []*table.Table {
	r.mu.RLock()
	out := make([]*table.Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Location() < out[j].Location() })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}

// Prune removes every inactive table and reports how many went.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for loc, t := range r.tables {
		if !t.Active() {
			delete(r.tables, loc)
			n++
		}
	}
	return n
}
