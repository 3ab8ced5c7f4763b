package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/swarm-blackjack/casino-bot/internal/table"
)

const (
	DefaultPeriod      = time.Second
	DefaultTickTimeout = 750 * time.Millisecond
)

// Scheduler ticks every registered table once per period. Ticks run one
// table after another; a failing or panicking table is deactivated and
// dropped without affecting the rest of the pass.
type Scheduler struct {
	reg         *Registry
	period      time.Duration
	tickTimeout time.Duration
	log         *zap.Logger
}

type SchedulerOption func(*Scheduler)

func WithPeriod(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.period = d }
}

// WithTickTimeout bounds the display update of a single table in one tick.
func WithTickTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickTimeout = d }
}

func NewScheduler(reg *Registry, log *zap.Logger, opts ...SchedulerOption) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{reg: reg, period: DefaultPeriod, tickTimeout: DefaultTickTimeout, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", zap.Duration("period", s.period))
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scheduling pass.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if n := s.reg.Prune(); n > 0 {
		s.log.Info("removed inactive tables", zap.Int("count", n))
	}
	for _, t := range s.reg.Tables() {
		if ctx.Err() != nil {
			return
		}
		if err := s.tick(ctx, t); err != nil {
			t.Deactivate()
			if !errors.Is(err, table.ErrClosed) {
				s.log.Warn("table tick failed",
					zap.String("location", t.Location()), zap.Error(err))
			}
		}
		if !t.Active() {
			s.reg.Remove(t)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, t *table.Table) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	if err := t.Advance(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.tickTimeout)
	defer cancel()
	return t.Refresh(ctx)
}
