// Package feed fans table snapshots and balance changes out to anyone
// listening: Redis pub/sub for other processes, an in-process Bus for the
// HTTP stream.
package feed

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/swarm-blackjack/casino-bot/internal/table"
)

const (
	TablesChannel  = "casino:tables"
	BalanceChannel = "casino:balance"

	publishTimeout = 2 * time.Second
	queueSize      = 256
)

// Publisher is the slice of *redis.Client the feed needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// BalanceEvent is published whenever a ledger write goes through.
type BalanceEvent struct {
	PlayerID  string    `json:"playerId"`
	Balance   int64     `json:"balance"`
	Delta     int64     `json:"delta"`
	Timestamp time.Time `json:"timestamp"`
}

// TableEvent wraps a snapshot; Closed marks the last event for a location.
type TableEvent struct {
	Snapshot table.Snapshot `json:"snapshot"`
	Closed   bool           `json:"closed,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// Redis publishes events fire-and-forget. Callers only enqueue; one
// worker talks to Redis, so a stalled server costs dropped events rather
// than blocked ticks. A nil Publisher turns every call into a no-op so the
// bot runs without Redis.
type Redis struct {
	pub Publisher
	log *zap.Logger

	mu     sync.RWMutex
	queue  chan message
	closed bool
	done   chan struct{}

	published atomic.Int64
	dropped   atomic.Int64
}

type message struct {
	channel string
	data    []byte
}

func NewRedis(pub Publisher, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Redis{pub: pub, log: log, done: make(chan struct{})}
	if pub == nil {
		close(r.done)
		return r
	}
	r.queue = make(chan message, queueSize)
	go r.run()
	return r
}

func (r *Redis) PublishTable(_ context.Context, evt TableEvent) {
	r.publish(TablesChannel, evt)
}

func (r *Redis) PublishBalance(_ context.Context, evt BalanceEvent) {
	r.publish(BalanceChannel, evt)
}

func (r *Redis) publish(channel string, v any) {
	if r == nil || r.pub == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		r.log.Warn("marshal event", zap.String("channel", channel), zap.Error(err))
		r.dropped.Add(1)
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- message{channel: channel, data: data}:
	default:
		r.log.Warn("redis queue full, event dropped (non-fatal)", zap.String("channel", channel))
		r.dropped.Add(1)
	}
}

func (r *Redis) run() {
	defer close(r.done)
	for m := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := r.pub.Publish(ctx, m.channel, m.data).Err()
		cancel()
		if err != nil {
			r.log.Warn("redis publish failed (non-fatal)", zap.String("channel", m.channel), zap.Error(err))
			r.dropped.Add(1)
			continue
		}
		r.published.Add(1)
	}
}

// Close stops accepting events and waits for the queued ones to go out.
func (r *Redis) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		if r.queue != nil {
			close(r.queue)
		}
	}
	r.mu.Unlock()
	<-r.done
}

// Stats reports how many events went out and how many were dropped.
func (r *Redis) Stats() (published, dropped int64) {
	if r == nil {
		return 0, 0
	}
	return r.published.Load(), r.dropped.Load()
}
