package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresConfig names the connection parameters, matching the BANK_DB_* env vars.
type PostgresConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		c.Host, c.Port, c.Name, c.User, c.Password,
	)
}

// Postgres is the durable Ledger. Balances are whole coins in BIGINT columns.
type Postgres struct {
	pool     *sql.DB
	starting int64
	log      *zap.Logger
}

// NewPostgres opens a connection pool and waits for the database to be ready.
func NewPostgres(ctx context.Context, cfg PostgresConfig, startingBalance int64, log *zap.Logger) (*Postgres, error) {
	pool, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	pool.SetMaxOpenConns(10)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(5 * time.Minute)

	p := &Postgres{pool: pool, starting: startingBalance, log: log}
	if err := p.waitReady(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) waitReady(ctx context.Context) error {
	for i := 0; i < 30; i++ {
		if err := p.pool.PingContext(ctx); err == nil {
			p.log.Info("connected")
			return nil
		}
		p.log.Info("database not ready, retrying", zap.Int("attempt", i+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return fmt.Errorf("%w: database unavailable after 60s", ErrUnavailable)
}

func (p *Postgres) Close() error { return p.pool.Close() }

// Migrate creates tables if they don't exist. Idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []struct{ name, sql string }{
		{"accounts", `
			CREATE TABLE IF NOT EXISTS accounts (
				player_id   VARCHAR(100) PRIMARY KEY,
				balance     BIGINT       NOT NULL,
				created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			)`},
		{"transactions", `
			CREATE TABLE IF NOT EXISTS transactions (
				id             UUID         PRIMARY KEY,
				player_id      VARCHAR(100) NOT NULL REFERENCES accounts(player_id),
				type           VARCHAR(30)  NOT NULL,
				amount         BIGINT       NOT NULL,
				balance_before BIGINT       NOT NULL,
				balance_after  BIGINT       NOT NULL,
				created_at     TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			)`},
		{"cooldowns", `
			CREATE TABLE IF NOT EXISTS cooldowns (
				player_id    VARCHAR(100) NOT NULL REFERENCES accounts(player_id),
				kind         VARCHAR(30)  NOT NULL,
				collected_at TIMESTAMPTZ  NOT NULL,
				PRIMARY KEY (player_id, kind)
			)`},
		{"index", `
			CREATE INDEX IF NOT EXISTS idx_transactions_player
				ON transactions(player_id, created_at DESC)`},
	}
	for _, s := range stmts {
		if _, err := p.pool.ExecContext(ctx, s.sql); err != nil {
			return fmt.Errorf("migrate %s: %w", s.name, err)
		}
	}
	p.log.Info("schema ready")
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (p *Postgres) ensureAccount(ctx context.Context, db execer, playerID string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO accounts(player_id, balance) VALUES($1, $2) ON CONFLICT DO NOTHING`,
		playerID, p.starting,
	)
	return err
}

func (p *Postgres) Balance(ctx context.Context, playerID string) (int64, error) {
	if err := p.ensureAccount(ctx, p.pool, playerID); err != nil {
		return 0, unavailable("balance ensure account", err)
	}
	var balance int64
	err := p.pool.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE player_id=$1`, playerID,
	).Scan(&balance)
	if err != nil {
		return 0, unavailable("balance", err)
	}
	return balance, nil
}

// Adjust applies delta under a row lock and records the transaction.
func (p *Postgres) Adjust(ctx context.Context, playerID string, delta int64) (int64, error) {
	amount := delta
	if amount < 0 {
		amount = -amount
	}
	var after int64
	err := p.update(ctx, playerID, func(before int64) (int64, string, int64) {
		after = before + delta
		return after, txType(delta), amount
	})
	if err != nil {
		return 0, err
	}
	return after, nil
}

func (p *Postgres) Set(ctx context.Context, playerID string, amount int64) error {
	return p.update(ctx, playerID, func(int64) (int64, string, int64) {
		return amount, TxSet, amount
	})
}

func (p *Postgres) update(ctx context.Context, playerID string, next func(before int64) (after int64, typ string, amount int64)) error {
	tx, err := p.pool.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer tx.Rollback()

	if err := p.ensureAccount(ctx, tx, playerID); err != nil {
		return unavailable("ensure account", err)
	}

	var before int64
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE player_id=$1 FOR UPDATE`, playerID,
	).Scan(&before)
	if err != nil {
		return unavailable("lock balance", err)
	}

	after, typ, amount := next(before)

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance=$1 WHERE player_id=$2`, after, playerID,
	); err != nil {
		return unavailable("update balance", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions(id, player_id, type, amount, balance_before, balance_after)
		 VALUES($1, $2, $3, $4, $5, $6)`,
		uuid.New(), playerID, typ, amount, before, after,
	); err != nil {
		return unavailable("record transaction", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

// History returns the most recent transactions for a player.
func (p *Postgres) History(ctx context.Context, playerID string, limit int) ([]Transaction, error) {
	rows, err := p.pool.QueryContext(ctx,
		`SELECT id::text, player_id, type, amount, balance_before, balance_after, created_at
		 FROM transactions
		 WHERE player_id=$1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		playerID, limit,
	)
	if err != nil {
		return nil, unavailable("history", err)
	}
	defer rows.Close()

	txns := []Transaction{}
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.PlayerID, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, unavailable("history scan", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("history rows", err)
	}
	return txns, nil
}

func (p *Postgres) LastCollected(ctx context.Context, playerID, kind string) (time.Time, bool, error) {
	var at time.Time
	err := p.pool.QueryRowContext(ctx,
		`SELECT collected_at FROM cooldowns WHERE player_id=$1 AND kind=$2`, playerID, kind,
	).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, unavailable("last collected", err)
	}
	return at.UTC(), true, nil
}

func (p *Postgres) MarkCollected(ctx context.Context, playerID, kind string, at time.Time) error {
	if err := p.ensureAccount(ctx, p.pool, playerID); err != nil {
		return unavailable("mark collected ensure account", err)
	}
	_, err := p.pool.ExecContext(ctx,
		`INSERT INTO cooldowns(player_id, kind, collected_at) VALUES($1, $2, $3)
		 ON CONFLICT (player_id, kind) DO UPDATE SET collected_at = EXCLUDED.collected_at`,
		playerID, kind, at,
	)
	if err != nil {
		return unavailable("mark collected", err)
	}
	return nil
}
