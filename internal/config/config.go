// Package config reads process settings from the environment through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/swarm-blackjack/casino-bot/internal/ledger"
	"github.com/swarm-blackjack/casino-bot/internal/table"
)

// Ledger backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	Port string

	LedgerBackend   string
	StartingBalance int64
	Postgres        ledger.PostgresConfig

	RedisHost string
	RedisPort string

	DiscordToken   string
	DiscordGuildID string
	// OwnerID is the Discord user allowed to run owner commands.
	OwnerID string

	TickInterval time.Duration
	Table        table.Settings

	LogLevel  string
	LogFormat string
}

// RedisAddr is empty when Redis is not configured.
func (c Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return c.RedisHost + ":" + c.RedisPort
}

// SetDefaults registers every key with its default so AutomaticEnv can
// see it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3001")
	v.SetDefault("LEDGER_BACKEND", BackendMemory)
	v.SetDefault("STARTING_BALANCE", ledger.DefaultStartingBalance)
	v.SetDefault("BANK_DB_HOST", "")
	v.SetDefault("BANK_DB_PORT", "5432")
	v.SetDefault("BANK_DB_NAME", "casino")
	v.SetDefault("BANK_DB_USER", "casino")
	v.SetDefault("BANK_DB_PASSWORD", "")
	v.SetDefault("REDIS_HOST", "")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("DISCORD_TOKEN", "")
	v.SetDefault("DISCORD_GUILD_ID", "")
	v.SetDefault("OWNER_ID", "")
	v.SetDefault("TICK_INTERVAL", time.Second)

	d := table.DefaultSettings()
	v.SetDefault("MAX_SEATS", d.MaxSeats)
	v.SetDefault("BETTING_SECONDS", d.BettingSeconds)
	v.SetDefault("ACTION_SECONDS", d.ActionSeconds)
	v.SetDefault("PAYOUT_SECONDS", d.PayoutSeconds)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// New returns a viper instance reading the environment with defaults set.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return v
}

// Load reads a Config from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:            v.GetString("PORT"),
		LedgerBackend:   strings.ToLower(v.GetString("LEDGER_BACKEND")),
		StartingBalance: v.GetInt64("STARTING_BALANCE"),
		Postgres: ledger.PostgresConfig{
			Host:     v.GetString("BANK_DB_HOST"),
			Port:     v.GetString("BANK_DB_PORT"),
			Name:     v.GetString("BANK_DB_NAME"),
			User:     v.GetString("BANK_DB_USER"),
			Password: v.GetString("BANK_DB_PASSWORD"),
		},
		RedisHost:      v.GetString("REDIS_HOST"),
		RedisPort:      v.GetString("REDIS_PORT"),
		DiscordToken:   v.GetString("DISCORD_TOKEN"),
		DiscordGuildID: v.GetString("DISCORD_GUILD_ID"),
		OwnerID:        v.GetString("OWNER_ID"),
		TickInterval:   v.GetDuration("TICK_INTERVAL"),
		Table: table.Settings{
			MaxSeats:       v.GetInt("MAX_SEATS"),
			BettingSeconds: v.GetInt("BETTING_SECONDS"),
			ActionSeconds:  v.GetInt("ACTION_SECONDS"),
			PayoutSeconds:  v.GetInt("PAYOUT_SECONDS"),
		},
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: strings.ToLower(v.GetString("LOG_FORMAT")),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is empty"))
	}
	switch c.LedgerBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.Host == "" {
			errs = append(errs, errors.New("BANK_DB_HOST is required for the postgres ledger"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend))
	}
	if c.StartingBalance < 0 {
		errs = append(errs, errors.New("STARTING_BALANCE must not be negative"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("TICK_INTERVAL must be positive"))
	}
	for name, n := range map[string]int{
		"MAX_SEATS":       c.Table.MaxSeats,
		"BETTING_SECONDS": c.Table.BettingSeconds,
		"ACTION_SECONDS":  c.Table.ActionSeconds,
		"PAYOUT_SECONDS":  c.Table.PayoutSeconds,
	} {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
