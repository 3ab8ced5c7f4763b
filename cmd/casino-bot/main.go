// casino-bot runs live blackjack tables in Discord channels, backed by a
// coin ledger, with an HTTP read/intent surface and a Redis event feed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/swarm-blackjack/casino-bot/internal/config"
	"github.com/swarm-blackjack/casino-bot/internal/discord"
	"github.com/swarm-blackjack/casino-bot/internal/economy"
	"github.com/swarm-blackjack/casino-bot/internal/feed"
	"github.com/swarm-blackjack/casino-bot/internal/gateway"
	"github.com/swarm-blackjack/casino-bot/internal/httpapi"
	"github.com/swarm-blackjack/casino-bot/internal/ledger"
	"github.com/swarm-blackjack/casino-bot/internal/registry"
	"github.com/swarm-blackjack/casino-bot/internal/table"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()

	root := &cobra.Command{
		Use:           "casino-bot",
		Short:         "Live blackjack tables and a coin economy for Discord",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and run the tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, log)
		},
	}
	serve.Flags().String("port", "", "HTTP listen port (env PORT)")
	serve.Flags().String("ledger", "", "ledger backend: memory or postgres (env LEDGER_BACKEND)")
	for key, name := range map[string]string{"PORT": "port", "LEDGER_BACKEND": "ledger"} {
		if err := v.BindPFlag(key, serve.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(serve)
	return root
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc.Level = level
	return zc.Build()
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	store, closeStore, err := openLedger(ctx, cfg, log.Named("ledger"))
	if err != nil {
		return err
	}
	defer closeStore()

	var pub feed.Publisher
	if rdb := openRedis(ctx, cfg, log.Named("feed")); rdb != nil {
		defer rdb.Close()
		pub = rdb
	}
	events := feed.NewRedis(pub, log.Named("feed"))
	defer events.Close()
	bus := feed.NewBus()
	bank := feed.NewLedger(store, events)

	var session *discordgo.Session
	var display table.Presenter
	if cfg.DiscordToken != "" {
		if session, err = discord.NewSession(cfg.DiscordToken); err != nil {
			return err
		}
		display = discord.NewPresenter(session)
	} else {
		log.Warn("DISCORD_TOKEN not set, running headless behind the HTTP API")
	}

	reg := registry.New()
	gw := gateway.New(gateway.Options{
		Registry:  reg,
		Ledger:    bank,
		Presenter: feed.NewPresenter(display, bus, events),
		Settings:  cfg.Table,
		Logger:    log.Named("gateway"),
	})
	eco := economy.New(store, log.Named("economy"), economy.WithLedger(bank), economy.WithOwner(cfg.OwnerID))

	sched := registry.NewScheduler(reg, log.Named("scheduler"), registry.WithPeriod(cfg.TickInterval))
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.New(reg, gw, bus, events, log.Named("http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	var bot *discord.Bot
	if session != nil {
		bot = discord.NewBot(session, discord.NewRouter(gw, eco, log.Named("discord")), cfg.DiscordGuildID, log.Named("discord"))
	}
	return serve(ctx, sched, srv, bot, log)
}

// serve runs the scheduler, the HTTP server and the bot until ctx ends or
// one of them fails, then stops all of them. The failure is returned.
func serve(ctx context.Context, sched *registry.Scheduler, srv *http.Server, bot *discord.Bot, log *zap.Logger) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	srvErr := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	if bot != nil {
		if err = bot.Start(); err == nil {
			defer bot.Close()
		}
	}
	if err == nil {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
		case err = <-srvErr:
			log.Error("http server failed", zap.Error(err))
			err = fmt.Errorf("http server: %w", err)
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Warn("http shutdown", zap.Error(serr))
	}
	<-schedDone
	return err
}

func openLedger(ctx context.Context, cfg config.Config, log *zap.Logger) (economy.Store, func(), error) {
	if cfg.LedgerBackend != config.BackendPostgres {
		log.Info("using in-memory ledger", zap.Int64("startingBalance", cfg.StartingBalance))
		return ledger.NewMemory(cfg.StartingBalance), func() {}, nil
	}
	pg, err := ledger.NewPostgres(ctx, cfg.Postgres, cfg.StartingBalance, log)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("ledger migrate: %w", err)
	}
	return pg, func() { pg.Close() }, nil
}

// openRedis returns nil when Redis is not configured or not reachable; the
// feed then stays local.
func openRedis(ctx context.Context, cfg config.Config, log *zap.Logger) *redis.Client {
	addr := cfg.RedisAddr()
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, events stay local (non-fatal)", zap.String("addr", addr), zap.Error(err))
		rdb.Close()
		return nil
	}
	log.Info("redis connected", zap.String("addr", addr))
	return rdb
}
