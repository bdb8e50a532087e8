// Package cli provides the command-line interface for the trading desk.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"tradedesk/internal/api"
	"tradedesk/internal/config"
	"tradedesk/internal/engine"
	"tradedesk/internal/errors"
	"tradedesk/internal/feed"
	"tradedesk/internal/ledger"
	"tradedesk/internal/metrics"
	"tradedesk/internal/scheduler"
	"tradedesk/internal/store"
	"tradedesk/pkg/utils"
)

func newRunCmd(app *App) *cobra.Command {
	var simulate bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine with feed, API and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("sim") {
				app.Config.Feed.Simulate = simulate
			}
			return runEngine(app)
		},
	}

	cmd.Flags().BoolVar(&simulate, "sim", true, "use the simulated price feed")
	return cmd
}

func runEngine(app *App) error {
	cfg := app.Config
	log := app.Logger

	if err := os.MkdirAll(config.DefaultDataDir(), 0755); err != nil {
		return err
	}

	ins := metrics.New()

	// Ledger of record, with optional realtime publishing.
	var rdb *goredis.Client
	if cfg.Ledger.RedisAddr != "" {
		rdb = goredis.NewClient(&goredis.Options{Addr: cfg.Ledger.RedisAddr})
	}
	ldg, err := ledger.NewSQLiteLedger(ledger.Config{
		DBPath: cfg.Ledger.DBPath,
		Redis:  rdb,
		Log:    log,
	})
	if err != nil {
		return err
	}
	defer ldg.Close()

	snapshots, err := store.NewSnapshotStore(cfg.SnapshotDBPath())
	if err != nil {
		return err
	}
	defer snapshots.Close()

	eng := engine.New(engine.Config{
		Ledger:      ldg,
		Log:         log,
		Instruments: ins,
		SyncTimeout: cfg.Engine.SyncTimeout,
	})

	// Resume from the last snapshot when one exists; it is a display
	// cache, the ledger remains the source of truth for money.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snap, err := snapshots.Load(ctx, cfg.Engine.SnapshotNamespace)
	switch {
	case err == nil && snap.UserID != "":
		eng.Restore(snap)
	case err != nil && !errors.Is(err, errors.ErrSnapshotNotFound):
		return err
	default:
		userID := cfg.Account.UserID
		if userID == "" {
			userID = "local"
		}
		eng.Initialize(userID, cfg.Account.InitialBalance)
	}

	m := eng.Metrics()
	log.Info().
		Str("balance", utils.FormatUSD(m.Balance)).
		Str("equity", utils.FormatUSD(m.Equity)).
		Msg("Account loaded")

	// Background swap accrual.
	sched := scheduler.New(log)
	if cfg.Engine.SwapRatePerDay != 0 {
		job := &engine.SwapAccrualJob{Engine: eng, RatePerDay: cfg.Engine.SwapRatePerDay}
		if err := sched.AddJob(cfg.Engine.SwapSchedule, job); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	// HTTP API.
	server := api.New(api.Config{
		Port:   cfg.API.Port,
		Engine: eng,
		Ledger: ldg,
		Log:    log,
	})
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	// Price feed.
	go func() {
		var err error
		if cfg.Feed.Simulate {
			sim := feed.NewSimFeed(feed.SimFeedConfig{Interval: cfg.Feed.SimInterval, Log: log})
			err = sim.Run(ctx, eng)
		} else {
			ws := feed.NewWSFeed(feed.WSFeedConfig{
				URL:        cfg.Feed.URL,
				MaxRetries: cfg.Feed.MaxRetries,
				BaseDelay:  cfg.Feed.BaseDelay,
				Log:        log,
			})
			err = ws.Run(ctx, eng)
		}
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Price feed stopped")
			stop()
		}
	}()

	// Periodic snapshots.
	go func() {
		ticker := time.NewTicker(cfg.Engine.SnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := snapshots.Save(ctx, cfg.Engine.SnapshotNamespace, eng.Snapshot()); err != nil {
					log.Warn().Err(err).Msg("Snapshot save failed")
				}
			}
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown failed")
	}

	// Final snapshot and ledger flush before closing stores.
	if err := snapshots.Save(shutdownCtx, cfg.Engine.SnapshotNamespace, eng.Snapshot()); err != nil {
		log.Warn().Err(err).Msg("Final snapshot save failed")
	}
	eng.Flush()

	return nil
}
