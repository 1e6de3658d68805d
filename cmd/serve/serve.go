// Package serve wires every subsystem together and runs the daemon,
// the health loops, and the API server until interrupted.
package serve

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/lunarchive/lunarchive/internal/api"
	"github.com/lunarchive/lunarchive/internal/config"
	"github.com/lunarchive/lunarchive/internal/engine"
	"github.com/lunarchive/lunarchive/internal/feed"
	"github.com/lunarchive/lunarchive/internal/job"
	"github.com/lunarchive/lunarchive/internal/logger"
	"github.com/lunarchive/lunarchive/internal/manager"
	"github.com/lunarchive/lunarchive/internal/metrics"
	"github.com/lunarchive/lunarchive/internal/monitor"
	"github.com/lunarchive/lunarchive/internal/notify"
	"github.com/lunarchive/lunarchive/internal/store"
)

// One metadata request per 20 seconds, matching the polite cadence the
// upstream endpoint tolerates.
const playerRequestInterval = 20 * time.Second

// Command returns the serve subcommand.
func Command(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the archival service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *cfgFile)
		},
	}
}

func run(parent context.Context, cfgFile string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootLog, err := logger.New(&logger.Config{Level: "info"})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	cfgManager := config.NewManager(cfgFile, bootLog)
	cfg, err := cfgManager.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(&cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	notifier := notify.NewService(cfg.Notifications, log.WithComponent("notify"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	limiter := rate.NewLimiter(rate.Every(playerRequestInterval), 1)
	resolver := engine.NewInnertubeResolver(http.DefaultClient, limiter, log.WithComponent("resolver"))

	factory := engine.FactoryFunc(func(params engine.Params) engine.Downloader {
		return engine.NewProcessDownloader(cfg.Downloader.Command, params)
	})

	broadcaster := manager.NewBroadcaster()
	deps := job.Deps{
		Store:     db,
		Notifier:  notifier,
		Broadcast: broadcaster,
		Resolver:  resolver,
		HealthEnabled: func() bool {
			if current := cfgManager.Current(); current != nil {
				return current.Healthchecks.EnableScheduled
			}
			return false
		},
		Log: log.WithComponent("job"),
	}
	deps.ScheduleHealth = func(j *job.Job) {
		go j.HealthLoop(ctx)
	}

	jobs := manager.New(factory, deps, cfgManager.Current, m, log.WithComponent("manager"))
	if err := jobs.Rehydrate(ctx, db); err != nil {
		return fmt.Errorf("rehydrate jobs: %w", err)
	}

	// Config reloads rebuild the notification targets; a second change
	// subscription feeds the monitor daemon's wait-for-channels state.
	notifyChanges := cfgManager.Changes()
	go func() {
		for range notifyChanges {
			if current := cfgManager.Current(); current != nil {
				notifier.Reload(current.Notifications)
			}
		}
	}()

	poller := feed.NewPoller(
		feed.NewHTTPFetcher(http.DefaultClient),
		cfg.Monitor.FeedConcurrency,
		log.WithComponent("feed"),
	)
	daemon := monitor.New(
		poller, jobs, db, resolver, notifier,
		cfgManager.Current, cfgManager.Changes(),
		m, log.WithComponent("monitor"),
	)
	go daemon.Run(ctx)

	cfgManager.Watch()

	server := api.NewServer(jobs, broadcaster, resolver, registry, log.WithComponent("api"))
	if err := server.Run(ctx, cfg.Server.Address); err != nil {
		return fmt.Errorf("api server: %w", err)
	}

	log.Info("Shutdown complete")
	return nil
}
