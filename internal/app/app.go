package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/fadedpez/balancewatch/internal/config"
	"github.com/fadedpez/balancewatch/internal/discord"
	"github.com/fadedpez/balancewatch/internal/logging"
	discordsink "github.com/fadedpez/balancewatch/pkg/alerting/discord"
	"github.com/fadedpez/balancewatch/pkg/alerting/monitor"
	"github.com/fadedpez/balancewatch/pkg/api"
	"github.com/fadedpez/balancewatch/pkg/entities"
	"github.com/fadedpez/balancewatch/pkg/export/spreadsheet"
	"github.com/fadedpez/balancewatch/pkg/locking"
	"github.com/fadedpez/balancewatch/pkg/repositories/results"
	"github.com/fadedpez/balancewatch/pkg/scheduler"
	"github.com/fadedpez/balancewatch/pkg/services/groups"
	"github.com/fadedpez/balancewatch/pkg/services/reconciliation"
	"github.com/fadedpez/balancewatch/pkg/storage"
	"github.com/fadedpez/balancewatch/pkg/storage/file"
)

const redisLockPrefix = "balancewatch:"

// App wires the stores, the reconciliation runner, its sinks and the
// operator surfaces from one Config
type App struct {
	config    *config.Config
	log       *logging.Logger
	stores    *Stores
	history   *file.Storage
	session   *discord.DiscordSession
	redis     *redis.Client
	results   *results.ElasticsearchRepository
	runner    *reconciliation.Runner
	scheduler *scheduler.ReconcileScheduler
	server    *api.Server

	shutdownWg sync.WaitGroup
}

// New creates a new App. Nothing runs until Start or RunOnce.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger) (*App, error) {
	if log == nil {
		log = logging.Default
	}
	a := &App{config: cfg, log: log}

	stores, err := OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open stores: %w", err)
	}
	a.stores = stores

	if err := a.build(ctx); err != nil {
		a.Shutdown()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.config

	history, err := file.New(&storage.Options{
		Path:   cfg.HistoryPath,
		MaxAge: cfg.HistoryRetain,
	}, a.log)
	if err != nil {
		return fmt.Errorf("failed to open execution history: %w", err)
	}
	a.history = history

	var locker locking.Locker
	if cfg.RedisAddress != "" {
		rdb, err := locking.ConnectRedis(ctx, cfg.RedisAddress)
		if err != nil {
			return err
		}
		a.redis = rdb
		locker = locking.NewRedisLocker(rdb, redisLockPrefix)
		a.log.Info("Using redis group locks at %s", cfg.RedisAddress)
	}

	cutoff, err := cfg.CutoffTime()
	if err != nil {
		return err
	}

	service := reconciliation.NewService(a.stores.Snapshots, a.stores.Movements, groups.NewRegistry(a.stores.Groups), reconciliation.Options{
		Workers: cfg.Workers,
		Epsilon: decimal.NewFromFloat(cfg.Epsilon),
		Locker:  locker,
		Logger:  a.log,
	})

	sinks, err := a.sinks()
	if err != nil {
		return err
	}
	a.runner = reconciliation.NewRunner(service, history, a.log, sinks...)

	var pruner scheduler.IndexPruner
	if a.results != nil {
		pruner = a.results
	}
	a.scheduler = scheduler.NewReconcileScheduler(a.runner, history, pruner, scheduler.ReconcileConfig{
		Interval:         cfg.Interval,
		Groups:           cfg.Groups,
		Cutoff:           cutoff,
		HistoryRetention: cfg.HistoryRetain,
	}, a.log)

	if cfg.HTTPAddr != "" {
		a.server = api.NewServer(a.runner, history, a.log)
	}
	return nil
}

// sinks builds every configured sink in publish order
func (a *App) sinks() ([]reconciliation.Sink, error) {
	cfg := a.config
	var sinks []reconciliation.Sink

	if cfg.ExportDir != "" {
		sinks = append(sinks, spreadsheet.NewExporter(cfg.ExportDir, a.log))
	}
	if cfg.MonitorURL != "" {
		sinks = append(sinks, monitor.NewClient(cfg.MonitorURL, nil, a.log))
	}
	if cfg.Elasticsearch.URL != "" {
		esConfig := results.DefaultConfig()
		esConfig.URL = cfg.Elasticsearch.URL
		esConfig.Username = cfg.Elasticsearch.Username
		esConfig.Password = cfg.Elasticsearch.Password
		esConfig.IndexPrefix = cfg.Elasticsearch.IndexPrefix

		repo, err := results.NewElasticsearchRepository(esConfig, a.log)
		if err != nil {
			return nil, err
		}
		a.results = repo
		sinks = append(sinks, repo)
	}
	if cfg.DiscordToken != "" {
		session, err := discord.NewSession(cfg.DiscordToken)
		if err != nil {
			return nil, fmt.Errorf("failed to create Discord session: %w", err)
		}
		a.session = session
		sinks = append(sinks, discordsink.NewSink(session, cfg.DiscordChannelID, 0, a.log))
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	a.log.Info("Configured sinks: %v", names)
	return sinks, nil
}

// Start connects to Discord, starts the scheduler and, when configured,
// the HTTP API
func (a *App) Start(ctx context.Context) error {
	if a.session != nil {
		if err := a.session.Open(); err != nil {
			return fmt.Errorf("failed to open Discord connection: %w", err)
		}
	}

	a.scheduler.Start(ctx)

	if a.server != nil {
		a.shutdownWg.Add(1)
		go func() {
			defer a.shutdownWg.Done()
			if err := a.server.Listen(a.config.HTTPAddr); err != nil {
				a.log.Error("HTTP API stopped: %v", err)
			}
		}()
	}
	return nil
}

// RunOnce runs a single batch with the configured groups and cutoff
func (a *App) RunOnce(ctx context.Context) (*entities.Batch, error) {
	cutoff, err := a.config.CutoffTime()
	if err != nil {
		return nil, err
	}
	return a.runner.Run(ctx, reconciliation.BatchRequest{
		Groups:      a.config.Groups,
		Cutoff:      cutoff,
		TriggeredBy: "cli",
	})
}

// Stores exposes the opened stores
func (a *App) Stores() *Stores {
	return a.stores
}

// Shutdown stops every surface and releases connections
func (a *App) Shutdown() {
	if a.server != nil {
		if err := a.server.Shutdown(); err != nil {
			a.log.Error("Error stopping HTTP API: %v", err)
		}
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	// Wait for any ongoing operations to complete
	a.shutdownWg.Wait()

	if a.session != nil {
		if err := a.session.Close(); err != nil {
			a.log.Error("Error closing Discord session: %v", err)
		}
	}
	if a.results != nil {
		a.results.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.history != nil {
		a.history.Close()
	}
	if a.stores != nil {
		if err := a.stores.Close(); err != nil {
			a.log.Error("Error closing stores: %v", err)
		}
	}
}
