package daemon

import (
	"context"

	"github.com/pmendes/parley/internal/bus"
	"github.com/pmendes/parley/internal/cache"
	"github.com/pmendes/parley/internal/config"
	"github.com/pmendes/parley/internal/lock"
	"github.com/pmendes/parley/internal/logging"
	"github.com/pmendes/parley/internal/model"
	"github.com/pmendes/parley/internal/netmon"
	"github.com/pmendes/parley/internal/remote"
	"github.com/pmendes/parley/internal/session"
	"github.com/pmendes/parley/internal/syncer"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// Module returns the fx module for the chat daemon, composing all
// providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideCache,
			provideMonitor,
			provideRemote,
			provideCore,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() *config.Config {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	}
	return cfg
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideCache(p Params, logger *zap.Logger) (*cache.Store, error) {
	dbPath := session.CacheDBPath(p.SessionName)
	store, err := cache.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := store.Migrate()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache store initialized", zap.String("path", dbPath))
	return store, nil
}

func provideMonitor(b *bus.Bus) *netmon.Tracker {
	return netmon.NewTracker(b)
}

func provideRemote(cfg *config.Config, logger *zap.Logger) *remote.Client {
	return remote.New(remote.Config{
		BaseURL:     cfg.ServerURL,
		Collection:  cfg.Collection,
		DisplayName: cfg.DisplayName,
	}, logger)
}

// liveFeed adapts the remote client to the core's Feed interface.
type liveFeed struct {
	client *remote.Client
}

func (f liveFeed) Subscribe(onBatch func(model.Snapshot)) (syncer.Handle, error) {
	return f.client.Subscribe(onBatch)
}

func provideCore(client *remote.Client, store *cache.Store, tracker *netmon.Tracker, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *syncer.Core {
	return syncer.New(liveFeed{client}, store, tracker, client, b, cfg.Collection, logger)
}

func registerLifecycle(lc fx.Lifecycle, core *syncer.Core, client *remote.Client, tracker *netmon.Tracker, store *cache.Store, lk *lock.Lock, logger *zap.Logger) {
	watchCtx, stopWatch := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			core.Start(context.Background())

			// The link watcher is the connectivity source: it signs in,
			// keeps the control socket alive, and feeds the tracker.
			go client.WatchLink(watchCtx,
				func() {
					core.SetAuthor(client.Author())
					tracker.Report(netmon.Connected)
				},
				func() {
					tracker.Report(netmon.Disconnected)
				},
			)

			return nil
		},
		OnStop: func(_ context.Context) error {
			stopWatch()
			core.Stop()
			_ = store.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
