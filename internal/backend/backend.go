// Package backend opens the configured ledger store and wires the engine
// services on top of it.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/ledgerline/internal/budget"
	"github.com/Veraticus/ledgerline/internal/cache"
	"github.com/Veraticus/ledgerline/internal/config"
	"github.com/Veraticus/ledgerline/internal/feed"
	"github.com/Veraticus/ledgerline/internal/ledger"
	"github.com/Veraticus/ledgerline/internal/liability"
	"github.com/Veraticus/ledgerline/internal/membership"
	"github.com/Veraticus/ledgerline/internal/provisioning"
	"github.com/Veraticus/ledgerline/internal/service"
	"github.com/Veraticus/ledgerline/internal/storage"
	"github.com/Veraticus/ledgerline/internal/storage/memstore"
	"github.com/Veraticus/ledgerline/internal/trend"
)

// OpenStorage creates the configured store and applies migrations.
func OpenStorage(ctx context.Context, cfg config.DatabaseConfig) (service.Storage, error) {
	var store service.Storage
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := storage.NewSQLiteStorage(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		store = s
	case config.BackendMemory:
		store = memstore.New()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Backend)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("Opened ledger store", "backend", cfg.Backend, "path", cfg.Path)
	return store, nil
}

// Engine bundles the services built over one store.
type Engine struct {
	Store       service.Storage
	Hub         *feed.Hub
	Ledger      *ledger.Service
	Budgets     *budget.Aggregator
	Trends      *trend.Aggregator
	Members     *membership.Authority
	Liabilities *liability.Service
	Saga        *provisioning.Saga
	bridge      *feed.AMQPBridge
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewEngine opens the store and wires every service. When an AMQP URL is
// configured, change notifications are also fanned out across processes;
// a broker that cannot be reached is logged and the feed stays local.
func NewEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	store, err := OpenStorage(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	budgets := budget.NewAggregator(store, cache.NewLRUCache[string](cfg.Cache.Size, cfg.Cache.TTL))
	hub := feed.NewHub(ledger.Loader(store))

	e := &Engine{
		Store:       store,
		Hub:         hub,
		Budgets:     budgets,
		Ledger:      ledger.NewService(store, budgets, hub),
		Trends:      trend.NewAggregator(store),
		Members:     membership.NewAuthority(store),
		Liabilities: liability.NewService(store),
		Saga:        provisioning.NewSaga(store),
	}

	if cfg.Feed.AMQPURL != "" {
		bridge, err := feed.NewAMQPBridge(cfg.Feed.AMQPURL, cfg.Feed.Exchange)
		if err != nil {
			slog.Warn("Failed to initialize AMQP bridge, continuing with a local feed", "error", err)
		} else {
			hub.SetPublisher(bridge)
			runCtx, cancel := context.WithCancel(context.Background())
			e.bridge, e.cancel, e.done = bridge, cancel, make(chan struct{})
			go func() {
				defer close(e.done)
				if err := bridge.Run(runCtx, hub); err != nil && !errors.Is(err, context.Canceled) {
					slog.Error("AMQP bridge stopped", "error", err)
				}
			}()
			slog.Info("Initialized AMQP bridge", "exchange", cfg.Feed.Exchange, "instance", bridge.InstanceID())
		}
	}

	return e, nil
}

// Checkpoints returns the checkpoint manager of a SQLite-backed engine.
func (e *Engine) Checkpoints() (*storage.CheckpointManager, error) {
	s, ok := e.Store.(*storage.SQLiteStorage)
	if !ok {
		return nil, errors.New("checkpoints require the sqlite backend")
	}
	return storage.NewCheckpointManager(s)
}

// Close stops the bridge and closes the store.
func (e *Engine) Close() error {
	if e.bridge != nil {
		e.cancel()
		<-e.done
		if err := e.bridge.Close(); err != nil {
			slog.Warn("Failed to close AMQP bridge", "error", err)
		}
	}
	return e.Store.Close()
}
