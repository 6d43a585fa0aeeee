package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/seb7887/lazarus/backoff"
	"github.com/seb7887/lazarus/eventbus"
	"github.com/seb7887/lazarus/ghola"
	"github.com/seb7887/lazarus/observability"
	"github.com/seb7887/lazarus/sietch"
	"github.com/seb7887/lazarus/social"
)

// app holds the engine and everything it was wired with.
type app struct {
	conf     *Config
	logger   *slog.Logger
	store    sietch.Store
	engine   *ghola.Engine
	gatherer prometheus.Gatherer
	closers  []func() error
}

type appOption func(*app)

// withStore replaces the configured database with store.
func withStore(store sietch.Store) appOption {
	return func(a *app) { a.store = store }
}

func newApp(ctx context.Context, conf *Config, logger *slog.Logger, opts ...appOption) (_ *app, err error) {
	a := &app{conf: conf, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	defer func() {
		if err != nil {
			a.close(ctx)
		}
	}()

	if a.store == nil {
		if a.store, err = a.openStore(ctx); err != nil {
			return nil, err
		}
	}

	engineOpts := []ghola.Option{
		ghola.WithLogger(logger),
		ghola.WithTracer(observability.NewTracer(nil)),
	}

	if conf.Redis.Enabled {
		client, err := sietch.NewRedisClient(ctx, conf.Redis.Addr, conf.Redis.Password, conf.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		engineOpts = append(engineOpts, ghola.WithGraphCache(ghola.NewRedisGraphCache(client, conf.Redis.GraphTTL)))
	} else {
		engineOpts = append(engineOpts, ghola.WithGraphCache(sietch.NewInMemoryCache[ghola.DependencyGraph](conf.Redis.GraphTTL)))
	}

	bus, err := a.openBus()
	if err != nil {
		return nil, err
	}
	if bus != nil {
		engineOpts = append(engineOpts, ghola.WithEventBus(bus, conf.Events.SubjectPrefix))
	}

	if conf.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		a.gatherer = reg
		engineOpts = append(engineOpts, ghola.WithMetrics(observability.NewMetrics(reg, conf.Metrics.Namespace)))
	}

	a.engine = ghola.New(a.store, engineOpts...)
	social.Register(a.engine)
	return a, nil
}

func (a *app) openStore(ctx context.Context) (sietch.Store, error) {
	storeOpts := []sietch.Option{sietch.WithQueryLogger(sietch.NewSlogLogger(a.logger))}
	reg := social.Registry()

	if a.conf.Database.Driver == "memory" {
		a.logger.Warn("using the in-memory store, nothing is persisted")
		return sietch.NewInMemoryStore(reg, storeOpts...), nil
	}

	pool, err := sietch.NewCockroachDBConnPool(ctx, a.conf.Database.DSN, a.conf.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	storeOpts = append(storeOpts, sietch.WithRetry(a.conf.Database.Retries, backoff.NewExponential()))
	store, err := sietch.NewCockroachStore(pool, reg, storeOpts...)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// openBus returns the configured event bus, or nil when events are off.
func (a *app) openBus() (eventbus.Bus, error) {
	switch a.conf.Events.Driver {
	case "inmem":
		bus := eventbus.NewInMemBus()
		a.closers = append(a.closers, bus.Close)
		log := eventbus.ReceiverFunc(func(ctx context.Context, msg any) {
			ev, ok := msg.(eventbus.Event)
			if !ok {
				return
			}
			a.logger.InfoContext(ctx, "event",
				"kind", ev.Kind, "entity_type", ev.EntityType, "entity_id", ev.EntityID, "count", ev.Count)
		})
		for _, kind := range []string{eventbus.KindDeleted, eventbus.KindRestored} {
			bus.Subscribe(eventbus.Topic(a.conf.Events.SubjectPrefix, kind), log)
		}
		return bus, nil
	case "nats":
		bus, err := eventbus.NewNatsBus[eventbus.Event](a.conf.Events.URL)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.closers = append(a.closers, func() error {
			if err := bus.Flush(); err != nil {
				a.logger.Warn("flush nats", "error", err)
			}
			return bus.Close()
		})
		return bus, nil
	default:
		return nil, nil
	}
}

// close pushes metrics and releases connections in reverse order.
func (a *app) close(ctx context.Context) {
	if a.gatherer != nil && a.conf.Metrics.PushGateway != "" {
		err := push.New(a.conf.Metrics.PushGateway, a.conf.Metrics.Job).
			Gatherer(a.gatherer).
			PushContext(ctx)
		if err != nil {
			a.logger.Warn("push metrics", "gateway", a.conf.Metrics.PushGateway, "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close", "error", err)
		}
	}
	a.closers = nil
}
