package ghola

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/seb7887/lazarus/eventbus"
	"github.com/seb7887/lazarus/idgen"
	"github.com/seb7887/lazarus/observability"
	"github.com/seb7887/lazarus/sietch"
)

// RestoreHook runs after a record has been restored, inside the restoring
// transaction. Hooks keep derived data, such as counters, in step with the
// records they summarize. A failing hook is recorded as a skipped relation.
type RestoreHook func(ctx context.Context, store sietch.Store, e sietch.Entity) error

// Engine restores and deletes soft-deletable records together with the
// records related to them.
type Engine struct {
	store    sietch.Store
	registry *sietch.Registry
	logger   *slog.Logger
	now      func() time.Time
	cache    sietch.Cache[DependencyGraph]
	bus      eventbus.Bus
	prefix   string
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	mu        sync.RWMutex
	cascades  map[string]CascadeFunc
	onRestore map[string][]RestoreHook
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger; nil means slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock sets the clock used for restored_at and bulk deleted_at values
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithGraphCache caches dependency graphs keyed by registry fingerprint
func WithGraphCache(cache sietch.Cache[DependencyGraph]) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithEventBus publishes a deleted or restored event after every committed
// cascade, on the topics prefix.deleted and prefix.restored
func WithEventBus(bus eventbus.Bus, prefix string) Option {
	return func(e *Engine) {
		e.bus = bus
		e.prefix = prefix
	}
}

// WithMetrics records operation metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer wraps every operation in a span
func WithTracer(t *observability.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// New creates an engine over store.
func New(store sietch.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		registry:  store.Registry(),
		logger:    slog.Default(),
		now:       time.Now,
		cascades:  make(map[string]CascadeFunc),
		onRestore: make(map[string][]RestoreHook),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "ghola")
	return e
}

// Store returns the underlying store
func (e *Engine) Store() sietch.Store { return e.store }

// RegisterCascade installs the delete cascade for typeName, replacing any
// previous one. Types without a cascade are deleted on their own.
func (e *Engine) RegisterCascade(typeName string, fn CascadeFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cascades[typeName] = fn
}

// OnRestore adds a hook run after each restoration of a typeName record.
func (e *Engine) OnRestore(typeName string, hook RestoreHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRestore[typeName] = append(e.onRestore[typeName], hook)
}

func (e *Engine) cascadeFor(typeName string) CascadeFunc {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cascades[typeName]
}

func (e *Engine) restoreHooks(typeName string) []RestoreHook {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.onRestore[typeName]
}

// Graph returns the dependency graph of the registry, from the cache when one is configured.
func (e *Engine) Graph(ctx context.Context) (*DependencyGraph, []SkippedRelation) {
	key := Fingerprint(e.registry)
	if e.cache != nil {
		g, err := e.cache.Get(ctx, key)
		if err == nil {
			return g, nil
		}
		if !errors.Is(err, sietch.ErrItemNotFound) {
			e.logger.WarnContext(ctx, "graph cache read failed", "key", key, "error", err)
		}
	}

	g, skipped := Analyze(e.registry, e.logger)
	if e.cache != nil {
		if err := e.cache.Set(ctx, key, g); err != nil {
			e.logger.WarnContext(ctx, "graph cache write failed", "key", key, "error", err)
		}
	}
	return g, skipped
}

// refresh copies the committed row of ent back into it, or current when the
// row cannot be read.
func (e *Engine) refresh(ctx context.Context, t *sietch.EntityType, ent, current sietch.Entity) {
	if fresh, err := e.store.Get(ctx, t, ent.GetID()); err == nil {
		current = fresh
	}
	if err := sietch.CopyInto(ent, current); err != nil {
		e.logger.WarnContext(ctx, "refresh entity", "ref", sietch.Ref(ent), "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, kind, entityType, entityID string, count int) {
	if e.bus == nil || count == 0 {
		return
	}
	ev := eventbus.Event{
		ID:         idgen.NewUUID(),
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		Count:      count,
		OccurredAt: e.now(),
	}
	if err := e.bus.Publish(eventbus.Topic(e.prefix, kind), ev); err != nil {
		e.logger.WarnContext(ctx, "publish event failed", "kind", kind, "entity_type", entityType, "error", err)
	}
}

func (e *Engine) begin(ctx context.Context, operation, entityType, entityID string) (context.Context, trace.Span, time.Time) {
	ctx, span := e.tracer.Start(ctx, operation, observability.EntityAttributes(entityType, entityID)...)
	return ctx, span, time.Now()
}

func (e *Engine) finish(operation string, span trace.Span, start time.Time, res Result, err error) {
	e.metrics.ObserveOperation(operation, res.Outcome.String(), time.Since(start))
	e.metrics.AddSkipped(operation, len(res.Skipped))
	if !res.DryRun && res.Outcome != OutcomeFailed {
		for _, pt := range res.PerType {
			e.metrics.AddObjects(operation, pt.Type, pt.Count)
		}
	}
	e.tracer.End(span, res.Outcome.String(), res.Count, err)
}
