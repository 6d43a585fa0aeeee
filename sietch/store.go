package sietch

import (
	"context"
	"fmt"
	"time"

	"github.com/seb7887/lazarus/backoff"
	"github.com/seb7887/lazarus/idgen"
)

// TxFunc runs inside a transaction. Store calls made with the given context
// take part in it.
type TxFunc func(ctx context.Context) error

// Store persists registered entities.
type Store interface {
	// Registry returns the entity types known to the store
	Registry() *Registry

	// Create inserts e, assigning an id when it has none
	Create(ctx context.Context, e Entity) error

	// Get returns the entity of type t with the given id, or ErrItemNotFound
	Get(ctx context.Context, t *EntityType, id string) (Entity, error)

	// GetForUpdate is Get holding a row lock until the surrounding transaction ends
	GetForUpdate(ctx context.Context, t *EntityType, id string) (Entity, error)

	// Find returns the entities of type t matching filter; nil matches everything
	Find(ctx context.Context, t *EntityType, filter *Filter) ([]Entity, error)

	// Count returns how many entities of type t match filter
	Count(ctx context.Context, t *EntityType, filter *Filter) (int64, error)

	// Save updates an existing entity, running the store hooks
	Save(ctx context.Context, e Entity) error

	// UpdateWhere sets columns on every matching row without running hooks,
	// returning the number of rows changed
	UpdateWhere(ctx context.Context, t *EntityType, filter *Filter, set map[string]any) (int64, error)

	// Increment adds delta to an integer column, flooring the result at zero
	Increment(ctx context.Context, t *EntityType, id string, column string, delta int64) error

	// WithTx runs fn in a transaction. Nested calls open a savepoint.
	WithTx(ctx context.Context, fn TxFunc) error
}

// Option configures a store.
type Option func(*options)

type options struct {
	logger QueryLogger
	hooks  []Hook
	now    func() time.Time
	newID  func() string
	noSync bool

	attempts int
	backoff  backoff.Backoff
}

// WithQueryLogger sets the query logger
func WithQueryLogger(logger QueryLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHooks registers hooks that run after the timestamp synchronizer
func WithHooks(hooks ...Hook) Option {
	return func(o *options) { o.hooks = append(o.hooks, hooks...) }
}

// WithClock sets the clock used by the timestamp synchronizer
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator sets the function used to assign ids on Create
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithRetry makes CockroachStore run a top-level transaction up to attempts
// times while it fails with a serialization conflict, waiting b between
// attempts. The in-memory store never conflicts.
func WithRetry(attempts int, b backoff.Backoff) Option {
	return func(o *options) {
		o.attempts = attempts
		o.backoff = b
	}
}

// WithoutTimestampSync disables the synchronizer hook.
func WithoutTimestampSync() Option {
	return func(o *options) { o.noSync = true }
}

func buildOptions(opts []Option) options {
	o := options{
		logger: NewNoOpLogger(),
		now:    time.Now,
		newID:  idgen.NewULID,

		attempts: 3,
		backoff:  backoff.NewExponential(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) hookRegistry() *HookRegistry {
	hooks := NewHookRegistry()
	if !o.noSync {
		hooks.AddHook(NewTimestampSync(o.now))
	}
	for _, h := range o.hooks {
		hooks.AddHook(h)
	}
	return hooks
}

// persistedState extracts the soft-delete state of a stored row.
func persistedState(stored Entity) PersistedState {
	if stored == nil {
		return PersistedState{}
	}
	state := PersistedState{Exists: true}
	if sd, ok := stored.(SoftDeletable); ok {
		state.Deleted = sd.IsDeleted()
		state.DeletedAt = sd.GetDeletedAt()
	}
	return state
}

// validateFilter rejects filters naming columns t does not declare.
func validateFilter(t *EntityType, filter *Filter) error {
	for _, f := range filter.fields() {
		if !t.HasColumn(f) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name, f)
		}
	}
	return nil
}

func validateSet(t *EntityType, set map[string]any) error {
	if len(set) == 0 {
		return fmt.Errorf("%w: empty update", ErrUnsupportedOperation)
	}
	for col := range set {
		if col == "id" {
			return fmt.Errorf("%w: id cannot be updated", ErrUnsupportedOperation)
		}
		if !t.HasColumn(col) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name, col)
		}
	}
	return nil
}
