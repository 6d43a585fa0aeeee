package sietch

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

// table holds the rows of one entity type in insertion order.
type table struct {
	rows  map[string]Entity
	order []string
}

func (t *table) copy() *table {
	c := &table{rows: make(map[string]Entity, len(t.rows)), order: append([]string(nil), t.order...)}
	for id, e := range t.rows {
		c.rows[id] = clone(e)
	}
	return c
}

// InMemoryStore is a Store backed by maps. Entities are copied on the way in
// and on the way out, so callers never alias stored state.
type InMemoryStore struct {
	mu       sync.RWMutex
	tables   map[string]*table
	registry *Registry
	hooks    *HookRegistry
	logger   QueryLogger
	newID    func() string

	// txMu serializes top-level transactions so a rollback never discards
	// writes committed by a concurrent transaction.
	txMu sync.Mutex
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty store for the types in registry
func NewInMemoryStore(registry *Registry, opts ...Option) *InMemoryStore {
	o := buildOptions(opts)
	return &InMemoryStore{
		tables:   make(map[string]*table),
		registry: registry,
		hooks:    o.hookRegistry(),
		logger:   o.logger,
		newID:    o.newID,
	}
}

func (s *InMemoryStore) Registry() *Registry { return s.registry }

// AddHook registers an additional hook
func (s *InMemoryStore) AddHook(hook Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks.AddHook(hook)
}

func (s *InMemoryStore) table(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{rows: make(map[string]Entity)}
		s.tables[name] = t
	}
	return t
}

func (s *InMemoryStore) typeOf(e Entity) (*EntityType, error) {
	return s.registry.TypeOf(e)
}

func (s *InMemoryStore) Create(ctx context.Context, e Entity) (err error) {
	start := time.Now()
	defer func() { logOperation(s.logger, ctx, "create", e.EntityType(), start, err) }()

	if _, err = s.typeOf(e); err != nil {
		return err
	}
	if e.GetID() == "" {
		e.SetID(s.newID())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := s.table(e.EntityType())
	if _, exists := tbl.rows[e.GetID()]; exists {
		return fmt.Errorf("%w: %s", ErrItemAlreadyExists, Ref(e))
	}
	if err = s.hooks.ExecuteBeforeSave(ctx, e, PersistedState{}); err != nil {
		return err
	}
	tbl.rows[e.GetID()] = clone(e)
	tbl.order = append(tbl.order, e.GetID())
	if hookErr := s.hooks.ExecuteAfterSave(ctx, e); hookErr != nil {
		logOperation(s.logger, ctx, "create.after_hook", e.EntityType(), start, hookErr)
	}
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, t *EntityType, id string) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tbl, ok := s.tables[t.Name]
	if !ok {
		return nil, ErrItemNotFound
	}
	e, ok := tbl.rows[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	return clone(e), nil
}

// GetForUpdate is Get; top-level transactions are already serialized.
func (s *InMemoryStore) GetForUpdate(ctx context.Context, t *EntityType, id string) (Entity, error) {
	return s.Get(ctx, t, id)
}

func (s *InMemoryStore) Find(ctx context.Context, t *EntityType, filter *Filter) ([]Entity, error) {
	if err := validateFilter(t, filter); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := s.match(t, filter)
	if err != nil {
		return nil, err
	}
	if filter != nil && len(filter.Sort) > 0 {
		sortEntities(matches, filter.Sort)
	}
	if filter != nil && filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}
	results := make([]Entity, len(matches))
	for i, e := range matches {
		results[i] = clone(e)
	}
	return results, nil
}

func (s *InMemoryStore) Count(ctx context.Context, t *EntityType, filter *Filter) (int64, error) {
	if err := validateFilter(t, filter); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := s.match(t, filter)
	return int64(len(matches)), err
}

// match returns the stored rows of t satisfying filter; callers hold s.mu.
func (s *InMemoryStore) match(t *EntityType, filter *Filter) ([]Entity, error) {
	tbl, ok := s.tables[t.Name]
	if !ok {
		return nil, nil
	}
	var out []Entity
	for _, id := range tbl.order {
		e := tbl.rows[id]
		ok, err := matchesFilter(e, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Save(ctx context.Context, e Entity) (err error) {
	start := time.Now()
	defer func() { logOperation(s.logger, ctx, "save", e.EntityType(), start, err) }()

	if _, err = s.typeOf(e); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := s.table(e.EntityType())
	stored, exists := tbl.rows[e.GetID()]
	if !exists {
		return fmt.Errorf("%w: %s", ErrItemNotFound, Ref(e))
	}
	if err = s.hooks.ExecuteBeforeSave(ctx, e, persistedState(stored)); err != nil {
		return err
	}
	tbl.rows[e.GetID()] = clone(e)
	if hookErr := s.hooks.ExecuteAfterSave(ctx, e); hookErr != nil {
		logOperation(s.logger, ctx, "save.after_hook", e.EntityType(), start, hookErr)
	}
	return nil
}

func (s *InMemoryStore) UpdateWhere(ctx context.Context, t *EntityType, filter *Filter, set map[string]any) (n int64, err error) {
	start := time.Now()
	defer func() { logOperation(s.logger, ctx, "update_where", t.Name, start, err) }()

	if err = validateFilter(t, filter); err != nil {
		return 0, err
	}
	if err = validateSet(t, set); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := s.match(t, filter)
	if err != nil {
		return 0, err
	}
	tbl := s.table(t.Name)
	for _, stored := range matches {
		updated := clone(stored)
		for col, v := range set {
			if err = SetFieldValue(updated, col, v); err != nil {
				return n, err
			}
		}
		tbl.rows[updated.GetID()] = updated
		n++
	}
	return n, nil
}

func (s *InMemoryStore) Increment(ctx context.Context, t *EntityType, id string, column string, delta int64) (err error) {
	start := time.Now()
	defer func() { logOperation(s.logger, ctx, "increment", t.Name, start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	tbl, ok := s.tables[t.Name]
	if !ok {
		return ErrItemNotFound
	}
	stored, ok := tbl.rows[id]
	if !ok {
		return ErrItemNotFound
	}
	updated := clone(stored)
	field, err := fieldByColumn(updated, column)
	if err != nil {
		return err
	}
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v := field.Int() + delta
		if v < 0 {
			v = 0
		}
		field.SetInt(v)
	default:
		return fmt.Errorf("%w: %s.%s is not an integer column", ErrUnsupportedOperation, t.Name, column)
	}
	tbl.rows[id] = updated
	return nil
}

func matchesFilter(e Entity, filter *Filter) (bool, error) {
	if filter == nil {
		return true, nil
	}
	for _, cond := range filter.Conditions {
		v, err := FieldValue(e, cond.Field)
		if err != nil {
			return false, err
		}
		ok, err := evaluate(v, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func evaluate(v any, cond Condition) (bool, error) {
	want := normalize(cond.Value)
	switch cond.Operator {
	case OpIsNull:
		return v == nil, nil
	case OpIsNotNull:
		return v != nil, nil
	case OpEqual:
		return equal(v, want), nil
	case OpNotEqual:
		return !equal(v, want), nil
	case OpIn:
		rv := reflect.ValueOf(cond.Value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return false, fmt.Errorf("%w: IN requires a slice, got %T", ErrUnsupportedOperation, cond.Value)
		}
		for i := 0; i < rv.Len(); i++ {
			if equal(v, normalize(rv.Index(i).Interface())) {
				return true, nil
			}
		}
		return false, nil
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		if v == nil || want == nil {
			return false, nil
		}
		c, ok := compare(v, want)
		if !ok {
			return false, fmt.Errorf("%w: cannot compare %T with %T", ErrUnsupportedOperation, v, want)
		}
		switch cond.Operator {
		case OpGreaterThan:
			return c > 0, nil
		case OpGreaterOrEqual:
			return c >= 0, nil
		case OpLessThan:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	default:
		return false, fmt.Errorf("%w: operator %q", ErrUnsupportedOperation, cond.Operator)
	}
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare orders numbers, strings and times; ok is false for other kinds.
func compare(a, b any) (int, bool) {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if !okA || !okB {
		return 0, false
	}
	switch {
	case fa < fb:
		return -1, true
	case fa > fb:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func sortEntities(rows []Entity, fields []SortField) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, f := range fields {
			a, _ := FieldValue(rows[i], f.Field)
			b, _ := FieldValue(rows[j], f.Field)
			c, ok := compare(a, b)
			if !ok || c == 0 {
				continue
			}
			if f.Direction == SortDesc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
