package sietch

import (
	"context"
	"fmt"
)

type memTxKey struct{}

// WithTx executes fn within a transaction simulation: the tables are
// snapshotted, and restored if fn fails or panics. A nested call takes its
// own snapshot, which makes it behave like a savepoint.
func (s *InMemoryStore) WithTx(ctx context.Context, fn TxFunc) error {
	nested := ctx.Value(memTxKey{}) == s
	if !nested {
		s.txMu.Lock()
		defer s.txMu.Unlock()
		ctx = context.WithValue(ctx, memTxKey{}, s)
	}

	snapshot := s.snapshot()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		s.restore(snapshot)
		if nested {
			return err
		}
		return fmt.Errorf("tx error: %w", err)
	}
	return nil
}

func (s *InMemoryStore) snapshot() map[string]*table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]*table, len(s.tables))
	for name, t := range s.tables {
		snap[name] = t.copy()
	}
	return snap
}

func (s *InMemoryStore) restore(snap map[string]*table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = snap
}
