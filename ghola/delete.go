package ghola

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seb7887/lazarus/eventbus"
	"github.com/seb7887/lazarus/sietch"
)

// CascadeFunc soft-deletes e and the records depending on it. It runs inside
// the deleting transaction and reports its work through d.
type CascadeFunc func(ctx context.Context, d *Deletion, e sietch.Entity) error

// Deletion is the state of one cascade delete, handed to every CascadeFunc
// it runs. All bulk updates of one Deletion share the same deleted_at.
type Deletion struct {
	engine *Engine
	now    time.Time
	logger *slog.Logger
	res    Result
	// abort is the serialization failure that ended the deletion, if any
	abort error
}

func (e *Engine) newDeletion() *Deletion {
	return &Deletion{engine: e, now: e.now(), logger: e.logger}
}

// Store returns the store the deletion writes to
func (d *Deletion) Store() sietch.Store { return d.engine.store }

// Now returns the deletion timestamp
func (d *Deletion) Now() time.Time { return d.now }

// Type looks up a registered type
func (d *Deletion) Type(name string) (*sietch.EntityType, error) {
	t, ok := d.engine.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", sietch.ErrUnknownEntityType, name)
	}
	return t, nil
}

// Count returns the number of records deleted so far
func (d *Deletion) Count() int { return d.res.Count }

// MarkDeleted soft-deletes e itself through the store, so the timestamp
// synchronizer runs. It returns false when e was already deleted. A failed
// write is returned and aborts the cascade unless it happens inside Step.
func (d *Deletion) MarkDeleted(ctx context.Context, e sietch.Entity) (bool, error) {
	sd, ok := e.(sietch.SoftDeletable)
	if !ok {
		return false, fmt.Errorf("%w: %s", sietch.ErrNotSoftDeletable, e.EntityType())
	}
	if sd.IsDeleted() {
		return false, nil
	}
	sd.SetDeleted(true)
	if err := d.engine.store.Save(ctx, e); err != nil {
		sd.SetDeleted(false)
		return false, &writeError{err: fmt.Errorf("delete %s: %w", sietch.Ref(e), err)}
	}
	d.res.Plan = append(d.res.Plan, "deleted "+sietch.Ref(e))
	d.res.addCount(e.EntityType(), 1)
	return true, nil
}

// Step runs fn in a savepoint. When fn fails its writes are rolled back, the
// failure is logged and recorded as skipped, and Step returns nil so the
// cascade continues. A cancelled context is returned. So is a serialization
// failure, which also turns every later Step into a no-op and fails the
// whole deletion, leaving the transaction to be retried.
func (d *Deletion) Step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if d.abort != nil {
		return d.abort
	}
	saved := d.res.snapshot()
	err := d.engine.store.WithTx(ctx, fn)
	if err == nil {
		return nil
	}
	d.res.rollback(saved)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if sietch.IsSerializationFailure(err) {
		d.abort = err
		return err
	}
	d.logger.WarnContext(ctx, "cascade step failed", "step", name, "error", err)
	d.res.Skipped = append(d.res.Skipped, SkippedRelation{Type: name, Err: fmt.Errorf("%w: %v", ErrCascadeStep, err)})
	return nil
}

// SoftDeleteWhere marks every live typeName row matching filter deleted in
// one bulk update, inside its own Step. It returns the number of rows changed.
func (d *Deletion) SoftDeleteWhere(ctx context.Context, typeName string, filter *sietch.FilterBuilder) int {
	var n int
	_ = d.Step(ctx, "delete "+typeName, func(ctx context.Context) error {
		var err error
		n, err = d.MarkDeletedWhere(ctx, typeName, filter)
		return err
	})
	return n
}

// MarkDeletedWhere is SoftDeleteWhere without the savepoint: a failed
// update is returned, for callers that must not go on without it.
func (d *Deletion) MarkDeletedWhere(ctx context.Context, typeName string, filter *sietch.FilterBuilder) (int, error) {
	t, err := d.Type(typeName)
	if err != nil {
		return 0, err
	}
	f := filter.Build()
	f.Conditions = append(f.Conditions, sietch.Condition{Field: sietch.ColumnIsDeleted, Operator: sietch.OpEqual, Value: false})
	n, err := d.engine.store.UpdateWhere(ctx, t, f, map[string]any{
		sietch.ColumnIsDeleted: true,
		sietch.ColumnDeletedAt: d.now,
	})
	if err != nil {
		return 0, &writeError{err: fmt.Errorf("delete %s: %w", typeName, err)}
	}
	if n > 0 {
		d.res.Plan = append(d.res.Plan, fmt.Sprintf("deleted %d %s", n, typeName))
		d.res.addCount(typeName, int(n))
	}
	return int(n), nil
}

// Adjust adds delta to a counter column, inside its own Step.
func (d *Deletion) Adjust(ctx context.Context, typeName, id, column string, delta int64) {
	if id == "" || delta == 0 {
		return
	}
	_ = d.Step(ctx, fmt.Sprintf("adjust %s.%s", typeName, column), func(ctx context.Context) error {
		t, err := d.Type(typeName)
		if err != nil {
			return err
		}
		return d.engine.store.Increment(ctx, t, id, column, delta)
	})
}

// FindLive returns the live typeName rows matching filter.
func (d *Deletion) FindLive(ctx context.Context, typeName string, filter *sietch.FilterBuilder) ([]sietch.Entity, error) {
	t, err := d.Type(typeName)
	if err != nil {
		return nil, err
	}
	f := filter.Build()
	if t.SoftDeletable() {
		f.Conditions = append(f.Conditions, sietch.Condition{Field: sietch.ColumnIsDeleted, Operator: sietch.OpEqual, Value: false})
	}
	return d.engine.store.Find(ctx, t, f)
}

// Cascade deletes e with the cascade registered for its type, or on its own
// when there is none.
func (d *Deletion) Cascade(ctx context.Context, e sietch.Entity) error {
	if fn := d.engine.cascadeFor(e.EntityType()); fn != nil {
		return fn(ctx, d, e)
	}
	_, err := d.MarkDeleted(ctx, e)
	return err
}

type resultSnapshot struct {
	count   int
	perType []TypeCount
	plan    int
}

func (r *Result) snapshot() resultSnapshot {
	return resultSnapshot{count: r.Count, perType: append([]TypeCount(nil), r.PerType...), plan: len(r.Plan)}
}

func (r *Result) rollback(s resultSnapshot) {
	r.Count = s.count
	r.PerType = s.perType
	r.Plan = r.Plan[:s.plan]
}

// CascadeSoftDelete soft-deletes ent and, through the cascade registered
// for its type, everything depending on it, in one transaction. Deleting an
// already deleted record is a no-op. Result.Count is the number of records
// deleted. On success ent is refreshed with its deleted state.
func (e *Engine) CascadeSoftDelete(ctx context.Context, ent sietch.Entity) (res Result, err error) {
	t, err := e.restorableType(ent)
	if err != nil {
		return failed(err, "cannot delete: %v", err)
	}

	ctx, span, start := e.begin(ctx, "delete", t.Name, ent.GetID())
	defer func() { e.finish("delete", span, start, res, err) }()

	var (
		d              *Deletion
		current        sietch.Entity
		alreadyDeleted bool
	)
	err = e.store.WithTx(ctx, func(ctx context.Context) error {
		d, alreadyDeleted = e.newDeletion(), false
		cur, err := e.store.GetForUpdate(ctx, t, ent.GetID())
		if err != nil {
			return err
		}
		current = cur
		if sietch.IsEntityDeleted(cur) {
			alreadyDeleted = true
			return nil
		}
		if err := d.Cascade(ctx, cur); err != nil {
			return err
		}
		return d.abort
	})
	if err != nil {
		err = fmt.Errorf("delete %s#%s: %w", t.Name, ent.GetID(), err)
		return failed(err, "failed to delete %s: %v", t.Name, err)
	}
	if alreadyDeleted {
		return Result{Outcome: OutcomeAlreadyDeleted, Message: fmt.Sprintf("%s is already deleted", t.Name)}, nil
	}

	res = d.res
	res.Outcome = OutcomeDeleted
	res.Message = fmt.Sprintf("deleted %d %s", res.Count, plural(res.Count))
	e.refresh(ctx, t, ent, current)
	e.publish(ctx, eventbus.KindDeleted, t.Name, ent.GetID(), res.Count)
	return res, nil
}
