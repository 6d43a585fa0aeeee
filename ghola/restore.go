package ghola

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seb7887/lazarus/eventbus"
	"github.com/seb7887/lazarus/sietch"
)

// RestoreOptions controls RestoreOne.
type RestoreOptions struct {
	// Cascade restores deleted parents before the instance and deleted
	// direct dependents after it.
	Cascade bool
	// DryRun reports what would be restored without writing.
	DryRun bool
	// Ancestors follows deleted parents transitively instead of one hop.
	Ancestors bool
}

// RestoreOne restores ent. With Cascade, its deleted parents are restored
// first and its deleted direct dependents after it; each of them is
// restored on its own, without cascading further. Everything happens in one
// transaction, with the instance row locked while it is inspected.
// On success ent is refreshed with its restored state.
func (e *Engine) RestoreOne(ctx context.Context, ent sietch.Entity, opts RestoreOptions) (res Result, err error) {
	t, err := e.restorableType(ent)
	if err != nil {
		return failed(err, "cannot restore: %v", err)
	}

	ctx, span, start := e.begin(ctx, "restore", t.Name, ent.GetID())
	defer func() { e.finish("restore", span, start, res, err) }()

	var (
		run        *restoreRun
		current    sietch.Entity
		notDeleted bool
	)
	work := func(ctx context.Context) error {
		run, notDeleted = e.newRestoreRun(opts.DryRun), false
		cur, err := run.get(ctx, t, ent.GetID(), true)
		if err != nil {
			return err
		}
		current = cur
		if !sietch.IsEntityDeleted(cur) {
			notDeleted = true
			return nil
		}
		return run.restoreTree(ctx, t, cur, opts)
	}

	if opts.DryRun {
		err = work(ctx)
	} else {
		err = e.store.WithTx(ctx, work)
	}
	if err != nil {
		err = fmt.Errorf("restore %s#%s: %w", t.Name, ent.GetID(), err)
		return failed(err, "failed to restore %s: %v", t.Name, err)
	}

	if notDeleted {
		return Result{
			Outcome: OutcomeNotDeleted,
			DryRun:  opts.DryRun,
			Message: fmt.Sprintf("%s is not deleted", t.Name),
		}, nil
	}

	res = run.result()
	if !opts.DryRun {
		e.refresh(ctx, t, ent, current)
		e.publish(ctx, eventbus.KindRestored, t.Name, ent.GetID(), res.Count)
	}
	return res, nil
}

func (e *Engine) restorableType(ent sietch.Entity) (*sietch.EntityType, error) {
	t, err := e.registry.TypeOf(ent)
	if err != nil {
		return nil, err
	}
	if !t.SoftDeletable() {
		return nil, fmt.Errorf("%w: %s", sietch.ErrNotSoftDeletable, t.Name)
	}
	return t, nil
}

// restoreRun carries the state of one restore operation.
type restoreRun struct {
	engine *Engine
	dry    bool
	now    time.Time
	seen   map[string]bool
	res    Result
}

func (e *Engine) newRestoreRun(dry bool) *restoreRun {
	return &restoreRun{
		engine: e,
		dry:    dry,
		now:    e.now(),
		seen:   make(map[string]bool),
		res:    Result{DryRun: dry},
	}
}

func (r *restoreRun) result() Result {
	res := r.res
	switch {
	case res.Count == 0:
		res.Outcome = OutcomeNothingToDo
		res.Message = "nothing to restore"
	case r.dry:
		res.Outcome = OutcomeRestored
		res.Message = fmt.Sprintf("would restore %d %s", res.Count, plural(res.Count))
	default:
		res.Outcome = OutcomeRestored
		res.Message = fmt.Sprintf("restored %d %s", res.Count, plural(res.Count))
	}
	return res
}

// get reads a record, locking it when the run writes.
func (r *restoreRun) get(ctx context.Context, t *sietch.EntityType, id string, lock bool) (sietch.Entity, error) {
	if lock && !r.dry {
		return r.engine.store.GetForUpdate(ctx, t, id)
	}
	return r.engine.store.Get(ctx, t, id)
}

// step runs fn in a savepoint. A failure other than a storage write or a
// serialization conflict is logged and recorded as skipped, and the run
// continues.
func (r *restoreRun) step(ctx context.Context, meta SkippedRelation, fn func(ctx context.Context) error) error {
	var err error
	if r.dry {
		err = fn(ctx)
	} else {
		err = r.engine.store.WithTx(ctx, fn)
	}
	if err == nil {
		return nil
	}
	if isWriteError(err) || ctx.Err() != nil || sietch.IsSerializationFailure(err) {
		return err
	}
	meta.Err = err
	r.engine.logger.WarnContext(ctx, "skipping relationship", "type", meta.Type, "field", meta.Field, "target", meta.Target, "error", err)
	r.res.Skipped = append(r.res.Skipped, meta)
	return nil
}

func (r *restoreRun) restoreTree(ctx context.Context, t *sietch.EntityType, inst sietch.Entity, opts RestoreOptions) error {
	if opts.Cascade {
		visited := map[string]bool{sietch.Ref(inst): true}
		if err := r.restoreParents(ctx, t, inst, opts.Ancestors, visited); err != nil {
			return err
		}
	}
	if err := r.restore(ctx, t, inst, "instance"); err != nil {
		return err
	}
	if opts.Cascade {
		return r.restoreChildren(ctx, t, inst)
	}
	return nil
}

func (r *restoreRun) restoreParents(ctx context.Context, t *sietch.EntityType, inst sietch.Entity, transitive bool, visited map[string]bool) error {
	for _, ref := range t.References {
		target, ok := r.engine.registry.Lookup(ref.Target)
		if !ok {
			r.res.Skipped = append(r.res.Skipped, SkippedRelation{
				Type: t.Name, Field: ref.Field, Target: ref.Target,
				Err: fmt.Errorf("%w: unknown target type %q", ErrMalformedReference, ref.Target),
			})
			continue
		}
		if !target.SoftDeletable() {
			continue
		}
		id, ok := sietch.ReferencedID(inst, ref)
		if !ok {
			continue
		}
		key := target.Name + "#" + id
		if visited[key] {
			continue
		}
		visited[key] = true

		meta := SkippedRelation{Type: t.Name, Field: ref.Field, Target: ref.Target}
		err := r.step(ctx, meta, func(ctx context.Context) error {
			parent, err := r.get(ctx, target, id, true)
			if errors.Is(err, sietch.ErrItemNotFound) {
				return fmt.Errorf("%w: %s", ErrBrokenReference, key)
			}
			if err != nil {
				return err
			}
			if !sietch.IsEntityDeleted(parent) {
				return nil
			}
			if transitive {
				if err := r.restoreParents(ctx, target, parent, true, visited); err != nil {
					return err
				}
			}
			return r.restore(ctx, target, parent, "parent")
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *restoreRun) restoreChildren(ctx context.Context, t *sietch.EntityType, inst sietch.Entity) error {
	for _, in := range r.engine.registry.Incoming(t.Name) {
		src := in.Source
		if !src.SoftDeletable() {
			continue
		}
		filter := dependentsFilter(in.Reference, t.Name, inst.GetID()).OnlyDeleted().Build()

		meta := SkippedRelation{Type: src.Name, Field: in.Reference.Field, Target: t.Name}
		err := r.step(ctx, meta, func(ctx context.Context) error {
			children, err := r.engine.store.Find(ctx, src, filter)
			if err != nil {
				return err
			}
			for _, child := range children {
				if err := r.restore(ctx, src, child, "child"); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// restore restores one record on its own, then runs its restore hooks.
func (r *restoreRun) restore(ctx context.Context, t *sietch.EntityType, inst sietch.Entity, role string) error {
	ref := sietch.Ref(inst)
	if r.seen[ref] {
		return nil
	}
	r.seen[ref] = true

	if r.dry {
		r.res.Plan = append(r.res.Plan, fmt.Sprintf("would restore %s %s", role, ref))
		r.res.addCount(t.Name, 1)
		return nil
	}

	sd, ok := inst.(sietch.SoftDeletable)
	if !ok {
		return fmt.Errorf("%w: %s", sietch.ErrNotSoftDeletable, t.Name)
	}
	sd.MarkRestored(r.now)
	if err := r.engine.store.Save(ctx, inst); err != nil {
		return &writeError{err: fmt.Errorf("save %s: %w", ref, err)}
	}
	r.res.Plan = append(r.res.Plan, fmt.Sprintf("restored %s %s", role, ref))
	r.res.addCount(t.Name, 1)

	for _, hook := range r.engine.restoreHooks(t.Name) {
		meta := SkippedRelation{Type: t.Name}
		if err := r.step(ctx, meta, func(ctx context.Context) error {
			return hook(ctx, r.engine.store, inst)
		}); err != nil {
			return err
		}
	}
	return nil
}

// dependentsFilter matches the rows of a referencing type that point at id.
func dependentsFilter(ref sietch.Reference, target, id string) *sietch.FilterBuilder {
	f := sietch.NewFilter().Eq(ref.Field, id)
	if ref.Discriminator != "" {
		f.Eq(ref.Discriminator, target)
	}
	return f
}

// Dependencies lists the deleted records related to an instance.
type Dependencies struct {
	Parents  []sietch.Entity
	Children []sietch.Entity
	Skipped  []SkippedRelation
}

// RestorationDependencies returns the deleted parents and the deleted direct
// dependents that a cascading restore of ent would restore. It never writes.
func (e *Engine) RestorationDependencies(ctx context.Context, ent sietch.Entity) (Dependencies, error) {
	var deps Dependencies
	t, err := e.restorableType(ent)
	if err != nil {
		return deps, err
	}

	for _, ref := range t.References {
		target, ok := e.registry.Lookup(ref.Target)
		if !ok || !target.SoftDeletable() {
			continue
		}
		id, ok := sietch.ReferencedID(ent, ref)
		if !ok || (target.Name == t.Name && id == ent.GetID()) {
			continue
		}
		parent, err := e.store.Get(ctx, target, id)
		if err != nil {
			if errors.Is(err, sietch.ErrItemNotFound) {
				err = fmt.Errorf("%w: %s#%s", ErrBrokenReference, target.Name, id)
			}
			deps.Skipped = append(deps.Skipped, SkippedRelation{Type: t.Name, Field: ref.Field, Target: ref.Target, Err: err})
			continue
		}
		if sietch.IsEntityDeleted(parent) {
			deps.Parents = append(deps.Parents, parent)
		}
	}

	for _, in := range e.registry.Incoming(t.Name) {
		if !in.Source.SoftDeletable() {
			continue
		}
		filter := dependentsFilter(in.Reference, t.Name, ent.GetID()).OnlyDeleted().Build()
		children, err := e.store.Find(ctx, in.Source, filter)
		if err != nil {
			deps.Skipped = append(deps.Skipped, SkippedRelation{Type: in.Source.Name, Field: in.Reference.Field, Target: t.Name, Err: err})
			continue
		}
		deps.Children = append(deps.Children, children...)
	}
	return deps, nil
}
