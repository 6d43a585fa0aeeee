package ghola

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/seb7887/lazarus/eventbus"
	"github.com/seb7887/lazarus/sietch"
	"github.com/seb7887/lazarus/wp"
)

var errPoolStopped = errors.New("ghola: worker pool stopped")

// BulkOptions controls the bulk restore operations.
type BulkOptions struct {
	DryRun bool
	// BatchSize, when positive, commits dependency-order restores every
	// BatchSize records instead of in a single transaction.
	BatchSize int
	// Workers, when greater than one, restores a subset concurrently.
	Workers int
	// Standalone restores each instance of a subset without cascading.
	Standalone bool
	// Ancestors follows deleted parents transitively when cascading.
	Ancestors bool
}

// BulkRestoreByDependencyOrder restores every deleted record, type by type,
// so that the records a type references are restored before it. Each record
// is restored on its own. A dependency cycle does not stop the operation:
// the types involved are restored last and reported in Result.Cycle.
func (e *Engine) BulkRestoreByDependencyOrder(ctx context.Context, opts BulkOptions) (res Result, err error) {
	ctx, span, start := e.begin(ctx, "bulk_restore", "", "")
	defer func() { e.finish("bulk_restore", span, start, res, err) }()

	g, skipped := e.Graph(ctx)
	order := Resolve(g)
	if order.HasCycle() {
		e.logger.WarnContext(ctx, order.Diagnostic())
	}

	types := make([]*sietch.EntityType, 0, len(order.Types))
	for _, name := range order.Types {
		if t, ok := e.registry.Lookup(name); ok {
			types = append(types, t)
		}
	}

	var total Result
	switch {
	case opts.DryRun:
		total, err = e.countDeleted(ctx, types)
		if err != nil {
			total = Result{}
		}
	case opts.BatchSize > 0:
		total, err = e.restoreBatches(ctx, types, opts.BatchSize)
	default:
		var run *restoreRun
		err = e.store.WithTx(ctx, func(ctx context.Context) error {
			run = e.newRestoreRun(false)
			for _, t := range types {
				deleted, err := e.store.Find(ctx, t, sietch.NewFilter().OnlyDeleted().Build())
				if err != nil {
					return err
				}
				for _, inst := range deleted {
					if err := run.restore(ctx, t, inst, "record"); err != nil {
						return err
					}
				}
			}
			return nil
		})
		if err == nil {
			total = run.res
		}
	}

	total.Skipped = append(skipped, total.Skipped...)
	total.Cycle = order.Cycle
	if err != nil {
		err = fmt.Errorf("bulk restore: %w", err)
		total.Failures = append(total.Failures, Failure{Ref: "bulk", Err: err})
		total.Outcome = OutcomeFailed
		total.Message = fmt.Sprintf("bulk restore failed after %d %s: %v", total.Count, plural(total.Count), err)
		if total.Count > 0 {
			total.Outcome = OutcomePartialFailure
		}
		return total, err
	}

	res = total
	res.DryRun = opts.DryRun
	switch {
	case res.Count == 0:
		res.Outcome = OutcomeNothingToDo
		res.Message = "nothing to restore"
	case opts.DryRun:
		res.Outcome = OutcomeRestored
		res.Message = fmt.Sprintf("would restore %d %s in dependency order", res.Count, plural(res.Count))
	default:
		res.Outcome = OutcomeRestored
		res.Message = fmt.Sprintf("restored %d %s in dependency order", res.Count, plural(res.Count))
		e.publish(ctx, eventbus.KindRestored, "", "", res.Count)
	}
	if order.HasCycle() {
		res.Message += "; " + order.Diagnostic()
	}
	return res, nil
}

func (e *Engine) countDeleted(ctx context.Context, types []*sietch.EntityType) (Result, error) {
	res := Result{DryRun: true}
	for _, t := range types {
		n, err := e.store.Count(ctx, t, sietch.NewFilter().OnlyDeleted().Build())
		if err != nil {
			return res, err
		}
		if n > 0 {
			res.Plan = append(res.Plan, fmt.Sprintf("would restore %d %s", n, t.Name))
			res.addCount(t.Name, int(n))
		}
	}
	return res, nil
}

// restoreBatches commits every size restores. Batches already committed
// stay committed when a later one fails.
func (e *Engine) restoreBatches(ctx context.Context, types []*sietch.EntityType, size int) (Result, error) {
	var total Result
	for _, t := range types {
		deleted, err := e.store.Find(ctx, t, sietch.NewFilter().OnlyDeleted().Build())
		if err != nil {
			return total, err
		}
		for lo := 0; lo < len(deleted); lo += size {
			hi := min(lo+size, len(deleted))
			var run *restoreRun
			err := e.store.WithTx(ctx, func(ctx context.Context) error {
				run = e.newRestoreRun(false)
				for _, inst := range deleted[lo:hi] {
					cur, err := run.get(ctx, t, inst.GetID(), true)
					if errors.Is(err, sietch.ErrItemNotFound) {
						continue
					}
					if err != nil {
						return err
					}
					if !sietch.IsEntityDeleted(cur) {
						continue
					}
					if err := run.restore(ctx, t, cur, "record"); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return total, err
			}
			total.merge(run.res)
		}
	}
	return total, nil
}

// BulkRestoreSubset restores each entity with RestoreOne, cascading unless
// Standalone is set. Every instance gets its own transaction, so one failure
// does not undo the others. The returned error is non-nil only when every
// instance failed.
func (e *Engine) BulkRestoreSubset(ctx context.Context, entities []sietch.Entity, opts BulkOptions) (res Result, err error) {
	ctx, span, start := e.begin(ctx, "bulk_restore_subset", "", "")
	defer func() { e.finish("bulk_restore_subset", span, start, res, err) }()

	ropts := RestoreOptions{Cascade: !opts.Standalone, DryRun: opts.DryRun, Ancestors: opts.Ancestors}
	results := make([]Result, len(entities))
	errs := make([]error, len(entities))
	restore := func(i int) {
		results[i], errs[i] = e.RestoreOne(ctx, entities[i], ropts)
	}

	if opts.Workers > 1 && len(entities) > 1 {
		pool := wp.NewPool(opts.Workers, len(entities))
		for i, ent := range entities {
			if !pool.Submit(sietch.Ref(ent), func() { restore(i) }) {
				errs[i] = errPoolStopped
			}
		}
		pool.Stop()
	} else {
		for i := range entities {
			restore(i)
		}
	}

	res.DryRun = opts.DryRun
	restored, notDeleted := 0, 0
	for i, r := range results {
		if errs[i] != nil {
			res.Failures = append(res.Failures, Failure{Ref: sietch.Ref(entities[i]), Err: errs[i]})
			continue
		}
		res.merge(r)
		switch r.Outcome {
		case OutcomeRestored:
			restored++
		case OutcomeNotDeleted:
			notDeleted++
		}
	}

	verb := "restored"
	if opts.DryRun {
		verb = "would restore"
	}
	switch {
	case len(entities) == 0 || (len(res.Failures) == 0 && res.Count == 0):
		res.Outcome = OutcomeNothingToDo
		res.Message = fmt.Sprintf("nothing to restore (%d not deleted)", notDeleted)
	case len(res.Failures) == len(entities):
		res.Outcome = OutcomeFailed
		res.Message = fmt.Sprintf("all %d restores failed", len(entities))
		for _, f := range res.Failures {
			err = multierr.Append(err, f)
		}
	case len(res.Failures) > 0:
		res.Outcome = OutcomePartialFailure
		res.Message = fmt.Sprintf("%s %d %s from %d of %d instances, %d failed",
			verb, res.Count, plural(res.Count), restored, len(entities), len(res.Failures))
	default:
		res.Outcome = OutcomeRestored
		res.Message = fmt.Sprintf("%s %d %s from %d of %d instances",
			verb, res.Count, plural(res.Count), restored, len(entities))
	}
	return res, err
}

// merge adds the counts, plan and skipped relations of other to r.
func (r *Result) merge(other Result) {
	for _, pt := range other.PerType {
		r.addCount(pt.Type, pt.Count)
	}
	r.Plan = append(r.Plan, other.Plan...)
	r.Skipped = append(r.Skipped, other.Skipped...)
}
