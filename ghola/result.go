package ghola

import (
	"fmt"

	"go.uber.org/multierr"
)

// Outcome tags the result of an engine operation.
type Outcome int

const (
	// OutcomeNothingToDo means there was nothing to restore or delete.
	OutcomeNothingToDo Outcome = iota
	// OutcomeNotDeleted means the target of a restore was live.
	OutcomeNotDeleted
	// OutcomeAlreadyDeleted means the target of a delete was already deleted.
	OutcomeAlreadyDeleted
	// OutcomeRestored means records were restored, or would be in a dry run.
	OutcomeRestored
	// OutcomeDeleted means records were soft-deleted.
	OutcomeDeleted
	// OutcomePartialFailure means a bulk operation succeeded for some instances only.
	OutcomePartialFailure
	// OutcomeFailed means the operation was rolled back.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNothingToDo:
		return "nothing_to_do"
	case OutcomeNotDeleted:
		return "not_deleted"
	case OutcomeAlreadyDeleted:
		return "already_deleted"
	case OutcomeRestored:
		return "restored"
	case OutcomeDeleted:
		return "deleted"
	case OutcomePartialFailure:
		return "partial_failure"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// TypeCount is the number of records of one type touched by an operation.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Result reports what an engine operation did.
type Result struct {
	Outcome Outcome `json:"-"`
	// Count is the number of records restored or deleted (or that would
	// be, in a dry run).
	Count    int               `json:"count"`
	DryRun   bool              `json:"dry_run"`
	Plan     []string          `json:"plan,omitempty"`
	PerType  []TypeCount       `json:"per_type,omitempty"`
	Skipped  []SkippedRelation `json:"skipped,omitempty"`
	Failures []Failure         `json:"failures,omitempty"`
	Cycle    []string          `json:"cycle,omitempty"`
	Message  string            `json:"message"`
}

// OK reports whether the operation changed (or would change) records
// without any failure.
func (r Result) OK() bool {
	return r.Outcome == OutcomeRestored || r.Outcome == OutcomeDeleted
}

// Err combines the skipped relations and failures, or returns nil.
func (r Result) Err() error {
	var err error
	for _, s := range r.Skipped {
		err = multierr.Append(err, s)
	}
	for _, f := range r.Failures {
		err = multierr.Append(err, f)
	}
	return err
}

func (r *Result) addCount(typ string, n int) {
	if n == 0 {
		return
	}
	r.Count += n
	for i := range r.PerType {
		if r.PerType[i].Type == typ {
			r.PerType[i].Count += n
			return
		}
	}
	r.PerType = append(r.PerType, TypeCount{Type: typ, Count: n})
}

func failed(err error, format string, args ...any) (Result, error) {
	return Result{Outcome: OutcomeFailed, Message: fmt.Sprintf(format, args...)}, err
}

func plural(n int) string {
	if n == 1 {
		return "object"
	}
	return "objects"
}
