package ghola

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedReference marks a declared reference the analyzer cannot use.
	ErrMalformedReference = errors.New("ghola: malformed reference")

	// ErrBrokenReference marks a reference whose target record does not exist.
	ErrBrokenReference = errors.New("ghola: broken reference")

	// ErrCascadeStep marks a cascade sub-step that failed and was skipped.
	ErrCascadeStep = errors.New("ghola: cascade step failed")
)

// SkippedRelation records a relationship traversal that was skipped. The
// surrounding operation still succeeds.
type SkippedRelation struct {
	Type   string `json:"type"`
	Field  string `json:"field,omitempty"`
	Target string `json:"target,omitempty"`
	Err    error  `json:"-"`
}

func (s SkippedRelation) Error() string {
	switch {
	case s.Field != "" && s.Target != "":
		return fmt.Sprintf("%s.%s -> %s: %v", s.Type, s.Field, s.Target, s.Err)
	case s.Field != "":
		return fmt.Sprintf("%s.%s: %v", s.Type, s.Field, s.Err)
	default:
		return fmt.Sprintf("%s: %v", s.Type, s.Err)
	}
}

func (s SkippedRelation) Unwrap() error { return s.Err }

// Failure is a per-instance failure inside a bulk operation.
type Failure struct {
	Ref string `json:"ref"`
	Err error  `json:"-"`
}

func (f Failure) Error() string { return f.Ref + ": " + f.Err.Error() }

func (f Failure) Unwrap() error { return f.Err }

// writeError marks a storage write failure, which aborts the operation
// instead of being skipped.
type writeError struct {
	err error
}

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

func isWriteError(err error) bool {
	var we *writeError
	return errors.As(err, &we)
}
