package sietch

import (
	"context"
	"time"
)

// PersistedState is what the store held for an entity before a write.
type PersistedState struct {
	Exists    bool
	Deleted   bool
	DeletedAt *time.Time
}

// Hook defines lifecycle callbacks for store writes.
// Bulk writes (UpdateWhere, Increment) do not run hooks.
type Hook interface {
	// BeforeSave is called before inserting or updating an entity.
	// prev describes the stored row; prev.Exists is false on insert.
	// Return error to abort the operation
	BeforeSave(ctx context.Context, e Entity, prev PersistedState) error

	// AfterSave is called after successfully writing an entity.
	// Errors are logged but don't affect the operation result
	AfterSave(ctx context.Context, e Entity) error
}

// BaseHook provides a default implementation of Hook interface
// Embed this in custom hooks to only implement needed methods
type BaseHook struct{}

func (BaseHook) BeforeSave(ctx context.Context, e Entity, prev PersistedState) error { return nil }
func (BaseHook) AfterSave(ctx context.Context, e Entity) error                       { return nil }

// HookRegistry manages a collection of hooks
type HookRegistry struct {
	hooks []Hook
}

// NewHookRegistry creates a new hook registry
func NewHookRegistry(hooks ...Hook) *HookRegistry {
	return &HookRegistry{hooks: append([]Hook(nil), hooks...)}
}

// AddHook registers a new hook
func (r *HookRegistry) AddHook(hook Hook) {
	r.hooks = append(r.hooks, hook)
}

// RemoveAllHooks clears all registered hooks
func (r *HookRegistry) RemoveAllHooks() {
	r.hooks = nil
}

// ExecuteBeforeSave runs all BeforeSave hooks, stopping at the first error
func (r *HookRegistry) ExecuteBeforeSave(ctx context.Context, e Entity, prev PersistedState) error {
	for _, hook := range r.hooks {
		if err := hook.BeforeSave(ctx, e, prev); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteAfterSave runs all AfterSave hooks and returns the first error
func (r *HookRegistry) ExecuteAfterSave(ctx context.Context, e Entity) error {
	var firstErr error
	for _, hook := range r.hooks {
		if err := hook.AfterSave(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TimestampSync keeps deleted_at consistent with is_deleted on every save:
//
//   - insert with is_deleted and no deleted_at: deleted_at = now
//   - live -> deleted: deleted_at = now
//   - deleted -> live: deleted_at cleared; the old value moves to
//     last_deletion_at unless the caller already recorded it
//
// Saves that do not change is_deleted are left untouched.
type TimestampSync struct {
	BaseHook
	Now func() time.Time
}

// NewTimestampSync returns the synchronizer using now as its clock; nil means time.Now.
func NewTimestampSync(now func() time.Time) *TimestampSync {
	if now == nil {
		now = time.Now
	}
	return &TimestampSync{Now: now}
}

func (h *TimestampSync) BeforeSave(ctx context.Context, e Entity, prev PersistedState) error {
	sd, ok := e.(SoftDeletable)
	if !ok {
		return nil
	}

	if !prev.Exists {
		if sd.IsDeleted() && sd.GetDeletedAt() == nil {
			sd.SetDeletedAt(h.now())
		}
		return nil
	}

	switch {
	case !prev.Deleted && sd.IsDeleted():
		sd.SetDeletedAt(h.now())
	case prev.Deleted && !sd.IsDeleted():
		if last := sd.GetLastDeletionAt(); prev.DeletedAt != nil && (last == nil || last.Before(*prev.DeletedAt)) {
			sd.SetLastDeletionAt(prev.DeletedAt)
		}
		sd.SetDeletedAt(nil)
	}
	return nil
}

func (h *TimestampSync) now() *time.Time {
	clock := h.Now
	if clock == nil {
		clock = time.Now
	}
	now := clock()
	return &now
}
