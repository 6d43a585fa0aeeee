package sietch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTimestampSync(t *testing.T) {
	ctx := context.Background()
	sync := NewTimestampSync(clockAt(fixedNow))
	earlier := fixedNow.Add(-time.Hour)

	t.Run("InsertDeletedWithoutTimestamp", func(t *testing.T) {
		a := &author{SoftDelete: SoftDelete{Deleted: true}}
		if err := sync.BeforeSave(ctx, a, PersistedState{}); err != nil {
			t.Fatal(err)
		}
		if a.DeletedAt == nil || !a.DeletedAt.Equal(fixedNow) {
			t.Fatalf("expected deleted_at = now, got %v", a.DeletedAt)
		}
	})

	t.Run("InsertDeletedKeepsTimestamp", func(t *testing.T) {
		a := &author{SoftDelete: SoftDelete{Deleted: true, DeletedAt: &earlier}}
		_ = sync.BeforeSave(ctx, a, PersistedState{})
		if !a.DeletedAt.Equal(earlier) {
			t.Fatalf("expected deleted_at kept, got %v", a.DeletedAt)
		}
	})

	t.Run("InsertLive", func(t *testing.T) {
		a := &author{}
		_ = sync.BeforeSave(ctx, a, PersistedState{})
		if a.DeletedAt != nil {
			t.Fatalf("expected nil deleted_at, got %v", a.DeletedAt)
		}
	})

	t.Run("LiveToDeleted", func(t *testing.T) {
		a := &author{SoftDelete: SoftDelete{Deleted: true}}
		_ = sync.BeforeSave(ctx, a, PersistedState{Exists: true})
		if a.DeletedAt == nil || !a.DeletedAt.Equal(fixedNow) {
			t.Fatalf("expected deleted_at = now, got %v", a.DeletedAt)
		}
	})

	t.Run("DeletedToLive", func(t *testing.T) {
		a := &author{SoftDelete: SoftDelete{Deleted: false, DeletedAt: &earlier}}
		_ = sync.BeforeSave(ctx, a, PersistedState{Exists: true, Deleted: true, DeletedAt: &earlier})
		if a.DeletedAt != nil {
			t.Fatalf("expected deleted_at cleared, got %v", a.DeletedAt)
		}
		if a.LastDeletionAt == nil || !a.LastDeletionAt.Equal(earlier) {
			t.Fatalf("expected last_deletion_at = %v, got %v", earlier, a.LastDeletionAt)
		}
	})

	t.Run("DeletedToLiveKeepsCallerHistory", func(t *testing.T) {
		a := &author{}
		a.Deleted = true
		a.DeletedAt = &earlier
		a.MarkRestored(fixedNow)
		_ = sync.BeforeSave(ctx, a, PersistedState{Exists: true, Deleted: true, DeletedAt: &earlier})
		if !a.LastDeletionAt.Equal(earlier) || !a.Restored {
			t.Fatalf("unexpected history: %+v", a.SoftDelete)
		}
	})

	t.Run("UnchangedIsNoOp", func(t *testing.T) {
		a := &author{SoftDelete: SoftDelete{Deleted: true, DeletedAt: &earlier}}
		_ = sync.BeforeSave(ctx, a, PersistedState{Exists: true, Deleted: true, DeletedAt: &earlier})
		if !a.DeletedAt.Equal(earlier) {
			t.Fatalf("expected deleted_at untouched, got %v", a.DeletedAt)
		}
	})

	t.Run("IgnoresPlainEntities", func(t *testing.T) {
		if err := sync.BeforeSave(ctx, &tag{}, PersistedState{}); err != nil {
			t.Fatal(err)
		}
	})
}

type recordingHook struct {
	BaseHook
	before []PersistedState
	after  int
	fail   error
}

func (h *recordingHook) BeforeSave(ctx context.Context, e Entity, prev PersistedState) error {
	h.before = append(h.before, prev)
	return h.fail
}

func (h *recordingHook) AfterSave(ctx context.Context, e Entity) error {
	h.after++
	return nil
}

func TestHooks_RunOnStoreWrites(t *testing.T) {
	ctx := context.Background()
	hook := &recordingHook{}
	s, _ := newTestStore(t, WithHooks(hook))

	a := &author{Name: "ada"}
	mustCreate(t, s, a)
	a.Name = "ada lovelace"
	if err := s.Save(ctx, a); err != nil {
		t.Fatal(err)
	}

	if len(hook.before) != 2 || hook.after != 2 {
		t.Fatalf("expected 2 before and 2 after calls, got %d/%d", len(hook.before), hook.after)
	}
	if hook.before[0].Exists || !hook.before[1].Exists {
		t.Errorf("unexpected persisted states: %+v", hook.before)
	}

	t.Run("BeforeErrorAborts", func(t *testing.T) {
		hook.fail = errors.New("rejected")
		a.Name = "changed"
		if err := s.Save(ctx, a); !errors.Is(err, hook.fail) {
			t.Fatalf("expected hook error, got %v", err)
		}
		stored, _ := s.Get(ctx, mustType(t, s.Registry(), "author"), a.ID)
		if stored.(*author).Name != "ada lovelace" {
			t.Errorf("save should have been aborted, got %q", stored.(*author).Name)
		}
	})
}

func TestSoftDelete_MarkRestored(t *testing.T) {
	deletedAt := fixedNow.Add(-24 * time.Hour)
	sd := SoftDelete{Deleted: true, DeletedAt: &deletedAt}

	sd.MarkRestored(fixedNow)

	if sd.Deleted || sd.DeletedAt != nil {
		t.Fatalf("expected live record, got %+v", sd)
	}
	if !sd.Restored || !sd.RestoredAt.Equal(fixedNow) {
		t.Fatalf("expected restored at %v, got %+v", fixedNow, sd)
	}
	if !sd.LastDeletionAt.Equal(deletedAt) {
		t.Fatalf("expected last_deletion_at %v, got %v", deletedAt, sd.LastDeletionAt)
	}
}
