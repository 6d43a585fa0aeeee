package sietch

import (
	"time"
)

// Column names of the soft-delete capability.
const (
	ColumnIsDeleted      = "is_deleted"
	ColumnDeletedAt      = "deleted_at"
	ColumnIsRestored     = "is_restored"
	ColumnRestoredAt     = "restored_at"
	ColumnLastDeletionAt = "last_deletion_at"
)

// SoftDeletable is implemented by entities that are marked deleted instead of
// being removed, and that keep a deletion/restoration history.
type SoftDeletable interface {
	// IsDeleted returns true if the entity is marked as deleted
	IsDeleted() bool

	// SetDeleted marks the entity as deleted or undeleted. Timestamps are
	// normalized by the TimestampSync hook when the entity is saved.
	SetDeleted(deleted bool)

	// GetDeletedAt returns the timestamp when the entity was deleted
	GetDeletedAt() *time.Time

	// SetDeletedAt sets the deletion timestamp
	SetDeletedAt(deletedAt *time.Time)

	// IsRestored reports whether the entity has ever been restored
	IsRestored() bool

	// GetRestoredAt returns the timestamp of the most recent restoration
	GetRestoredAt() *time.Time

	// GetLastDeletionAt returns the deletion timestamp preceding the most recent restoration
	GetLastDeletionAt() *time.Time

	// SetLastDeletionAt sets the last deletion timestamp
	SetLastDeletionAt(at *time.Time)

	// MarkRestored clears the deletion state, recording the old deleted_at
	// as last_deletion_at and at as restored_at.
	MarkRestored(at time.Time)
}

// SoftDelete is embedded in entity structs to make them SoftDeletable.
type SoftDelete struct {
	Deleted        bool       `db:"is_deleted" json:"is_deleted"`
	DeletedAt      *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	Restored       bool       `db:"is_restored" json:"is_restored"`
	RestoredAt     *time.Time `db:"restored_at" json:"restored_at,omitempty"`
	LastDeletionAt *time.Time `db:"last_deletion_at" json:"last_deletion_at,omitempty"`
}

func (s *SoftDelete) IsDeleted() bool                   { return s.Deleted }
func (s *SoftDelete) SetDeleted(deleted bool)           { s.Deleted = deleted }
func (s *SoftDelete) GetDeletedAt() *time.Time          { return s.DeletedAt }
func (s *SoftDelete) SetDeletedAt(deletedAt *time.Time) { s.DeletedAt = deletedAt }
func (s *SoftDelete) IsRestored() bool                  { return s.Restored }
func (s *SoftDelete) GetRestoredAt() *time.Time         { return s.RestoredAt }
func (s *SoftDelete) GetLastDeletionAt() *time.Time     { return s.LastDeletionAt }
func (s *SoftDelete) SetLastDeletionAt(at *time.Time)   { s.LastDeletionAt = at }

func (s *SoftDelete) MarkRestored(at time.Time) {
	if s.DeletedAt != nil {
		s.LastDeletionAt = s.DeletedAt
	}
	s.Deleted = false
	s.DeletedAt = nil
	s.Restored = true
	s.RestoredAt = &at
}

// AsSoftDeletable returns e as a SoftDeletable when its type supports soft delete.
func AsSoftDeletable(e Entity) (SoftDeletable, bool) {
	sd, ok := e.(SoftDeletable)
	return sd, ok
}

// IsEntityDeleted reports whether e is soft-deletable and currently deleted.
func IsEntityDeleted(e Entity) bool {
	if sd, ok := e.(SoftDeletable); ok {
		return sd.IsDeleted()
	}
	return false
}
