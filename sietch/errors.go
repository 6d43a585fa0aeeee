package sietch

import "errors"

var (
	ErrItemNotFound         = errors.New("sietch: item not found")
	ErrItemAlreadyExists    = errors.New("sietch: item already exists")
	ErrNoUpdateItem         = errors.New("sietch: no item has been updated")
	ErrUnsupportedOperation = errors.New("sietch: unsupported operation")

	// ErrUnknownEntityType is returned when an entity or type name is not registered.
	ErrUnknownEntityType = errors.New("sietch: unknown entity type")

	// ErrDuplicateEntityType is returned when registering a type name twice.
	ErrDuplicateEntityType = errors.New("sietch: entity type already registered")

	// ErrInvalidEntityType is returned when a type descriptor is incomplete.
	ErrInvalidEntityType = errors.New("sietch: invalid entity type")

	// ErrUnknownColumn is returned when a filter or update names a column the type does not declare.
	ErrUnknownColumn = errors.New("sietch: unknown column")

	// ErrNotSoftDeletable is returned when a soft-delete operation targets a type without the soft-delete fields.
	ErrNotSoftDeletable = errors.New("sietch: entity is not soft-deletable")
)
