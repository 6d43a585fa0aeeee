package idgen

import "github.com/google/uuid"

var _uuidGenerator = func() string {
	return uuid.NewString()
}

// NewUUID returns a random (v4) UUID, used for event ids
func NewUUID() string {
	return _uuidGenerator()
}

// UseUUID replaces the generator and returns a function restoring the previous one
func UseUUID(fn func() string) (restore func()) {
	prev := _uuidGenerator
	_uuidGenerator = fn
	return func() { _uuidGenerator = prev }
}
