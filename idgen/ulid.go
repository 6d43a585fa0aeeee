package idgen

import (
	"crypto/rand"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// defaultULID yields lexically sortable ids, monotonic within a millisecond,
// so records created in one cascade keep their creation order.
func defaultULID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

var _ulidGenerator = defaultULID

// NewULID returns a new record id
func NewULID() string {
	return _ulidGenerator()
}

// UseULID replaces the generator and returns a function restoring the previous one
func UseULID(fn func() string) (restore func()) {
	prev := _ulidGenerator
	_ulidGenerator = fn
	return func() { _ulidGenerator = prev }
}

// Sequence returns a generator yielding prefix-1, prefix-2, ... for deterministic tests
func Sequence(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}
