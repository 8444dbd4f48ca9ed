package idgen

import "github.com/google/uuid"

// NewFunc returns a new globally unique identifier. Override in tests.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new job or worker identifier.
func New() string { return NewFunc() }

// Short returns the first eight characters of a new identifier, handy for
// log fields where the full UUID is noise.
func Short() string {
	id := NewFunc()
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
