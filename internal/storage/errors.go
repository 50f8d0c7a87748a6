// Package storage defines the error kinds shared by all store
// implementations.
package storage

import "errors"

// ErrNotFound is returned when a requested row does not exist. Upsert paths
// upgrade it to a create; everything else surfaces it.
var ErrNotFound = errors.New("storage: not found")

// ErrConflict is returned on a uniqueness race. Callers retry once with a
// re-read and then fail soft.
var ErrConflict = errors.New("storage: conflict")

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
