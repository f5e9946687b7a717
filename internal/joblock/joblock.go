// Package joblock provides the cross-instance mutual exclusion used by the
// notification scheduler. At most one holder exists at any instant; a holder
// that crashes loses the lock without manual intervention, either because the
// database session ends (advisory) or because the lease expires (lease).
package joblock

import (
	"context"
	"errors"
	"hash/fnv"
)

// ErrNotHeld is logged when a release is attempted without holding the lock.
var ErrNotHeld = errors.New("job lock not held")

// Lock is a named, non-blocking mutual exclusion primitive.
//
// Acquire reports true only if the lock was free and is now held by the
// caller. Release reports false, without error, when the caller does not
// hold the lock, so cleanup paths may call it unconditionally.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) (bool, error)
}

// Renewer is implemented by locks that expire unless extended. Renew reports
// false, without error, when the caller no longer holds the lock.
type Renewer interface {
	Renew(ctx context.Context) (bool, error)
}

// KeyFor maps a lock name onto a Postgres advisory lock key.
func KeyFor(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
