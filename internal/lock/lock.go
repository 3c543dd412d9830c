// Package lock provides the time-bounded mutual exclusion lease used to keep
// backfill runs from overlapping across processes.
package lock

import (
	"context"
	"time"
)

// DefaultTTL self-heals an abandoned lease if a holder crashes without
// releasing.
const DefaultTTL = 900 * time.Second

// Lock is a lease-style exclusion: acquisition fails immediately (no blocking
// wait) when an unexpired lease is held elsewhere. Not reentrant, not fair,
// one global lease.
type Lock interface {
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}
