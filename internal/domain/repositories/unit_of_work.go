package repositories

import (
	"context"
)

// UnitOfWork defines the interface for atomic operations
type UnitOfWork interface {
	// Do executes the given function within a transaction scope. A nested
	// call runs inside a savepoint of the outer transaction.
	Do(ctx context.Context, fn func(ctx context.Context) error) error

	// WithLock marks ctx so repository reads take a row lock (FOR UPDATE).
	WithLock(ctx context.Context) context.Context

	// WithSkipLocked marks ctx so batch reads use FOR UPDATE SKIP LOCKED.
	WithSkipLocked(ctx context.Context) context.Context

	// AfterCommit registers fn to run once the outermost transaction commits.
	// Outside a transaction fn runs immediately. Hooks registered inside a
	// savepoint that rolls back are discarded.
	AfterCommit(ctx context.Context, fn func(ctx context.Context))
}
