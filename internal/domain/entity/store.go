package entity

import (
	"context"
	"errors"
	"iter"

	domainErrors "github.com/abcretailers/retailcore/internal/domain/errors"
)

// Mutator is applied by the store to a copy of the currently stored record.
// The store discards the copy if the mutator returns an error.
type Mutator func(rec *Record) error

// Store is the interface for versioned record persistence.
//
// ConditionalUpdate is the only mutation path for existing records; there is
// deliberately no blind overwrite. Every caller goes through a
// read-current, compute-new, conditional-write cycle.
type Store interface {
	// Get retrieves a record, or ErrNotFound.
	Get(ctx context.Context, partitionKey, rowKey string) (*Record, error)

	// List returns all records in a partition. The sequence is finite and
	// restartable: each range starts a fresh scan.
	List(ctx context.Context, partitionKey string) iter.Seq2[*Record, error]

	// Create stores a new record and assigns its initial version and
	// timestamp. Fails with ErrAlreadyExists when the key is taken.
	Create(ctx context.Context, rec *Record) (*Record, error)

	// ConditionalUpdate applies mutate to the currently stored record only
	// when expectedVersion matches the stored version, assigning a new
	// version and timestamp. Fails with ErrVersionConflict otherwise, and
	// performs no mutation.
	ConditionalUpdate(ctx context.Context, partitionKey, rowKey string, expectedVersion int64, mutate Mutator) (*Record, error)

	// Delete removes a record, or fails with ErrNotFound.
	Delete(ctx context.Context, partitionKey, rowKey string) error
}

// Mutate reads the current record and applies a conditional update against
// its version. On ErrVersionConflict it re-reads and recomputes exactly once;
// a second conflict is surfaced to the caller as a concurrent modification.
func Mutate(ctx context.Context, store Store, partitionKey, rowKey string, mutate Mutator) (*Record, error) {
	const attempts = 2

	var lastErr error
	for i := 0; i < attempts; i++ {
		current, err := store.Get(ctx, partitionKey, rowKey)
		if err != nil {
			return nil, err
		}
		updated, err := store.ConditionalUpdate(ctx, partitionKey, rowKey, current.Version, mutate)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, domainErrors.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
