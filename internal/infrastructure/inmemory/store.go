package inmemory

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/abcretailers/retailcore/internal/domain/entity"
	domainErrors "github.com/abcretailers/retailcore/internal/domain/errors"
)

// Store is an in-memory entity.Store. Conditional updates are linearizable
// per key: the mutex makes version check and commit a single atomic step.
type Store struct {
	mux        sync.RWMutex
	partitions map[string]map[string]*entity.Record
	now        func() time.Time
}

var _ entity.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		partitions: make(map[string]map[string]*entity.Record),
		now:        time.Now,
	}
}

// Get retrieves a record, or ErrNotFound.
func (s *Store) Get(_ context.Context, partitionKey, rowKey string) (*entity.Record, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	rec, ok := s.partitions[partitionKey][rowKey]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns a snapshot of the partition, ordered by row key. Each range
// over the sequence takes a fresh snapshot.
func (s *Store) List(_ context.Context, partitionKey string) iter.Seq2[*entity.Record, error] {
	return func(yield func(*entity.Record, error) bool) {
		s.mux.RLock()
		rows := s.partitions[partitionKey]
		snapshot := make([]*entity.Record, 0, len(rows))
		for _, rec := range rows {
			snapshot = append(snapshot, rec.Clone())
		}
		s.mux.RUnlock()

		sort.Slice(snapshot, func(i, j int) bool {
			return snapshot[i].RowKey < snapshot[j].RowKey
		})
		for _, rec := range snapshot {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Create stores a new record, assigning version 1 and the write timestamp.
func (s *Store) Create(_ context.Context, rec *entity.Record) (*entity.Record, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	rows, ok := s.partitions[rec.PartitionKey]
	if !ok {
		rows = make(map[string]*entity.Record)
		s.partitions[rec.PartitionKey] = rows
	}
	if _, exists := rows[rec.RowKey]; exists {
		return nil, domainErrors.ErrAlreadyExists
	}

	stored := rec.Clone()
	stored.Version = 1
	stored.LastModified = s.now().UTC()
	rows[rec.RowKey] = stored
	return stored.Clone(), nil
}

// ConditionalUpdate applies mutate to the stored record only when
// expectedVersion matches; exactly one of any set of concurrent writers
// racing on the same key wins.
func (s *Store) ConditionalUpdate(_ context.Context, partitionKey, rowKey string, expectedVersion int64, mutate entity.Mutator) (*entity.Record, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	current, ok := s.partitions[partitionKey][rowKey]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, domainErrors.ErrVersionConflict
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	// Store-owned fields are not mutable through the mutator.
	next.PartitionKey = current.PartitionKey
	next.RowKey = current.RowKey
	next.Version = current.Version + 1
	next.LastModified = s.now().UTC()

	s.partitions[partitionKey][rowKey] = next
	return next.Clone(), nil
}

// Delete removes a record, or fails with ErrNotFound.
func (s *Store) Delete(_ context.Context, partitionKey, rowKey string) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if _, ok := s.partitions[partitionKey][rowKey]; !ok {
		return domainErrors.ErrNotFound
	}
	delete(s.partitions[partitionKey], rowKey)
	return nil
}
