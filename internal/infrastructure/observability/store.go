package observability

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/abcretailers/retailcore/internal/domain/entity"
	domainErrors "github.com/abcretailers/retailcore/internal/domain/errors"
)

// InstrumentedStore wraps an entity.Store and records operation counts,
// latencies, and rejected conditional updates.
type InstrumentedStore struct {
	next    entity.Store
	metrics *Metrics
}

var _ entity.Store = (*InstrumentedStore)(nil)

func InstrumentStore(next entity.Store, metrics *Metrics) *InstrumentedStore {
	return &InstrumentedStore{next: next, metrics: metrics}
}

func (s *InstrumentedStore) Get(ctx context.Context, partitionKey, rowKey string) (*entity.Record, error) {
	start := time.Now()
	rec, err := s.next.Get(ctx, partitionKey, rowKey)
	s.observe("get", err, start)
	return rec, err
}

func (s *InstrumentedStore) List(ctx context.Context, partitionKey string) iter.Seq2[*entity.Record, error] {
	next := s.next.List(ctx, partitionKey)
	return func(yield func(*entity.Record, error) bool) {
		start := time.Now()
		var scanErr error
		for rec, err := range next {
			if err != nil {
				scanErr = err
			}
			if !yield(rec, err) {
				break
			}
		}
		s.observe("list", scanErr, start)
	}
}

func (s *InstrumentedStore) Create(ctx context.Context, rec *entity.Record) (*entity.Record, error) {
	start := time.Now()
	created, err := s.next.Create(ctx, rec)
	s.observe("create", err, start)
	return created, err
}

func (s *InstrumentedStore) ConditionalUpdate(ctx context.Context, partitionKey, rowKey string, expectedVersion int64, mutate entity.Mutator) (*entity.Record, error) {
	start := time.Now()
	updated, err := s.next.ConditionalUpdate(ctx, partitionKey, rowKey, expectedVersion, mutate)
	s.observe("conditional_update", err, start)
	if errors.Is(err, domainErrors.ErrVersionConflict) {
		s.metrics.VersionConflicts.WithLabelValues(partitionKey).Inc()
	}
	return updated, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, partitionKey, rowKey string) error {
	start := time.Now()
	err := s.next.Delete(ctx, partitionKey, rowKey)
	s.observe("delete", err, start)
	return err
}

func (s *InstrumentedStore) observe(op string, err error, start time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.StoreOperations.WithLabelValues(op, status).Inc()
	s.metrics.StoreOperationTime.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
