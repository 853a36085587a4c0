package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/abcretailers/retailcore/internal/domain/entity"
	domainErrors "github.com/abcretailers/retailcore/internal/domain/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// EntityStore implements entity.Store on PostgreSQL. The version column plus
// `UPDATE ... WHERE version = $expected` gives linearizable conditional
// updates per key; concurrent writers racing on the same key have exactly one
// winner.
type EntityStore struct {
	pool *pgxpool.Pool
}

var _ entity.Store = (*EntityStore)(nil)

// NewEntityStore creates a new EntityStore.
func NewEntityStore(pool *pgxpool.Pool) *EntityStore {
	return &EntityStore{pool: pool}
}

func (s *EntityStore) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, s.pool)
}

// mapError translates driver errors into the domain taxonomy. A deadline hit
// means the outcome is unknown; callers must not blindly retry writes.
func mapError(ctx context.Context, err error, op string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, domainErrors.ErrTimeout)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domainErrors.ErrAlreadyExists
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanRecord(s scanner, partitionKey string) (*entity.Record, error) {
	rec := &entity.Record{PartitionKey: partitionKey, Attributes: make(map[string]any)}
	var attrs []byte
	if err := s.Scan(&rec.RowKey, &rec.Version, &attrs, &rec.LastModified); err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &rec.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// Get retrieves a record, or ErrNotFound.
func (s *EntityStore) Get(ctx context.Context, partitionKey, rowKey string) (*entity.Record, error) {
	rec, err := scanRecord(s.db(ctx).QueryRow(ctx,
		`SELECT row_key, version, attributes, last_modified
		 FROM entity_records WHERE partition_key = $1 AND row_key = $2`,
		partitionKey, rowKey), partitionKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, mapError(ctx, err, "get record")
	}
	return rec, nil
}

// List streams all records in a partition ordered by row key. Each range over
// the returned sequence issues a fresh query.
func (s *EntityStore) List(ctx context.Context, partitionKey string) iter.Seq2[*entity.Record, error] {
	return func(yield func(*entity.Record, error) bool) {
		rows, err := s.db(ctx).Query(ctx,
			`SELECT row_key, version, attributes, last_modified
			 FROM entity_records WHERE partition_key = $1 ORDER BY row_key`,
			partitionKey)
		if err != nil {
			yield(nil, mapError(ctx, err, "list records"))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows, partitionKey)
			if err != nil {
				yield(nil, mapError(ctx, err, "scan record"))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, mapError(ctx, err, "list records"))
		}
	}
}

// Create inserts a new record with version 1 and the write timestamp.
func (s *EntityStore) Create(ctx context.Context, rec *entity.Record) (*entity.Record, error) {
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}

	stored := rec.Clone()
	stored.Version = 1
	stored.LastModified = time.Now().UTC()

	_, err = s.db(ctx).Exec(ctx,
		`INSERT INTO entity_records (partition_key, row_key, version, attributes, last_modified)
		 VALUES ($1, $2, $3, $4, $5)`,
		stored.PartitionKey, stored.RowKey, stored.Version, attrs, stored.LastModified,
	)
	if err != nil {
		return nil, mapError(ctx, err, "insert record")
	}
	return stored, nil
}

// ConditionalUpdate applies mutate to the current row only when
// expectedVersion matches the stored version.
func (s *EntityStore) ConditionalUpdate(ctx context.Context, partitionKey, rowKey string, expectedVersion int64, mutate entity.Mutator) (*entity.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapError(ctx, err, "begin update")
	}
	defer tx.Rollback(ctx)

	current, err := scanRecord(tx.QueryRow(ctx,
		`SELECT row_key, version, attributes, last_modified
		 FROM entity_records WHERE partition_key = $1 AND row_key = $2 FOR UPDATE`,
		partitionKey, rowKey), partitionKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, mapError(ctx, err, "read current record")
	}
	if current.Version != expectedVersion {
		return nil, domainErrors.ErrVersionConflict
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.PartitionKey = current.PartitionKey
	next.RowKey = current.RowKey
	next.Version = current.Version + 1
	next.LastModified = time.Now().UTC()

	attrs, err := json.Marshal(next.Attributes)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE entity_records SET version = $1, attributes = $2, last_modified = $3
		 WHERE partition_key = $4 AND row_key = $5 AND version = $6`,
		next.Version, attrs, next.LastModified, partitionKey, rowKey, expectedVersion,
	)
	if err != nil {
		return nil, mapError(ctx, err, "update record")
	}
	if tag.RowsAffected() == 0 {
		return nil, domainErrors.ErrVersionConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapError(ctx, err, "commit update")
	}
	return next, nil
}

// Delete removes a record, or fails with ErrNotFound.
func (s *EntityStore) Delete(ctx context.Context, partitionKey, rowKey string) error {
	tag, err := s.db(ctx).Exec(ctx,
		`DELETE FROM entity_records WHERE partition_key = $1 AND row_key = $2`,
		partitionKey, rowKey,
	)
	if err != nil {
		return mapError(ctx, err, "delete record")
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}
