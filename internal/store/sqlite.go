package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tOgg1/courier/internal/db"
	"github.com/tOgg1/courier/internal/events"
)

// SQLiteStore persists documents in the documents table.
type SQLiteStore struct {
	db   *db.DB
	opts options
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store backed by database.
func NewSQLiteStore(database *db.DB, opts ...Option) *SQLiteStore {
	return &SQLiteStore{
		db:   database,
		opts: buildOptions("store.sqlite", opts),
	}
}

// Publisher returns the change publisher the store notifies.
func (s *SQLiteStore) Publisher() *events.InMemoryPublisher {
	return s.opts.publisher
}

// Subscribe implements Store.
//
// Only writes made through this process's publisher wake subscribers;
// writes from other processes arrive through the relay.
func (s *SQLiteStore) Subscribe(ctx context.Context, q Query) (<-chan Snapshot, func()) {
	return watch(ctx, s.opts.publisher, q, s.Query, s.opts.logger)
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, collection string, fields Fields) (string, error) {
	id := s.opts.newID()
	if err := checkPath(collection, id); err != nil {
		return "", err
	}
	data, err := encodeFields(fields)
	if err != nil {
		return "", err
	}

	now := s.timestamp()
	err = s.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, fields, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			collection, id, data, now, now)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to append to %s: %w", collection, err)
	}

	s.notify(ctx, collection, id, events.ChangeCreated)
	return id, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, collection, id string, fields Fields) error {
	if err := checkPath(collection, id); err != nil {
		return err
	}
	data, err := encodeFields(fields)
	if err != nil {
		return err
	}

	kind := events.ChangeUpdated
	now := s.timestamp()
	err = s.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		exists, err := documentExists(ctx, tx, collection, id)
		if err != nil {
			return err
		}
		if !exists {
			kind = events.ChangeCreated
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, fields, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(collection, id) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`,
			collection, id, data, now, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}

	s.notify(ctx, collection, id, kind)
	return nil
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	if err := checkPath(collection, id); err != nil {
		return err
	}

	now := s.timestamp()
	err := s.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT fields FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		merged, err := decodeFields(raw)
		if err != nil {
			return err
		}
		for k, v := range fields {
			merged[k] = v
		}
		data, err := encodeFields(merged)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET fields = ?, updated_at = ? WHERE collection = ? AND id = ?`,
			data, now, collection, id)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}

	s.notify(ctx, collection, id, events.ChangeUpdated)
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := checkPath(collection, id); err != nil {
		return Document{}, err
	}

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT fields FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}

	fields, err := decodeFields(raw)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Collection: collection, Fields: fields}, nil
}

// Query implements Store.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if q.Collection == "" {
		return nil, ErrInvalidPath
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fields FROM documents WHERE collection = ? ORDER BY rowid`, q.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, fmt.Errorf("document %s/%s: %w", q.Collection, id, err)
		}
		docs = append(docs, Document{ID: id, Collection: q.Collection, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", q.Collection, err)
	}

	return applyQuery(docs, q), nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	if err := checkPath(collection, id); err != nil {
		return err
	}

	var affected int64
	err := s.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}

	if affected > 0 {
		s.notify(ctx, collection, id, events.ChangeDeleted)
	}
	return nil
}

func (s *SQLiteStore) timestamp() string {
	return s.opts.now().UTC().Format(time.RFC3339Nano)
}

func (s *SQLiteStore) notify(ctx context.Context, collection, id string, kind events.ChangeKind) {
	s.opts.publisher.Publish(ctx, &events.Change{Collection: collection, DocumentID: id, Kind: kind})
}

func documentExists(ctx context.Context, tx *sql.Tx, collection, id string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&n)
	return n > 0, err
}

func encodeFields(fields Fields) (string, error) {
	if fields == nil {
		fields = Fields{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode fields: %w", err)
	}
	return string(data), nil
}

// decodeFields keeps numbers as json.Number so millisecond timestamps
// survive without float rounding.
func decodeFields(raw string) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	fields := Fields{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	return fields, nil
}
