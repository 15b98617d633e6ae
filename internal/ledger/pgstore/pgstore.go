// Package pgstore provides a PostgreSQL implementation of ledger.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/mailwatch/internal/ledger"
)

var tracer = otel.Tracer("github.com/linnemanlabs/mailwatch/internal/ledger/pgstore")

//go:embed schema.sql
var schema string

// Store persists ledger state in PostgreSQL. IDs keep their insertion order
// through a sequence column so trimming semantics match the in-memory
// ledger exactly.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on an existing pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Load reads the full ledger state: all processed IDs in insertion order
// plus the checkpoint. An empty database yields a zero state.
func (s *Store) Load(ctx context.Context) (ledger.State, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Load", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var st ledger.State

	rows, err := s.pool.Query(ctx,
		`SELECT message_id FROM processed_messages ORDER BY seq`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledger.State{}, fmt.Errorf("query processed_messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return ledger.State{}, fmt.Errorf("scan message_id: %w", err)
		}
		st.IDs = append(st.IDs, id)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledger.State{}, fmt.Errorf("iterate processed_messages: %w", err)
	}

	var checkpoint time.Time
	err = s.pool.QueryRow(ctx,
		`SELECT checkpoint FROM poll_checkpoint WHERE id = 1`).Scan(&checkpoint)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledger.State{}, fmt.Errorf("query checkpoint: %w", err)
	}
	st.Checkpoint = checkpoint

	return st, nil
}

// Save replaces the persisted state in one transaction.
func (s *Store) Save(ctx context.Context, st ledger.State) error {
	ctx, span := tracer.Start(ctx, "pgstore.Save", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if _, err := tx.Exec(ctx, `DELETE FROM processed_messages`); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("clear processed_messages: %w", err)
	}

	for i, id := range st.IDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO processed_messages (seq, message_id) VALUES ($1, $2)`,
			i, id,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("insert message_id %s: %w", id, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO poll_checkpoint (id, checkpoint) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET checkpoint = EXCLUDED.checkpoint`,
		st.Checkpoint,
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert checkpoint: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
