// Package wal implements the ingest front-end's durability gate (C12 in
// spec.md §4.12): a source adapter calls Append before handing a record
// to a station's inbound channel, so a record that reaches the engine
// is known to have survived a Postgres commit. This is not the
// segmented on-disk log persister spec.md's original design sketches —
// that full persistence engine stays out of scope (see DESIGN.md) — it
// is the narrower "accepted records survive process failure" contract
// §1 asks for, built the way the teacher's outbox already commits rows
// durably via pgx before considering work done.
package wal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS wal_segment (
	origin     text NOT NULL,
	seq        bigint NOT NULL,
	payload    bytea NOT NULL,
	written_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (origin, seq)
)`

const insertSQL = `
INSERT INTO wal_segment (origin, seq, payload)
VALUES ($1, $2, $3)
ON CONFLICT (origin, seq) DO NOTHING`

// Writer appends records to the durable segment table. A single Writer
// is shared by every source adapter in a plan.
type Writer struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewWriter ensures the segment table exists and returns a ready Writer.
func NewWriter(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) (*Writer, error) {
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		return nil, err
	}
	return &Writer{pool: pool, log: log}, nil
}

// Append commits payload under (origin, seq) before returning; the
// commit is the durability boundary Append promises. A duplicate
// (origin, seq) — e.g. after a source adapter retries — is a no-op, not
// an error, since the WAL's job is "at least once committed", not
// strict sequencing.
func (w *Writer) Append(ctx context.Context, origin string, seq uint64, payload []byte) error {
	start := time.Now()
	_, err := w.pool.Exec(ctx, insertSQL, origin, int64(seq), payload)
	if err != nil {
		w.log.Error().Err(err).Str("origin", origin).Uint64("seq", seq).Msg("wal: append failed")
		return err
	}
	w.log.Debug().Str("origin", origin).Uint64("seq", seq).Dur("took", time.Since(start)).Msg("wal: appended")
	return nil
}
