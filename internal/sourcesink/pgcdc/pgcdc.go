// Package pgcdc is a Postgres change-data-capture Source: it leases
// rows from a change table with the same FOR UPDATE SKIP LOCKED idiom
// the teacher's outbox worker uses, translates each row to a Train, and
// pushes it downstream.
package pgcdc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/switchyard/flow/internal/sourcesink"
	"github.com/switchyard/flow/internal/value"
	"github.com/switchyard/flow/internal/wal"
	"github.com/switchyard/flow/internal/window"
	"github.com/switchyard/flow/internal/workerpool"
)

const leaseSQL = `
SELECT id, payload
FROM %s
WHERE status = 'pending'
ORDER BY id ASC
FOR UPDATE SKIP LOCKED
LIMIT $1`

const markDoneSQL = `UPDATE %s SET status = 'done' WHERE id = $1`

// Config holds the adapter's parsed plan-stencil options.
type Config struct {
	Table     string        `json:"table"`
	BatchSize int           `json:"batch_size"`
	Interval  time.Duration `json:"-"`
	IntervalMs int64        `json:"interval_ms"`
}

// Source polls a Postgres table for pending rows and emits one Train
// per row to every declared output channel.
type Source struct {
	id    int
	pool  *pgxpool.Pool
	cfg   Config
	outs  []chan window.Train
	wal   *wal.Writer
	stamp *sourcesink.Stamper
	log   zerolog.Logger
}

// Parse builds a Source from plan-stencil json options, per the Source
// contract's parse(options) in spec.md §6.
func Parse(id int, pool *pgxpool.Pool, options map[string]any, outs []chan window.Train, w *wal.Writer, log zerolog.Logger) (*Source, error) {
	raw, err := json.Marshal(options)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.IntervalMs <= 0 {
		cfg.IntervalMs = 500
	}
	cfg.Interval = time.Duration(cfg.IntervalMs) * time.Millisecond
	return &Source{id: id, pool: pool, cfg: cfg, outs: outs, wal: w, stamp: sourcesink.NewStamper(id), log: log}, nil
}

func (s *Source) ID() int                    { return s.id }
func (s *Source) Outs() []chan window.Train { return s.outs }

// Operate starts the polling loop as an async worker, sending Ready on
// control once the pool is reachable and Stop when ctx is canceled.
func (s *Source) Operate(ctx context.Context, pool *workerpool.Pool, control chan<- sourcesink.Command) (workerpool.ID, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	id := pool.ExecuteAsync(ctx, "pgcdc", nil, func(ctx context.Context) error {
		if err := backoff.Retry(func() error { return s.pool.Ping(ctx) }, backoff.WithContext(bo, ctx)); err != nil {
			return err
		}
		control <- sourcesink.Command{Kind: sourcesink.Ready, Stop: s.id}

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				control <- sourcesink.Command{Kind: sourcesink.Stop, Stop: s.id}
				return ctx.Err()
			case <-ticker.C:
				if err := s.pollOnce(ctx); err != nil {
					s.log.Warn().Err(err).Int("source", s.id).Msg("pgcdc: poll failed, backing off")
				}
			}
		}
	})
	return id, nil
}

func (s *Source) pollOnce(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, fmt.Sprintf(leaseSQL, tableOrDefault(s.cfg.Table)), s.cfg.BatchSize)
	if err != nil {
		return err
	}

	type row struct {
		id      int64
		payload []byte
	}
	var leased []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.payload); err != nil {
			rows.Close()
			return err
		}
		leased = append(leased, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range leased {
		var fields map[string]any
		if err := json.Unmarshal(r.payload, &fields); err != nil {
			continue
		}
		if s.wal != nil {
			if err := s.wal.Append(ctx, "pgcdc", uint64(r.id), r.payload); err != nil {
				return err
			}
		}
		d := value.NewDict()
		for k, v := range fields {
			d.Set(k, jsonToValue(v))
		}
		now := time.Now()
		t := s.stamp.Stamp(window.Train{Values: []value.Value{value.DictVal(d)}, EventTime: value.Time{Ms: now.UnixMilli(), Ns: uint32(now.Nanosecond() % 1e6)}})
		for _, out := range s.outs {
			out <- t
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(markDoneSQL, tableOrDefault(s.cfg.Table)), r.id); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func tableOrDefault(table string) string {
	if table == "" {
		return "cdc_queue"
	}
	return table
}

// jsonToValue translates a decoded JSON scalar/array/object into a
// value.Value, the boundary between an adapter's wire format and the
// engine's dynamic type.
func jsonToValue(v any) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Bool(t)
	case float64:
		return value.FloatFrom64(t, 6)
	case string:
		return value.Text(t)
	case []any:
		vs := make([]value.Value, len(t))
		for i, e := range t {
			vs[i] = jsonToValue(e)
		}
		return value.Array(vs...)
	case map[string]any:
		d := value.NewDict()
		for k, e := range t {
			d.Set(k, jsonToValue(e))
		}
		return value.DictVal(d)
	default:
		return value.Null()
	}
}
