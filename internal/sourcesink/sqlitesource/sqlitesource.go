// Package sqlitesource reads an embedded SQLite table as a bounded
// batch Source, useful for tests and edge/local ingestion where a
// change-capture table isn't available.
package sqlitesource

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"

	"github.com/switchyard/flow/internal/sourcesink"
	"github.com/switchyard/flow/internal/value"
	"github.com/switchyard/flow/internal/window"
	"github.com/switchyard/flow/internal/workerpool"
)

// Source drains Query's result set once and emits one Train per row,
// each column keyed by its SQL column name.
type Source struct {
	id    int
	db    *sql.DB
	query string
	outs  []chan window.Train
	stamp *sourcesink.Stamper
	log   zerolog.Logger
}

// Open opens path with the modernc.org/sqlite driver and returns a
// Source that will run query once per Operate call.
func Open(id int, path, query string, outs []chan window.Train, log zerolog.Logger) (*Source, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Source{id: id, db: db, query: query, outs: outs, stamp: sourcesink.NewStamper(id), log: log}, nil
}

func (s *Source) ID() int                    { return s.id }
func (s *Source) Outs() []chan window.Train { return s.outs }

func (s *Source) Operate(ctx context.Context, pool *workerpool.Pool, control chan<- sourcesink.Command) (workerpool.ID, error) {
	id := pool.ExecuteAsync(ctx, "sqlitesource", nil, func(ctx context.Context) error {
		control <- sourcesink.Command{Kind: sourcesink.Ready, Stop: s.id}
		defer func() { control <- sourcesink.Command{Kind: sourcesink.Stop, Stop: s.id} }()

		rows, err := s.db.QueryContext(ctx, s.query)
		if err != nil {
			return err
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		now := time.Now()
		et := value.Time{Ms: now.UnixMilli(), Ns: uint32(now.Nanosecond() % 1e6)}

		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			d := value.NewDict()
			for i, c := range cols {
				d.Set(c, sqlToValue(vals[i]))
			}
			t := s.stamp.Stamp(window.Train{Values: []value.Value{value.DictVal(d)}, EventTime: et})
			for _, out := range s.outs {
				out <- t
			}
		}
		return rows.Err()
	})
	return id, nil
}

func sqlToValue(v any) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null()
	case int64:
		return value.Int(t)
	case float64:
		return value.FloatFrom64(t, 6)
	case string:
		return value.Text(t)
	case []byte:
		return value.Text(string(t))
	case bool:
		return value.Bool(t)
	default:
		return value.Null()
	}
}
