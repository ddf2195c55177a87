// Package mongocdc is a MongoDB change-stream Source: it tails a
// collection's change stream and translates each change document's
// fullDocument into a Train.
package mongocdc

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/switchyard/flow/internal/sourcesink"
	"github.com/switchyard/flow/internal/value"
	"github.com/switchyard/flow/internal/window"
	"github.com/switchyard/flow/internal/workerpool"
)

// Source tails a single collection's change stream.
type Source struct {
	id         int
	collection *mongo.Collection
	outs       []chan window.Train
	stamp      *sourcesink.Stamper
	log        zerolog.Logger
}

// Parse builds a Source from a collection handle resolved by the
// caller (database/collection names come from the plan stencil's
// options, resolved before construction since mongo-driver's handle
// acquisition needs a live client, not raw options).
func Parse(id int, collection *mongo.Collection, outs []chan window.Train, log zerolog.Logger) *Source {
	return &Source{id: id, collection: collection, outs: outs, stamp: sourcesink.NewStamper(id), log: log}
}

func (s *Source) ID() int                    { return s.id }
func (s *Source) Outs() []chan window.Train { return s.outs }

func (s *Source) Operate(ctx context.Context, pool *workerpool.Pool, control chan<- sourcesink.Command) (workerpool.ID, error) {
	id := pool.ExecuteAsync(ctx, "mongocdc", nil, func(ctx context.Context) error {
		stream, err := s.collection.Watch(ctx, mongo.Pipeline{})
		if err != nil {
			return err
		}
		defer stream.Close(ctx)

		control <- sourcesink.Command{Kind: sourcesink.Ready, Stop: s.id}

		for stream.Next(ctx) {
			var change struct {
				FullDocument bson.M `bson:"fullDocument"`
			}
			if err := stream.Decode(&change); err != nil {
				s.log.Warn().Err(err).Int("source", s.id).Msg("mongocdc: decode failed, skipping")
				continue
			}
			d := value.NewDict()
			for k, v := range change.FullDocument {
				d.Set(k, bsonToValue(v))
			}
			now := time.Now()
			t := s.stamp.Stamp(window.Train{
				Values:    []value.Value{value.DictVal(d)},
				EventTime: value.Time{Ms: now.UnixMilli(), Ns: uint32(now.Nanosecond() % 1e6)},
			})
			for _, out := range s.outs {
				out <- t
			}
		}
		control <- sourcesink.Command{Kind: sourcesink.Stop, Stop: s.id}
		return stream.Err()
	})
	return id, nil
}

func bsonToValue(v any) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Bool(t)
	case int32:
		return value.Int(int64(t))
	case int64:
		return value.Int(t)
	case float64:
		return value.FloatFrom64(t, 6)
	case string:
		return value.Text(t)
	case bson.A:
		vs := make([]value.Value, len(t))
		for i, e := range t {
			vs[i] = bsonToValue(e)
		}
		return value.Array(vs...)
	case bson.M:
		d := value.NewDict()
		for k, e := range t {
			d.Set(k, bsonToValue(e))
		}
		return value.DictVal(d)
	default:
		return value.Text("")
	}
}
