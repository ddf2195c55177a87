// Package weaviatesink is a vector/document Destination draining a
// Train channel into a Weaviate class via weaviate-go-client/v5's
// batch API, the same client the teacher's indexer uploader uses.
package weaviatesink

import (
	"context"

	"github.com/rs/zerolog"
	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/switchyard/flow/internal/sourcesink"
	"github.com/switchyard/flow/internal/value"
	"github.com/switchyard/flow/internal/window"
	"github.com/switchyard/flow/internal/workerpool"
)

// Destination writes every Value in an arriving Train as one object
// into Class.
type Destination struct {
	id     int
	client *weaviate.Client
	class  string
	log    zerolog.Logger
}

// New constructs a Destination bound to an already-configured client.
func New(id int, client *weaviate.Client, class string, log zerolog.Logger) *Destination {
	return &Destination{id: id, client: client, class: class, log: log}
}

func (d *Destination) ID() int      { return d.id }
func (d *Destination) Type() string { return "weaviate" }

func (d *Destination) Operate(ctx context.Context, in <-chan window.Train, pool *workerpool.Pool, control chan<- sourcesink.Command) (workerpool.ID, error) {
	id := pool.ExecuteAsync(ctx, "weaviatesink", nil, func(ctx context.Context) error {
		control <- sourcesink.Command{Kind: sourcesink.Ready, Stop: d.id}
		for {
			select {
			case <-ctx.Done():
				control <- sourcesink.Command{Kind: sourcesink.Stop, Stop: d.id}
				return ctx.Err()
			case t, ok := <-in:
				if !ok {
					control <- sourcesink.Command{Kind: sourcesink.Stop, Stop: d.id}
					return nil
				}
				if err := d.write(ctx, t); err != nil {
					d.log.Warn().Err(err).Int("destination", d.id).Msg("weaviatesink: write failed")
				}
			}
		}
	})
	return id, nil
}

func (d *Destination) write(ctx context.Context, t window.Train) error {
	if len(t.Values) == 0 {
		return nil
	}
	objs := make([]*models.Object, 0, len(t.Values))
	for _, v := range t.Values {
		props := map[string]any{}
		if dict := v.AsDict(); dict != nil {
			dict.Range(func(k string, fv value.Value) { props[k] = fv.Text() })
		} else {
			props["value"] = v.Text()
		}
		objs = append(objs, &models.Object{Class: d.class, Properties: props})
	}
	b := d.client.Batch().ObjectsBatcher().WithObjects(objs...)
	_, err := b.Do(ctx)
	return err
}
