// Package s3sink is an object-storage Destination: each arriving Train
// is marshaled to JSON and PutObject'd under a key derived from the
// station id and the Train's id, following the same aws-sdk-go-v2
// PutObject call shape as the evalgo tracing archiver.
package s3sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/switchyard/flow/internal/sourcesink"
	"github.com/switchyard/flow/internal/window"
	"github.com/switchyard/flow/internal/workerpool"
)

// Destination writes each arriving Train as one JSON object into
// Bucket, keyed by stop id and Train id.
type Destination struct {
	id     int
	client *s3.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// New constructs a Destination bound to an already-configured client.
func New(id int, client *s3.Client, bucket, prefix string, log zerolog.Logger) *Destination {
	return &Destination{id: id, client: client, bucket: bucket, prefix: prefix, log: log}
}

func (d *Destination) ID() int      { return d.id }
func (d *Destination) Type() string { return "s3" }

func (d *Destination) Operate(ctx context.Context, in <-chan window.Train, pool *workerpool.Pool, control chan<- sourcesink.Command) (workerpool.ID, error) {
	id := pool.ExecuteAsync(ctx, "s3sink", nil, func(ctx context.Context) error {
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
					d.log.Warn().Err(err).Int("destination", d.id).Msg("s3sink: write failed")
				}
			}
		}
	})
	return id, nil
}

func (d *Destination) write(ctx context.Context, t window.Train) error {
	body, err := json.Marshal(trainJSON(t))
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s/%d-%d.json", d.prefix, d.id, t.ID)
	_, err = d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	return err
}

func trainJSON(t window.Train) map[string]any {
	values := make([]string, len(t.Values))
	for i, v := range t.Values {
		values[i] = v.Text()
	}
	return map[string]any{
		"id":         t.ID,
		"event_time": t.EventTime.Ms,
		"values":     values,
	}
}
