// Package redisbroker is a message-broker Source consuming a Redis
// Stream via a consumer group (XREADGROUP), acking each message once
// its Train has been handed downstream.
package redisbroker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/switchyard/flow/internal/sourcesink"
	"github.com/switchyard/flow/internal/value"
	"github.com/switchyard/flow/internal/window"
	"github.com/switchyard/flow/internal/workerpool"
)

// Config is the parsed plan-stencil options for a Redis stream source.
type Config struct {
	Stream   string `json:"stream"`
	Group    string `json:"group"`
	Consumer string `json:"consumer"`
}

// Source consumes Config.Stream through a consumer group, one Train per
// message field-set.
type Source struct {
	id     int
	client *redis.Client
	cfg    Config
	outs   []chan window.Train
	stamp  *sourcesink.Stamper
	log    zerolog.Logger
}

// New builds a Source and ensures its consumer group exists (ignoring
// BUSYGROUP, the expected error when the group already does).
func New(ctx context.Context, id int, client *redis.Client, cfg Config, outs []chan window.Train, log zerolog.Logger) (*Source, error) {
	if cfg.Consumer == "" {
		cfg.Consumer = "switchyard"
	}
	err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "$").Err()
	if err != nil && !isBusyGroup(err) {
		return nil, err
	}
	return &Source{id: id, client: client, cfg: cfg, outs: outs, stamp: sourcesink.NewStamper(id), log: log}, nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func (s *Source) ID() int                    { return s.id }
func (s *Source) Outs() []chan window.Train { return s.outs }

func (s *Source) Operate(ctx context.Context, pool *workerpool.Pool, control chan<- sourcesink.Command) (workerpool.ID, error) {
	id := pool.ExecuteAsync(ctx, "redisbroker", nil, func(ctx context.Context) error {
		control <- sourcesink.Command{Kind: sourcesink.Ready, Stop: s.id}
		for {
			select {
			case <-ctx.Done():
				control <- sourcesink.Command{Kind: sourcesink.Stop, Stop: s.id}
				return ctx.Err()
			default:
			}
			streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    s.cfg.Group,
				Consumer: s.cfg.Consumer,
				Streams:  []string{s.cfg.Stream, ">"},
				Count:    64,
				Block:    time.Second,
			}).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				s.log.Warn().Err(err).Int("source", s.id).Msg("redisbroker: read failed")
				continue
			}
			for _, str := range streams {
				for _, msg := range str.Messages {
					s.deliver(msg)
					s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, msg.ID)
				}
			}
		}
	})
	return id, nil
}

func (s *Source) deliver(msg redis.XMessage) {
	d := value.NewDict()
	for k, v := range msg.Values {
		if sv, ok := v.(string); ok {
			d.Set(k, value.Text(sv))
		}
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
