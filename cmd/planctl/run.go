package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/switchyard/flow/internal/algebra"
	"github.com/switchyard/flow/internal/config"
	"github.com/switchyard/flow/internal/control"
	"github.com/switchyard/flow/internal/operator"
	"github.com/switchyard/flow/internal/plan"
	"github.com/switchyard/flow/internal/sourcesink"
	"github.com/switchyard/flow/internal/sourcesink/httpsource"
	"github.com/switchyard/flow/internal/sourcesink/mongocdc"
	"github.com/switchyard/flow/internal/sourcesink/pgcdc"
	"github.com/switchyard/flow/internal/sourcesink/redisbroker"
	"github.com/switchyard/flow/internal/sourcesink/s3sink"
	"github.com/switchyard/flow/internal/sourcesink/sqlitesource"
	"github.com/switchyard/flow/internal/sourcesink/weaviatesink"
	"github.com/switchyard/flow/internal/wal"
	"github.com/switchyard/flow/internal/window"
	"github.com/switchyard/flow/internal/workerpool"
)

func newRunCmd() *cobra.Command {
	var stencilPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a plan stencil: build the station graph, attach its adapters, and serve the control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log.Logger = cfg.NewLogger()
			if stencilPath == "" {
				stencilPath = cfg.StencilPath
			}
			if stencilPath == "" {
				return fmt.Errorf("--stencil or FLOW_STENCIL_PATH is required")
			}

			raw, err := os.ReadFile(stencilPath)
			if err != nil {
				return fmt.Errorf("read stencil: %w", err)
			}
			st, err := plan.ParseStencil(string(raw))
			if err != nil {
				return fmt.Errorf("parse stencil: %w", err)
			}

			pool := workerpool.New(log.Logger)
			defer pool.Stop()

			p, err := plan.Build(st, noQueryResolver{}, pool, nil, log.Logger)
			if err != nil {
				return fmt.Errorf("build plan: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			f := &adapterFactory{cfg: cfg, ctx: ctx}
			defer f.closeAll()

			for _, spec := range st.Sources {
				src, err := f.buildSource(spec, p)
				if err != nil {
					return fmt.Errorf("source %s: %w", spec.Type, err)
				}
				p.AddSource(src)
			}
			for _, spec := range st.Destinations {
				for _, stop := range spec.Stops {
					dst, err := f.buildDestination(spec, stop)
					if err != nil {
						return fmt.Errorf("destination %s: %w", spec.Type, err)
					}
					p.AddDestination(dst)
				}
			}

			go func() {
				router := control.NewRouter(p, log.Logger)
				addr := cfg.ControlAddr()
				log.Info().Str("addr", addr).Msg("control surface listening")
				if err := http.ListenAndServe(addr, router); err != nil && ctx.Err() == nil {
					log.Error().Err(err).Msg("control surface exited")
				}
			}()

			if err := p.Operate(ctx); err != nil {
				return fmt.Errorf("operate: %w", err)
			}
			<-ctx.Done()
			p.StopAll()
			return nil
		},
	}

	cmd.Flags().StringVar(&stencilPath, "stencil", "", "path to the plan stencil file")
	return cmd
}

// noQueryResolver satisfies plan.Resolver for stations with a declared
// {language|query} clause. Query-language compilation is out of scope
// (spec.md §1's Non-goals); rather than fail the whole plan, a declared
// query falls back to the identity projection used for stations with no
// query at all, with a loud warning so the gap is visible at startup.
type noQueryResolver struct{}

func (noQueryResolver) Resolve(language, query string, inputs []int) (*algebra.AlgebraRoot, algebra.ID, error) {
	log.Warn().Str("language", language).Str("query", query).
		Msg("planctl: no query compiler wired, falling back to identity projection")
	root := algebra.NewAlgebraRoot()
	scanID := root.AddNode(algebra.NewIndexScan(0))
	projID := root.AddNode(algebra.NewProject(scanID, operator.NewInput()))
	root.Connect(projID, scanID)
	return root, projID, nil
}

// adapterFactory lazily builds the external clients a plan's sources and
// destinations need, keyed by type so the same client is reused across
// multiple adapters declared against it (e.g. two pgcdc sources sharing
// one pgxpool.Pool).
type adapterFactory struct {
	cfg *config.Config
	ctx context.Context

	pg       *pgxpool.Pool
	walw     *wal.Writer
	mongoCli *mongo.Client
	redisCli *redis.Client
	weav     *weaviate.Client
	s3cli    *s3.Client
}

func (f *adapterFactory) pgPool() (*pgxpool.Pool, error) {
	if f.pg != nil {
		return f.pg, nil
	}
	pool, err := pgxpool.New(f.ctx, f.cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	f.pg = pool
	return f.pg, nil
}

func (f *adapterFactory) walWriter() (*wal.Writer, error) {
	if f.walw != nil {
		return f.walw, nil
	}
	pool, err := f.pgPool()
	if err != nil {
		return nil, err
	}
	w, err := wal.NewWriter(f.ctx, pool, log.Logger)
	if err != nil {
		return nil, err
	}
	f.walw = w
	return f.walw, nil
}

func (f *adapterFactory) mongoClient() (*mongo.Client, error) {
	if f.mongoCli != nil {
		return f.mongoCli, nil
	}
	cli, err := mongo.Connect(f.ctx, options.Client().ApplyURI(f.cfg.MongoURI))
	if err != nil {
		return nil, err
	}
	f.mongoCli = cli
	return f.mongoCli, nil
}

func (f *adapterFactory) redisClient() *redis.Client {
	if f.redisCli != nil {
		return f.redisCli
	}
	f.redisCli = redis.NewClient(&redis.Options{Addr: f.cfg.RedisAddr})
	return f.redisCli
}

func (f *adapterFactory) weaviateClient() (*weaviate.Client, error) {
	if f.weav != nil {
		return f.weav, nil
	}
	cli, err := weaviate.NewClient(weaviate.Config{Scheme: "http", Host: f.cfg.WeaviateURL})
	if err != nil {
		return nil, err
	}
	f.weav = cli
	return f.weav, nil
}

func (f *adapterFactory) s3Client() (*s3.Client, error) {
	if f.s3cli != nil {
		return f.s3cli, nil
	}
	awscfg, err := awsconfig.LoadDefaultConfig(f.ctx)
	if err != nil {
		return nil, err
	}
	f.s3cli = s3.NewFromConfig(awscfg)
	return f.s3cli, nil
}

func (f *adapterFactory) closeAll() {
	if f.pg != nil {
		f.pg.Close()
	}
	if f.mongoCli != nil {
		_ = f.mongoCli.Disconnect(context.Background())
	}
	if f.redisCli != nil {
		_ = f.redisCli.Close()
	}
}

func optString(opts map[string]any, key string) string {
	if v, ok := opts[key].(string); ok {
		return v
	}
	return ""
}

func (f *adapterFactory) outsFor(p *plan.Plan, stops []int) []chan window.Train {
	outs := make([]chan window.Train, 0, len(stops))
	for _, stop := range stops {
		if platform, ok := p.Platforms[stop]; ok {
			outs = append(outs, platform.Incoming)
		}
	}
	return outs
}

func (f *adapterFactory) buildSource(spec plan.AdapterSpec, p *plan.Plan) (sourcesink.Source, error) {
	outs := f.outsFor(p, spec.Stops)
	id := spec.Stops[0]

	switch spec.Type {
	case "pgcdc":
		pool, err := f.pgPool()
		if err != nil {
			return nil, err
		}
		w, err := f.walWriter()
		if err != nil {
			return nil, err
		}
		return pgcdc.Parse(id, pool, spec.Options, outs, w, log.Logger)
	case "mongocdc":
		cli, err := f.mongoClient()
		if err != nil {
			return nil, err
		}
		coll := cli.Database(optString(spec.Options, "database")).Collection(optString(spec.Options, "collection"))
		return mongocdc.Parse(id, coll, outs, log.Logger), nil
	case "http":
		return httpsource.ParsePoller(id, spec.Options, outs, log.Logger)
	case "redis":
		rcfg := redisbroker.Config{
			Stream:   optString(spec.Options, "stream"),
			Group:    optString(spec.Options, "group"),
			Consumer: optString(spec.Options, "consumer"),
		}
		return redisbroker.New(f.ctx, id, f.redisClient(), rcfg, outs, log.Logger)
	case "sqlite":
		return sqlitesource.Open(id, optString(spec.Options, "path"), optString(spec.Options, "query"), outs, log.Logger)
	default:
		return nil, fmt.Errorf("unknown source adapter type %q", spec.Type)
	}
}

func (f *adapterFactory) buildDestination(spec plan.AdapterSpec, stop int) (sourcesink.Destination, error) {
	switch spec.Type {
	case "weaviate":
		cli, err := f.weaviateClient()
		if err != nil {
			return nil, err
		}
		return weaviatesink.New(stop, cli, optString(spec.Options, "class"), log.Logger), nil
	case "s3":
		cli, err := f.s3Client()
		if err != nil {
			return nil, err
		}
		return s3sink.New(stop, cli, optString(spec.Options, "bucket"), optString(spec.Options, "prefix"), log.Logger), nil
	default:
		return nil, fmt.Errorf("unknown destination adapter type %q", spec.Type)
	}
}
