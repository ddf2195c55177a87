// Package httpsource is an HTTP-based Source with two entry points:
// Poller, which uses a resty client to page through a REST API, and
// WebhookHandler, a plain net/http handler accepting inbound POSTs,
// matching spec.md §6's "implementations expose parse/operate/outs"
// shape for two different transport directions.
package httpsource

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/switchyard/flow/internal/sourcesink"
	"github.com/switchyard/flow/internal/value"
	"github.com/switchyard/flow/internal/window"
	"github.com/switchyard/flow/internal/workerpool"
)

// PollerConfig is the parsed plan-stencil options for a polling HTTP
// source.
type PollerConfig struct {
	URL      string        `json:"url"`
	Interval time.Duration `json:"-"`
	IntervalMs int64       `json:"interval_ms"`
}

// Poller periodically GETs URL and emits each array element of the
// JSON response body as a Train.
type Poller struct {
	id     int
	client *resty.Client
	cfg    PollerConfig
	outs   []chan window.Train
	stamp  *sourcesink.Stamper
	log    zerolog.Logger
}

// ParsePoller builds a Poller from plan-stencil json options.
func ParsePoller(id int, options map[string]any, outs []chan window.Train, log zerolog.Logger) (*Poller, error) {
	raw, err := json.Marshal(options)
	if err != nil {
		return nil, err
	}
	var cfg PollerConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.IntervalMs <= 0 {
		cfg.IntervalMs = 5000
	}
	cfg.Interval = time.Duration(cfg.IntervalMs) * time.Millisecond
	return &Poller{id: id, client: resty.New(), cfg: cfg, outs: outs, stamp: sourcesink.NewStamper(id), log: log}, nil
}

func (p *Poller) ID() int                    { return p.id }
func (p *Poller) Outs() []chan window.Train { return p.outs }

func (p *Poller) Operate(ctx context.Context, pool *workerpool.Pool, control chan<- sourcesink.Command) (workerpool.ID, error) {
	id := pool.ExecuteAsync(ctx, "httpsource.poller", nil, func(ctx context.Context) error {
		control <- sourcesink.Command{Kind: sourcesink.Ready, Stop: p.id}
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				control <- sourcesink.Command{Kind: sourcesink.Stop, Stop: p.id}
				return ctx.Err()
			case <-ticker.C:
				if err := p.pollOnce(ctx); err != nil {
					p.log.Warn().Err(err).Int("source", p.id).Msg("httpsource: poll failed, backing off")
				}
			}
		}
	})
	return id, nil
}

func (p *Poller) pollOnce(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	var body []any
	op := func() error {
		resp, err := p.client.R().SetContext(ctx).SetResult(&body).Get(p.cfg.URL)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return backoff.Permanent(nil)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return err
	}

	now := time.Now()
	et := value.Time{Ms: now.UnixMilli(), Ns: uint32(now.Nanosecond() % 1e6)}
	for _, item := range body {
		t := p.stamp.Stamp(window.Train{Values: []value.Value{jsonToValue(item)}, EventTime: et})
		for _, out := range p.outs {
			out <- t
		}
	}
	return nil
}

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

// WebhookHandler accepts inbound POSTs and pushes each request body as
// a single Train, the receiving-direction counterpart to Poller.
type WebhookHandler struct {
	id    int
	outs  []chan window.Train
	stamp *sourcesink.Stamper
	mu    sync.Mutex
	log   zerolog.Logger
}

// NewWebhookHandler constructs a handler ready to be mounted on a mux.
func NewWebhookHandler(id int, outs []chan window.Train, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{id: id, outs: outs, stamp: sourcesink.NewStamper(id), log: log}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	now := time.Now()
	h.mu.Lock()
	t := h.stamp.Stamp(window.Train{
		Values:    []value.Value{jsonToValue(body)},
		EventTime: value.Time{Ms: now.UnixMilli(), Ns: uint32(now.Nanosecond() % 1e6)},
	})
	h.mu.Unlock()
	for _, out := range h.outs {
		out <- t
	}
	w.WriteHeader(http.StatusAccepted)
}
