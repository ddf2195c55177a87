package station

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/switchyard/flow/internal/layout"
	"github.com/switchyard/flow/internal/value"
	"github.com/switchyard/flow/internal/window"
)

// tracer names every "when" firing span, mirroring the teacher corpus's
// goa.design/goa-ai/registry tracer-per-package convention.
var tracer = otel.Tracer("switchyard/station")

// IdleTimeout is the default sleep between empty polls of a platform's
// inbound queue, mirroring spec.md §4.7's 10ns-10µs tunable range; Go's
// goroutine scheduler makes true busy-polling unnecessary, so Platform
// instead blocks on a select over its inbound channel, control channel,
// and stop signal — functionally the same cooperative-cancellation
// contract (every loop iteration can observe Stop) without spending CPU
// on an idle spin.
const IdleTimeout = 200 * time.Microsecond

// Platform is the per-station worker described in spec.md §4.7: it owns
// the inbound channel, the outbound MultiSender, the window storage, the
// watermark strategy, and the compiled Transform, and runs two
// goroutines — a receive loop that buffers arriving Trains and a "when"
// loop that fires the transform once the trigger says a batch is ready.
type Platform struct {
	StopID      int
	Incoming    chan window.Train
	Outgoing    *MultiSender
	Layout      *layout.Layout
	Win         window.Window
	Trig        window.Trigger
	Transform   *Transform
	Threshold   int
	// Inbox carries commands addressed to this station alone (Stop,
	// Attach, Detach, a Threshold reconfiguration) — one dedicated
	// channel per platform, since a shared channel would let a sibling
	// station's receiveLoop race to consume a command meant for this
	// one.
	Inbox chan Command
	// Events is the pool-wide outbound channel every platform's Ready,
	// Threshold, and Okay notifications are sent to; the scheduler is
	// its single consumer (spec.md §4.8's "single pool-wide mpsc").
	Events      chan<- Command
	Block       []int // upstream stop ids this station waits on before firing (§9 Open Question: buffer until first Train from each)
	Metrics     *Metrics
	Log         zerolog.Logger

	storage  *window.Storage
	selector *window.Selector
	wm       *window.Watermark

	// retained accumulates every Value ever seen per input index, used
	// instead of windowed storage when a station declares more than one
	// input (Join, Union): those iterators are re-derived fresh on every
	// firing (internal/station/transform.go), so the full history of
	// both sides must be replayed each time rather than only the most
	// recently triggered batch.
	retained map[int][]value.Value

	mu          sync.Mutex
	tooHigh     bool
	seenBlocked map[int]bool
}

// multiInput reports whether this station's transform reads from more
// than one declared input (a Join or multi-way Union station).
func (p *Platform) multiInput() bool {
	return p.Transform != nil && len(p.Transform.Inputs) > 1
}

// NewPlatform constructs a Platform ready to run; call Run to start its
// two goroutines.
func NewPlatform(stop int, incoming chan window.Train, outgoing *MultiSender, l *layout.Layout, w window.Window, trig window.Trigger, tr *Transform, threshold int, inbox chan Command, events chan<- Command, block []int, metrics *Metrics, log zerolog.Logger) *Platform {
	p := &Platform{
		StopID:    stop,
		Incoming:  incoming,
		Outgoing:  outgoing,
		Layout:    l,
		Win:       w,
		Trig:      trig,
		Transform: tr,
		Threshold: threshold,
		Inbox:     inbox,
		Events:    events,
		Block:     block,
		Metrics:   metrics,
		Log:       log,
		storage:   window.NewStorage(w),
		selector:  window.NewSelector(trig),
		wm:        window.NewWatermark(),
		retained:  make(map[int][]value.Value),
	}
	if len(block) > 0 {
		p.seenBlocked = make(map[int]bool, len(block))
	}
	return p
}

// Run starts the receive loop and the when loop and blocks until ctx is
// canceled or a Stop command for this station arrives. It signals Ready
// on Events once both loops are started, per the three-phase startup
// protocol in spec.md §4.8.
func (p *Platform) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); p.receiveLoop(ctx, cancel) }()
	go func() { defer wg.Done(); p.whenLoop(ctx) }()

	p.Events <- ReadyCmd(p.StopID)
	wg.Wait()
}

// receiveLoop buffers inbound Trains into window storage, updates the
// watermark, and reports backpressure transitions. A Train arriving
// before every blocking upstream has sent at least one Train is still
// buffered — the "wait" in a blocking edge only gates firing, not
// ingestion (spec.md §9 Open Question, resolved in favor of
// buffer-until-first-Train-from-each as the safe default).
func (p *Platform) receiveLoop(ctx context.Context, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-p.Inbox:
			if !ok {
				return
			}
			switch cmd.Kind {
			case Stop:
				cancel()
				return
			case Attach:
				p.wm.Attach(cmd.Source)
			case Detach:
				p.wm.Detach(cmd.Source)
			case Threshold:
				p.mu.Lock()
				p.Threshold = cmd.N
				p.mu.Unlock()
			}
		case t, ok := <-p.Incoming:
			if !ok {
				return
			}
			p.ingest(ctx, t)
			p.checkBacklog()
		}
	}
}

func (p *Platform) ingest(ctx context.Context, t window.Train) {
	if p.Layout != nil && len(t.Values) > 0 && !p.Layout.Fits(t.Values[0]) {
		p.Log.Warn().Int("stop", p.StopID).Msg("station: train does not fit declared layout, dropping")
		return
	}
	for source, mark := range t.Marks {
		p.wm.Update(source, mark.Ms)
		if p.seenBlocked != nil {
			p.markSeen(source)
		}
	}
	if p.Metrics != nil {
		p.Metrics.TrainsProcessed.WithLabelValues(stopLabel(p.StopID)).Inc()
	}

	if p.multiInput() {
		p.mu.Lock()
		p.retained[t.Input] = append(p.retained[t.Input], t.Values...)
		snapshot := make(map[int][]value.Value, len(p.retained))
		for idx, vs := range p.retained {
			cp := make([]value.Value, len(vs))
			copy(cp, vs)
			snapshot[idx] = cp
		}
		p.mu.Unlock()
		if p.readyToFire() {
			p.fireRetained(ctx, snapshot, t.EventTime)
		}
		return
	}

	p.mu.Lock()
	p.storage.Add(t)
	p.mu.Unlock()

	if p.Trig.Kind == window.Element && p.Win.Kind == window.BackWindow {
		if !p.readyToFire() {
			return
		}
		// A back window firing per element emits the window's current
		// contents, not just the arriving Train: the trailing window is
		// evicted against the watermark first, so elements it has slid
		// past no longer count.
		p.mu.Lock()
		ready := p.storage.Ready(p.wm.Current())
		var batch []window.Train
		if len(ready) > 0 {
			batch = append(batch, ready[0].Trains...)
		}
		p.mu.Unlock()
		if len(batch) > 0 {
			p.fire(ctx, batch)
		}
		return
	}
	batches := p.selector.OnArrival(t)
	if !p.readyToFire() {
		return
	}
	for _, batch := range batches {
		p.fire(ctx, batch)
	}
}

func (p *Platform) markSeen(source string) {
	// Block is a list of upstream stop ids; source carries the
	// originating station's identity string form of its stop id, set by
	// the scheduler when it wires an edge.
	for _, b := range p.Block {
		if stopLabel(b) == source {
			p.seenBlocked[b] = true
		}
	}
}

// readyToFire reports whether every blocking upstream has sent at least
// one Train yet (the default resolution of spec.md §9's block-edge Open
// Question).
func (p *Platform) readyToFire() bool {
	if p.seenBlocked == nil {
		return true
	}
	for _, b := range p.Block {
		if !p.seenBlocked[b] {
			return false
		}
	}
	return true
}

func (p *Platform) checkBacklog() {
	p.mu.Lock()
	n := len(p.Incoming)
	threshold := p.Threshold
	wasHigh := p.tooHigh
	if threshold > 0 && n > threshold && !wasHigh {
		p.tooHigh = true
	} else if wasHigh && n < threshold {
		p.tooHigh = false
	}
	nowHigh := p.tooHigh
	p.mu.Unlock()

	if nowHigh != wasHigh {
		if nowHigh {
			p.Events <- ThresholdCmd(p.StopID, threshold)
			if p.Metrics != nil {
				p.Metrics.ThresholdEvents.WithLabelValues(stopLabel(p.StopID), "threshold").Inc()
			}
		} else {
			p.Events <- OkayCmd(p.StopID)
			if p.Metrics != nil {
				p.Metrics.ThresholdEvents.WithLabelValues(stopLabel(p.StopID), "okay").Inc()
			}
		}
	}
}

// whenLoop drives WindowEnd-triggered firings: stations using Element or
// Count triggers fire directly from receiveLoop on arrival, but a
// WindowEnd trigger only knows a window is ready once the watermark has
// advanced past it, which can happen purely from the passage of time (no
// new arrival) — hence a dedicated ticking loop.
func (p *Platform) whenLoop(ctx context.Context) {
	ticker := time.NewTicker(IdleTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.Trig.Kind != window.WindowEnd || !p.readyToFire() {
				continue
			}
			p.mu.Lock()
			batches := p.selector.OnTick(p.storage, p.wm.Current())
			p.mu.Unlock()
			for _, batch := range batches {
				p.fire(ctx, batch)
			}
		}
	}
}

// fire drains batch through the compiled Transform and routes the
// resulting Train downstream via the station's MultiSender. Each firing
// is wrapped in a span so a trace shows how long a batch spent inside
// one station's transform relative to its neighbors.
func (p *Platform) fire(ctx context.Context, batch []window.Train) {
	_, span := tracer.Start(ctx, "fire", trace.WithAttributes(
		attribute.Int("station.stop", p.StopID),
		attribute.Int("station.batch_size", len(batch)),
	))
	defer span.End()

	byIndex := map[int][]value.Value{0: flatten(batch)}
	out, err := p.Transform.Apply(byIndex)
	if err != nil {
		span.RecordError(err)
		p.Log.Error().Err(err).Int("stop", p.StopID).Msg("station: transform apply failed")
		return
	}
	if len(out) == 0 {
		return
	}
	p.Outgoing.Send(window.Train{
		Values:    out,
		ID:        batch[len(batch)-1].ID,
		EventTime: maxEventTime(batch),
		Marks:     p.marks(),
	})
}

// fireRetained re-derives the transform over the full accumulated history
// of every input index — the join/union case described on Platform's
// retained field.
func (p *Platform) fireRetained(ctx context.Context, byIndex map[int][]value.Value, eventTime value.Time) {
	_, span := tracer.Start(ctx, "fire", trace.WithAttributes(
		attribute.Int("station.stop", p.StopID),
	))
	defer span.End()

	out, err := p.Transform.Apply(byIndex)
	if err != nil {
		span.RecordError(err)
		p.Log.Error().Err(err).Int("stop", p.StopID).Msg("station: transform apply failed")
		return
	}
	if len(out) == 0 {
		return
	}
	p.Outgoing.Send(window.Train{
		Values:    out,
		EventTime: eventTime,
		Marks:     p.marks(),
	})
}

// marks snapshots the per-source watermark map in Train.Marks form.
func (p *Platform) marks() map[string]value.Time {
	src := p.wm.Sources()
	out := make(map[string]value.Time, len(src))
	for k, ms := range src {
		out[k] = value.Time{Ms: ms}
	}
	return out
}

func flatten(batch []window.Train) []value.Value {
	var out []value.Value
	for _, t := range batch {
		out = append(out, t.Values...)
	}
	return out
}

func maxEventTime(batch []window.Train) value.Time {
	max := value.Time{}
	for i, t := range batch {
		if i == 0 || t.EventTime.Ms > max.Ms || (t.EventTime.Ms == max.Ms && t.EventTime.Ns > max.Ns) {
			max = t.EventTime
		}
	}
	return max
}

func stopLabel(stop int) string { return strconv.Itoa(stop) }
