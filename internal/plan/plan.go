package plan

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/switchyard/flow/internal/algebra"
	"github.com/switchyard/flow/internal/layout"
	"github.com/switchyard/flow/internal/operator"
	"github.com/switchyard/flow/internal/sourcesink"
	"github.com/switchyard/flow/internal/station"
	"github.com/switchyard/flow/internal/value"
	"github.com/switchyard/flow/internal/window"
	"github.com/switchyard/flow/internal/workerpool"
)

// StartupTimeout is the "not all stations signaled Ready within 3s ->
// fatal" budget from spec.md §4.8/§7.
const StartupTimeout = 3 * time.Second

// Resolver compiles a station's opaque {language|query} clause into an
// algebra tree; query parsing itself is out of scope (spec.md §1), so
// the scheduler never inspects Language/Query beyond handing them to
// whatever Resolver the caller supplies.
type Resolver interface {
	Resolve(language, query string, inputs []int) (root *algebra.AlgebraRoot, top algebra.ID, err error)
}

// Plan is a constructed, not-yet-started station graph: platforms wired
// to each other by channel, plus the declared sources and destinations
// still to be started once every station has signaled Ready.
type Plan struct {
	Platforms map[int]*station.Platform
	Inboxes   map[int]chan station.Command
	Layouts   map[int]*layout.Layout
	Edges     []Edge

	Sources      []sourcesink.Source
	Destinations []sourcesink.Destination

	Pool       *workerpool.Pool
	Events     chan station.Command
	extControl chan sourcesink.Command

	Metrics *station.Metrics
	Log     zerolog.Logger
}

// Build constructs a Plan from a parsed Stencil: it lays out one
// Platform per station, wires edges via MultiSender subscriptions, and
// verifies every edge's Layout.Accepts contract before returning —
// layout mismatches are reported with the failing edge's path instead
// of starting a plan that would misbehave at runtime.
func Build(st *Stencil, resolve Resolver, pool *workerpool.Pool, metrics *station.Metrics, log zerolog.Logger) (*Plan, error) {
	p := &Plan{
		Platforms:  make(map[int]*station.Platform),
		Inboxes:    make(map[int]chan station.Command),
		Layouts:    make(map[int]*layout.Layout),
		Edges:      st.Edges,
		Pool:       pool,
		Events:     make(chan station.Command, 256),
		extControl: make(chan sourcesink.Command, 256),
		Metrics:    metrics,
		Log:        log,
	}

	senders := make(map[int]*station.MultiSender, len(st.Stations))
	for _, stop := range st.StopOrder {
		senders[stop] = station.NewMultiSender()
	}

	inputsOf := make(map[int][]int)
	for _, e := range st.Edges {
		inputsOf[e.To] = append(inputsOf[e.To], e.From)
	}

	blockOf := make(map[int][]int)
	for _, e := range st.Edges {
		if e.Blocking {
			blockOf[e.To] = append(blockOf[e.To], e.From)
		}
	}

	for _, stop := range st.StopOrder {
		spec := st.Stations[stop]

		var l *layout.Layout
		if spec.LayoutRaw != "" {
			parsed, err := layout.Parse(spec.LayoutRaw)
			if err != nil {
				return nil, fmt.Errorf("plan: stop %d: %w", stop, err)
			}
			l = parsed
		}
		p.Layouts[stop] = l

		w, err := parseWindow(spec.WindowRaw)
		if err != nil {
			return nil, fmt.Errorf("plan: stop %d: %w", stop, err)
		}

		trig := window.ElementTrigger()
		if w.Kind != window.NonWindow {
			trig = window.WindowEndTrigger()
		}

		inputs := inputsOf[stop]
		if len(inputs) == 0 {
			inputs = []int{0}
		}
		var tr *station.Transform
		if spec.Query != "" {
			root, top, err := resolve.Resolve(spec.Language, spec.Query, indices(len(inputs)))
			if err != nil {
				return nil, fmt.Errorf("plan: stop %d: resolve query: %w", stop, err)
			}
			tr = station.NewTransform(root, top, indices(len(inputs)))
		} else {
			tr = identityTransform(len(inputs))
		}

		incoming := make(chan window.Train, 256)
		inbox := make(chan station.Command, 16)
		p.Inboxes[stop] = inbox
		platform := station.NewPlatform(stop, incoming, senders[stop], l, w, trig, tr, 0, inbox, p.Events, blockOf[stop], metrics, log.With().Int("stop", stop).Logger())
		p.Platforms[stop] = platform
	}

	for _, e := range st.Edges {
		to, ok := p.Platforms[e.To]
		if !ok {
			return nil, fmt.Errorf("plan: edge references unknown stop %d", e.To)
		}
		if err := p.verifyEdge(e); err != nil {
			return nil, err
		}
		out := senders[e.From].Subscribe(256)
		go forward(e.From, inputIndex(inputsOf[e.To], e.From), out, to.Incoming)
	}

	return p, nil
}

// identityTransform builds a pass-through algebra (a single IndexScan
// projected as-is) for a station with no declared {language|query}
// clause — the plan stencil grammar makes that clause optional.
func identityTransform(n int) *station.Transform {
	root := algebra.NewAlgebraRoot()
	scanID := root.AddNode(algebra.NewIndexScan(0))
	projID := root.AddNode(algebra.NewProject(scanID, operator.NewInput()))
	root.Connect(projID, scanID)
	return station.NewTransform(root, projID, indices(n))
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// verifyEdge enforces the pre-startup LayoutMismatch check (spec.md
// §7): the downstream station's declared layout must accept the
// upstream station's, when both are declared.
func (p *Plan) verifyEdge(e Edge) error {
	from, ok := p.Layouts[e.From]
	if !ok || from == nil {
		return nil
	}
	to, ok := p.Layouts[e.To]
	if !ok || to == nil {
		return nil
	}
	if err := to.Accepts(from); err != nil {
		return fmt.Errorf("plan: layout mismatch on edge %d->%d: %w", e.From, e.To, err)
	}
	return nil
}

// inputIndex locates which declared input slot of the downstream
// station this producer occupies, so the forwarded Train's Input field
// routes it to the right side of a Join/Union transform.
func inputIndex(inputs []int, from int) int {
	for i, in := range inputs {
		if in == from {
			return i
		}
	}
	return 0
}

func forward(from, input int, out chan window.Train, in chan window.Train) {
	source := strconv.Itoa(from)
	for t := range out {
		t.Input = input
		t.Marks = mergeMark(t.Marks, source, t.EventTime)
		in <- t
	}
}

// mergeMark returns a copy: the same Train (and Marks map) fans out to
// every subscriber of a MultiSender, so mutating in place would race
// with the sibling edges' forwarders.
func mergeMark(marks map[string]value.Time, source string, et value.Time) map[string]value.Time {
	out := make(map[string]value.Time, len(marks)+1)
	for k, v := range marks {
		out[k] = v
	}
	if _, ok := out[source]; !ok {
		out[source] = et
	}
	return out
}

// StopStation delivers Stop(stop) to that station's dedicated inbox.
func (p *Plan) StopStation(stop int) error {
	inbox, ok := p.Inboxes[stop]
	if !ok {
		return fmt.Errorf("plan: no station %d", stop)
	}
	inbox <- station.StopCmd(stop)
	return nil
}

// StopAll sends Stop to every station's inbox, used on shutdown.
func (p *Plan) StopAll() {
	for stop, inbox := range p.Inboxes {
		inbox <- station.StopCmd(stop)
	}
}

// AddSource registers an already-parsed Source to be started by Operate.
// It does not wire channels: the Source's Outs are used as given, so the
// caller builds it with the Incoming channels of its declared stops.
func (p *Plan) AddSource(s sourcesink.Source) {
	p.Sources = append(p.Sources, s)
}

// AddDestination registers an already-parsed Destination.
func (p *Plan) AddDestination(d sourcesink.Destination) {
	p.Destinations = append(p.Destinations, d)
}

// Operate runs the three-phase startup protocol from spec.md §4.8:
// start every station, wait for all of them to signal Ready (or time
// out fatally), then start destinations, then sources.
func (p *Plan) Operate(ctx context.Context) error {
	for _, platform := range p.Platforms {
		go platform.Run(ctx)
	}

	pending := make(map[int]bool, len(p.Platforms))
	for stop := range p.Platforms {
		pending[stop] = true
	}

	deadline := time.After(StartupTimeout)
	for len(pending) > 0 {
		select {
		case cmd := <-p.Events:
			if cmd.Kind == station.Ready {
				delete(pending, cmd.Stop)
			}
		case <-deadline:
			return fmt.Errorf("plan: startup timeout, stations not ready: %v", keysOf(pending))
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go p.superviseControl(ctx)
	go p.superviseAdapters(ctx)

	for _, d := range p.Destinations {
		if _, err := d.Operate(ctx, p.destinationInput(d.ID()), p.Pool, p.extControl); err != nil {
			return fmt.Errorf("plan: destination %d failed to start: %w", d.ID(), err)
		}
	}
	for _, s := range p.Sources {
		if _, err := s.Operate(ctx, p.Pool, p.extControl); err != nil {
			return fmt.Errorf("plan: source %d failed to start: %w", s.ID(), err)
		}
	}
	return nil
}

// destinationInput subscribes a fresh channel on the MultiSender feeding
// stop, for a destination declared against that stop in the stencil's
// Out section.
func (p *Plan) destinationInput(stop int) chan window.Train {
	if platform, ok := p.Platforms[stop]; ok {
		return platform.Outgoing.Subscribe(256)
	}
	ch := make(chan window.Train)
	close(ch)
	return ch
}

// superviseControl forwards pool-wide Threshold/Okay events to the
// logger and drives cloning of sustained-backlog stations (spec.md
// §4.8: "the scheduler may react by cloning that platform").
func (p *Plan) superviseControl(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-p.Events:
			switch cmd.Kind {
			case station.Threshold:
				p.Log.Warn().Int("stop", cmd.Stop).Int("n", cmd.N).Msg("plan: station over threshold")
				p.clonePlatform(ctx, cmd.Stop)
			case station.Okay:
				p.Log.Info().Int("stop", cmd.Stop).Msg("plan: station backlog drained")
			}
		}
	}
}

// superviseAdapters drains the adapter-side control channel so sources
// and destinations never block on their Ready/Stop handshakes, logging
// lifecycle transitions as they happen.
func (p *Plan) superviseAdapters(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-p.extControl:
			switch cmd.Kind {
			case sourcesink.Ready:
				p.Log.Info().Int("adapter", cmd.Stop).Msg("plan: adapter ready")
			case sourcesink.Stop:
				p.Log.Info().Int("adapter", cmd.Stop).Msg("plan: adapter stopped")
			default:
				p.Log.Debug().Str("kind", cmd.Kind).Int("adapter", cmd.Stop).Msg("plan: adapter event")
			}
		}
	}
}

// clonePlatform spawns an additional worker platform reading from the
// same inbound channel as stop's original platform, letting Go's
// channel scheduling split the backlog across both — the adaptation of
// spec.md §4.8's "the scheduler may react by cloning that platform" to
// a design where stations are already goroutines rather than OS
// threads pinned to one input queue each.
func (p *Plan) clonePlatform(ctx context.Context, stop int) {
	original, ok := p.Platforms[stop]
	if !ok {
		return
	}
	clone := station.NewPlatform(stop, original.Incoming, original.Outgoing, original.Layout, original.Win, original.Trig, original.Transform, original.Threshold, p.Inboxes[stop], p.Events, original.Block, p.Metrics, original.Log)
	go clone.Run(ctx)
	if p.Metrics != nil {
		p.Metrics.ClonedPlatforms.WithLabelValues(strconv.Itoa(stop)).Inc()
	}
}

func keysOf(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// parseWindow parses the window mini-grammar from spec.md §6:
// <integer><time-unit>, time-unit in {ms,s,m,h,d}, optional @HH:MM[:SS]
// anchor making it an IntervalWindow instead of a BackWindow.
func parseWindow(raw string) (window.Window, error) {
	if raw == "" {
		return window.NonWindowed(), nil
	}
	body := raw
	var anchorMs int64
	if at := indexByte(raw, '@'); at >= 0 {
		body = raw[:at]
		ms, err := parseClock(raw[at+1:])
		if err != nil {
			return window.Window{}, err
		}
		anchorMs = ms
	}
	dur, err := parseDuration(body)
	if err != nil {
		return window.Window{}, err
	}
	if anchorMs != 0 || indexByte(raw, '@') >= 0 {
		return window.Interval(dur, anchorMs), nil
	}
	return window.Back(dur), nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func parseDuration(s string) (int64, error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("plan: invalid window duration %q", s)
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, err
	}
	unit := s[i:]
	mult := map[string]int64{"ms": 1, "s": 1000, "m": 60_000, "h": 3_600_000, "d": 86_400_000}
	m, ok := mult[unit]
	if !ok {
		return 0, fmt.Errorf("plan: unknown time unit %q", unit)
	}
	return n * m, nil
}

func parseClock(s string) (int64, error) {
	var h, m, sec int
	parts := splitColon(s)
	if len(parts) < 2 {
		return 0, fmt.Errorf("plan: invalid anchor %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	if len(parts) == 3 {
		sec, err = strconv.Atoi(parts[2])
		if err != nil {
			return 0, err
		}
	}
	return int64(h)*3_600_000 + int64(m)*60_000 + int64(sec)*1000, nil
}

func splitColon(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
