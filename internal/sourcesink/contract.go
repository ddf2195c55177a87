// Package sourcesink holds the Source/Destination contracts described
// in spec.md §6, plus concrete adapters under its subpackages
// (pgcdc, mongocdc, httpsource, redisbroker, sqlitesource, weaviatesink,
// s3sink). The scheduler (internal/plan) only ever sees the channel and
// the Ready/Stop control-plane handshake — it never imports a concrete
// adapter subpackage directly.
package sourcesink

import (
	"context"
	"strconv"

	"github.com/switchyard/flow/internal/value"
	"github.com/switchyard/flow/internal/window"
	"github.com/switchyard/flow/internal/workerpool"
)

// Source is an external collaborator that pushes Trains into one or
// more downstream channels, per spec.md §6. Outs returns the channels
// the scheduler wired to this source's declared stops; Operate starts
// the adapter's worker on pool and returns its worker id. ID identifies
// the source for control-plane routing.
type Source interface {
	ID() int
	Outs() []chan window.Train
	Operate(ctx context.Context, pool *workerpool.Pool, control chan<- Command) (workerpool.ID, error)
}

// Destination drains its upstream channel and writes to an external
// target. Type reports the adapter type string used in the plan
// stencil's Out section ("weaviate", "s3", ...).
type Destination interface {
	ID() int
	Type() string
	Operate(ctx context.Context, in <-chan window.Train, pool *workerpool.Pool, control chan<- Command) (workerpool.ID, error)
}

// Command mirrors station.Command's shape so adapters don't need to
// import internal/station just to signal Ready/Stop. Adapters send it on
// the plan's own adapter control channel, which internal/plan drains and
// logs; it is not converted into a station.Command.
type Command struct {
	Kind   string
	Stop   int
	N      int
	Source string
}

// Ready, Stop and the rest of the control-plane vocabulary an adapter
// may emit: the lower-case forms of station.CommandKind's String() values.
const (
	Ready     = "ready"
	Stop      = "stop"
	Threshold = "threshold"
	Okay      = "okay"
)

// Stamper assigns each outgoing Train the identity a source owes the
// engine: a monotonic per-source id and a watermark mark under the
// source's origin, so downstream stations' watermark strategies advance
// as the source makes progress. One Stamper per Source, used from the
// adapter's single emit goroutine (it is not safe for concurrent use).
type Stamper struct {
	origin string
	seq    uint64
}

// NewStamper creates a Stamper for the source with the given id.
func NewStamper(sourceID int) *Stamper {
	return &Stamper{origin: strconv.Itoa(sourceID)}
}

// Stamp fills in t's ID and Marks from the source's own counter and
// event time, returning the stamped Train.
func (s *Stamper) Stamp(t window.Train) window.Train {
	s.seq++
	t.ID = s.seq
	if t.Marks == nil {
		t.Marks = make(map[string]value.Time, 1)
	}
	t.Marks[s.origin] = t.EventTime
	return t
}
