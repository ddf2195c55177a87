package plan

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/switchyard/flow/internal/algebra"
	"github.com/switchyard/flow/internal/operator"
	"github.com/switchyard/flow/internal/value"
	"github.com/switchyard/flow/internal/window"
	"github.com/switchyard/flow/internal/workerpool"
)

// stubResolver always builds a passthrough projection, since query
// language parsing is out of scope; it exists only so Build has a
// Resolver to call when a station declares a non-empty query clause.
type stubResolver struct{}

func (stubResolver) Resolve(language, query string, inputs []int) (*algebra.AlgebraRoot, algebra.ID, error) {
	root := algebra.NewAlgebraRoot()
	scanID := root.AddNode(algebra.NewIndexScan(0))
	projID := root.AddNode(algebra.NewProject(scanID, operator.NewInput()))
	root.Connect(projID, scanID)
	return root, projID, nil
}

func TestBuildAndOperateTwoStationChain(t *testing.T) {
	st, err := ParseStencil("1--2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pool := workerpool.New(zerolog.Nop())
	defer pool.Stop()

	p, err := Build(st, stubResolver{}, pool, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	tap := p.Platforms[2].Outgoing.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Operate(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("operate: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("operate did not complete startup in time")
	}

	p.Platforms[1].Incoming <- window.Train{Values: []value.Value{value.Int(7)}}

	select {
	case out := <-tap:
		if len(out.Values) != 1 || out.Values[0].AsInt() != 7 {
			t.Fatalf("expected [7] at stop 2, got %v", out.Values)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for train to reach stop 2")
	}
}

func TestBuildRejectsLayoutMismatch(t *testing.T) {
	st, err := ParseStencil("1(i)--2(t)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pool := workerpool.New(zerolog.Nop())
	defer pool.Stop()

	if _, err := Build(st, stubResolver{}, pool, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected a layout mismatch error")
	}
}
