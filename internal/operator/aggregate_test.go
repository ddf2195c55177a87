package operator

import (
	"testing"

	"github.com/switchyard/flow/internal/value"
)

func TestCountLoaderCountsRegardlessOfContent(t *testing.T) {
	factory, proj, err := CompileLoader(NewCount())
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	l := factory()
	for i := 0; i < 3; i++ {
		l.Load(proj(value.Int(int64(i))))
	}
	if l.Get().AsInt() != 3 {
		t.Fatalf("expected count 3, got %v", l.Get())
	}
}

func TestSumLoaderAccumulates(t *testing.T) {
	factory, proj, err := CompileLoader(NewSum(NewInput()))
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	l := factory()
	for _, n := range []int64{1, 2, 3} {
		l.Load(proj(value.Int(n)))
	}
	if l.Get().AsInt() != 6 {
		t.Fatalf("expected sum 6, got %v", l.Get())
	}
}

func TestAvgLoaderDividesLazily(t *testing.T) {
	factory, proj, _ := CompileLoader(NewAvg(NewInput()))
	l := factory()
	for _, n := range []int64{2, 4, 6} {
		l.Load(proj(value.Int(n)))
	}
	got := l.Get()
	if got.Kind() != value.KindFloat {
		t.Fatalf("expected float avg, got %v", got.Kind())
	}
	if got.AsFloat().Float64() != 4.0 {
		t.Fatalf("expected avg 4.0, got %v", got.AsFloat().Float64())
	}
}

func TestFreshLoaderResetsState(t *testing.T) {
	factory, proj, _ := CompileLoader(NewSum(NewInput()))
	l := factory()
	l.Load(proj(value.Int(10)))
	fresh := l.Fresh()
	if fresh.Get().AsInt() != 0 {
		t.Fatalf("expected fresh loader to start at 0, got %v", fresh.Get())
	}
}
