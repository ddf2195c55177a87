package workerpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSyncWorkerStopsCooperatively(t *testing.T) {
	p := New(zerolog.Nop())
	defer p.Stop()

	started := make(chan struct{})
	stopped := make(chan struct{})
	id := p.ExecuteSync("loop", nil, func(stop <-chan struct{}) error {
		close(started)
		<-stop
		close(stopped)
		return nil
	})

	<-started
	if err := p.StopWorker(id); err != nil {
		t.Fatalf("stop worker: %v", err)
	}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("sync worker did not observe Stop")
	}
}

func TestAsyncWorkerAbortsOnPoolStop(t *testing.T) {
	p := New(zerolog.Nop())
	started := make(chan struct{})
	canceled := make(chan struct{})
	p.ExecuteAsync(context.Background(), "task", nil, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(canceled)
		return ctx.Err()
	})

	<-started
	p.Stop()
	select {
	case <-canceled:
	default:
		t.Fatal("expected async task context to be canceled by Stop")
	}
}

func TestPanickingSyncTaskDoesNotWedgePool(t *testing.T) {
	p := New(zerolog.Nop())
	defer p.Stop()

	p.ExecuteSync("boom", nil, func(stop <-chan struct{}) error {
		panic("kaboom")
	})

	done := make(chan struct{})
	p.ExecuteSync("sibling", nil, func(stop <-chan struct{}) error {
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sibling task did not run after a sibling panicked")
	}
}

func TestErroringAsyncTaskIsReportedNotFatal(t *testing.T) {
	p := New(zerolog.Nop())
	defer p.Stop()

	done := make(chan struct{})
	p.ExecuteAsync(context.Background(), "erroring", nil, func(ctx context.Context) error {
		defer close(done)
		return errors.New("boom")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("erroring async task never completed")
	}
}
