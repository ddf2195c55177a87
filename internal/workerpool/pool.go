// Package workerpool implements the hybrid thread pool (C10 in spec.md
// §4.9): two distinct worker registries — sync workers, each a
// dedicated goroutine asked to stop through its mailbox, and async
// workers, tasks whose concurrency is bounded by a semaphore and which
// are cancelled via their context — kept separate because their
// cancellation semantics differ (cooperative stop vs abort), exactly as
// spec.md's design notes call out. Stop waits for both kinds to return.
// Go's scheduler doesn't distinguish OS threads from green threads the
// way the original runtime's native-thread/tokio-task split does, but
// the two-registry shape is kept anyway since the pool's failure and
// cleanup semantics genuinely differ between the two kinds.
package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ID identifies a worker within a Pool, unique across both registries.
type ID uint64

// Command is the mailbox message a worker's private inbox receives;
// currently only Stop is used, one per worker (distinct from the
// station package's pool-wide control Command).
type Command struct {
	Stop bool
}

type syncWorker struct {
	id      ID
	name    string
	inbox   chan Command
	done    chan struct{}
	dependsOn []ID
}

type asyncWorker struct {
	id        ID
	name      string
	cancel    context.CancelFunc
	done      chan struct{}
	dependsOn []ID
}

// Pool is the engine's hybrid worker registry. SyncWorkers run on their
// own goroutine and are joined on Stop; AsyncWorkers run on a bounded
// pool of goroutines sized by AsyncConcurrency and are aborted via
// context cancellation. A cleanup goroutine drains finished ids and
// removes them from both registries.
type Pool struct {
	log zerolog.Logger

	mu           sync.Mutex
	nextID       ID
	syncWorkers  map[ID]*syncWorker
	asyncWorkers map[ID]*asyncWorker

	asyncSem chan struct{}

	finished chan ID
	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithAsyncConcurrency sets how many async tasks may run concurrently;
// default 20, mirroring spec.md §4.9's "configurable worker thread
// count; default 20".
func WithAsyncConcurrency(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.asyncSem = make(chan struct{}, n)
		}
	}
}

// New creates a Pool and starts its cleanup goroutine.
func New(log zerolog.Logger, opts ...Option) *Pool {
	p := &Pool{
		log:          log,
		syncWorkers:  make(map[ID]*syncWorker),
		asyncWorkers: make(map[ID]*asyncWorker),
		finished:     make(chan ID, 64),
		stopped:      make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	if p.asyncSem == nil {
		p.asyncSem = make(chan struct{}, 20)
	}
	p.wg.Add(1)
	go p.cleanupLoop()
	return p
}

// cleanupLoop drains finished worker ids and removes them from whichever
// registry they belong to, supervising both worlds from a single place.
func (p *Pool) cleanupLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopped:
			return
		case id := <-p.finished:
			p.mu.Lock()
			delete(p.syncWorkers, id)
			delete(p.asyncWorkers, id)
			p.mu.Unlock()
		}
	}
}

// reportFinished hands a completed worker's id to the cleanup loop. Once
// the pool is stopping the cleanup loop has exited, so the send gives up
// rather than blocking wg.Wait forever behind a full buffer.
func (p *Pool) reportFinished(id ID) {
	select {
	case p.finished <- id:
	case <-p.stopped:
	}
}

// ExecuteSync registers fn as a sync worker and starts it immediately on
// its own goroutine, returning its id right away. A panicking fn is
// recovered, logged, and reported as if it had returned that panic as
// an error; siblings are unaffected.
func (p *Pool) ExecuteSync(name string, dependsOn []ID, fn func(stop <-chan struct{}) error) ID {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	w := &syncWorker{id: id, name: name, inbox: make(chan Command, 1), done: make(chan struct{}), dependsOn: dependsOn}
	p.syncWorkers[id] = w
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(w.done)
		defer p.reportFinished(id)
		defer func() {
			if r := recover(); r != nil {
				p.log.Error().Interface("panic", r).Str("worker", name).Msg("workerpool: sync task panicked")
			}
		}()

		stop := make(chan struct{})
		go func() {
			select {
			case cmd := <-w.inbox:
				if cmd.Stop {
					close(stop)
				}
			case <-w.done:
			}
		}()

		if err := fn(stop); err != nil {
			p.log.Error().Err(err).Str("worker", name).Msg("workerpool: sync task returned error")
		}
	}()
	return id
}

// ExecuteAsync schedules fn onto the bounded async goroutine pool.
// Unlike a sync worker it gets no Stop message — Stop cancels its
// context, the Go equivalent of aborting a tokio JoinHandle, and then
// waits for it to return.
func (p *Pool) ExecuteAsync(ctx context.Context, name string, dependsOn []ID, fn func(ctx context.Context) error) ID {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	w := &asyncWorker{id: id, name: name, cancel: cancel, done: make(chan struct{}), dependsOn: dependsOn}
	p.asyncWorkers[id] = w
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(w.done)
		defer p.reportFinished(id)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				p.log.Error().Interface("panic", r).Str("worker", name).Msg("workerpool: async task panicked")
			}
		}()

		select {
		case p.asyncSem <- struct{}{}:
			defer func() { <-p.asyncSem }()
		case <-ctx.Done():
			return
		}

		if err := fn(ctx); err != nil && ctx.Err() == nil {
			p.log.Error().Err(err).Str("worker", name).Msg("workerpool: async task returned error")
		}
	}()
	return id
}

// StopWorker sends Stop to a single sync worker's mailbox; async workers
// are stopped via their own context instead (see Stop).
func (p *Pool) StopWorker(id ID) error {
	p.mu.Lock()
	w, ok := p.syncWorkers[id]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("workerpool: no sync worker %d", id)
	}
	select {
	case w.inbox <- Command{Stop: true}:
	default:
	}
	return nil
}

// Stop cancels every async worker's context, signals Stop to every sync
// worker, and joins everything before returning, mirroring spec.md
// §4.9's "dropping the pool sends Stop to every worker and joins them".
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		for _, w := range p.syncWorkers {
			select {
			case w.inbox <- Command{Stop: true}:
			default:
			}
		}
		for _, w := range p.asyncWorkers {
			w.cancel()
		}
		p.mu.Unlock()
		close(p.stopped)
	})
	p.wg.Wait()
}

// Len reports the number of live workers in each registry, useful for
// tests and the control surface's status view.
func (p *Pool) Len() (sync, async int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.syncWorkers), len(p.asyncWorkers)
}
