package station

import (
	"sync"

	"github.com/switchyard/flow/internal/window"
)

// MultiSender fans a Train out to every downstream station subscribed to
// this station's outbound edge. Sends block per subscriber once that
// subscriber's buffer is full, so a slow downstream station delays
// delivery to the subscribers after it; its own Threshold signal is what
// reports the backlog.
type MultiSender struct {
	mu   sync.RWMutex
	subs []chan window.Train
}

// NewMultiSender creates an empty fan-out sender.
func NewMultiSender() *MultiSender { return &MultiSender{} }

// Subscribe creates a channel with the given buffer, registers it as a
// downstream recipient and returns it.
func (m *MultiSender) Subscribe(buffer int) chan window.Train {
	ch := make(chan window.Train, buffer)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Send delivers t to every subscriber, blocking per-subscriber (the
// channel's own buffer absorbs bursts; a station's inbound threshold
// check is what surfaces sustained backpressure, not this call).
func (m *MultiSender) Send(t window.Train) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs {
		ch <- t
	}
}

// Close closes every subscriber channel, signaling end-of-stream
// downstream.
func (m *MultiSender) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		close(ch)
	}
}
