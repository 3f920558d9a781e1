package pipeline

import (
	"sync"

	"github.com/PaulBabatuyi/MediaQueue/internal/queue"
)

// Subscription delivers queue change events. It owns its teardown:
// Close unregisters it and closes the channel, and is safe to call
// more than once.
type Subscription struct {
	ch     chan queue.Event
	closed chan struct{}
	stop   func()
	once   sync.Once
}

// Subscribe returns a subscription receiving every queue mutation.
// A slow consumer drops events rather than stalling the queue.
func (p *Pipeline) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &Subscription{
		ch:     make(chan queue.Event, buffer),
		closed: make(chan struct{}),
	}

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = sub
	p.mu.Unlock()

	sub.stop = func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
	return sub
}

// Events is the receive side; it is closed by Close.
func (s *Subscription) Events() <-chan queue.Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.stop()
		close(s.closed)
		close(s.ch)
	})
}

func (s *Subscription) send(ev queue.Event) {
	select {
	case <-s.closed:
	case s.ch <- ev:
	default:
	}
}
