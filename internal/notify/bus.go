package notify

import (
	"sync"
)

// Bus fans notifications out to subscribers by kind. Each subscriber has its
// own unbounded queue, so a slow subscriber never blocks Publish and sees
// notifications in publish order.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

type Subscription struct {
	C <-chan Notification

	bus   *Bus
	kinds map[Kind]bool

	mu      sync.Mutex
	queue   []Notification
	wake    chan struct{}
	done    chan struct{}
	stopped sync.Once
}

// Subscribe returns a subscription receiving the given kinds, or every kind
// when none is given.
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	out := make(chan Notification)
	s := &Subscription{
		C:    out,
		bus:  b,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	if len(kinds) > 0 {
		s.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = true
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(out)
		return s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump(out)
	return s
}

func (b *Bus) Publish(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if s.kinds == nil || s.kinds[n.Kind()] {
			s.enqueue(n)
		}
	}
}

// Close stops every subscription. Queued notifications are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.closed = true
	b.mu.Unlock()

	for s := range subs {
		s.stop()
	}
}

func (s *Subscription) enqueue(n Notification) {
	s.mu.Lock()
	s.queue = append(s.queue, n)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump(out chan<- Notification) {
	defer close(out)
	for {
		s.mu.Lock()
		pending := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, n := range pending {
			select {
			case out <- n:
			case <-s.done:
				return
			}
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) stop() {
	s.stopped.Do(func() { close(s.done) })
}

// Close unsubscribes. C is closed once the pump has exited.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.stop()
}
