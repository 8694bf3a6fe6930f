package render

import (
	"context"
	"image"
	"sync"

	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
)

// Snapshot is the rendered band of a cluster plot over [Lower, Upper] msec.
type Snapshot struct {
	Key   types.ClusterKey
	Lower float64
	Upper float64
	Image image.Image
}

type SnapshotFunc func(Snapshot)

// Mailbox hands snapshots to a consumer, keeping only the latest undelivered
// snapshot per key.
type Mailbox struct {
	mu      sync.Mutex
	pending map[types.ClusterKey]Snapshot
	order   []types.ClusterKey
	wake    chan struct{}
	deliver SnapshotFunc
}

func NewMailbox(deliver SnapshotFunc) *Mailbox {
	return &Mailbox{
		pending: make(map[types.ClusterKey]Snapshot),
		wake:    make(chan struct{}, 1),
		deliver: deliver,
	}
}

func (m *Mailbox) Put(s Snapshot) {
	m.mu.Lock()
	if _, ok := m.pending[s.Key]; !ok {
		m.order = append(m.order, s.Key)
	}
	m.pending[s.Key] = s
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Drop discards the undelivered snapshot of key, if any.
func (m *Mailbox) Drop(key types.ClusterKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[key]; !ok {
		return
	}
	delete(m.pending, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Mailbox) take() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Snapshot
	for _, key := range m.order {
		if s, ok := m.pending[key]; ok {
			out = append(out, s)
		}
	}
	m.pending = make(map[types.ClusterKey]Snapshot)
	m.order = nil
	return out
}

func (m *Mailbox) Run(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.wake:
				for _, s := range m.take() {
					if m.deliver != nil {
						m.deliver(s)
					}
				}
			}
		}
	}()
	return done
}
