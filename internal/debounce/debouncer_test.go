package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

type settled struct {
	key  types.ClusterKey
	rng  types.Range
	size types.Size
}

type settleLog struct {
	mu    sync.Mutex
	calls []settled
}

func (l *settleLog) record(key types.ClusterKey, r types.Range, size types.Size) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, settled{key, r, size})
}

func (l *settleLog) all() []settled {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]settled(nil), l.calls...)
}

var (
	node1    = types.ClusterKey{Criteria: types.CriteriaCUDA, Cluster: "node1"}
	node2    = types.ClusterKey{Criteria: types.CriteriaCUDA, Cluster: "node2"}
	viewport = types.Size{Width: 800, Height: 600}
)

func newTestDebouncer() (*Debouncer, *settleLog, *clocktesting.FakeClock) {
	log := &settleLog{}
	fc := clocktesting.NewFakeClock(time.Now())
	d := New(DefaultDelay, log.record, WithClock(fc))
	return d, log, fc
}

func TestBurstSettlesOnceWithLastRange(t *testing.T) {
	d, log, fc := newTestDebouncer()
	d.Track(node1)

	for i := 0; i < 5; i++ {
		require.True(t, d.Notify(node1, types.Range{Lower: float64(i), Upper: float64(i + 10)}, viewport))
		fc.Step(100 * time.Millisecond)
	}
	assert.Empty(t, log.all())
	assert.True(t, d.Pending(node1))

	fc.Step(400 * time.Millisecond)
	assert.Equal(t, []settled{{node1, types.Range{Lower: 4, Upper: 14}, viewport}}, log.all())
	assert.False(t, d.Pending(node1))
	assert.False(t, fc.HasWaiters())

	fc.Step(time.Second)
	assert.Len(t, log.all(), 1)
}

func TestKeysAreIndependent(t *testing.T) {
	d, log, fc := newTestDebouncer()
	d.Track(node1)
	d.Track(node2)

	d.Notify(node1, types.Range{Lower: 1, Upper: 2}, viewport)
	fc.Step(300 * time.Millisecond)
	d.Notify(node2, types.Range{Lower: 5, Upper: 6}, viewport)
	fc.Step(200 * time.Millisecond)

	assert.Equal(t, []settled{{node1, types.Range{Lower: 1, Upper: 2}, viewport}}, log.all())
	assert.True(t, d.Pending(node2))

	fc.Step(300 * time.Millisecond)
	calls := log.all()
	require.Len(t, calls, 2)
	assert.Equal(t, node2, calls[1].key)
}

func TestCancelAllPreventsSettle(t *testing.T) {
	d, log, fc := newTestDebouncer()
	d.Track(node1)

	d.Notify(node1, types.Range{Lower: 10, Upper: 20}, viewport)
	fc.Step(100 * time.Millisecond)
	d.CancelAll(node1)
	assert.False(t, fc.HasWaiters())

	fc.Step(time.Second)
	assert.Empty(t, log.all())

	assert.False(t, d.Notify(node1, types.Range{Lower: 10, Upper: 20}, viewport))
	fc.Step(time.Second)
	assert.Empty(t, log.all())
}

func TestStaleTimerIsNoop(t *testing.T) {
	d, log, _ := newTestDebouncer()
	d.Track(node1)

	d.Notify(node1, types.Range{Lower: 1, Upper: 2}, viewport)
	stale := d.pending[node1].id
	d.Notify(node1, types.Range{Lower: 3, Upper: 4}, viewport)

	d.fire(node1, stale)
	assert.Empty(t, log.all())
	assert.True(t, d.Pending(node1))

	d.fire(node1, d.pending[node1].id)
	assert.Equal(t, []settled{{node1, types.Range{Lower: 3, Upper: 4}, viewport}}, log.all())
}

func TestUntrackedKeyIsIgnored(t *testing.T) {
	d, log, fc := newTestDebouncer()
	assert.False(t, d.Notify(node1, types.Range{Lower: 1, Upper: 2}, viewport))
	assert.False(t, d.Pending(node1))
	assert.False(t, fc.HasWaiters())
	fc.Step(time.Second)
	assert.Empty(t, log.all())
}

func TestStop(t *testing.T) {
	d, log, fc := newTestDebouncer()
	d.Track(node1)
	d.Track(node2)
	d.Notify(node1, types.Range{Lower: 1, Upper: 2}, viewport)
	d.Notify(node2, types.Range{Lower: 1, Upper: 2}, viewport)

	d.Stop()
	assert.False(t, fc.HasWaiters())
	assert.False(t, d.Notify(node1, types.Range{Lower: 1, Upper: 2}, viewport))
	fc.Step(time.Second)
	assert.Empty(t, log.all())
}

func TestRealClockSettles(t *testing.T) {
	log := &settleLog{}
	d := New(20*time.Millisecond, log.record)
	d.Track(node1)
	defer d.Stop()

	for i := 0; i < 3; i++ {
		d.Notify(node1, types.Range{Lower: float64(i), Upper: 10}, viewport)
	}
	assert.Eventually(t, func() bool { return len(log.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return len(log.all()) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, types.Range{Lower: 2, Upper: 10}, log.all()[0].rng)
}
