package debounce

import (
	"sync"
	"time"

	"github.com/ALEYI17/InfraSight_gpuview/internal/metrics"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

const DefaultDelay = 500 * time.Millisecond

// SettleFunc receives the last range requested for key once no new request
// arrived for the debounce delay.
type SettleFunc func(key types.ClusterKey, r types.Range, size types.Size)

type request struct {
	id    uuid.UUID
	rng   types.Range
	size  types.Size
	timer clock.Timer
}

// Debouncer coalesces range changes per cluster. At most one timer is alive
// per key; a new request stops the previous timer and a timer that could not
// be stopped in time finds its request replaced and does nothing.
type Debouncer struct {
	mu       sync.Mutex
	delay    time.Duration
	clock    clock.WithDelayedExecution
	onSettle SettleFunc
	tracked  map[types.ClusterKey]struct{}
	pending  map[types.ClusterKey]*request
	stopped  bool
}

type Option func(*Debouncer)

func WithClock(c clock.WithDelayedExecution) Option {
	return func(d *Debouncer) {
		d.clock = c
	}
}

func New(delay time.Duration, onSettle SettleFunc, opts ...Option) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	d := &Debouncer{
		delay:    delay,
		clock:    clock.RealClock{},
		onSettle: onSettle,
		tracked:  make(map[types.ClusterKey]struct{}),
		pending:  make(map[types.ClusterKey]*request),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Track makes key eligible for Notify.
func (d *Debouncer) Track(key types.ClusterKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tracked[key] = struct{}{}
}

// Notify (re)starts the settle timer of key with r and size. It reports
// whether the request was accepted; requests for keys that are not tracked
// are ignored.
func (d *Debouncer) Notify(key types.ClusterKey, r types.Range, size types.Size) bool {
	logger := logutil.GetLogger()

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.tracked[key]; !ok || d.stopped {
		metrics.DebounceEvents.WithLabelValues("ignored").Inc()
		logger.Debug("range change for unknown cluster", zap.Stringer("key", key))
		return false
	}

	if old, ok := d.pending[key]; ok {
		old.timer.Stop()
		delete(d.pending, key)
		metrics.DebounceEvents.WithLabelValues("superseded").Inc()
	}

	req := &request{id: uuid.New(), rng: r, size: size}
	id := req.id
	req.timer = d.clock.AfterFunc(d.delay, func() {
		d.fire(key, id)
	})
	d.pending[key] = req
	metrics.DebounceEvents.WithLabelValues("notified").Inc()
	return true
}

func (d *Debouncer) fire(key types.ClusterKey, id uuid.UUID) {
	d.mu.Lock()
	req, ok := d.pending[key]
	if !ok || req.id != id {
		d.mu.Unlock()
		metrics.DebounceEvents.WithLabelValues("stale").Inc()
		return
	}
	delete(d.pending, key)
	onSettle := d.onSettle
	d.mu.Unlock()

	metrics.DebounceEvents.WithLabelValues("settled").Inc()
	logutil.GetLogger().Debug("range settled",
		zap.Stringer("key", key),
		zap.Float64("lower", req.rng.Lower),
		zap.Float64("upper", req.rng.Upper))
	if onSettle != nil {
		onSettle(key, req.rng, req.size)
	}
}

// CancelAll drops any pending request for key without settling it and stops
// tracking the key.
func (d *Debouncer) CancelAll(key types.ClusterKey) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if req, ok := d.pending[key]; ok {
		req.timer.Stop()
		delete(d.pending, key)
		metrics.DebounceEvents.WithLabelValues("cancelled").Inc()
	}
	delete(d.tracked, key)
}

func (d *Debouncer) Pending(key types.ClusterKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

func (d *Debouncer) Tracked(key types.ClusterKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.tracked[key]
	return ok
}

// Stop cancels every pending request. Later calls to Notify are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, req := range d.pending {
		req.timer.Stop()
		delete(d.pending, key)
	}
	d.stopped = true
}
