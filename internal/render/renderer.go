package render

import (
	"context"
	"sync"

	"github.com/ALEYI17/InfraSight_gpuview/internal/metrics"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// EventFunc receives every raw event delivered to a live surface, on the
// owner loop.
type EventFunc func(key types.ClusterKey, origin types.Time, rec types.Record)

// BackendID identifies one attached dataset.
type BackendID uint64

type backend struct {
	id       BackendID
	criteria string
	src      types.EventSource
	// gens maps each host cluster to the generation of the surface it feeds
	gens    map[string]uint64
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
	once    sync.Once
	err     error
}

// finish cancels the visitation and releases the dataset. It is idempotent.
func (b *backend) finish() error {
	b.once.Do(func() {
		b.cancel()
		b.err = b.src.Close()
		close(b.done)
	})
	return b.err
}

// Renderer visits the raw events of attached clusters on a shared worker
// loop and maintains one surface per host cluster on the owner loop. The
// surface registry and backends are guarded by mu; the surfaces themselves
// live in owned and are only touched by owner loop operations.
type Renderer struct {
	mu       sync.Mutex
	registry map[types.ClusterKey]uint64
	backends map[BackendID]*backend
	nextGen  uint64
	nextID   BackendID

	owned map[types.ClusterKey]*Surface

	worker  *Loop
	owner   *Loop
	mailbox *Mailbox
	onEvent EventFunc
	band    Band
	strip   bool

	cancel context.CancelFunc
	done   []<-chan struct{}
}

type Option func(*Renderer)

func WithBand(b Band) Option {
	return func(r *Renderer) { r.band = b }
}

func WithEventFunc(fn EventFunc) Option {
	return func(r *Renderer) { r.onEvent = fn }
}

// WithStripDomain controls how thread host names map to cluster names.
func WithStripDomain(strip bool) Option {
	return func(r *Renderer) { r.strip = strip }
}

func New(onSnapshot SnapshotFunc, opts ...Option) *Renderer {
	r := &Renderer{
		registry: make(map[types.ClusterKey]uint64),
		backends: make(map[BackendID]*backend),
		owned:    make(map[types.ClusterKey]*Surface),
		worker:   NewLoop("render-worker"),
		owner:    NewLoop("render-owner"),
		mailbox:  NewMailbox(onSnapshot),
		band:     DefaultBand,
		strip:    true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the worker loop, the owner loop and snapshot delivery.
func (r *Renderer) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = []<-chan struct{}{
		r.worker.Run(ctx),
		r.owner.Run(ctx),
		r.mailbox.Run(ctx),
	}
}

// Close cancels every visitation, stops the loops and releases the datasets
// of unfinished backends.
func (r *Renderer) Close() error {
	r.mu.Lock()
	backends := r.backends
	r.backends = make(map[BackendID]*backend)
	r.registry = make(map[types.ClusterKey]uint64)
	for _, b := range backends {
		b.cancel()
	}
	r.mu.Unlock()

	r.worker.Stop()
	r.owner.Stop()
	if r.cancel != nil {
		r.cancel()
	}
	for _, done := range r.done {
		<-done
	}

	var errs error
	for _, b := range backends {
		errs = multierr.Append(errs, b.finish())
	}
	return errs
}

// Attach binds clusters of criteria to src and requests one surface per host
// cluster. Several datasets may share a criteria as long as their clusters
// differ. The renderer owns src from now on, unless an error is returned.
func (r *Renderer) Attach(criteria string, clusters []string, src types.EventSource) (BackendID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var hosts []string
	for _, cluster := range clusters {
		if types.IsGPUCluster(cluster) {
			continue
		}
		key := types.ClusterKey{Criteria: criteria, Cluster: cluster}
		if _, ok := r.registry[key]; ok {
			return 0, errors.Errorf("cluster %s already attached", key)
		}
		hosts = append(hosts, cluster)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.nextID++
	b := &backend{
		id:       r.nextID,
		criteria: criteria,
		src:      src,
		gens:     make(map[string]uint64, len(hosts)),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	r.backends[b.id] = b

	extent := src.Extent()
	for _, cluster := range hosts {
		key := types.ClusterKey{Criteria: criteria, Cluster: cluster}
		r.nextGen++
		gen := r.nextGen
		r.registry[key] = gen
		b.gens[cluster] = gen
		r.owner.Post(func() {
			r.owned[key] = newSurface(key, gen, extent)
		})
	}
	return b.id, nil
}

// Start runs the single visitation of backend id. The returned channel is
// closed once the visitation finished, its snapshot pass ran and the backend
// was released.
func (r *Renderer) Start(id BackendID) (<-chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.backends[id]
	if !ok {
		return nil, errors.Errorf("backend %d is not attached", id)
	}
	if b.started {
		return nil, errors.Errorf("backend %d already started", id)
	}
	b.started = true
	if !r.worker.Post(func() { r.visit(b) }) {
		return nil, errors.New("renderer is closed")
	}
	return b.done, nil
}

func (r *Renderer) visit(b *backend) {
	logger := logutil.GetLogger()
	extent := b.src.Extent()

	var errs error
	for _, th := range b.src.Threads() {
		cluster := types.ClusterName(th.Host, r.strip)
		gen, ok := b.gens[cluster]
		if !ok {
			continue
		}
		key := types.ClusterKey{Criteria: b.criteria, Cluster: cluster}

		err := b.src.VisitDataTransfers(th, extent, func(dt types.DataTransfer) bool {
			return r.post(b, key, gen, extent.Begin, dt)
		})
		errs = multierr.Append(errs, errors.Wrapf(err, "data transfers of thread %d", th.ID))

		err = b.src.VisitKernelExecutions(th, extent, func(k types.KernelExecution) bool {
			return r.post(b, key, gen, extent.Begin, k)
		})
		errs = multierr.Append(errs, errors.Wrapf(err, "kernel executions of thread %d", th.ID))
	}
	if errs != nil {
		logger.Warn("event visitation incomplete", zap.String("criteria", b.criteria), zap.Error(errs))
	}
	if b.ctx.Err() != nil {
		logger.Debug("event visitation cancelled", zap.String("criteria", b.criteria), zap.Uint64("backend", uint64(b.id)))
	}

	posted := r.owner.Post(func() {
		r.snapshotPass(b)
		r.release(b)
	})
	if !posted {
		r.release(b)
	}
}

// post forwards rec to the owner loop and reports whether the visitation
// should go on.
func (r *Renderer) post(b *backend, key types.ClusterKey, gen uint64, origin types.Time, rec types.Record) bool {
	if b.ctx.Err() != nil {
		return false
	}
	return r.owner.Post(func() { r.deliver(key, gen, origin, rec) })
}

func (r *Renderer) deliver(key types.ClusterKey, gen uint64, origin types.Time, rec types.Record) {
	s, ok := r.owned[key]
	if !ok || s.gen != gen || !r.live(key, gen) {
		metrics.VisitedRecords.WithLabelValues("dropped").Inc()
		return
	}
	s.Add(rec)
	switch rec.(type) {
	case types.DataTransfer:
		metrics.VisitedRecords.WithLabelValues("data_transfer").Inc()
	case types.KernelExecution:
		metrics.VisitedRecords.WithLabelValues("kernel_execution").Inc()
	}
	if r.onEvent != nil {
		r.onEvent(key, origin, rec)
	}
}

func (r *Renderer) live(key types.ClusterKey, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry[key] == gen
}

func (r *Renderer) release(b *backend) {
	r.mu.Lock()
	if r.backends[b.id] == b {
		delete(r.backends, b.id)
	}
	r.mu.Unlock()

	if err := b.finish(); err != nil {
		logutil.GetLogger().Warn("closing dataset", zap.String("criteria", b.criteria), zap.Error(err))
	}
}

// snapshotPass renders every live surface fed by b. Owner loop only.
func (r *Renderer) snapshotPass(b *backend) {
	for cluster, gen := range b.gens {
		key := types.ClusterKey{Criteria: b.criteria, Cluster: cluster}
		if s, ok := r.owned[key]; ok && s.gen == gen && r.live(key, gen) {
			r.renderSurface(s)
		}
	}
}

func (r *Renderer) renderSurface(s *Surface) {
	img, ok := s.Render(r.band)
	if !ok {
		metrics.Snapshots.WithLabelValues("skipped").Inc()
		logutil.GetLogger().Debug("snapshot skipped",
			zap.Stringer("key", s.Key),
			zap.Int("width", s.size.Width),
			zap.Int("height", s.size.Height))
		return
	}
	metrics.Snapshots.WithLabelValues("rendered").Inc()
	rng := s.Range()
	r.mailbox.Put(Snapshot{Key: s.Key, Lower: rng.Lower, Upper: rng.Upper, Image: img})
}

// Detach drops the surfaces of clusters. Events and range updates still in
// flight for them are discarded. A backend left without live surfaces has
// its visitation cancelled.
func (r *Renderer) Detach(criteria string, clusters []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cluster := range clusters {
		key := types.ClusterKey{Criteria: criteria, Cluster: cluster}
		gen, ok := r.registry[key]
		if !ok {
			continue
		}
		delete(r.registry, key)
		r.mailbox.Drop(key)
		r.owner.Post(func() {
			if s, ok := r.owned[key]; ok && s.gen == gen {
				delete(r.owned, key)
			}
		})
	}

	for id, b := range r.backends {
		if b.criteria != criteria || r.feedsLiveSurface(b) {
			continue
		}
		b.cancel()
		if !b.started {
			delete(r.backends, id)
			go r.release(b)
		}
	}
}

// feedsLiveSurface reports whether any surface of b is still registered.
// Callers hold mu.
func (r *Renderer) feedsLiveSurface(b *backend) bool {
	for cluster, gen := range b.gens {
		if r.registry[types.ClusterKey{Criteria: b.criteria, Cluster: cluster}] == gen {
			return true
		}
	}
	return false
}

// UpdateRange reconfigures the surface of key and renders a new snapshot.
// It reports false when key has no surface. An update overtaken by Detach
// renders nothing.
func (r *Renderer) UpdateRange(key types.ClusterKey, rng types.Range, size types.Size) bool {
	r.mu.Lock()
	gen, ok := r.registry[key]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.owner.Post(func() {
		s, ok := r.owned[key]
		if !ok || s.gen != gen || !r.live(key, gen) {
			return
		}
		s.Configure(rng, size)
		r.renderSurface(s)
	})
}

func (r *Renderer) HasSurface(key types.ClusterKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.registry[key]
	return ok
}

// Sync waits for the work already posted to both loops.
func (r *Renderer) Sync() {
	r.worker.Sync()
	r.owner.Sync()
}
