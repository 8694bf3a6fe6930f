package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/ALEYI17/InfraSight_gpuview/internal/collector"
	"github.com/ALEYI17/InfraSight_gpuview/internal/collector/timeserie"
	"github.com/ALEYI17/InfraSight_gpuview/internal/config"
	"github.com/ALEYI17/InfraSight_gpuview/internal/debounce"
	"github.com/ALEYI17/InfraSight_gpuview/internal/metrics"
	"github.com/ALEYI17/InfraSight_gpuview/internal/notify"
	"github.com/ALEYI17/InfraSight_gpuview/internal/recompute"
	"github.com/ALEYI17/InfraSight_gpuview/internal/render"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
)

const warningTitle = "Experiment load failed"

type inflight struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator ties the debouncer, the recompute engine and the renderer
// together for the experiments it loads. infos, inflight and unloading are
// guarded by mu; loads are serialized by loadMu. Notifications are never
// published while mu is held.
type Orchestrator struct {
	cfg      *config.Config
	opener   types.Opener
	sink     notify.Sink
	engine   *recompute.Engine
	debounce *debounce.Debouncer
	renderer *render.Renderer

	loadMu sync.Mutex

	mu       sync.Mutex
	infos    map[types.ClusterKey]recompute.Info
	inflight map[types.ClusterKey]*inflight
	// keys whose Unload is under way refuse new recomputes
	unloading map[types.ClusterKey]struct{}
	base     context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type Option func(*options)

type options struct {
	clock clock.WithDelayedExecution
}

// WithClock replaces the clock driving the debounce timers.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(o *options) { o.clock = c }
}

func New(cfg *config.Config, opener types.Opener, sink notify.Sink, opts ...Option) *Orchestrator {
	opt := options{clock: clock.RealClock{}}
	for _, fn := range opts {
		fn(&opt)
	}

	o := &Orchestrator{
		cfg:      cfg,
		opener:   opener,
		sink:     sink,
		engine:   recompute.New(opener, sink),
		infos:    make(map[types.ClusterKey]recompute.Info),
		inflight:  make(map[types.ClusterKey]*inflight),
		unloading: make(map[types.ClusterKey]struct{}),
	}
	o.base, o.cancel = context.WithCancel(context.Background())
	o.debounce = debounce.New(cfg.DebounceDelay, o.HandleSettledRange, debounce.WithClock(opt.clock))
	o.renderer = render.New(o.publishSnapshot,
		render.WithEventFunc(o.publishEvent),
		render.WithBand(render.Band{Offset: cfg.SnapshotBandOffset, Height: cfg.SnapshotBandHeight}),
		render.WithStripDomain(cfg.StripDomain))
	return o
}

// Run starts the render loops. Recomputes started afterwards are cancelled
// when ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	o.mu.Lock()
	o.cancel()
	o.base, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()
	o.renderer.Run(ctx)
}

// Close stops every timer, recompute and render loop.
func (o *Orchestrator) Close() error {
	o.debounce.Stop()
	o.mu.Lock()
	for key, inf := range o.inflight {
		inf.cancel()
		delete(o.inflight, key)
	}
	o.cancel()
	o.mu.Unlock()
	o.wg.Wait()
	return o.renderer.Close()
}

func (o *Orchestrator) publishSnapshot(s render.Snapshot) {
	o.sink.Publish(notify.AddCudaEventSnapshot{Key: s.Key, Lower: s.Lower, Upper: s.Upper, Image: s.Image})
}

func (o *Orchestrator) publishEvent(key types.ClusterKey, origin types.Time, rec types.Record) {
	switch r := rec.(type) {
	case types.DataTransfer:
		o.sink.Publish(notify.AddDataTransfer{Key: key, Origin: origin, Details: r})
	case types.KernelExecution:
		o.sink.Publish(notify.AddKernelExecution{Key: key, Origin: origin, Details: r})
	}
}

// LoadExperiment loads the dataset at path. It returns once every load task
// finished; on success exactly one LoadComplete is published, on failure
// exactly one ShowWarning.
func (o *Orchestrator) LoadExperiment(ctx context.Context, path string) (err error) {
	logger := logutil.GetLogger()
	o.loadMu.Lock()
	defer o.loadMu.Unlock()

	start := time.Now()
	defer func() {
		metrics.LoadDuration.Observe(time.Since(start).Seconds())
		metrics.Loads.WithLabelValues(metrics.Outcome(err)).Inc()
	}()

	name, err := o.load(ctx, path)
	if err != nil {
		logger.Error("loading experiment", zap.String("path", path), zap.Error(err))
		o.sink.Publish(notify.ShowWarning{
			Title:   warningTitle,
			Message: err.Error(),
			Dismiss: o.cfg.WarningTimeout,
		})
		return err
	}
	logger.Info("experiment loaded", zap.String("path", path), zap.Duration("took", time.Since(start)))
	o.sink.Publish(notify.LoadComplete{Name: name})
	return nil
}

// LoadExperimentAsync runs LoadExperiment on its own goroutine.
func (o *Orchestrator) LoadExperimentAsync(ctx context.Context, path string) <-chan error {
	out := make(chan error, 1)
	go func() {
		out <- o.LoadExperiment(ctx, path)
		close(out)
	}()
	return out
}

func (o *Orchestrator) load(ctx context.Context, path string) (string, error) {
	src, err := o.opener.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s", path)
	}
	defer src.Close()

	plan, err := newLoadPlan(o.cfg, path, src)
	if err != nil {
		return "", errors.Wrap(err, path)
	}

	o.mu.Lock()
	for _, host := range plan.hosts {
		if _, ok := o.infos[plan.key(host)]; ok {
			o.mu.Unlock()
			return "", errors.Errorf("cluster %s is already loaded", plan.key(host))
		}
	}
	for _, host := range plan.hosts {
		o.infos[plan.key(host)] = plan.info
	}
	o.mu.Unlock()
	for _, cluster := range plan.clusters {
		o.debounce.Track(plan.key(cluster))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.loadView(gctx, plan, src)
	})
	g.Go(func() error {
		return o.loadTables(gctx, plan, src)
	})
	if err := g.Wait(); err != nil {
		o.rollback(plan)
		return "", err
	}
	return plan.name, nil
}

// loadView announces the experiment and, for CUDA data, its clusters,
// periodic samples and raw event visitation.
func (o *Orchestrator) loadView(ctx context.Context, plan *loadPlan, src types.EventSource) error {
	o.sink.Publish(notify.AddExperiment{
		Name:     plan.name,
		Criteria: plan.criteria,
		Clusters: plan.clusters,
		Counters: src.Counters(),
	})
	if !plan.cuda {
		return nil
	}

	for _, cluster := range plan.clusters {
		o.sink.Publish(notify.AddCluster{Key: plan.key(cluster)})
	}

	rsrc, err := o.opener.Open(plan.info.Filename)
	if err != nil {
		return errors.Wrap(err, "opening dataset for event visitation")
	}
	id, err := o.renderer.Attach(plan.criteria, plan.clusters, rsrc)
	if err != nil {
		rsrc.Close()
		return err
	}
	plan.attached = true
	plan.backend = id
	if _, err := o.renderer.Start(id); err != nil {
		return err
	}

	err = collector.RunSamples(ctx, src, src.Threads(), plan.router, func(cluster string, p timeserie.Point) {
		o.sink.Publish(notify.AddPeriodicSample{Key: plan.key(cluster), Begin: p.Begin, End: p.End, Value: p.Value})
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		logutil.GetLogger().Warn("some periodic samples could not be loaded", zap.Error(err))
	}

	duration := plan.extent.DurationMs()
	for _, cluster := range plan.clusters {
		o.sink.Publish(notify.SetMetricDuration{Key: plan.key(cluster), DurationMs: duration})
	}
	return nil
}

// loadTables computes the metric tables over the whole experiment once and
// publishes them for every host cluster.
func (o *Orchestrator) loadTables(ctx context.Context, plan *loadPlan, src types.EventSource) error {
	if len(plan.info.Metrics) == 0 {
		logutil.GetLogger().Info("no time metrics to tabulate", zap.String("experiment", plan.name))
		return nil
	}
	tables, err := o.engine.Compute(ctx, src, plan.info, plan.extent)
	if err != nil {
		return errors.Wrap(err, "computing metric tables")
	}
	for _, host := range plan.hosts {
		o.engine.Publish(plan.key(host), tables)
	}
	return nil
}

// HandleRangeChanged feeds a new visible range of key to the debouncer. It
// reports whether the change was accepted.
func (o *Orchestrator) HandleRangeChanged(key types.ClusterKey, r types.Range, size types.Size) bool {
	if !r.Valid() {
		logutil.GetLogger().Debug("ignoring invalid range",
			zap.Stringer("key", key),
			zap.Float64("lower", r.Lower),
			zap.Float64("upper", r.Upper))
		return false
	}
	return o.debounce.Notify(key, r, size)
}

// HandleSettledRange re-renders the snapshot of key and recomputes its
// metric tables over r. Unknown keys are ignored.
func (o *Orchestrator) HandleSettledRange(key types.ClusterKey, r types.Range, size types.Size) {
	o.renderer.UpdateRange(key, r, size)
	o.recompute(key, r)
}

// RequestView answers a metric, trace or compare view request for key with a
// recompute over r.
func (o *Orchestrator) RequestView(key types.ClusterKey, r types.Range) bool {
	if !r.Valid() {
		return false
	}
	return o.recompute(key, r)
}

// recompute replaces any recompute in flight for key. The new one waits for
// the old one to return before it starts and publishes only while it is
// still current.
func (o *Orchestrator) recompute(key types.ClusterKey, r types.Range) bool {
	logger := logutil.GetLogger()

	o.mu.Lock()
	info, ok := o.infos[key]
	if _, gone := o.unloading[key]; gone {
		ok = false
	}
	if !ok {
		o.mu.Unlock()
		logger.Debug("recompute for unknown cluster", zap.Stringer("key", key))
		return false
	}
	prev := o.inflight[key]
	if prev != nil {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(o.base)
	cur := &inflight{cancel: cancel, done: make(chan struct{})}
	o.inflight[key] = cur
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		defer close(cur.done)
		defer cancel()
		// the entry outlives the publish so a successor or Unload waits for it
		defer func() {
			o.mu.Lock()
			if o.inflight[key] == cur {
				delete(o.inflight, key)
			}
			o.mu.Unlock()
		}()
		if prev != nil {
			<-prev.done
		}

		tables, err := o.engine.Recompute(ctx, info, r)

		o.mu.Lock()
		current := ctx.Err() == nil && o.inflight[key] == cur
		if _, known := o.infos[key]; !known {
			current = false
		}
		if _, gone := o.unloading[key]; gone {
			current = false
		}
		o.mu.Unlock()

		if !current {
			logger.Debug("recompute superseded", zap.Stringer("key", key))
			return
		}
		if err != nil {
			logger.Warn("recompute failed", zap.Stringer("key", key), zap.Error(err))
			o.sink.Publish(notify.ShowWarning{
				Title:   "Metric view update failed",
				Message: err.Error(),
				Dismiss: o.cfg.WarningTimeout,
			})
			return
		}
		o.engine.Publish(key, tables)
	}()
	return true
}

// Unload removes clusters of criteria. The keys stop accepting recomputes
// right away; then pending range changes are cancelled, recomputes in flight
// are cancelled and awaited, surfaces are detached and the cluster infos
// dropped. RemoveCluster goes out last.
func (o *Orchestrator) Unload(criteria string, clusters []string) {
	keys := make([]types.ClusterKey, 0, len(clusters))
	for _, cluster := range clusters {
		keys = append(keys, types.ClusterKey{Criteria: criteria, Cluster: cluster})
	}

	var running []chan struct{}
	o.mu.Lock()
	for _, key := range keys {
		o.unloading[key] = struct{}{}
		if inf, ok := o.inflight[key]; ok {
			inf.cancel()
			running = append(running, inf.done)
		}
	}
	o.mu.Unlock()

	for _, key := range keys {
		o.debounce.CancelAll(key)
	}
	for _, done := range running {
		<-done
	}

	o.renderer.Detach(criteria, clusters)

	o.mu.Lock()
	for _, key := range keys {
		delete(o.infos, key)
		delete(o.unloading, key)
	}
	o.mu.Unlock()

	for _, key := range keys {
		o.sink.Publish(notify.RemoveCluster{Key: key})
	}
}

// rollback forgets a load that failed part way.
func (o *Orchestrator) rollback(plan *loadPlan) {
	for _, cluster := range plan.clusters {
		o.debounce.CancelAll(plan.key(cluster))
	}
	if plan.attached {
		o.renderer.Detach(plan.criteria, plan.clusters)
	}
	o.mu.Lock()
	for _, host := range plan.hosts {
		key := plan.key(host)
		if inf, ok := o.inflight[key]; ok {
			inf.cancel()
			delete(o.inflight, key)
		}
		delete(o.infos, key)
	}
	o.mu.Unlock()
}

// Info returns the recompute info registered for key.
func (o *Orchestrator) Info(key types.ClusterKey) (recompute.Info, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	info, ok := o.infos[key]
	return info, ok
}

// Wait blocks until every recompute started so far has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Renderer exposes the render backend, mainly to wait for visitations.
func (o *Orchestrator) Renderer() *render.Renderer {
	return o.renderer
}
