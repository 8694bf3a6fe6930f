package main

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/ALEYI17/InfraSight_gpuview/internal/loaders"
	"github.com/ALEYI17/InfraSight_gpuview/internal/metrics"
	"github.com/ALEYI17/InfraSight_gpuview/internal/notify"
	"github.com/ALEYI17/InfraSight_gpuview/internal/orchestrator"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type loadOptions struct {
	rng         *types.Range
	size        types.Size
	snapshotDir string
	linger      time.Duration
}

// Load experiments, optionally move every host cluster to a range and keep
// the session alive long enough for the range change to settle.
func loadCmd(a *app) *cobra.Command {
	var rangeFlag, sizeFlag string
	opts := loadOptions{}

	cmd := &cobra.Command{
		Use:   "load <experiment>...",
		Short: "Load experiments and log the notifications they produce.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rangeFlag != "" {
				r, err := parseRange(rangeFlag)
				if err != nil {
					return err
				}
				opts.rng = &r
			}
			size, err := parseSize(sizeFlag)
			if err != nil {
				return err
			}
			opts.size = size
			return a.load(cmd.Context(), args, opts)
		},
	}
	cmd.Flags().StringVar(&rangeFlag, "range", "", "visible range lower:upper in msec applied to every host cluster")
	cmd.Flags().StringVar(&sizeFlag, "size", "800x600", "viewport size WIDTHxHEIGHT used for snapshots")
	cmd.Flags().StringVar(&opts.snapshotDir, "snapshots", "", "directory receiving snapshot PNG files")
	cmd.Flags().DurationVar(&opts.linger, "linger", 2*time.Second, "how long to keep the session open after loading")
	cmd.Flags().String("metrics-address", "", "serve Prometheus metrics on this address")
	return cmd
}

func (a *app) load(ctx context.Context, paths []string, opts loadOptions) (err error) {
	logger := logutil.GetLogger()

	if opts.snapshotDir != "" {
		if err := os.MkdirAll(opts.snapshotDir, 0o755); err != nil {
			return errors.Wrap(err, "creating snapshot directory")
		}
	}
	if opts.rng != nil && opts.linger <= a.cfg.DebounceDelay {
		logger.Warn("linger is shorter than the debounce delay, the range change will not settle",
			zap.Duration("linger", opts.linger),
			zap.Duration("debounce_delay", a.cfg.DebounceDelay))
	}

	cache, err := loaders.NewCache(a.cfg.DatasetCacheSize, loaders.Opener)
	if err != nil {
		return err
	}

	bus := notify.NewBus()
	pres := newPresenter(opts.snapshotDir)
	presented := pres.Run(ctx, bus.Subscribe())

	var (
		mu          sync.Mutex
		experiments []notify.AddExperiment
	)
	sink := notify.SinkFunc(func(n notify.Notification) {
		if e, ok := n.(notify.AddExperiment); ok {
			mu.Lock()
			experiments = append(experiments, e)
			mu.Unlock()
		}
		bus.Publish(n)
	})

	orch := orchestrator.New(a.cfg, cache, sink)
	orch.Run(ctx)

	if addr := a.cfg.MetricsAddress; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr); err != nil {
				logger.Error("metrics listener failed", zap.String("address", addr), zap.Error(err))
			}
		}()
	}

	defer func() {
		err = multierr.Combine(err, orch.Close())
		bus.Close()
		<-presented
		pres.Summary()
		err = multierr.Append(err, cache.Purge())
	}()

	var errs error
	for _, path := range paths {
		if err := orch.LoadExperiment(ctx, path); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if opts.rng != nil {
		mu.Lock()
		for _, e := range experiments {
			for _, cluster := range e.Clusters {
				if types.IsGPUCluster(cluster) {
					continue
				}
				key := types.ClusterKey{Criteria: e.Criteria, Cluster: cluster}
				if !orch.HandleRangeChanged(key, *opts.rng, opts.size) {
					logger.Warn("range change not accepted", zap.Stringer("key", key))
				}
			}
		}
		mu.Unlock()
	}

	select {
	case <-ctx.Done():
	case <-time.After(opts.linger):
	}
	orch.Wait()
	orch.Renderer().Sync()
	return errs
}
