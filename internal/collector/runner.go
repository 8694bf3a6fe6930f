package collector

import (
	"context"

	"github.com/ALEYI17/InfraSight_gpuview/internal/collector/timeserie"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// SampleRouter decides which cluster receives the points of each counter.
type SampleRouter struct {
	// Cluster maps a thread to its host cluster.
	Cluster func(types.Thread) string
	// GPUCounters holds the indexes of counters plotted on the GPU cluster.
	GPUCounters map[int]bool
}

// Route returns the cluster that plots counter for thread, or "" when the
// counter is not plotted.
func (r SampleRouter) Route(thread types.Thread, counter int) string {
	switch {
	case counter == 0:
		return r.Cluster(thread)
	case r.GPUCounters[counter]:
		return types.GPUCluster(r.Cluster(thread))
	default:
		return ""
	}
}

// RunSamples streams the periodic samples of every thread over the source
// extent into emit. A failing thread is logged and does not stop the others;
// the combined error is returned.
func RunSamples(ctx context.Context, src types.EventSource, threads []types.Thread, router SampleRouter,
	emit func(cluster string, p timeserie.Point)) error {
	logger := logutil.GetLogger()

	var errs error
	for _, th := range threads {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		points, errc := timeserie.Run(ctx, src, th, src.Extent())
		for p := range points {
			if cluster := router.Route(th, p.Counter); cluster != "" {
				emit(cluster, p)
			}
		}
		if err := <-errc; err != nil {
			logger.Warn("periodic sample visitation failed",
				zap.Int64("thread", th.ID),
				zap.String("host", th.Host),
				zap.Error(err))
			errs = multierr.Append(errs, errors.Wrapf(err, "thread %d", th.ID))
		}
	}
	return errs
}
