package timeserie

import (
	"context"

	"github.com/ALEYI17/InfraSight_gpuview/internal/metrics"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
)

// Run visits the periodic samples of thread over interval on its own
// goroutine and streams the resulting points. The error channel yields at
// most one value and is closed once the points channel is closed.
func Run(ctx context.Context, src types.EventSource, thread types.Thread, interval types.Interval) (<-chan Point, <-chan error) {
	out := make(chan Point)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(out)

		acc := NewAccumulator()
		defer func() {
			metrics.VisitedRecords.WithLabelValues("periodic_sample").Add(float64(acc.Len()))
		}()

		err := src.VisitPeriodicSamples(thread, interval, func(s types.PeriodicSample) bool {
			for _, p := range acc.Update(interval.Begin, s) {
				select {
				case <-ctx.Done():
					return false
				case out <- p:
				}
			}
			return true
		})
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			errc <- err
		}
	}()

	return out, errc
}
