package aggregator

import (
	"context"

	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/pkg/errors"
)

// MsecPerSecond converts the seconds reported by an EventSource to the msec
// shown in metric tables.
const MsecPerSecond = 1000.0

// Collect queries metric over interval and returns its ranked rows.
func Collect(ctx context.Context, src types.EventSource, metric string, interval types.Interval) ([]Row, error) {
	values, err := src.MetricValues(metric, interval)
	if err != nil {
		return nil, errors.Wrapf(err, "metric %s", metric)
	}

	ma := NewMetricAggregator()
	for i, v := range values {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ma.Update(v.Function, v.ThreadID, v.Value)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ma.Flush(MsecPerSecond), nil
}
