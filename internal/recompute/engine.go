package recompute

import (
	"context"
	"strings"
	"time"

	"github.com/ALEYI17/InfraSight_gpuview/internal/collector/aggregator"
	"github.com/ALEYI17/InfraSight_gpuview/internal/metrics"
	"github.com/ALEYI17/InfraSight_gpuview/internal/notify"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const FunctionHeader = "Function (defining location)"

// Info is what a cluster needs to rebuild its metric tables. It is written
// once when the cluster is loaded.
type Info struct {
	Metrics  []string
	Headers  []string
	Filename string
}

// Table is the ranked content of one metric view.
type Table struct {
	Metric  string
	Headers []string
	Rows    []aggregator.Row
}

// DiscoverMetrics picks the time metrics of the first collector offering any:
// metric ids containing timeMetric whose values are doubles. Headers come in
// pairs per metric, "<name> (msec)" then "% of <name>".
func DiscoverMetrics(collectors []types.Collector, timeMetric string) (ids, headers []string) {
	for _, c := range collectors {
		for _, m := range c.Metrics {
			if !strings.Contains(m.ID, timeMetric) || m.ValueType != types.ValueTypeDouble {
				continue
			}
			name := m.ShortName
			if name == "" {
				name = m.ID
			}
			ids = append(ids, m.ID)
			headers = append(headers, name+" (msec)", "% of "+name)
		}
		if len(ids) > 0 {
			return ids, headers
		}
	}
	return nil, nil
}

// TableHeaders returns the column headers of the i-th metric of info.
func (info Info) TableHeaders(i int) []string {
	if 2*i+1 >= len(info.Headers) {
		return []string{info.Metrics[i] + " (msec)", "% of " + info.Metrics[i], FunctionHeader}
	}
	return []string{info.Headers[2*i], info.Headers[2*i+1], FunctionHeader}
}

type Engine struct {
	opener types.Opener
	sink   notify.Sink
}

func New(opener types.Opener, sink notify.Sink) *Engine {
	return &Engine{opener: opener, sink: sink}
}

// Compute builds one table per metric of info over interval. Metrics are
// computed concurrently; the first failure cancels the rest.
func (e *Engine) Compute(ctx context.Context, src types.EventSource, info Info, interval types.Interval) ([]Table, error) {
	tables := make([]Table, len(info.Metrics))
	g, gctx := errgroup.WithContext(ctx)
	for i, metric := range info.Metrics {
		g.Go(func() error {
			rows, err := aggregator.Collect(gctx, src, metric, interval)
			if err != nil {
				return err
			}
			tables[i] = Table{Metric: metric, Headers: info.TableHeaders(i), Rows: rows}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

// Recompute reopens the dataset of info and rebuilds every table over r,
// given in msec from the dataset time origin. Nothing is published; on error
// no table is returned.
func (e *Engine) Recompute(ctx context.Context, info Info, r types.Range) (tables []Table, err error) {
	logger := logutil.GetLogger()
	start := time.Now()
	defer func() {
		metrics.RecomputeDuration.Observe(time.Since(start).Seconds())
		metrics.Recomputes.WithLabelValues(metrics.Outcome(err)).Inc()
	}()

	src, err := e.opener.Open(info.Filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", info.Filename)
	}
	defer src.Close()

	interval := r.Interval(src.Extent().Begin)
	tables, err = e.Compute(ctx, src, info, interval)
	if err != nil {
		return nil, err
	}
	logger.Debug("recomputed metric tables",
		zap.String("file", info.Filename),
		zap.Float64("lower", r.Lower),
		zap.Float64("upper", r.Upper),
		zap.Int("tables", len(tables)))
	return tables, nil
}

// Publish resets the view of every table and then sends its rows in rank
// order.
func (e *Engine) Publish(key types.ClusterKey, tables []Table) {
	for _, t := range tables {
		e.sink.Publish(notify.AddMetricView{Key: key, Metric: t.Metric, Headers: t.Headers})
		for _, row := range t.Rows {
			e.sink.Publish(notify.AddMetricViewData{
				Key:        key,
				Metric:     t.Metric,
				Value:      row.Value,
				Percentage: row.Percentage,
				Label:      row.Label,
				Threads:    row.Threads,
			})
		}
	}
}
