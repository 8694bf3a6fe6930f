package recompute

import (
	"context"
	"math"
	"testing"

	"github.com/ALEYI17/InfraSight_gpuview/internal/collector/aggregator"
	"github.com/ALEYI17/InfraSight_gpuview/internal/loaders"
	"github.com/ALEYI17/InfraSight_gpuview/internal/notify"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = types.ClusterKey{Criteria: types.CriteriaCUDA, Cluster: "node1"}

func experiment(values map[string]float64, order ...string) *loaders.Experiment {
	th := loaders.ThreadData{Thread: types.Thread{ID: 1, Host: "node1"}}
	for i, fn := range order {
		th.FunctionSamples = append(th.FunctionSamples,
			loaders.FunctionSample{Metric: "exec_time", Function: fn, Time: types.Time(1_000_000 * (i + 1)), Value: values[fn]},
			loaders.FunctionSample{Metric: "inclusive_time", Function: fn, Time: types.Time(1_000_000 * (i + 1)), Value: 2 * values[fn]},
		)
	}
	return &loaders.Experiment{
		Name:   "exp",
		Extent: &types.Interval{Begin: 0, End: 100_000_000},
		Collectors: []types.Collector{{ID: "cuda", Metrics: []types.MetricDesc{
			{ID: "exec_time", ShortName: "Exec Time", ValueType: types.ValueTypeDouble},
			{ID: "count", ShortName: "Count", ValueType: "uint64"},
			{ID: "inclusive_time", ShortName: "Inclusive Time", ValueType: types.ValueTypeDouble},
		}}},
		Threads: []loaders.ThreadData{th},
	}
}

func memoryOpener(t *testing.T, exp *loaders.Experiment) types.Opener {
	return types.OpenerFunc(func(string) (types.EventSource, error) {
		m, err := loaders.NewMemory(exp)
		require.NoError(t, err)
		return m, nil
	})
}

func testInfo() Info {
	ids, headers := DiscoverMetrics(experiment(nil).Collectors, "time")
	return Info{Metrics: ids, Headers: headers, Filename: "exp.db"}
}

func TestDiscoverMetrics(t *testing.T) {
	ids, headers := DiscoverMetrics([]types.Collector{
		{ID: "pcsamp"},
		{ID: "cuda", Metrics: []types.MetricDesc{
			{ID: "exec_time", ShortName: "Exec Time", ValueType: types.ValueTypeDouble},
			{ID: "time_count", ShortName: "N", ValueType: "uint64"},
		}},
		{ID: "later", Metrics: []types.MetricDesc{{ID: "time", ValueType: types.ValueTypeDouble}}},
	}, "time")
	assert.Equal(t, []string{"exec_time"}, ids)
	assert.Equal(t, []string{"Exec Time (msec)", "% of Exec Time"}, headers)

	ids, _ = DiscoverMetrics(nil, "time")
	assert.Empty(t, ids)
}

func TestRecomputeIsDeterministic(t *testing.T) {
	exp := experiment(map[string]float64{"a": 0.001, "b": 0.003, "c": 0.001, "d": 0.002}, "a", "b", "c", "d")
	engine := New(memoryOpener(t, exp), notify.Discard)
	info := testInfo()

	first, err := engine.Recompute(context.Background(), info, types.Range{Lower: 0, Upper: 100})
	require.NoError(t, err)
	second, err := engine.Recompute(context.Background(), info, types.Range{Lower: 0, Upper: 100})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.Len(t, first, 2)
	assert.Equal(t, "exec_time", first[0].Metric)
	assert.Equal(t, []string{"Exec Time (msec)", "% of Exec Time", FunctionHeader}, first[0].Headers)
	var labels []string
	for _, r := range first[0].Rows {
		labels = append(labels, r.Label)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, labels)
	assert.InDelta(t, 3.0, first[0].Rows[0].Value, 1e-9)
	assert.InDelta(t, 42.857142, first[0].Rows[0].Percentage, 1e-5)
}

func TestRecomputeRestrictsToRange(t *testing.T) {
	exp := experiment(map[string]float64{"a": 0.001, "b": 0.003, "c": 0.005}, "a", "b", "c")
	engine := New(memoryOpener(t, exp), notify.Discard)

	tables, err := engine.Recompute(context.Background(), testInfo(), types.Range{Lower: 1.5, Upper: 3.5})
	require.NoError(t, err)
	require.Len(t, tables[0].Rows, 2)
	assert.Equal(t, "c", tables[0].Rows[0].Label)
	assert.Equal(t, "b", tables[0].Rows[1].Label)
}

func TestRecomputeZeroTotal(t *testing.T) {
	exp := experiment(map[string]float64{"a": 0, "b": 0}, "a", "b")
	rec := &notify.Recorder{}
	engine := New(memoryOpener(t, exp), rec)

	tables, err := engine.Recompute(context.Background(), testInfo(), types.Range{Lower: 0, Upper: 100})
	require.NoError(t, err)
	engine.Publish(key, tables)

	rows := rec.OfKind(notify.KIND_ADD_METRIC_VIEW_DATA)
	require.Len(t, rows, 4)
	for _, n := range rows {
		p := n.(notify.AddMetricViewData).Percentage
		assert.Equal(t, 0.0, p)
		assert.False(t, math.IsNaN(p) || math.IsInf(p, 0))
	}
}

func TestRecomputeOpenFailurePublishesNothing(t *testing.T) {
	rec := &notify.Recorder{}
	engine := New(types.OpenerFunc(func(path string) (types.EventSource, error) {
		return nil, errors.New("database is locked")
	}), rec)

	tables, err := engine.Recompute(context.Background(), testInfo(), types.Range{Lower: 0, Upper: 1})
	require.Error(t, err)
	assert.Nil(t, tables)
	assert.Empty(t, rec.All())
}

type failingSource struct {
	*loaders.Memory
}

func (failingSource) MetricValues(string, types.Interval) ([]types.MetricValue, error) {
	return nil, errors.New("query failed")
}

func TestComputeFailureReturnsNoTables(t *testing.T) {
	m, err := loaders.NewMemory(experiment(map[string]float64{"a": 1}, "a"))
	require.NoError(t, err)

	tables, err := New(nil, notify.Discard).Compute(context.Background(), failingSource{m}, testInfo(), m.Extent())
	assert.Error(t, err)
	assert.Nil(t, tables)
}

func TestPublishOrder(t *testing.T) {
	rec := &notify.Recorder{}
	engine := New(nil, rec)
	engine.Publish(key, []Table{{
		Metric:  "exec_time",
		Headers: []string{"h1", "h2", FunctionHeader},
		Rows:    []aggregator.Row{{Value: 2, Percentage: 66.6, Label: "x", Threads: 3}, {Value: 1, Percentage: 33.3, Label: "y", Threads: 1}},
	}})

	all := rec.All()
	require.Len(t, all, 3)
	assert.Equal(t, notify.AddMetricView{Key: key, Metric: "exec_time", Headers: []string{"h1", "h2", FunctionHeader}}, all[0])
	assert.Equal(t, notify.AddMetricViewData{Key: key, Metric: "exec_time", Value: 2, Percentage: 66.6, Label: "x", Threads: 3}, all[1])
	assert.Equal(t, "y", all[2].(notify.AddMetricViewData).Label)
}
