package timeserie

import (
	"context"
	"testing"

	"github.com/ALEYI17/InfraSight_gpuview/internal/loaders"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorDeltas(t *testing.T) {
	acc := NewAccumulator()
	origin := types.Time(1_000_000)

	first := acc.Update(origin, types.PeriodicSample{Time: 3_000_000, Counts: []uint64{100, 7}})
	assert.Equal(t, []Point{
		{Counter: 0, Begin: 0, End: 2, Value: 0},
		{Counter: 1, Begin: 0, End: 2, Value: 0},
	}, first)

	second := acc.Update(origin, types.PeriodicSample{Time: 5_000_000, Counts: []uint64{150, 5}})
	assert.Equal(t, []Point{
		{Counter: 0, Begin: 2, End: 4, Value: 50},
		{Counter: 1, Begin: 2, End: 4, Value: -2},
	}, second)

	assert.Equal(t, 2, acc.Len())

	third := acc.Update(origin, types.PeriodicSample{Time: 6_000_000, Counts: []uint64{160, 5, 9}})
	assert.Equal(t, []Point{
		{Counter: 0, Begin: 4, End: 5, Value: 10},
		{Counter: 1, Begin: 4, End: 5, Value: 0},
		{Counter: 2, Begin: 4, End: 5, Value: 0},
	}, third)
	assert.Equal(t, 3, acc.Len())

	fresh := NewAccumulator()
	again := fresh.Update(origin, types.PeriodicSample{Time: 5_000_000, Counts: []uint64{150}})
	assert.Equal(t, Point{Counter: 0, Begin: 0, End: 4, Value: 0}, again[0])
}

func TestRunStreamsPoints(t *testing.T) {
	src, err := loaders.NewMemory(&loaders.Experiment{
		Counters: []string{"c0"},
		Threads: []loaders.ThreadData{{
			Thread: types.Thread{ID: 1, Host: "h"},
			PeriodicSamples: []types.PeriodicSample{
				{Time: 0, Counts: []uint64{1}},
				{Time: 2_000_000, Counts: []uint64{4}},
				{Time: 4_000_000, Counts: []uint64{10}},
			},
		}},
	})
	require.NoError(t, err)

	points, errc := Run(context.Background(), src, src.Threads()[0], src.Extent())
	var got []Point
	for p := range points {
		got = append(got, p)
	}
	require.NoError(t, <-errc)
	assert.Equal(t, []Point{
		{Counter: 0, Begin: 0, End: 0, Value: 0},
		{Counter: 0, Begin: 0, End: 2, Value: 3},
		{Counter: 0, Begin: 2, End: 4, Value: 6},
	}, got)
}

func TestRunStopsOnCancel(t *testing.T) {
	src, err := loaders.NewMemory(&loaders.Experiment{
		Counters: []string{"c0"},
		Threads: []loaders.ThreadData{{
			Thread:          types.Thread{ID: 1, Host: "h"},
			PeriodicSamples: []types.PeriodicSample{{Time: 0, Counts: []uint64{1}}, {Time: 1, Counts: []uint64{2}}},
		}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	points, errc := Run(ctx, src, src.Threads()[0], src.Extent())
	for range points {
	}
	assert.ErrorIs(t, <-errc, context.Canceled)
}
