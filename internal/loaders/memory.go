package loaders

import (
	"sort"

	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/pkg/errors"
)

// Experiment is the in-memory form of a recorded experiment.
type Experiment struct {
	Name       string            `yaml:"name"`
	Collectors []types.Collector `yaml:"collectors"`
	Counters   []string          `yaml:"counters"`
	Extent     *types.Interval   `yaml:"extent,omitempty"`
	Threads    []ThreadData      `yaml:"threads"`
}

type ThreadData struct {
	types.Thread     `yaml:",inline"`
	DataTransfers    []types.DataTransfer    `yaml:"data_transfers"`
	KernelExecutions []types.KernelExecution `yaml:"kernel_executions"`
	PeriodicSamples  []types.PeriodicSample  `yaml:"periodic_samples"`
	FunctionSamples  []FunctionSample        `yaml:"function_samples"`
}

// FunctionSample attributes value seconds of metric to function at Time.
type FunctionSample struct {
	Metric   string     `yaml:"metric"`
	Function string     `yaml:"function"`
	Time     types.Time `yaml:"time"`
	Value    float64    `yaml:"value"`
}

// Memory serves an Experiment held entirely in memory. It is read-only after
// construction.
type Memory struct {
	exp     *Experiment
	extent  types.Interval
	threads map[int64]*ThreadData
}

func NewMemory(exp *Experiment) (*Memory, error) {
	if exp == nil {
		return nil, errors.New("nil experiment")
	}
	m := &Memory{exp: exp, threads: make(map[int64]*ThreadData, len(exp.Threads))}
	for i := range exp.Threads {
		th := &exp.Threads[i]
		if th.ID == 0 {
			th.ID = int64(i + 1)
		}
		if _, dup := m.threads[th.ID]; dup {
			return nil, errors.Errorf("duplicate thread id %d", th.ID)
		}
		m.threads[th.ID] = th
		for _, s := range th.PeriodicSamples {
			if len(s.Counts) > len(exp.Counters) {
				return nil, errors.Errorf("thread %d: sample at %d has %d counts for %d counters",
					th.ID, s.Time, len(s.Counts), len(exp.Counters))
			}
		}
	}
	if exp.Extent != nil {
		m.extent = *exp.Extent
	} else {
		m.extent = computeExtent(exp)
	}
	return m, nil
}

func computeExtent(exp *Experiment) types.Interval {
	var (
		first, last types.Time
		seen        bool
	)
	note := func(ts ...types.Time) {
		for _, t := range ts {
			if !seen || t < first {
				first = t
			}
			if !seen || t > last {
				last = t
			}
			seen = true
		}
	}
	for _, th := range exp.Threads {
		for _, dt := range th.DataTransfers {
			note(dt.Begin, dt.End)
		}
		for _, k := range th.KernelExecutions {
			note(k.Begin, k.End)
		}
		for _, s := range th.PeriodicSamples {
			note(s.Time)
		}
		for _, f := range th.FunctionSamples {
			note(f.Time)
		}
	}
	if !seen {
		return types.Interval{}
	}
	return types.Interval{Begin: first, End: last + 1}
}

func (m *Memory) Name() string                  { return m.exp.Name }
func (m *Memory) Collectors() []types.Collector { return m.exp.Collectors }
func (m *Memory) Extent() types.Interval        { return m.extent }
func (m *Memory) Counters() []string            { return m.exp.Counters }
func (m *Memory) Close() error                  { return nil }

func (m *Memory) Threads() []types.Thread {
	out := make([]types.Thread, 0, len(m.exp.Threads))
	for _, th := range m.exp.Threads {
		out = append(out, th.Thread)
	}
	return out
}

func (m *Memory) thread(t types.Thread) (*ThreadData, error) {
	th, ok := m.threads[t.ID]
	if !ok {
		return nil, errors.Errorf("unknown thread %d (%s)", t.ID, t.Host)
	}
	return th, nil
}

func (m *Memory) VisitDataTransfers(t types.Thread, interval types.Interval, fn func(types.DataTransfer) bool) error {
	th, err := m.thread(t)
	if err != nil {
		return err
	}
	for _, dt := range sortedByBegin(th.DataTransfers, func(d types.DataTransfer) types.Time { return d.Begin }) {
		if !interval.Overlaps(dt.Begin, dt.End) {
			continue
		}
		if !fn(dt) {
			return nil
		}
	}
	return nil
}

func (m *Memory) VisitKernelExecutions(t types.Thread, interval types.Interval, fn func(types.KernelExecution) bool) error {
	th, err := m.thread(t)
	if err != nil {
		return err
	}
	for _, k := range sortedByBegin(th.KernelExecutions, func(k types.KernelExecution) types.Time { return k.Begin }) {
		if !interval.Overlaps(k.Begin, k.End) {
			continue
		}
		if !fn(k) {
			return nil
		}
	}
	return nil
}

func (m *Memory) VisitPeriodicSamples(t types.Thread, interval types.Interval, fn func(types.PeriodicSample) bool) error {
	th, err := m.thread(t)
	if err != nil {
		return err
	}
	for _, s := range sortedByBegin(th.PeriodicSamples, func(s types.PeriodicSample) types.Time { return s.Time }) {
		if !interval.Contains(s.Time) {
			continue
		}
		if !fn(s) {
			return nil
		}
	}
	return nil
}

func (m *Memory) MetricValues(metric string, interval types.Interval) ([]types.MetricValue, error) {
	type key struct {
		function string
		thread   int64
	}
	index := make(map[key]int)
	var out []types.MetricValue
	for _, th := range m.exp.Threads {
		for _, s := range th.FunctionSamples {
			if s.Metric != metric || !interval.Contains(s.Time) {
				continue
			}
			k := key{s.Function, th.ID}
			i, ok := index[k]
			if !ok {
				i = len(out)
				index[k] = i
				out = append(out, types.MetricValue{Function: s.Function, ThreadID: th.ID})
			}
			out[i].Value += s.Value
		}
	}
	return out, nil
}

func sortedByBegin[T any](in []T, begin func(T) types.Time) []T {
	out := make([]T, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return begin(out[i]) < begin(out[j]) })
	return out
}
