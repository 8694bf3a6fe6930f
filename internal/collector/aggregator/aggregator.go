package aggregator

import (
	"sort"
	"sync"
)

// MetricAggregator sums metric values per label. Labels keep the order in
// which they were first seen, which breaks ties when ranking.
type MetricAggregator struct {
	mu      sync.Mutex
	entries map[string]*Fingerprint
	total   float64
}

func NewMetricAggregator() *MetricAggregator {
	return &MetricAggregator{
		entries: make(map[string]*Fingerprint),
	}
}

func (ma *MetricAggregator) ensureEntry(label string) *Fingerprint {
	fp, ok := ma.entries[label]
	if !ok {
		fp = &Fingerprint{
			Label:   label,
			Order:   len(ma.entries),
			Threads: make(map[int64]struct{}),
		}
		ma.entries[label] = fp
	}
	return fp
}

func (ma *MetricAggregator) Update(label string, thread int64, value float64) {
	ma.mu.Lock()
	defer ma.mu.Unlock()

	fp := ma.ensureEntry(label)
	fp.Value += value
	fp.Threads[thread] = struct{}{}
	ma.total += value
}

func (ma *MetricAggregator) Len() int {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	return len(ma.entries)
}

// Flush ranks the accumulated labels by descending value and returns them as
// rows with values multiplied by scale. Percentages are of the unscaled total
// and are 0 when the total is 0. The aggregator is reset afterwards.
func (ma *MetricAggregator) Flush(scale float64) []Row {
	ma.mu.Lock()
	defer ma.mu.Unlock()

	fps := make([]*Fingerprint, 0, len(ma.entries))
	for _, fp := range ma.entries {
		fps = append(fps, fp)
	}
	sort.Slice(fps, func(i, j int) bool {
		if fps[i].Value != fps[j].Value {
			return fps[i].Value > fps[j].Value
		}
		return fps[i].Order < fps[j].Order
	})

	rows := make([]Row, 0, len(fps))
	for _, fp := range fps {
		row := Row{Value: fp.Value * scale, Label: fp.Label, Threads: len(fp.Threads)}
		if ma.total != 0 {
			row.Percentage = fp.Value / ma.total * 100
		}
		rows = append(rows, row)
	}

	ma.entries = make(map[string]*Fingerprint)
	ma.total = 0
	return rows
}
