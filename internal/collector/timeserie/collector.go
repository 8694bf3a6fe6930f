package timeserie

import "github.com/ALEYI17/InfraSight_gpuview/pkg/types"

// Accumulator turns raw periodic counter readings into per-counter deltas.
// It belongs to the goroutine visiting the samples and is not safe for
// concurrent use.
type Accumulator struct {
	last    float64
	samples int
	raw     []float64
	seen    []bool
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

func (a *Accumulator) ensureCounter(i int) {
	for len(a.raw) <= i {
		a.raw = append(a.raw, 0)
		a.seen = append(a.seen, false)
	}
}

// Update records s and returns one point per counter it carries. The first
// reading of a counter yields a zero delta spanning from the origin.
func (a *Accumulator) Update(origin types.Time, s types.PeriodicSample) []Point {
	ts := sampleTimestamp(origin, s)
	begin := 0.0
	if a.samples > 0 {
		begin = a.last
	}
	a.last = ts
	a.samples++

	points := make([]Point, 0, len(s.Counts))
	for i, c := range s.Counts {
		a.ensureCounter(i)
		value := 0.0
		if a.seen[i] {
			value = float64(c) - a.raw[i]
		}
		a.raw[i] = float64(c)
		a.seen[i] = true
		points = append(points, Point{Counter: i, Begin: begin, End: ts, Value: value})
	}
	return points
}

// Len is the number of samples recorded so far.
func (a *Accumulator) Len() int {
	return a.samples
}
