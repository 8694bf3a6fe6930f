package timeserie

import "github.com/ALEYI17/InfraSight_gpuview/pkg/types"

// Point is one plotted periodic sample: the change of counter Counter
// between Begin and End, both in msec relative to the time origin.
type Point struct {
	Counter int
	Begin   float64
	End     float64
	Value   float64
}

func sampleTimestamp(origin types.Time, s types.PeriodicSample) float64 {
	if s.Time < origin {
		return 0
	}
	return types.RelativeMs(origin, s.Time)
}
