package types

import "math"

// Time is an absolute timestamp in nanoseconds.
type Time uint64

// Interval is the half-open time span [Begin, End).
type Interval struct {
	Begin Time `yaml:"begin"`
	End   Time `yaml:"end"`
}

func (i Interval) Empty() bool {
	return i.End <= i.Begin
}

func (i Interval) Width() uint64 {
	if i.Empty() {
		return 0
	}
	return uint64(i.End - i.Begin)
}

func (i Interval) Contains(t Time) bool {
	return t >= i.Begin && t < i.End
}

// Overlaps reports whether [begin, end] intersects the interval.
func (i Interval) Overlaps(begin, end Time) bool {
	if end < begin {
		begin, end = end, begin
	}
	return begin < i.End && end >= i.Begin
}

// DurationMs is the interval width in whole milliseconds, rounded up.
func (i Interval) DurationMs() float64 {
	return math.Ceil(float64(i.Width()) / 1e6)
}

// Range is a plotted time window in milliseconds relative to the experiment
// time origin.
type Range struct {
	Lower float64
	Upper float64
}

func (r Range) Valid() bool {
	return !math.IsNaN(r.Lower) && !math.IsNaN(r.Upper) && r.Lower <= r.Upper
}

func (r Range) Empty() bool {
	return r.Lower == r.Upper
}

func (r Range) Duration() float64 {
	return r.Upper - r.Lower
}

// Interval converts the range to absolute time using origin. Negative offsets
// clamp to the origin.
func (r Range) Interval(origin Time) Interval {
	return Interval{
		Begin: origin + msToNs(r.Lower),
		End:   origin + msToNs(r.Upper),
	}
}

func msToNs(ms float64) Time {
	if ms <= 0 {
		return 0
	}
	return Time(ms * 1e6)
}

// RelativeMs returns t as milliseconds since origin.
func RelativeMs(origin, t Time) float64 {
	return (float64(t) - float64(origin)) / 1e6
}

// Size is a viewport size in pixels.
type Size struct {
	Width  int
	Height int
}

func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}
