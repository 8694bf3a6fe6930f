package types

// Thread identifies one profiled thread of execution.
type Thread struct {
	ID   int64  `yaml:"id"`
	Host string `yaml:"host"`
	PID  int    `yaml:"pid"`
	Rank *int   `yaml:"rank,omitempty"`
}

// MetricValue is the value of a metric, in seconds, attributed to one
// function on one thread.
type MetricValue struct {
	Function string
	ThreadID int64
	Value    float64
}

// EventSource is an opened experiment dataset. Implementations must be safe
// for concurrent readers. Visit callbacks return false to stop the visitation.
type EventSource interface {
	Name() string
	Collectors() []Collector
	Extent() Interval
	Threads() []Thread
	Counters() []string

	VisitDataTransfers(thread Thread, interval Interval, fn func(DataTransfer) bool) error
	VisitKernelExecutions(thread Thread, interval Interval, fn func(KernelExecution) bool) error
	VisitPeriodicSamples(thread Thread, interval Interval, fn func(PeriodicSample) bool) error

	// MetricValues returns per function and thread sums of metric over
	// interval, in the order the functions were first encountered.
	MetricValues(metric string, interval Interval) ([]MetricValue, error)

	Close() error
}

type Opener interface {
	Open(path string) (EventSource, error)
}

type OpenerFunc func(path string) (EventSource, error)

func (f OpenerFunc) Open(path string) (EventSource, error) {
	return f(path)
}
