package notify

import (
	"image"
	"time"

	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
)

type Kind int

const (
	KIND_ADD_EXPERIMENT Kind = iota + 1
	KIND_ADD_CLUSTER
	KIND_REMOVE_CLUSTER
	KIND_SET_METRIC_DURATION
	KIND_ADD_DATA_TRANSFER
	KIND_ADD_KERNEL_EXECUTION
	KIND_ADD_PERIODIC_SAMPLE
	KIND_ADD_METRIC_VIEW
	KIND_ADD_METRIC_VIEW_DATA
	KIND_ADD_CUDA_EVENT_SNAPSHOT
	KIND_LOAD_COMPLETE
	KIND_SHOW_WARNING
)

var kindNames = map[Kind]string{
	KIND_ADD_EXPERIMENT:          "add_experiment",
	KIND_ADD_CLUSTER:             "add_cluster",
	KIND_REMOVE_CLUSTER:          "remove_cluster",
	KIND_SET_METRIC_DURATION:     "set_metric_duration",
	KIND_ADD_DATA_TRANSFER:       "add_data_transfer",
	KIND_ADD_KERNEL_EXECUTION:    "add_kernel_execution",
	KIND_ADD_PERIODIC_SAMPLE:     "add_periodic_sample",
	KIND_ADD_METRIC_VIEW:         "add_metric_view",
	KIND_ADD_METRIC_VIEW_DATA:    "add_metric_view_data",
	KIND_ADD_CUDA_EVENT_SNAPSHOT: "add_cuda_event_snapshot",
	KIND_LOAD_COMPLETE:           "load_complete",
	KIND_SHOW_WARNING:            "show_warning",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Notification is anything published to the presentation layer.
type Notification interface {
	Kind() Kind
}

type AddExperiment struct {
	Name     string
	Criteria string
	Clusters []string
	Counters []string
}

type AddCluster struct {
	Key types.ClusterKey
}

type RemoveCluster struct {
	Key types.ClusterKey
}

type SetMetricDuration struct {
	Key        types.ClusterKey
	DurationMs float64
}

// AddDataTransfer carries one data transfer of a cluster. Times in Details
// are absolute; Origin converts them to the plot axis.
type AddDataTransfer struct {
	Key     types.ClusterKey
	Origin  types.Time
	Details types.DataTransfer
}

type AddKernelExecution struct {
	Key     types.ClusterKey
	Origin  types.Time
	Details types.KernelExecution
}

// AddPeriodicSample carries a counter delta between Begin and End, in msec
// from the time origin.
type AddPeriodicSample struct {
	Key   types.ClusterKey
	Begin float64
	End   float64
	Value float64
}

// AddMetricView resets the table of Metric for Key and sets its headers.
type AddMetricView struct {
	Key     types.ClusterKey
	Metric  string
	Headers []string
}

// AddMetricViewData is one table row. Threads is how many threads the
// function was sampled on.
type AddMetricViewData struct {
	Key        types.ClusterKey
	Metric     string
	Value      float64
	Percentage float64
	Label      string
	Threads    int
}

type AddCudaEventSnapshot struct {
	Key   types.ClusterKey
	Lower float64
	Upper float64
	Image image.Image
}

type LoadComplete struct {
	Name string
}

type ShowWarning struct {
	Title   string
	Message string
	Dismiss time.Duration
}

func (AddExperiment) Kind() Kind        { return KIND_ADD_EXPERIMENT }
func (AddCluster) Kind() Kind           { return KIND_ADD_CLUSTER }
func (RemoveCluster) Kind() Kind        { return KIND_REMOVE_CLUSTER }
func (SetMetricDuration) Kind() Kind    { return KIND_SET_METRIC_DURATION }
func (AddDataTransfer) Kind() Kind      { return KIND_ADD_DATA_TRANSFER }
func (AddKernelExecution) Kind() Kind   { return KIND_ADD_KERNEL_EXECUTION }
func (AddPeriodicSample) Kind() Kind    { return KIND_ADD_PERIODIC_SAMPLE }
func (AddMetricView) Kind() Kind        { return KIND_ADD_METRIC_VIEW }
func (AddMetricViewData) Kind() Kind    { return KIND_ADD_METRIC_VIEW_DATA }
func (AddCudaEventSnapshot) Kind() Kind { return KIND_ADD_CUDA_EVENT_SNAPSHOT }
func (LoadComplete) Kind() Kind         { return KIND_LOAD_COMPLETE }
func (ShowWarning) Kind() Kind          { return KIND_SHOW_WARNING }

// Sink receives notifications. Publish must not block for long; it is called
// from worker goroutines.
type Sink interface {
	Publish(n Notification)
}

type SinkFunc func(n Notification)

func (f SinkFunc) Publish(n Notification) {
	f(n)
}

// Discard drops every notification.
var Discard Sink = SinkFunc(func(Notification) {})
