package types

import (
	"fmt"
	"strings"
)

const (
	DIR_HTOD = 0
	DIR_DTOH = 1
	DIR_DTOD = 2
	DIR_HTOH = 3

	EVENT_DATA_TRANSFER    = 1
	EVENT_KERNEL_EXECUTION = 2
	EVENT_PERIODIC_SAMPLE  = 3
)

const (
	CriteriaCUDA    = "GPU Compute / Data Transfer Ratio"
	CriteriaThreads = "Thread Groups"

	// GPUClusterSuffix marks the cluster holding a host's GPU counters.
	GPUClusterSuffix = " (GPU)"

	CUDACollectorID = "cuda"
)

// ClusterKey identifies one visual track inside a clustering criteria.
type ClusterKey struct {
	Criteria string
	Cluster  string
}

func (k ClusterKey) String() string {
	return k.Criteria + "/" + k.Cluster
}

// IsGPU reports whether the key names a "(GPU)" counter cluster.
func (k ClusterKey) IsGPU() bool {
	return IsGPUCluster(k.Cluster)
}

func IsGPUCluster(name string) bool {
	return strings.HasSuffix(name, GPUClusterSuffix)
}

func GPUCluster(host string) string {
	return host + GPUClusterSuffix
}

// ClusterName derives the cluster name of a thread from its host name. When
// strip is set the domain part is dropped ("node1.example.com" -> "node1").
func ClusterName(host string, strip bool) string {
	if strip {
		if idx := strings.IndexByte(host, '.'); idx > 0 {
			return host[:idx]
		}
	}
	return host
}

func DirectionName(kind uint8) string {
	switch kind {
	case DIR_HTOD:
		return "HostToDevice"
	case DIR_DTOH:
		return "DeviceToHost"
	case DIR_DTOD:
		return "DeviceToDevice"
	case DIR_HTOH:
		return "HostToHost"
	default:
		return fmt.Sprintf("Unknown(%d)", kind)
	}
}
