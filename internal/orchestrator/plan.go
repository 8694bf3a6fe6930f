package orchestrator

import (
	"github.com/ALEYI17/InfraSight_gpuview/internal/collector"
	"github.com/ALEYI17/InfraSight_gpuview/internal/config"
	"github.com/ALEYI17/InfraSight_gpuview/internal/loaders"
	"github.com/ALEYI17/InfraSight_gpuview/internal/recompute"
	"github.com/ALEYI17/InfraSight_gpuview/internal/render"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/pkg/errors"
)

// loadPlan is everything derived from an opened dataset before any
// notification goes out.
type loadPlan struct {
	name     string
	criteria string
	cuda     bool
	extent   types.Interval

	hosts    []string
	clusters []string
	router   collector.SampleRouter
	info     recompute.Info

	// set by the view task once the renderer holds the clusters
	attached bool
	backend  render.BackendID
}

func newLoadPlan(cfg *config.Config, path string, src types.EventSource) (*loadPlan, error) {
	collectors := src.Collectors()
	if len(collectors) == 0 {
		return nil, errors.New("experiment has no collectors")
	}
	threads := src.Threads()
	if len(threads) == 0 {
		return nil, errors.New("experiment has no threads")
	}

	p := &loadPlan{
		name:     loaders.ExperimentName(path),
		criteria: types.CriteriaThreads,
		cuda:     types.HasCollector(collectors, types.CUDACollectorID),
		extent:   src.Extent(),
	}
	if p.cuda {
		p.criteria = types.CriteriaCUDA
	}

	gpu := map[int]bool{}
	for i, name := range src.Counters() {
		for _, want := range cfg.GPUCounters {
			if name == want {
				gpu[i] = true
			}
		}
	}
	strip := cfg.StripDomain
	p.router = collector.SampleRouter{
		Cluster:     func(th types.Thread) string { return types.ClusterName(th.Host, strip) },
		GPUCounters: gpu,
	}

	seen := map[string]bool{}
	for _, th := range threads {
		host := types.ClusterName(th.Host, strip)
		if seen[host] {
			continue
		}
		seen[host] = true
		p.hosts = append(p.hosts, host)
		p.clusters = append(p.clusters, host)
		if len(gpu) > 0 {
			p.clusters = append(p.clusters, types.GPUCluster(host))
		}
	}

	ids, headers := recompute.DiscoverMetrics(collectors, cfg.TimeMetric)
	p.info = recompute.Info{Metrics: ids, Headers: headers, Filename: path}
	return p, nil
}

func (p *loadPlan) key(cluster string) types.ClusterKey {
	return types.ClusterKey{Criteria: p.criteria, Cluster: cluster}
}
