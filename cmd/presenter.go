package main

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/ALEYI17/InfraSight_gpuview/internal/notify"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// presenter stands in for the UI: it logs the notifications of a
// subscription and writes CUDA event snapshots as PNG files.
type presenter struct {
	dir string

	counts      map[notify.Kind]int
	transferred uint64
	snapshots   []string
}

func newPresenter(dir string) *presenter {
	return &presenter{dir: dir, counts: make(map[notify.Kind]int)}
}

// Run consumes sub until it is closed or ctx is done. The returned channel
// is closed when it returns.
func (p *presenter) Run(ctx context.Context, sub *notify.Subscription) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger := logutil.GetLogger()
		for {
			select {
			case <-ctx.Done():
				logger.Debug("presenter received cancellation signal")
				return
			case n, ok := <-sub.C:
				if !ok {
					return
				}
				p.counts[n.Kind()]++
				if err := p.handle(n); err != nil {
					logger.Error("presenting notification", zap.Stringer("kind", n.Kind()), zap.Error(err))
				}
			}
		}
	}()
	return done
}

func (p *presenter) handle(n notify.Notification) error {
	logger := logutil.GetLogger()

	switch n := n.(type) {
	case notify.AddExperiment:
		logger.Info("experiment",
			zap.String("name", n.Name),
			zap.String("criteria", n.Criteria),
			zap.Strings("clusters", n.Clusters),
			zap.Strings("counters", n.Counters))
	case notify.AddCluster:
		logger.Info("cluster added", zap.Stringer("key", n.Key))
	case notify.RemoveCluster:
		logger.Info("cluster removed", zap.Stringer("key", n.Key))
	case notify.SetMetricDuration:
		logger.Info("plot duration", zap.Stringer("key", n.Key), zap.Float64("msec", n.DurationMs))
	case notify.AddDataTransfer:
		p.transferred += n.Details.Size
		logger.Debug("data transfer",
			zap.Stringer("key", n.Key),
			zap.Float64("begin_ms", types.RelativeMs(n.Origin, n.Details.Begin)),
			zap.Float64("end_ms", types.RelativeMs(n.Origin, n.Details.End)),
			zap.String("direction", types.DirectionName(n.Details.Dir)),
			zap.String("size", humanize.IBytes(n.Details.Size)))
	case notify.AddKernelExecution:
		logger.Debug("kernel execution",
			zap.Stringer("key", n.Key),
			zap.String("function", n.Details.Function),
			zap.Float64("begin_ms", types.RelativeMs(n.Origin, n.Details.Begin)),
			zap.Float64("end_ms", types.RelativeMs(n.Origin, n.Details.End)),
			zap.String("threads", humanize.Comma(int64(n.Details.TotalThreads()))))
	case notify.AddPeriodicSample:
		logger.Debug("periodic sample",
			zap.Stringer("key", n.Key),
			zap.Float64("begin_ms", n.Begin),
			zap.Float64("end_ms", n.End),
			zap.Float64("value", n.Value))
	case notify.AddMetricView:
		logger.Info("metric view", zap.Stringer("key", n.Key), zap.String("metric", n.Metric), zap.Strings("headers", n.Headers))
	case notify.AddMetricViewData:
		logger.Info("metric row",
			zap.Stringer("key", n.Key),
			zap.String("metric", n.Metric),
			zap.String("function", n.Label),
			zap.String("msec", humanize.FormatFloat("#,###.###", n.Value)),
			zap.String("percent", humanize.FormatFloat("#.##", n.Percentage)),
			zap.Int("threads", n.Threads))
	case notify.AddCudaEventSnapshot:
		return p.writeSnapshot(n)
	case notify.LoadComplete:
		logger.Info("load complete", zap.String("experiment", n.Name))
	case notify.ShowWarning:
		logger.Warn(n.Title, zap.String("message", n.Message), zap.Duration("dismiss_after", n.Dismiss))
	}
	return nil
}

func (p *presenter) writeSnapshot(n notify.AddCudaEventSnapshot) error {
	logger := logutil.GetLogger()
	bounds := n.Image.Bounds()
	if p.dir == "" {
		logger.Info("snapshot",
			zap.Stringer("key", n.Key),
			zap.Float64("lower", n.Lower),
			zap.Float64("upper", n.Upper),
			zap.Int("width", bounds.Dx()),
			zap.Int("height", bounds.Dy()))
		return nil
	}

	name := fmt.Sprintf("%s_%g-%g.png", snapshotName(n.Key.Cluster), n.Lower, n.Upper)
	path := filepath.Join(p.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating snapshot file")
	}
	if err := png.Encode(f, n.Image); err != nil {
		f.Close()
		return errors.Wrapf(err, "encoding %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", path)
	}
	p.snapshots = append(p.snapshots, path)
	logger.Info("snapshot written", zap.String("path", path), zap.Int("width", bounds.Dx()), zap.Int("height", bounds.Dy()))
	return nil
}

func snapshotName(cluster string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, cluster)
}

// Summary logs what was presented so far. Call it after Run returned.
func (p *presenter) Summary() {
	fields := make([]zap.Field, 0, len(p.counts)+2)
	for kind, count := range p.counts {
		fields = append(fields, zap.String(kind.String(), humanize.Comma(int64(count))))
	}
	fields = append(fields,
		zap.String("transferred", humanize.IBytes(p.transferred)),
		zap.Int("snapshot_files", len(p.snapshots)))
	logutil.GetLogger().Info("session summary", fields...)
}
