package main

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ALEYI17/InfraSight_gpuview/internal/notify"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	r, err := parseRange("12.5:40")
	require.NoError(t, err)
	assert.Equal(t, types.Range{Lower: 12.5, Upper: 40}, r)

	for _, bad := range []string{"", "12", "a:3", "3:b", "9:1"} {
		_, err := parseRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseSize(t *testing.T) {
	s, err := parseSize("1024X768")
	require.NoError(t, err)
	assert.Equal(t, types.Size{Width: 1024, Height: 768}, s)

	for _, bad := range []string{"", "1024", "0x10", "10x-1", "axb"} {
		_, err := parseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestSnapshotName(t *testing.T) {
	assert.Equal(t, "node1__GPU_", snapshotName("node1 (GPU)"))
	assert.Equal(t, "gpu-3.lab", snapshotName("gpu-3.lab"))
}

func TestPresenterWritesSnapshots(t *testing.T) {
	dir := t.TempDir()
	bus := notify.NewBus()
	p := newPresenter(dir)
	done := p.Run(context.Background(), bus.Subscribe())

	key := types.ClusterKey{Criteria: types.CriteriaCUDA, Cluster: "node1"}
	bus.Publish(notify.AddDataTransfer{Key: key, Details: types.DataTransfer{Size: 2048}})
	bus.Publish(notify.AddCudaEventSnapshot{Key: key, Lower: 0, Upper: 25, Image: image.NewRGBA(image.Rect(0, 0, 8, 2))})

	want := filepath.Join(dir, "node1_0-25.png")
	assert.Eventually(t, func() bool {
		_, err := os.Stat(want)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	bus.Close()
	<-done
	assert.Equal(t, uint64(2048), p.transferred)
	assert.Equal(t, []string{want}, p.snapshots)
	p.Summary()
}

func TestConvertThenLoad(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cuda.openss")

	cmd := rootCmd()
	cmd.SetArgs([]string{"convert", filepath.Join("..", "internal", "loaders", "testdata", "cuda.yaml"), out})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	_, err := os.Stat(out)
	require.NoError(t, err)

	cmd = rootCmd()
	cmd.SetArgs([]string{"convert", filepath.Join("..", "internal", "loaders", "testdata", "cuda.yaml"), out})
	assert.Error(t, cmd.ExecuteContext(context.Background()))

	cmd = rootCmd()
	cmd.SetArgs([]string{"load", out, "--linger", "10ms", "--snapshots", t.TempDir()})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
}

func TestLoadReportsMissingExperiment(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"load", filepath.Join(t.TempDir(), "missing.openss"), "--linger", "1ms"})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}
