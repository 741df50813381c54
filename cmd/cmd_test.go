package cmd

import (
	"bytes"
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"vulkan-async-compute/collate"
	"vulkan-async-compute/config"
	"vulkan-async-compute/geometry"
	"vulkan-async-compute/report"
	"vulkan-async-compute/scheduler"
	"vulkan-async-compute/shaders"
)

// execute runs the root command with args against fs.
func execute(t *testing.T, fs afero.Fs, args ...string) (string, error) {
	t.Helper()

	prev := appFs
	appFs = fs
	t.Cleanup(func() { appFs = prev })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := Execute(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, afero.NewMemMapFs(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version "+Version)
	assert.Contains(t, out, "Git Commit: "+GitCommit)
}

func writeReport(t *testing.T, fs afero.Fs, dir string, mode config.Mode, frames int) {
	t.Helper()

	cfg := config.Default()
	cfg.Mode = mode
	w, err := report.Create(fs, dir, report.ParamsFrom(cfg))
	require.NoError(t, err)

	var tick uint64
	for i := 1; i <= frames; i++ {
		require.NoError(t, w.Write(report.FrameRecord{
			Frame:          i,
			WallClockDelta: 16 * time.Millisecond,
			ComputeStart:   tick,
			ComputeEnd:     tick + 100,
			ComputeMillis:  0.1,
			GraphicsStart:  tick + 50,
			GraphicsEnd:    tick + 250,
			GraphicsMillis: 0.2,
			Async:          true,
		}))
		tick += 1000
	}
	require.NoError(t, w.Close())
}

func TestCollate(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeReport(t, fs, "results", config.ModeCompute, 5)
	writeReport(t, fs, "results", config.ModeCompute, 3)
	writeReport(t, fs, "results", config.ModeDouble, 4)

	out, err := execute(t, fs, "collate", "-o", "results", "--quiet=false")
	require.NoError(t, err)
	assert.Contains(t, out, "collated 3 runs in 2 groups")

	ok, err := afero.Exists(fs, filepath.Join("results", collate.TablesFile))
	require.NoError(t, err)
	assert.True(t, ok)

	out, err = execute(t, fs, "collate", "-o", "results", "-q")
	require.NoError(t, err)
	assert.Contains(t, out, "collated 3 runs in 2 groups")
}

func TestCollateEmptyDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("empty", 0o755))

	_, err := execute(t, fs, "collate", "-o", "empty", "-q")
	assert.ErrorContains(t, err, "no reports found")
}

func TestLoadAssets(t *testing.T) {
	fs := afero.NewMemMapFs()
	set := shaders.Set{Compute: []byte{1, 2, 3, 4}}

	cfg := config.Default()
	cfg.ParticleCount = 32
	assets, err := loadAssets(fs, cfg, set, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Len(t, assets.Particles, 32)
	assert.Equal(t, set.Compute, assets.ComputeShader)
	sphere := geometry.Sphere(uint32(cfg.Stacks), uint32(cfg.Slices), float32(cfg.Scale))
	assert.Len(t, assets.Mesh.Vertices, len(sphere.Vertices))

	require.NoError(t, afero.WriteFile(fs, "tri.obj", []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"), 0o644))
	cfg.MeshPath = "tri.obj"
	assets, err = loadAssets(fs, cfg, set, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Len(t, assets.Mesh.Indices, 3)

	cfg.MeshPath = "missing.obj"
	_, err = loadAssets(fs, cfg, set, rand.New(rand.NewSource(3)))
	assert.Error(t, err)
}

func TestStartMetricsDisabled(t *testing.T) {
	frames, stop, err := startMetrics("", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Nil(t, frames)
	stop()
}

func TestPrintSummary(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = config.ModeDouble

	var out bytes.Buffer
	printSummary(&out, cfg, scheduler.Summary{
		Frames:      200,
		AsyncFrames: 50,
		Elapsed:     2 * time.Second,
	}, "results/run.csv")

	s := out.String()
	assert.Contains(t, s, config.ModeDouble.Title())
	assert.Contains(t, s, "(25.0%)")
	assert.Contains(t, s, "10ms")
	assert.Contains(t, s, "results/run.csv")
}
