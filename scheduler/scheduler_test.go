package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"vulkan-async-compute/config"
	"vulkan-async-compute/geometry"
	"vulkan-async-compute/gpu"
	"vulkan-async-compute/gpu/gputest"
	"vulkan-async-compute/metrics"
	"vulkan-async-compute/report"
	"vulkan-async-compute/strategy"
)

type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

type memSink struct {
	rows []report.FrameRecord
	err  error
}

func (s *memSink) Write(r report.FrameRecord) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, r)
	return nil
}

type fixture struct {
	dev      *gputest.Device
	renderer *gputest.Renderer
	rc       *strategy.RenderContext
	strategy strategy.Strategy
	sink     *memSink
}

func newFixture(t *testing.T, mode config.Mode) *fixture {
	t.Helper()

	dev := gputest.New(gputest.Config{})
	r, err := gputest.NewRenderer(dev)
	require.NoError(t, err)
	rc, err := strategy.NewRenderContext(dev, r, zaptest.NewLogger(t))
	require.NoError(t, err)

	s, err := strategy.New(mode, strategy.Options{})
	require.NoError(t, err)
	require.NoError(t, s.CreateBuffers(rc, strategy.Assets{
		Particles:     geometry.SeedParticles(1000, rand.New(rand.NewSource(3))),
		Mesh:          geometry.Sphere(5, 5, 0.02),
		ComputeShader: []byte{1, 2, 3, 4},
	}))

	t.Cleanup(func() {
		s.Teardown(rc)
		r.Destroy()
	})
	return &fixture{dev: dev, renderer: r, rc: rc, strategy: s, sink: &memSink{}}
}

func (f *fixture) scheduler(m *metrics.Frames, opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = (&fakeClock{step: 5 * time.Millisecond}).Now
	}
	return New(f.rc, f.strategy, f.sink, m, opts)
}

func TestComputeOnlyHasNoAsyncRows(t *testing.T) {
	f := newFixture(t, config.ModeCompute)

	sum, err := f.scheduler(nil, Options{TotalTime: time.Hour, MaxFrames: 100}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 100, sum.Frames)
	assert.Zero(t, sum.AsyncFrames)
	require.Len(t, f.sink.rows, 100)
	for i, r := range f.sink.rows {
		assert.Equal(t, i+1, r.Frame)
		assert.False(t, r.Async, "frame %d", r.Frame)
		assert.Equal(t, 5*time.Millisecond, r.WallClockDelta)
		assert.Greater(t, r.ComputeEnd, r.ComputeStart)
		assert.InDelta(t, float64(gputest.DefaultCosts.Dispatch)/1e6, r.ComputeMillis, 1e-9)
	}
	assert.Equal(t, 100, f.renderer.Polls)
}

func TestDoubleBufferedOverlaps(t *testing.T) {
	f := newFixture(t, config.ModeDouble)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	sum, err := f.scheduler(m, Options{MaxFrames: 20}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 20, sum.AsyncFrames)
	assert.Equal(t, 20.0, testutil.ToFloat64(m.FramesTotal.WithLabelValues("yes")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FramesTotal.WithLabelValues("no")))
}

func TestTotalTimeLimit(t *testing.T) {
	f := newFixture(t, config.ModeTransfer)
	clock := &fakeClock{step: 10 * time.Millisecond}

	sum, err := f.scheduler(nil, Options{TotalTime: 300 * time.Millisecond, Now: clock.Now}).
		Run(context.Background())
	require.NoError(t, err)

	// Every frame reads the clock three times.
	assert.Equal(t, 10, sum.Frames)
	assert.Greater(t, sum.Elapsed, 300*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, f.rc.FrameTime)
}

func TestWindowClose(t *testing.T) {
	f := newFixture(t, config.ModeCompute)
	f.renderer.CloseAfter = 5

	sum, err := f.scheduler(nil, Options{TotalTime: time.Hour}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Frames)
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t, config.ModeCompute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := f.scheduler(nil, Options{TotalTime: time.Hour}).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Frames)
	assert.Zero(t, sum.MeanFrameTime())
}

func TestSinkErrorStopsRun(t *testing.T) {
	f := newFixture(t, config.ModeCompute)
	f.sink.err = errors.New("disk full")

	_, err := f.scheduler(nil, Options{MaxFrames: 10}).Run(context.Background())
	assert.ErrorIs(t, err, f.sink.err)
}

func TestDeviceLostStopsRun(t *testing.T) {
	f := newFixture(t, config.ModeDouble)
	f.dev.LoseDeviceAfter(7)

	sum, err := f.scheduler(nil, Options{MaxFrames: 50}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	assert.Less(t, sum.Frames, 50)
}
