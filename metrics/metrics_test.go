package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vulkan-async-compute/report"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := New(reg)

	f.Observe(report.FrameRecord{WallClockDelta: 16 * time.Millisecond, ComputeMillis: 4, GraphicsMillis: 3, Async: true})
	f.Observe(report.FrameRecord{WallClockDelta: 20 * time.Millisecond, ComputeMillis: 5, GraphicsMillis: 3})
	f.Observe(report.FrameRecord{WallClockDelta: 18 * time.Millisecond, Async: true})

	assert.Equal(t, 2.0, testutil.ToFloat64(f.FramesTotal.WithLabelValues("yes")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.FramesTotal.WithLabelValues("no")))

	count, err := testutil.GatherAndCount(reg, "acb_frame_seconds", "acb_compute_seconds", "acb_graphics_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	var nilFrames *Frames
	assert.NotPanics(t, func() { nilFrames.Observe(report.FrameRecord{}) })
}

func TestServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := New(reg)
	f.Observe(report.FrameRecord{Async: true})

	s, err := Serve("127.0.0.1:0", reg, zap.NewNop())
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `acb_frames_total{async="yes"} 1`))
}
