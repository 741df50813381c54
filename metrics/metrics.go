// Package metrics exposes per frame measurements as Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vulkan-async-compute/report"
)

// Namespace prefixes every metric name.
const Namespace = "acb"

// frameBuckets spans 0.1 ms to roughly 0.4 s.
var frameBuckets = prometheus.ExponentialBuckets(0.0001, 2, 13)

// Frames records frame measurements. A nil *Frames records nothing.
type Frames struct {
	FrameSeconds    prometheus.Histogram
	ComputeSeconds  prometheus.Histogram
	GraphicsSeconds prometheus.Histogram

	// FramesTotal counts frames by whether compute and graphics overlapped.
	FramesTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Frames {
	factory := promauto.With(reg)
	return &Frames{
		FrameSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "frame_seconds",
			Help:      "Wall clock time of a frame",
			Buckets:   frameBuckets,
		}),
		ComputeSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "compute_seconds",
			Help:      "GPU time of the compute dispatch measured with timestamps",
			Buckets:   frameBuckets,
		}),
		GraphicsSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "graphics_seconds",
			Help:      "GPU time of the draw measured with timestamps",
			Buckets:   frameBuckets,
		}),
		FramesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_total",
			Help:      "Frames by whether compute and graphics overlapped",
		}, []string{"async"}),
	}
}

// Observe records r.
func (f *Frames) Observe(r report.FrameRecord) {
	if f == nil {
		return
	}
	f.FrameSeconds.Observe(r.WallClockDelta.Seconds())
	f.ComputeSeconds.Observe(r.ComputeMillis / 1000)
	f.GraphicsSeconds.Observe(r.GraphicsMillis / 1000)

	label := "no"
	if r.Async {
		label = "yes"
	}
	f.FramesTotal.WithLabelValues(label).Inc()
}

// Server serves the metrics of a registry over HTTP.
type Server struct {
	srv *http.Server
	ln  net.Listener
	log *zap.Logger
}

// Serve starts serving g at /metrics on addr in the background.
func Serve(addr string, g prometheus.Gatherer, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:  ln,
		log: log,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting for open requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
