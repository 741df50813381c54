// Package scheduler drives the frame loop: it runs the strategy once per
// frame, reads back GPU timestamps, classifies overlap and records the result.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vulkan-async-compute/metrics"
	"vulkan-async-compute/overlap"
	"vulkan-async-compute/report"
	"vulkan-async-compute/strategy"
)

// Sink receives one record per frame.
type Sink interface {
	Write(r report.FrameRecord) error
}

// Options bounds a run.
type Options struct {
	// TotalTime ends the run once that much wall clock time has passed.
	TotalTime time.Duration

	// MaxFrames ends the run after that many frames. Zero is no limit.
	MaxFrames int

	// Now is the clock. It defaults to time.Now.
	Now func() time.Time
}

// Summary describes a finished run.
type Summary struct {
	Frames      int
	AsyncFrames int
	Elapsed     time.Duration
}

// MeanFrameTime is the average wall clock time of a frame.
func (s Summary) MeanFrameTime() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.Elapsed / time.Duration(s.Frames)
}

// Scheduler runs frames of one strategy.
type Scheduler struct {
	rc       *strategy.RenderContext
	strategy strategy.Strategy
	sink     Sink
	metrics  *metrics.Frames
	opts     Options
}

// New creates a scheduler. m may be nil.
func New(
	rc *strategy.RenderContext,
	s strategy.Strategy,
	sink Sink,
	m *metrics.Frames,
	opts Options,
) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{rc: rc, strategy: s, sink: sink, metrics: m, opts: opts}
}

// Run loops until the time or frame limit is reached, the window is closed
// or ctx is cancelled. The device is idle when it returns.
func (s *Scheduler) Run(ctx context.Context) (sum Summary, err error) {
	rc := s.rc
	log := rc.Log.Named("scheduler")

	defer func() {
		if idleErr := rc.Device.WaitIdle(); idleErr != nil && err == nil {
			err = fmt.Errorf("waiting for device idle: %w", idleErr)
		}
	}()

	log.Info("starting run",
		zap.Stringer("mode", s.strategy.Mode()),
		zap.Duration("totalTime", s.opts.TotalTime),
		zap.Int("maxFrames", s.opts.MaxFrames),
	)

	start := s.opts.Now()
	var fpsTimer time.Duration

	for {
		sum.Elapsed = s.opts.Now().Sub(start)
		if s.done(ctx, sum) {
			break
		}
		rc.Elapsed = sum.Elapsed

		frameStart := s.opts.Now()
		if err := s.strategy.Frame(rc); err != nil {
			return sum, fmt.Errorf("frame %d: %w", sum.Frames+1, err)
		}
		sum.Frames++
		delta := s.opts.Now().Sub(frameStart)
		rc.FrameTime = delta

		fpsTimer += delta
		if fpsTimer > time.Second {
			fps := 0
			if delta > 0 {
				fps = int(time.Second / delta)
			}
			log.Info("frame time", zap.Duration("delta", delta), zap.Int("fps", fps))
			fpsTimer = 0
		}

		rec, err := s.measure(sum.Frames, delta)
		if err != nil {
			return sum, err
		}
		if rec.Async {
			sum.AsyncFrames++
		}

		rc.Renderer.PollEvents()

		if err := s.sink.Write(rec); err != nil {
			return sum, err
		}
		s.metrics.Observe(rec)
	}

	log.Info("run finished",
		zap.Int("frames", sum.Frames),
		zap.Int("asyncFrames", sum.AsyncFrames),
		zap.Duration("elapsed", sum.Elapsed),
	)
	return sum, nil
}

func (s *Scheduler) done(ctx context.Context, sum Summary) bool {
	switch {
	case ctx.Err() != nil:
		return true
	case s.rc.Renderer.ShouldClose():
		return true
	case s.opts.TotalTime > 0 && sum.Elapsed > s.opts.TotalTime:
		return true
	case s.opts.MaxFrames > 0 && sum.Frames >= s.opts.MaxFrames:
		return true
	}
	return false
}

// measure reads the timestamps of the frame just submitted, waiting for them
// to become available.
func (s *Scheduler) measure(frame int, delta time.Duration) (report.FrameRecord, error) {
	dev := s.rc.Device

	g, err := dev.ReadTimestamps(s.rc.Renderer.TimestampPool(), 0, 2, true)
	if err != nil {
		return report.FrameRecord{}, fmt.Errorf("reading graphics timestamps: %w", err)
	}
	c, err := dev.ReadTimestamps(s.strategy.ComputeTimestamps(), 0, 2, true)
	if err != nil {
		return report.FrameRecord{}, fmt.Errorf("reading compute timestamps: %w", err)
	}

	period := dev.TimestampPeriod()
	compute := overlap.Interval{Start: c[0], End: c[1]}
	graphics := overlap.Interval{Start: g[0], End: g[1]}

	return report.FrameRecord{
		Frame:          frame,
		WallClockDelta: delta,
		ComputeStart:   compute.Start,
		ComputeEnd:     compute.End,
		ComputeMillis:  compute.Millis(period),
		GraphicsStart:  graphics.Start,
		GraphicsEnd:    graphics.End,
		GraphicsMillis: graphics.Millis(period),
		Async:          overlap.Classify(compute, graphics),
	}, nil
}
