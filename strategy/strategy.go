// Package strategy implements the ways compute and graphics work are
// coordinated every frame.
package strategy

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"vulkan-async-compute/bufferset"
	"vulkan-async-compute/compute"
	"vulkan-async-compute/config"
	"vulkan-async-compute/geometry"
	"vulkan-async-compute/gpu"
)

// defaultDeltaT is the simulation step used before a frame time is known.
const defaultDeltaT = 0.016

// RenderContext is everything a strategy operates on. It is built once at
// start up and passed into every call. Strategies never keep it.
type RenderContext struct {
	Device   gpu.Device
	Renderer gpu.Renderer
	Log      *zap.Logger

	Graphics gpu.Queue
	Compute  gpu.Queue
	Present  gpu.Queue

	// Transfer is only valid when HasTransfer is set.
	Transfer    gpu.Queue
	HasTransfer bool

	// Elapsed is the time since the run started and FrameTime the duration
	// of the previous frame. The scheduler updates both.
	Elapsed   time.Duration
	FrameTime time.Duration
}

// NewRenderContext resolves the queues of dev.
func NewRenderContext(dev gpu.Device, r gpu.Renderer, log *zap.Logger) (*RenderContext, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rc := &RenderContext{Device: dev, Renderer: r, Log: log}

	var ok bool
	if rc.Graphics, ok = dev.Queue(gpu.QueueGraphics); !ok {
		return nil, fmt.Errorf("device has no graphics queue")
	}
	if rc.Compute, ok = dev.Queue(gpu.QueueCompute); !ok {
		return nil, fmt.Errorf("device has no compute queue")
	}
	if rc.Present, ok = dev.Queue(gpu.QueuePresent); !ok {
		return nil, fmt.Errorf("device has no present queue")
	}
	rc.Transfer, rc.HasTransfer = dev.Queue(gpu.QueueTransfer)

	return rc, nil
}

// DeltaT is the simulation step for the next dispatch in seconds.
func (rc *RenderContext) DeltaT() float32 {
	if rc.FrameTime <= 0 {
		return defaultDeltaT
	}
	return float32(rc.FrameTime.Seconds())
}

// Assets is the data a strategy builds its buffers and pipelines from.
type Assets struct {
	Particles     []geometry.Particle
	Mesh          geometry.Mesh
	ComputeShader []byte
}

// Options tunes strategies beyond the mode.
type Options struct {
	// DedicatedTransfer makes the transfer strategy copy on the transfer
	// queue when the device has one.
	DedicatedTransfer bool
}

// Strategy coordinates compute dispatches with graphics frames.
type Strategy interface {
	Mode() config.Mode

	// CreateBuffers builds the buffer set and compute pipeline and records
	// every command buffer which does not change between frames.
	CreateBuffers(rc *RenderContext, assets Assets) error

	// DispatchCompute submits compute work as the strategy's protocol
	// allows at this point of the frame.
	DispatchCompute(rc *RenderContext) error

	// Frame runs one whole frame: uniforms, compute and the draw.
	Frame(rc *RenderContext) error

	// Teardown releases everything CreateBuffers made. The device must be
	// idle.
	Teardown(rc *RenderContext)

	// ComputeTimestamps is the query pool bracketing the last dispatch.
	ComputeTimestamps() gpu.QueryPool
}

// New returns the strategy for mode.
func New(mode config.Mode, opts Options) (Strategy, error) {
	switch mode {
	case config.ModeCompute:
		return &computeOnly{}, nil
	case config.ModeTransfer:
		return &transferAsync{dedicated: opts.DedicatedTransfer}, nil
	case config.ModeDouble:
		return &doubleBuffered{}, nil
	default:
		return nil, fmt.Errorf("unknown mode %s", mode)
	}
}

// families returns the distinct queue families of qs in order.
func families(qs ...gpu.Queue) []uint32 {
	var out []uint32
	seen := make(map[uint32]bool)
	for _, q := range qs {
		if !seen[q.Family] {
			seen[q.Family] = true
			out = append(out, q.Family)
		}
	}
	return out
}

// build creates the buffer set and compute config shared by every strategy.
func build(
	rc *RenderContext,
	assets Assets,
	opts bufferset.Options,
) (*bufferset.BufferSet, *compute.Config, error) {
	buffers, err := bufferset.New(rc.Device, opts, assets.Particles, assets.Mesh)
	if err != nil {
		return nil, nil, err
	}

	c, err := compute.New(
		rc.Device,
		rc.Compute,
		assets.ComputeShader,
		buffers.ParticleCount,
		buffers.StorageBuffers(),
	)
	if err != nil {
		buffers.Destroy(rc.Device)
		return nil, nil, err
	}

	rc.Log.Debug("created buffers",
		zap.Stringer("layout", opts.Layout),
		zap.Uint32("particles", buffers.ParticleCount),
		zap.Uint32("indices", buffers.IndexCount),
		zap.Uint32("workgroups", c.Groups()),
	)
	return buffers, c, nil
}

// updateUniforms writes the graphics and the physics uniforms for the frame.
func updateUniforms(rc *RenderContext, c *compute.Config) error {
	if err := rc.Renderer.UpdateUniforms(rc.Elapsed); err != nil {
		return fmt.Errorf("updating graphics uniforms: %w", err)
	}
	return c.UpdateUniforms(rc.DeltaT())
}
