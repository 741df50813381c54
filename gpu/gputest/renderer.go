package gputest

import (
	"fmt"
	"time"

	"vulkan-async-compute/gpu"
)

// Draw is a frame the simulated renderer drew.
type Draw struct {
	Frame     int
	Instances gpu.Buffer
	Count     uint32
	Acquire   bool
	Release   bool
	External  bool
}

// Renderer is a simulated gpu.Renderer drawing through a Device. Each frame
// is a graphics submission followed by a present submission which waits on it.
type Renderer struct {
	dev *Device

	graphics gpu.Queue
	present  gpu.Queue

	pool     gpu.CommandPool
	cmd      gpu.CommandBuffer
	presentC gpu.CommandBuffer
	queries  gpu.QueryPool
	inFlight gpu.Fence
	rendered gpu.Semaphore

	// CloseAfter makes ShouldClose report true once that many frames were
	// drawn. Zero never closes.
	CloseAfter int

	Frames       int
	UniformCalls int
	Polls        int
	Draws        []Draw
}

// NewRenderer creates a renderer using the graphics and present queues of dev.
func NewRenderer(dev *Device) (*Renderer, error) {
	r := &Renderer{dev: dev}

	var ok bool
	if r.graphics, ok = dev.Queue(gpu.QueueGraphics); !ok {
		return nil, fmt.Errorf("no graphics queue")
	}
	if r.present, ok = dev.Queue(gpu.QueuePresent); !ok {
		return nil, fmt.Errorf("no present queue")
	}

	var err error
	if r.pool, err = dev.CreateCommandPool(r.graphics); err != nil {
		return nil, err
	}
	cbs, err := dev.AllocateCommandBuffers(r.pool, 2)
	if err != nil {
		return nil, err
	}
	r.cmd, r.presentC = cbs[0], cbs[1]

	if r.queries, err = dev.CreateQueryPool(2); err != nil {
		return nil, err
	}
	if r.inFlight, err = dev.CreateFence(true); err != nil {
		return nil, err
	}
	if r.rendered, err = dev.CreateSemaphore(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Renderer) UpdateUniforms(elapsed time.Duration) error {
	r.UniformCalls++
	return nil
}

func (r *Renderer) DrawFrame(req gpu.DrawRequest) error {
	fence := req.Fence
	if fence == gpu.NullFence {
		if err := gpu.WaitFence(r.dev, r.inFlight); err != nil {
			return err
		}
		if err := r.dev.ResetFence(r.inFlight); err != nil {
			return err
		}
		fence = r.inFlight
	}

	d := r.dev
	if err := d.ResetCommandBuffer(r.cmd); err != nil {
		return err
	}
	if err := d.BeginCommandBuffer(r.cmd, false); err != nil {
		return err
	}
	d.CmdResetQueryPool(r.cmd, r.queries, 0, 2)
	d.CmdWriteTimestamp(r.cmd, gpu.StageTopOfPipe, r.queries, 0)
	if req.Acquire != nil {
		d.CmdPipelineBarrier(r.cmd, *req.Acquire)
	}
	d.cmdDraw(r.cmd, req.Instances)
	if req.Release != nil {
		d.CmdPipelineBarrier(r.cmd, *req.Release)
	}
	d.CmdWriteTimestamp(r.cmd, gpu.StageBottomOfPipe, r.queries, 1)
	if err := d.EndCommandBuffer(r.cmd); err != nil {
		return err
	}

	err := d.Submit(r.graphics, gpu.Submission{
		CommandBuffers: []gpu.CommandBuffer{r.cmd},
		Wait:           req.Wait,
		WaitStages:     req.WaitStages,
		Signal:         append([]gpu.Semaphore{r.rendered}, req.Signal...),
		Fence:          fence,
	})
	if err != nil {
		return fmt.Errorf("queue submit error: %w", err)
	}

	if err := d.ResetCommandBuffer(r.presentC); err != nil {
		return err
	}
	if err := d.BeginCommandBuffer(r.presentC, true); err != nil {
		return err
	}
	d.cmdPresent(r.presentC)
	if err := d.EndCommandBuffer(r.presentC); err != nil {
		return err
	}
	err = d.Submit(r.present, gpu.Submission{
		CommandBuffers: []gpu.CommandBuffer{r.presentC},
		Wait:           []gpu.Semaphore{r.rendered},
	})
	if err != nil {
		return fmt.Errorf("failed to present swap chain image: %w", err)
	}

	r.Draws = append(r.Draws, Draw{
		Frame:     r.Frames,
		Instances: req.Instances,
		Count:     req.InstanceCount,
		Acquire:   req.Acquire != nil,
		Release:   req.Release != nil,
		External:  req.Fence != gpu.NullFence,
	})
	r.Frames++
	return nil
}

func (r *Renderer) TimestampPool() gpu.QueryPool {
	return r.queries
}

func (r *Renderer) ShouldClose() bool {
	return r.CloseAfter > 0 && r.Frames >= r.CloseAfter
}

func (r *Renderer) PollEvents() {
	r.Polls++
}

// Destroy releases the renderer's device objects.
func (r *Renderer) Destroy() {
	r.dev.DestroySemaphore(r.rendered)
	r.dev.DestroyFence(r.inFlight)
	r.dev.DestroyQueryPool(r.queries)
	r.dev.DestroyCommandPool(r.pool)
}

var _ gpu.Renderer = (*Renderer)(nil)
