// Package gputest provides a simulated gpu.Device and gpu.Renderer.
//
// Every queue family owns a virtual timeline. Submitted work starts when the
// queue is free, the host has submitted it and all waited semaphores are
// signaled. It then occupies the queue for the cost of its commands. The host
// clock only moves forward when the host blocks on the device or submits
// work, so timestamps and fence states are deterministic.
package gputest

import (
	"errors"
	"fmt"
	"time"

	"vulkan-async-compute/gpu"
)

// Costs is how many ticks each kind of work takes. One tick is a nanosecond.
type Costs struct {
	Dispatch uint64
	Copy     uint64
	Draw     uint64
	Present  uint64

	// HostStep is how far the host clock advances on every submission.
	HostStep uint64
}

// DefaultCosts models a compute dispatch which is a bit longer than a draw.
var DefaultCosts = Costs{
	Dispatch: 4000,
	Copy:     500,
	Draw:     3000,
	Present:  200,
	HostStep: 100,
}

// Config describes the simulated device.
type Config struct {
	// Families maps queue kinds to family indices. Kinds mapped to the same
	// family share a timeline. QueueTransfer may be left out.
	Families map[gpu.QueueKind]uint32
	Costs    Costs
}

// AsyncFamilies has compute and transfer on their own families.
func AsyncFamilies() map[gpu.QueueKind]uint32 {
	return map[gpu.QueueKind]uint32{
		gpu.QueueGraphics: 0,
		gpu.QueuePresent:  0,
		gpu.QueueCompute:  1,
		gpu.QueueTransfer: 2,
	}
}

// SharedFamilies has every queue kind on family zero.
func SharedFamilies() map[gpu.QueueKind]uint32 {
	return map[gpu.QueueKind]uint32{
		gpu.QueueGraphics: 0,
		gpu.QueuePresent:  0,
		gpu.QueueCompute:  0,
	}
}

type opKind int

const (
	opBarrier opKind = iota
	opBind
	opDispatch
	opCopy
	opDraw
	opPresent
	opResetQuery
	opTimestamp
)

type op struct {
	kind opKind

	barrier  gpu.Barrier
	pipeline gpu.Pipeline
	set      gpu.DescriptorSet
	groups   [3]uint32
	src, dst gpu.Buffer
	size     uint64
	pool     gpu.QueryPool
	first    uint32
	count    uint32
	instance gpu.Buffer
}

type commandBuffer struct {
	family    uint32
	recording bool
	ops       []op
}

type fence struct {
	signaled   bool
	pending    bool
	signaledAt uint64
}

type semaphore struct {
	pending    bool
	signaledAt uint64
}

type buffer struct {
	spec  gpu.BufferSpec
	data  []byte
	owner int64
}

type query struct {
	written     bool
	value       uint64
	availableAt uint64
}

// Submission is a record of one submission, kept for assertions.
type Submission struct {
	Queue gpu.Queue
	Seq   int

	// Submitted is the host clock when the submission was made.
	Submitted uint64
	Start     uint64
	End       uint64

	CommandBuffers []gpu.CommandBuffer
	Dispatches     int
	Copies         []Copy
	Draws          []gpu.Buffer
	Fence          gpu.Fence
	Wait           []gpu.Semaphore
	Signal         []gpu.Semaphore
}

// Copy is a buffer to buffer copy which was executed.
type Copy struct {
	Src, Dst gpu.Buffer
	Size     uint64
}

// Device is a simulated gpu.Device. It is not safe for concurrent use,
// matching the single control thread which drives a real device.
type Device struct {
	cfg Config

	now      uint64
	freeAt   map[uint32]uint64
	next     uint64
	lostAt   int
	failures map[gpu.QueueKind]error

	fences     map[gpu.Fence]*fence
	semaphores map[gpu.Semaphore]*semaphore
	pools      map[gpu.CommandPool]uint32
	cbs        map[gpu.CommandBuffer]*commandBuffer
	buffers    map[gpu.Buffer]*buffer
	pipelines  map[gpu.Pipeline]gpu.ComputePipelineSpec
	sets       map[gpu.DescriptorSet][]gpu.DescriptorBinding
	queries    map[gpu.QueryPool][]query

	// Submissions lists every accepted submission in order.
	Submissions []Submission

	// Violations collects misuse the simulator detected, such as using an
	// exclusive buffer from a family which does not own it.
	Violations []string
}

// New creates a simulated device.
func New(cfg Config) *Device {
	if cfg.Families == nil {
		cfg.Families = AsyncFamilies()
	}
	if cfg.Costs == (Costs{}) {
		cfg.Costs = DefaultCosts
	}
	return &Device{
		cfg:        cfg,
		freeAt:     make(map[uint32]uint64),
		lostAt:     -1,
		failures:   make(map[gpu.QueueKind]error),
		fences:     make(map[gpu.Fence]*fence),
		semaphores: make(map[gpu.Semaphore]*semaphore),
		pools:      make(map[gpu.CommandPool]uint32),
		cbs:        make(map[gpu.CommandBuffer]*commandBuffer),
		buffers:    make(map[gpu.Buffer]*buffer),
		pipelines:  make(map[gpu.Pipeline]gpu.ComputePipelineSpec),
		sets:       make(map[gpu.DescriptorSet][]gpu.DescriptorBinding),
		queries:    make(map[gpu.QueryPool][]query),
	}
}

// Now returns the host clock in ticks.
func (d *Device) Now() uint64 {
	return d.now
}

// LoseDeviceAfter makes every device call fail with gpu.ErrDeviceLost once n
// more submissions have been accepted.
func (d *Device) LoseDeviceAfter(n int) {
	d.lostAt = len(d.Submissions) + n
}

// FailSubmit makes the next submission to kind fail with err.
func (d *Device) FailSubmit(kind gpu.QueueKind, err error) {
	d.failures[kind] = err
}

// Live returns the number of objects which were created and not destroyed.
func (d *Device) Live() int {
	return len(d.fences) + len(d.semaphores) + len(d.pools) + len(d.buffers) +
		len(d.pipelines) + len(d.queries)
}

// Buffer returns the spec a buffer was created with.
func (d *Device) Buffer(b gpu.Buffer) (gpu.BufferSpec, bool) {
	buf, ok := d.buffers[b]
	if !ok {
		return gpu.BufferSpec{}, false
	}
	return buf.spec, true
}

// BufferData returns the current contents of a buffer.
func (d *Device) BufferData(b gpu.Buffer) []byte {
	if buf, ok := d.buffers[b]; ok {
		return buf.data
	}
	return nil
}

// Bindings returns what a descriptor set was allocated with.
func (d *Device) Bindings(set gpu.DescriptorSet) []gpu.DescriptorBinding {
	return d.sets[set]
}

// SubmissionsTo filters Submissions by queue kind.
func (d *Device) SubmissionsTo(kind gpu.QueueKind) []Submission {
	var out []Submission
	for _, s := range d.Submissions {
		if s.Queue.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (d *Device) lost() bool {
	return d.lostAt >= 0 && len(d.Submissions) >= d.lostAt
}

func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

func (d *Device) Queue(kind gpu.QueueKind) (gpu.Queue, bool) {
	family, ok := d.cfg.Families[kind]
	if !ok {
		return gpu.Queue{}, false
	}
	return gpu.Queue{Kind: kind, Family: family}, true
}

func (d *Device) TimestampPeriod() float32 {
	return 1
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	if d.lost() {
		return 0, &gpu.ResourceError{Resource: "fence", Err: gpu.ErrDeviceLost}
	}
	f := gpu.Fence(d.handle())
	d.fences[f] = &fence{signaled: signaled}
	return f, nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	delete(d.fences, f)
}

func (d *Device) fenceSignaled(f *fence) bool {
	return f.signaled || (f.pending && f.signaledAt <= d.now)
}

func (d *Device) WaitForFence(f gpu.Fence, timeout time.Duration) error {
	if d.lost() {
		return gpu.ErrDeviceLost
	}
	fc, ok := d.fences[f]
	if !ok {
		return fmt.Errorf("gputest: unknown fence %d", f)
	}
	if d.fenceSignaled(fc) {
		return nil
	}
	if !fc.pending {
		return fmt.Errorf("gputest: waiting on fence %d which was never submitted", f)
	}

	deadline := d.now + uint64(timeout.Nanoseconds())
	if timeout == gpu.WaitForever || deadline < d.now {
		deadline = ^uint64(0)
	}
	if fc.signaledAt <= deadline {
		d.now = fc.signaledAt
		return nil
	}
	d.now = deadline
	return gpu.ErrTimeout
}

func (d *Device) FenceStatus(f gpu.Fence) error {
	if d.lost() {
		return gpu.ErrDeviceLost
	}
	fc, ok := d.fences[f]
	if !ok {
		return fmt.Errorf("gputest: unknown fence %d", f)
	}
	if d.fenceSignaled(fc) {
		return nil
	}
	return gpu.ErrNotReady
}

func (d *Device) ResetFence(f gpu.Fence) error {
	fc, ok := d.fences[f]
	if !ok {
		return fmt.Errorf("gputest: unknown fence %d", f)
	}
	if fc.pending && fc.signaledAt > d.now {
		return fmt.Errorf("gputest: resetting fence %d which is still in flight", f)
	}
	*fc = fence{}
	return nil
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	s := gpu.Semaphore(d.handle())
	d.semaphores[s] = &semaphore{}
	return s, nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	delete(d.semaphores, s)
}

func (d *Device) CreateCommandPool(q gpu.Queue) (gpu.CommandPool, error) {
	p := gpu.CommandPool(d.handle())
	d.pools[p] = q.Family
	return p, nil
}

func (d *Device) DestroyCommandPool(pool gpu.CommandPool) {
	family := d.pools[pool]
	delete(d.pools, pool)
	for h, cb := range d.cbs {
		if cb.family == family {
			delete(d.cbs, h)
		}
	}
}

func (d *Device) AllocateCommandBuffers(
	pool gpu.CommandPool,
	count int,
) ([]gpu.CommandBuffer, error) {
	family, ok := d.pools[pool]
	if !ok {
		return nil, &gpu.ResourceError{
			Resource: "command buffers",
			Err:      fmt.Errorf("unknown pool %d", pool),
		}
	}
	out := make([]gpu.CommandBuffer, count)
	for i := range out {
		out[i] = gpu.CommandBuffer(d.handle())
		d.cbs[out[i]] = &commandBuffer{family: family}
	}
	return out, nil
}

func (d *Device) CreateBuffer(spec gpu.BufferSpec) (gpu.Buffer, error) {
	if spec.Size == 0 {
		return 0, &gpu.ResourceError{Resource: "buffer", Err: errors.New("zero size")}
	}
	b := gpu.Buffer(d.handle())
	d.buffers[b] = &buffer{spec: spec, data: make([]byte, spec.Size), owner: -1}
	return b, nil
}

func (d *Device) DestroyBuffer(b gpu.Buffer) {
	delete(d.buffers, b)
}

func (d *Device) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) error {
	buf, ok := d.buffers[b]
	if !ok {
		return fmt.Errorf("gputest: unknown buffer %d", b)
	}
	if !buf.spec.HostVisible {
		return fmt.Errorf("gputest: buffer %d is not host visible", b)
	}
	if offset+uint64(len(data)) > buf.spec.Size {
		return fmt.Errorf("gputest: write of %d bytes at %d overflows buffer %d",
			len(data), offset, b)
	}
	copy(buf.data[offset:], data)
	return nil
}

func (d *Device) Upload(b gpu.Buffer, data []byte, q gpu.Queue) error {
	buf, ok := d.buffers[b]
	if !ok {
		return fmt.Errorf("gputest: unknown buffer %d", b)
	}
	if uint64(len(data)) > buf.spec.Size {
		return fmt.Errorf("gputest: upload of %d bytes overflows buffer %d", len(data), b)
	}
	copy(buf.data, data)
	if !buf.spec.Concurrent() {
		buf.owner = int64(q.Family)
	}
	start := max(d.now, d.freeAt[q.Family])
	d.freeAt[q.Family] = start + d.cfg.Costs.Copy
	d.now = d.freeAt[q.Family]
	return nil
}

func (d *Device) CreateComputePipeline(spec gpu.ComputePipelineSpec) (gpu.Pipeline, error) {
	if len(spec.Shader) == 0 {
		return 0, &gpu.ResourceError{Resource: "compute pipeline", Err: errors.New("empty shader")}
	}
	p := gpu.Pipeline(d.handle())
	d.pipelines[p] = spec
	return p, nil
}

func (d *Device) DestroyPipeline(p gpu.Pipeline) {
	delete(d.pipelines, p)
}

func (d *Device) AllocateDescriptorSet(
	p gpu.Pipeline,
	bindings []gpu.DescriptorBinding,
) (gpu.DescriptorSet, error) {
	spec, ok := d.pipelines[p]
	if !ok {
		return 0, &gpu.ResourceError{Resource: "descriptor set", Err: errors.New("unknown pipeline")}
	}
	for _, b := range bindings {
		if int(b.Binding) >= len(spec.Bindings) || spec.Bindings[b.Binding] != b.Kind {
			return 0, &gpu.ResourceError{
				Resource: "descriptor set",
				Err:      fmt.Errorf("binding %d does not match the pipeline layout", b.Binding),
			}
		}
	}
	s := gpu.DescriptorSet(d.handle())
	d.sets[s] = append([]gpu.DescriptorBinding(nil), bindings...)
	return s, nil
}

func (d *Device) CreateQueryPool(count uint32) (gpu.QueryPool, error) {
	p := gpu.QueryPool(d.handle())
	d.queries[p] = make([]query, count)
	return p, nil
}

func (d *Device) DestroyQueryPool(pool gpu.QueryPool) {
	delete(d.queries, pool)
}

func (d *Device) ReadTimestamps(
	pool gpu.QueryPool,
	first, count uint32,
	wait bool,
) ([]uint64, error) {
	if d.lost() {
		return nil, gpu.ErrDeviceLost
	}
	qs, ok := d.queries[pool]
	if !ok || int(first+count) > len(qs) {
		return nil, fmt.Errorf("gputest: bad query range %d+%d on pool %d", first, count, pool)
	}

	out := make([]uint64, count)
	for i := range out {
		q := qs[int(first)+i]
		if !q.written {
			return nil, gpu.ErrNotReady
		}
		if q.availableAt > d.now {
			if !wait {
				return nil, gpu.ErrNotReady
			}
			d.now = q.availableAt
		}
		out[i] = q.value
	}
	return out, nil
}

func (d *Device) cb(h gpu.CommandBuffer) *commandBuffer {
	cb, ok := d.cbs[h]
	if !ok {
		panic(fmt.Sprintf("gputest: unknown command buffer %d", h))
	}
	return cb
}

func (d *Device) record(h gpu.CommandBuffer, o op) {
	cb := d.cb(h)
	if !cb.recording {
		d.Violations = append(d.Violations,
			fmt.Sprintf("command recorded into buffer %d outside of Begin/End", h))
		return
	}
	cb.ops = append(cb.ops, o)
}

func (d *Device) BeginCommandBuffer(h gpu.CommandBuffer, oneTime bool) error {
	cb := d.cb(h)
	cb.recording = true
	cb.ops = nil
	return nil
}

func (d *Device) EndCommandBuffer(h gpu.CommandBuffer) error {
	cb := d.cb(h)
	if !cb.recording {
		return fmt.Errorf("gputest: command buffer %d is not recording", h)
	}
	cb.recording = false
	return nil
}

func (d *Device) ResetCommandBuffer(h gpu.CommandBuffer) error {
	cb := d.cb(h)
	cb.recording = false
	cb.ops = nil
	return nil
}

func (d *Device) CmdPipelineBarrier(cb gpu.CommandBuffer, b gpu.Barrier) {
	d.record(cb, op{kind: opBarrier, barrier: b})
}

func (d *Device) CmdBindComputePipeline(cb gpu.CommandBuffer, p gpu.Pipeline, set gpu.DescriptorSet) {
	d.record(cb, op{kind: opBind, pipeline: p, set: set})
}

func (d *Device) CmdDispatch(cb gpu.CommandBuffer, x, y, z uint32) {
	d.record(cb, op{kind: opDispatch, groups: [3]uint32{x, y, z}})
}

func (d *Device) CmdCopyBuffer(cb gpu.CommandBuffer, src, dst gpu.Buffer, size uint64) {
	d.record(cb, op{kind: opCopy, src: src, dst: dst, size: size})
}

func (d *Device) CmdResetQueryPool(cb gpu.CommandBuffer, pool gpu.QueryPool, first, count uint32) {
	d.record(cb, op{kind: opResetQuery, pool: pool, first: first, count: count})
}

func (d *Device) CmdWriteTimestamp(
	cb gpu.CommandBuffer,
	stage gpu.Stage,
	pool gpu.QueryPool,
	q uint32,
) {
	d.record(cb, op{kind: opTimestamp, pool: pool, first: q})
}

// cmdDraw is used by the simulated renderer.
func (d *Device) cmdDraw(cb gpu.CommandBuffer, instances gpu.Buffer) {
	d.record(cb, op{kind: opDraw, instance: instances})
}

func (d *Device) cmdPresent(cb gpu.CommandBuffer) {
	d.record(cb, op{kind: opPresent})
}

func (d *Device) Submit(q gpu.Queue, s gpu.Submission) error {
	if d.lost() {
		return &gpu.SubmitError{Queue: q.Kind, Err: gpu.ErrDeviceLost}
	}
	if err, ok := d.failures[q.Kind]; ok {
		delete(d.failures, q.Kind)
		return &gpu.SubmitError{Queue: q.Kind, Err: err}
	}

	var fc *fence
	if s.Fence != gpu.NullFence {
		var ok bool
		fc, ok = d.fences[s.Fence]
		if !ok {
			return &gpu.SubmitError{Queue: q.Kind, Err: fmt.Errorf("unknown fence %d", s.Fence)}
		}
		if fc.signaled || fc.pending {
			return &gpu.SubmitError{
				Queue: q.Kind,
				Err:   fmt.Errorf("fence %d submitted without being reset", s.Fence),
			}
		}
	}

	start := max(d.now, d.freeAt[q.Family])
	for _, w := range s.Wait {
		sem, ok := d.semaphores[w]
		if !ok || !sem.pending {
			return &gpu.SubmitError{
				Queue: q.Kind,
				Err:   fmt.Errorf("waiting on semaphore %d which has no pending signal", w),
			}
		}
		start = max(start, sem.signaledAt)
		sem.pending = false
	}

	rec := Submission{
		Queue:          q,
		Seq:            len(d.Submissions),
		Submitted:      d.now,
		Start:          start,
		CommandBuffers: append([]gpu.CommandBuffer(nil), s.CommandBuffers...),
		Fence:          s.Fence,
		Wait:           append([]gpu.Semaphore(nil), s.Wait...),
		Signal:         append([]gpu.Semaphore(nil), s.Signal...),
	}

	t := start
	for _, h := range s.CommandBuffers {
		cb := d.cb(h)
		if cb.recording {
			return &gpu.SubmitError{
				Queue: q.Kind,
				Err:   fmt.Errorf("command buffer %d is still recording", h),
			}
		}
		if cb.family != q.Family {
			d.Violations = append(d.Violations, fmt.Sprintf(
				"command buffer %d from family %d submitted to family %d",
				h, cb.family, q.Family))
		}
		t = d.execute(q, cb, t, &rec)
	}

	rec.End = t
	d.freeAt[q.Family] = t
	for _, sig := range s.Signal {
		if sem, ok := d.semaphores[sig]; ok {
			sem.pending = true
			sem.signaledAt = t
		}
	}
	if fc != nil {
		fc.pending = true
		fc.signaledAt = t
	}

	d.Submissions = append(d.Submissions, rec)
	d.now += d.cfg.Costs.HostStep
	return nil
}

func (d *Device) execute(q gpu.Queue, cb *commandBuffer, t uint64, rec *Submission) uint64 {
	var bound gpu.DescriptorSet
	for _, o := range cb.ops {
		switch o.kind {
		case opBarrier:
			d.applyBarrier(q, o.barrier)
		case opBind:
			bound = o.set
		case opDispatch:
			for _, b := range d.sets[bound] {
				if b.Kind == gpu.DescriptorStorageBuffer {
					d.use(q, b.Buffer, "dispatch")
				}
			}
			rec.Dispatches++
			t += d.cfg.Costs.Dispatch
		case opCopy:
			d.use(q, o.src, "copy source")
			d.use(q, o.dst, "copy destination")
			if src, ok := d.buffers[o.src]; ok {
				if dst, ok := d.buffers[o.dst]; ok {
					copy(dst.data[:o.size], src.data[:o.size])
				}
			}
			rec.Copies = append(rec.Copies, Copy{Src: o.src, Dst: o.dst, Size: o.size})
			t += d.cfg.Costs.Copy
		case opDraw:
			d.use(q, o.instance, "draw")
			rec.Draws = append(rec.Draws, o.instance)
			t += d.cfg.Costs.Draw
		case opPresent:
			t += d.cfg.Costs.Present
		case opResetQuery:
			qs := d.queries[o.pool]
			for i := o.first; i < o.first+o.count && int(i) < len(qs); i++ {
				qs[i] = query{}
			}
		case opTimestamp:
			qs := d.queries[o.pool]
			if int(o.first) < len(qs) {
				qs[o.first] = query{written: true, value: t, availableAt: t}
			}
		}
	}

	// Every query written by the batch becomes available when it completes.
	for _, o := range cb.ops {
		if o.kind == opTimestamp {
			if qs := d.queries[o.pool]; int(o.first) < len(qs) {
				qs[o.first].availableAt = t
			}
		}
	}
	return t
}

func (d *Device) applyBarrier(q gpu.Queue, b gpu.Barrier) {
	for _, bb := range b.Buffers {
		if !bb.OwnershipTransfer() {
			continue
		}
		buf, ok := d.buffers[bb.Buffer]
		if !ok || buf.spec.Concurrent() {
			continue
		}
		switch q.Family {
		case bb.DstQueueFamily:
			buf.owner = int64(bb.DstQueueFamily)
			continue
		case bb.SrcQueueFamily:
			if buf.owner >= 0 && buf.owner != int64(q.Family) {
				d.Violations = append(d.Violations, fmt.Sprintf(
					"buffer %d released by family %d which does not own it",
					bb.Buffer, q.Family))
			}
			// Released and owned by nobody until acquired.
			buf.owner = -2
			continue
		}
		d.Violations = append(d.Violations, fmt.Sprintf(
			"barrier for buffer %d recorded on unrelated family %d", bb.Buffer, q.Family))
	}
}

func (d *Device) use(q gpu.Queue, b gpu.Buffer, what string) {
	buf, ok := d.buffers[b]
	if !ok {
		d.Violations = append(d.Violations, fmt.Sprintf("%s of unknown buffer %d", what, b))
		return
	}
	if buf.spec.Concurrent() {
		return
	}
	if buf.owner == -1 {
		buf.owner = int64(q.Family)
		return
	}
	if buf.owner != int64(q.Family) {
		d.Violations = append(d.Violations, fmt.Sprintf(
			"%s of buffer %d on family %d while owned by %d",
			what, b, q.Family, buf.owner))
	}
}

func (d *Device) QueueWaitIdle(q gpu.Queue) error {
	if d.lost() {
		return gpu.ErrDeviceLost
	}
	d.now = max(d.now, d.freeAt[q.Family])
	return nil
}

func (d *Device) WaitIdle() error {
	for _, t := range d.freeAt {
		d.now = max(d.now, t)
	}
	if d.lost() {
		return gpu.ErrDeviceLost
	}
	return nil
}

var _ gpu.Device = (*Device)(nil)
