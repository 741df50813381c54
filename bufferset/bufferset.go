// Package bufferset owns the device buffers the strategies coordinate: the
// particle storage, the instanced mesh and the way particle buffers are split
// between the compute and the graphics queues.
package bufferset

import (
	"fmt"

	"vulkan-async-compute/geometry"
	"vulkan-async-compute/gpu"
	"vulkan-async-compute/unsafer"
)

// Layout is how particle buffers are arranged.
type Layout int

const (
	// Single is one buffer written by compute and drawn by graphics.
	Single Layout = iota

	// Pair is a storage buffer compute writes into and a draw buffer
	// graphics reads from, kept in sync by copies.
	Pair

	// Double is two independent buffers, compute writing one while
	// graphics reads the other.
	Double
)

func (l Layout) String() string {
	switch l {
	case Single:
		return "single"
	case Pair:
		return "pair"
	case Double:
		return "double"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// Options configures how buffers are created.
type Options struct {
	Layout Layout

	// StorageFamilies and DrawFamilies are the queue families accessing the
	// storage and the draw buffers. More than one distinct family results
	// in concurrent sharing. Single and Double layouts only look at
	// StorageFamilies.
	StorageFamilies []uint32
	DrawFamilies    []uint32

	// Upload is the queue initial contents are copied with. Exclusive
	// buffers end up owned by its family.
	Upload gpu.Queue
}

// BufferSet is the particle, vertex and index buffers of a run.
type BufferSet struct {
	Layout Layout

	// Particles holds one buffer per slot. With Single both slots hold the
	// same buffer. With Pair SlotA is storage and SlotB is draw.
	Particles Ring[gpu.Buffer]

	Vertices gpu.Buffer
	Indices  gpu.Buffer

	IndexCount    uint32
	ParticleCount uint32

	// ParticleBytes is the size of a single particle buffer.
	ParticleBytes uint64
}

// New creates and fills the buffers. On failure everything created so far is
// destroyed again.
func New(
	dev gpu.Device,
	opts Options,
	particles []geometry.Particle,
	mesh geometry.Mesh,
) (_ *BufferSet, err error) {
	if len(particles) == 0 {
		return nil, &gpu.ResourceError{
			Resource: "particle buffer",
			Err:      fmt.Errorf("no particles"),
		}
	}
	if len(mesh.Indices) == 0 {
		return nil, &gpu.ResourceError{
			Resource: "index buffer",
			Err:      fmt.Errorf("empty mesh"),
		}
	}

	set := &BufferSet{
		Layout:        opts.Layout,
		IndexCount:    uint32(len(mesh.Indices)),
		ParticleCount: uint32(len(particles)),
		ParticleBytes: uint64(len(particles)) * geometry.ParticleSize,
	}
	defer func() {
		if err != nil {
			set.Destroy(dev)
		}
	}()

	particleData := unsafer.SliceToBytes(particles)

	storageUsage := gpu.UsageStorage | gpu.UsageVertex | gpu.UsageTransferDst
	var a, b gpu.Buffer

	switch opts.Layout {
	case Single:
		a, err = set.create(dev, "particle buffer", storageUsage, opts.StorageFamilies,
			particleData, opts.Upload)
		b = a
	case Pair:
		a, err = set.create(dev, "storage buffer",
			gpu.UsageStorage|gpu.UsageTransferSrc|gpu.UsageTransferDst,
			opts.StorageFamilies, particleData, opts.Upload)
		if err == nil {
			set.Particles.Set(SlotA, a)
			b, err = set.create(dev, "draw buffer", gpu.UsageVertex|gpu.UsageTransferDst,
				opts.DrawFamilies, particleData, opts.Upload)
		}
	case Double:
		a, err = set.create(dev, "particle buffer A", storageUsage, opts.StorageFamilies,
			particleData, opts.Upload)
		if err == nil {
			set.Particles.Set(SlotA, a)
			b, err = set.create(dev, "particle buffer B", storageUsage, opts.StorageFamilies,
				particleData, opts.Upload)
		}
	default:
		return nil, fmt.Errorf("unknown buffer layout %s", opts.Layout)
	}
	if err != nil {
		return nil, err
	}
	set.Particles = NewRing(a, b)

	set.Vertices, err = set.create(dev, "vertex buffer", gpu.UsageVertex|gpu.UsageTransferDst,
		nil, unsafer.SliceToBytes(mesh.Vertices), opts.Upload)
	if err != nil {
		return nil, err
	}

	set.Indices, err = set.create(dev, "index buffer", gpu.UsageIndex|gpu.UsageTransferDst,
		nil, unsafer.SliceToBytes(mesh.Indices), opts.Upload)
	if err != nil {
		return nil, err
	}

	return set, nil
}

func (s *BufferSet) create(
	dev gpu.Device,
	name string,
	usage gpu.BufferUsage,
	families []uint32,
	data []byte,
	upload gpu.Queue,
) (gpu.Buffer, error) {
	buf, err := dev.CreateBuffer(gpu.BufferSpec{
		Size:     uint64(len(data)),
		Usage:    usage,
		Families: families,
	})
	if err != nil {
		return 0, &gpu.ResourceError{Resource: name, Err: err}
	}

	if err := dev.Upload(buf, data, upload); err != nil {
		dev.DestroyBuffer(buf)
		return 0, fmt.Errorf("uploading %s: %w", name, err)
	}
	return buf, nil
}

// Storage returns the buffer compute writes into for slot.
func (s *BufferSet) Storage(slot Slot) gpu.Buffer {
	switch s.Layout {
	case Single, Pair:
		return s.Particles.Get(SlotA)
	default:
		return s.Particles.Get(slot)
	}
}

// DrawSource returns the buffer graphics reads instances from for slot.
func (s *BufferSet) DrawSource(slot Slot) gpu.Buffer {
	switch s.Layout {
	case Single:
		return s.Particles.Get(SlotA)
	case Pair:
		return s.Particles.Get(SlotB)
	default:
		return s.Particles.Get(slot)
	}
}

// StorageBuffers returns the distinct buffers compute writes into, one per
// descriptor set.
func (s *BufferSet) StorageBuffers() []gpu.Buffer {
	if s.Layout == Double {
		return []gpu.Buffer{s.Particles.Get(SlotA), s.Particles.Get(SlotB)}
	}
	return []gpu.Buffer{s.Particles.Get(SlotA)}
}

// Draw returns a draw request for instances read from slot. Synchronisation
// fields are left for the caller.
func (s *BufferSet) Draw(slot Slot) gpu.DrawRequest {
	return gpu.DrawRequest{
		Vertices:      s.Vertices,
		Indices:       s.Indices,
		IndexCount:    s.IndexCount,
		Instances:     s.DrawSource(slot),
		InstanceCount: s.ParticleCount,
	}
}

// Destroy releases every buffer of the set. It is safe on a partially built
// set.
func (s *BufferSet) Destroy(dev gpu.Device) {
	seen := make(map[gpu.Buffer]bool)
	for _, b := range append(s.Particles.Slots(), s.Vertices, s.Indices) {
		if b == 0 || seen[b] {
			continue
		}
		seen[b] = true
		dev.DestroyBuffer(b)
	}
	s.Particles = Ring[gpu.Buffer]{}
	s.Vertices = 0
	s.Indices = 0
}
