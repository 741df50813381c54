package queues

import (
	"vulkan-async-compute/optional"
)

// FamilyIndices holds the indexes of Vulkan queue families needed by the programs.
type FamilyIndices struct {

	// Graphics is the index of the graphics queue family.
	Graphics optional.Optional[uint32]

	// Present is the index of the queue family used for presenting to the drawing
	// surface.
	Present optional.Optional[uint32]

	// Compute is the index of the queue family used for the particle simulation.
	// When the device exposes a compute family without graphics support it is
	// preferred so that compute work can run on separate hardware.
	Compute optional.Optional[uint32]

	// Transfer is the index of a transfer only queue family. It stays unset on
	// devices which do not have one.
	Transfer optional.Optional[uint32]
}

// IsComplete returns true if all required families have been set. Transfer is
// optional.
func (f *FamilyIndices) IsComplete() bool {
	return f.Graphics.HasValue() && f.Present.HasValue() && f.Compute.HasValue()
}

// AsyncCompute reports whether compute and graphics live on different families.
func (f *FamilyIndices) AsyncCompute() bool {
	return f.Compute.Get() != f.Graphics.Get()
}

// Unique returns the distinct family indices which are set, in the order
// graphics, present, compute, transfer. One device queue is created for each.
func (f *FamilyIndices) Unique() []uint32 {
	var (
		out  []uint32
		seen = make(map[uint32]struct{})
	)
	for _, o := range []optional.Optional[uint32]{f.Graphics, f.Present, f.Compute, f.Transfer} {
		if !o.HasValue() {
			continue
		}
		if _, ok := seen[o.Get()]; ok {
			continue
		}
		seen[o.Get()] = struct{}{}
		out = append(out, o.Get())
	}
	return out
}

// FamilyCaps is what a single queue family can do.
type FamilyCaps struct {
	Graphics bool
	Compute  bool
	Transfer bool
	Present  bool
}

// Select picks queue families out of the capabilities reported by a physical
// device. The index in families is the family index.
func Select(families []FamilyCaps) FamilyIndices {
	indices := FamilyIndices{}

	for i, family := range families {
		idx := uint32(i)

		if family.Graphics && !indices.Graphics.HasValue() {
			indices.Graphics.Set(idx)
		}

		// Presenting from the graphics family avoids an extra ownership
		// transfer of swap chain images.
		if family.Present {
			if !indices.Present.HasValue() || (family.Graphics && idx == indices.Graphics.Get()) {
				indices.Present.Set(idx)
			}
		}

		if family.Compute && !family.Graphics && !indices.Compute.HasValue() {
			indices.Compute.Set(idx)
		}

		if family.Transfer && !family.Graphics && !family.Compute &&
			!indices.Transfer.HasValue() {
			indices.Transfer.Set(idx)
		}
	}

	if !indices.Compute.HasValue() {
		for i, family := range families {
			if family.Compute {
				indices.Compute.Set(uint32(i))
				break
			}
		}
	}

	return indices
}
