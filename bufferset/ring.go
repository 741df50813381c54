package bufferset

import "fmt"

// Slot selects one half of a double buffered resource.
type Slot uint8

const (
	SlotA Slot = iota
	SlotB
)

// Other returns the slot which is not s.
func (s Slot) Other() Slot {
	return s ^ 1
}

// Index returns the slot as an array index.
func (s Slot) Index() int {
	return int(s & 1)
}

func (s Slot) String() string {
	switch s {
	case SlotA:
		return "A"
	case SlotB:
		return "B"
	default:
		return fmt.Sprintf("Slot(%d)", uint8(s))
	}
}

// Ring holds one value per slot.
type Ring[T any] struct {
	items [2]T
}

// NewRing returns a ring holding a in SlotA and b in SlotB.
func NewRing[T any](a, b T) Ring[T] {
	return Ring[T]{items: [2]T{a, b}}
}

// Get returns the value in slot s.
func (r *Ring[T]) Get(s Slot) T {
	return r.items[s.Index()]
}

// Set stores v in slot s.
func (r *Ring[T]) Set(s Slot, v T) {
	r.items[s.Index()] = v
}

// Slots returns both values, SlotA first.
func (r *Ring[T]) Slots() []T {
	return r.items[:]
}
