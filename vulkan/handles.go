package vulkan

// table hands out the opaque handles of the gpu package for Vulkan objects.
// Zero is never used so it stays the null handle.
type table[T any] struct {
	next    uint64
	entries map[uint64]T
}

func (t *table[T]) put(v T) uint64 {
	if t.entries == nil {
		t.entries = make(map[uint64]T)
	}
	t.next++
	t.entries[t.next] = v
	return t.next
}

func (t *table[T]) get(h uint64) (T, bool) {
	v, ok := t.entries[h]
	return v, ok
}

// take removes h from the table and returns what it referred to.
func (t *table[T]) take(h uint64) (T, bool) {
	v, ok := t.entries[h]
	if ok {
		delete(t.entries, h)
	}
	return v, ok
}

func (t *table[T]) len() int {
	return len(t.entries)
}
