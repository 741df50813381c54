package optional

// Optional holds a value which may or may not be set. Queue family indices use it
// since zero is a perfectly valid family index.
type Optional[T any] struct {
	value T
	set   bool
}

// Set stores val and marks the optional as having a value.
func (o *Optional[T]) Set(val T) {
	o.value = val
	o.set = true
}

// Get returns the stored value. It returns the zero value of T when nothing
// has been set.
func (o *Optional[T]) Get() T {
	return o.value
}

// HasValue returns true if Set has been called.
func (o *Optional[T]) HasValue() bool {
	return o.set
}

// Reset clears the stored value.
func (o *Optional[T]) Reset() {
	var zero T
	o.value = zero
	o.set = false
}
