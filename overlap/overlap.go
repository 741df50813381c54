// Package overlap decides from device timestamps whether compute and graphics
// work of a frame ran at the same time.
package overlap

// Interval is a span of device time in timestamp ticks.
type Interval struct {
	Start uint64
	End   uint64
}

// Ticks returns the length of the interval, zero when End precedes Start.
func (i Interval) Ticks() uint64 {
	if i.End < i.Start {
		return 0
	}
	return i.End - i.Start
}

// Millis converts the length of the interval to milliseconds using the
// device timestamp period in nanoseconds per tick.
func (i Interval) Millis(period float32) float64 {
	return TicksToMillis(i.Ticks(), period)
}

// TicksToMillis converts a number of timestamp ticks to milliseconds.
func TicksToMillis(ticks uint64, period float32) float64 {
	return float64(ticks) * float64(period) / 1e6
}

// Classify reports whether the compute interval c and the graphics interval g
// overlap. Whichever starts first must still be running when the other one
// starts. Intervals starting at the same tick overlap when both have a
// length.
func Classify(c, g Interval) bool {
	switch {
	case c.Start < g.Start:
		return g.Start < c.End
	case g.Start < c.Start:
		return c.Start < g.End
	default:
		return c.Start < c.End && g.Start < g.End
	}
}

// Difference measures in ticks how far the interval that starts first runs
// past the start of the other. It is negative when the first one ended
// before the other started. Intervals starting at the same tick give zero.
func Difference(c, g Interval) int64 {
	switch {
	case c.Start < g.Start:
		return int64(c.End) - int64(g.Start)
	case g.Start < c.Start:
		return int64(g.End) - int64(c.Start)
	default:
		return 0
	}
}
