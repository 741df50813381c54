package gpu

import (
	"fmt"
	"math"
	"time"
)

// WaitForever is the longest timeout a fence wait accepts.
const WaitForever = time.Duration(math.MaxInt64)

// SpinStep is the bounded wait used while spinning on a fence.
const SpinStep = time.Microsecond

// WaitFence blocks until f is signaled. Transient results are retried, any
// other error is returned as is.
func WaitFence(d Fences, f Fence) error {
	for {
		err := d.WaitForFence(f, WaitForever)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return fmt.Errorf("waiting for fence: %w", err)
		}
	}
}

// SpinWaitFence polls f with waits of step until it is signaled.
func SpinWaitFence(d Fences, f Fence, step time.Duration) error {
	for {
		err := d.WaitForFence(f, step)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return fmt.Errorf("spinning on fence: %w", err)
		}
	}
}
