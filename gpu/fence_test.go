package gpu

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedFences answers WaitForFence with the queued results.
type scriptedFences struct {
	results  []error
	timeouts []time.Duration
}

func (s *scriptedFences) CreateFence(bool) (Fence, error) { return 1, nil }
func (s *scriptedFences) DestroyFence(Fence)              {}
func (s *scriptedFences) FenceStatus(Fence) error         { return ErrNotReady }
func (s *scriptedFences) ResetFence(Fence) error          { return nil }

func (s *scriptedFences) WaitForFence(_ Fence, timeout time.Duration) error {
	s.timeouts = append(s.timeouts, timeout)
	err := s.results[0]
	s.results = s.results[1:]
	return err
}

func TestWaitFenceRetriesTransient(t *testing.T) {
	f := &scriptedFences{results: []error{ErrTimeout, ErrNotReady, nil}}
	require.NoError(t, WaitFence(f, 1))
	assert.Len(t, f.timeouts, 3)
	assert.Equal(t, WaitForever, f.timeouts[0])
}

func TestWaitFenceDeviceLost(t *testing.T) {
	f := &scriptedFences{results: []error{ErrTimeout, ErrDeviceLost}}
	err := WaitFence(f, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceLost))
	assert.False(t, IsTransient(err))
}

func TestSpinWaitFence(t *testing.T) {
	f := &scriptedFences{results: []error{ErrTimeout, ErrTimeout, ErrTimeout, nil}}
	require.NoError(t, SpinWaitFence(f, 1, SpinStep))
	assert.Len(t, f.timeouts, 4)
	for _, timeout := range f.timeouts {
		assert.Equal(t, time.Microsecond, timeout)
	}
}

func TestErrors(t *testing.T) {
	cause := errors.New("out of device memory")

	var err error = &ResourceError{Resource: "particle buffer", Err: cause}
	assert.EqualError(t, err, "creating particle buffer: out of device memory")
	assert.True(t, errors.Is(err, cause))

	err = &SubmitError{Queue: QueueCompute, Err: ErrDeviceLost}
	assert.EqualError(t, err, "submitting to compute queue: device lost")
	assert.True(t, errors.Is(err, ErrDeviceLost))

	assert.True(t, IsTransient(ErrTimeout))
	assert.False(t, IsTransient(cause))
}
