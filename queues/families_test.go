package queues

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		name     string
		families []FamilyCaps
		graphics uint32
		present  uint32
		compute  uint32
		transfer int
		async    bool
	}{
		{
			name: "single universal family",
			families: []FamilyCaps{
				{Graphics: true, Compute: true, Transfer: true, Present: true},
			},
			transfer: -1,
		},
		{
			name: "discrete gpu with async compute and dma",
			families: []FamilyCaps{
				{Graphics: true, Compute: true, Transfer: true, Present: true},
				{Compute: true, Transfer: true},
				{Transfer: true},
			},
			compute:  1,
			transfer: 2,
			async:    true,
		},
		{
			name: "present prefers the graphics family",
			families: []FamilyCaps{
				{Compute: true, Present: true},
				{Graphics: true, Compute: true, Present: true},
			},
			graphics: 1,
			present:  1,
			compute:  0,
			transfer: -1,
			async:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			indices := Select(tt.families)
			require.True(t, indices.IsComplete())

			assert.Equal(t, tt.graphics, indices.Graphics.Get())
			assert.Equal(t, tt.present, indices.Present.Get())
			assert.Equal(t, tt.compute, indices.Compute.Get())
			assert.Equal(t, tt.async, indices.AsyncCompute())

			if tt.transfer < 0 {
				assert.False(t, indices.Transfer.HasValue())
			} else {
				assert.Equal(t, uint32(tt.transfer), indices.Transfer.Get())
			}
		})
	}
}

func TestSelectIncomplete(t *testing.T) {
	indices := Select([]FamilyCaps{{Compute: true}})
	assert.False(t, indices.IsComplete())
}

func TestUnique(t *testing.T) {
	indices := Select([]FamilyCaps{
		{Graphics: true, Compute: true, Present: true},
		{Compute: true},
		{Transfer: true},
	})
	assert.Equal(t, []uint32{0, 1, 2}, indices.Unique())

	indices = Select([]FamilyCaps{{Graphics: true, Compute: true, Present: true}})
	assert.Equal(t, []uint32{0}, indices.Unique())
}
