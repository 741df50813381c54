package overlap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		c, g Interval
		want bool
	}{
		{"compute first, overlapping", Interval{0, 10}, Interval{5, 20}, true},
		{"compute first, disjoint", Interval{0, 10}, Interval{15, 20}, false},
		{"compute first, touching", Interval{0, 10}, Interval{10, 20}, false},
		{"graphics first, overlapping", Interval{5, 20}, Interval{0, 10}, true},
		{"graphics first, disjoint", Interval{15, 20}, Interval{0, 10}, false},
		{"graphics first, touching", Interval{10, 20}, Interval{0, 10}, false},
		{"compute inside graphics", Interval{3, 4}, Interval{0, 10}, true},
		{"graphics inside compute", Interval{0, 10}, Interval{3, 4}, true},
		{"same start", Interval{5, 6}, Interval{5, 9}, true},
		{"same start, empty compute", Interval{5, 5}, Interval{5, 9}, false},
		{"same start, empty graphics", Interval{5, 9}, Interval{5, 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.c, tt.g))
			assert.Equal(t, tt.want, Classify(tt.g, tt.c), "classification is symmetric")
		})
	}
}

func TestMillis(t *testing.T) {
	assert.InDelta(t, 1.0, Interval{Start: 0, End: 1_000_000}.Millis(1), 1e-9)
	assert.InDelta(t, 2.5, Interval{Start: 1000, End: 101000}.Millis(25), 1e-9)
	assert.Zero(t, Interval{Start: 10, End: 5}.Millis(1))
	assert.InDelta(t, 0.5, TicksToMillis(500_000, 1), 1e-9)
}

func TestDifference(t *testing.T) {
	tests := []struct {
		name string
		c, g Interval
		want int64
	}{
		{"compute first, overlapping", Interval{0, 10}, Interval{5, 20}, 5},
		{"compute first, disjoint", Interval{0, 10}, Interval{15, 20}, -5},
		{"graphics first, overlapping", Interval{5, 20}, Interval{0, 10}, 5},
		{"graphics first, disjoint", Interval{15, 20}, Interval{0, 10}, -5},
		{"compute contains graphics", Interval{0, 100}, Interval{10, 20}, 90},
		{"graphics contains compute", Interval{3, 4}, Interval{0, 10}, 7},
		{"same start", Interval{5, 6}, Interval{5, 9}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Difference(tt.c, tt.g))
		})
	}
}

func TestClassifySymmetricRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	interval := func() Interval {
		start := uint64(rng.Intn(100))
		return Interval{Start: start, End: start + uint64(rng.Intn(50))}
	}

	for i := 0; i < 10000; i++ {
		c, g := interval(), interval()
		if Classify(c, g) != Classify(g, c) {
			t.Fatalf("Classify(%v, %v) != Classify(%v, %v)", c, g, g, c)
		}
	}
}

func TestClassifyBoundary(t *testing.T) {
	assert.False(t, Classify(Interval{0, 10}, Interval{10, 20}))
	assert.True(t, Classify(Interval{0, 10}, Interval{9, 20}))
}
