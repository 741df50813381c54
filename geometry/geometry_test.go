package geometry

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xlab/linmath"
)

func TestSizes(t *testing.T) {
	assert.Equal(t, uint64(32), ParticleSize)
	assert.Equal(t, uint32(32), VertexSize)
}

func TestSeedParticles(t *testing.T) {
	particles := SeedParticles(500, rand.New(rand.NewSource(1)))
	require.Len(t, particles, 500)

	for _, p := range particles {
		assert.GreaterOrEqual(t, p.Pos[0], float32(-10))
		assert.Less(t, p.Pos[0], float32(10))
		assert.GreaterOrEqual(t, p.Pos[1], float32(-10))
		assert.Less(t, p.Pos[1], float32(10))
		assert.Zero(t, p.Pos[2])
		assert.Equal(t, float32(100), p.Pos[3])
		assert.Zero(t, p.Vel)
	}
}

func TestSphere(t *testing.T) {
	const scale = 0.5
	mesh := Sphere(20, 20, scale)

	assert.Len(t, mesh.Vertices, 4*20*20)
	assert.Len(t, mesh.Indices, 6*20*20)

	for _, idx := range mesh.Indices {
		require.Less(t, idx, uint32(len(mesh.Vertices)))
	}

	for _, v := range mesh.Vertices {
		r := math.Sqrt(float64(v.Pos[0]*v.Pos[0] + v.Pos[1]*v.Pos[1] + v.Pos[2]*v.Pos[2]))
		assert.InDelta(t, scale, r, 1e-5)

		assert.InDelta(t, 1, v.Normal.Len(), 1e-5)
	}

	// Poles sit on the z axis.
	assert.InDelta(t, scale, mesh.Vertices[0].Pos[2], 1e-6)
	assert.InDelta(t, 0.2*scale, mesh.Vertices[0].UV[1], 1e-6)
}

func TestLoadOBJ(t *testing.T) {
	const model = `# quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1 2 3 4
`
	mesh, err := LoadOBJ(strings.NewReader(model), 2)
	require.NoError(t, err)

	require.Len(t, mesh.Indices, 6)
	require.Len(t, mesh.Vertices, 6)
	assert.Equal(t, float32(2), mesh.Vertices[1].Pos[0])
	for _, v := range mesh.Vertices {
		assert.InDelta(t, 1, v.Normal[2], 1e-6)
	}
}

func TestLoadOBJDegenerateFace(t *testing.T) {
	mesh, err := LoadOBJ(strings.NewReader("v 0 0 0\nv 1 0 0\nv 2 0 0\nf 1 2 3\n"), 1)
	require.NoError(t, err)

	require.Len(t, mesh.Vertices, 3)
	for _, v := range mesh.Vertices {
		assert.Equal(t, linmath.Vec3{}, v.Normal)
	}
}

func TestUnit(t *testing.T) {
	assert.Equal(t, linmath.Vec3{}, unit(linmath.Vec3{}))

	n := unit(linmath.Vec3{3, 0, 4})
	assert.InDelta(t, 0.6, n[0], 1e-6)
	assert.InDelta(t, 0.8, n[2], 1e-6)
}

func TestLoadOBJEmpty(t *testing.T) {
	_, err := LoadOBJ(strings.NewReader("v 0 0 0\n"), 1)
	assert.Error(t, err)
}

func TestLoadOBJFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "models/tri.obj", []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"), 0o644))

	mesh, err := LoadOBJFile(fs, "models/tri.obj", 1)
	require.NoError(t, err)
	assert.Len(t, mesh.Indices, 3)

	_, err = LoadOBJFile(fs, "models/missing.obj", 1)
	assert.Error(t, err)
}
