// Package geometry builds what the benchmark draws: the particle records the
// compute shader integrates and the mesh instanced once per particle.
package geometry

import (
	"math"
	"math/rand"
	"unsafe"

	"github.com/xlab/linmath"
)

// Particle is a single simulated body. W of Pos carries its mass.
type Particle struct {
	Pos linmath.Vec4
	Vel linmath.Vec4
}

// ParticleSize is the size of Particle in bytes as seen by the shaders.
const ParticleSize = uint64(unsafe.Sizeof(Particle{}))

// Vertex is a vertex of the instanced mesh.
type Vertex struct {
	Pos    linmath.Vec3
	Normal linmath.Vec3
	UV     linmath.Vec2
}

// VertexSize is the size of Vertex in bytes.
const VertexSize = uint32(unsafe.Sizeof(Vertex{}))

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// SeedParticles places n particles at random on the z=0 plane inside
// [-10, 10) on both axes. They start at rest with a mass of 100.
func SeedParticles(n int, rng *rand.Rand) []Particle {
	particles := make([]Particle, n)
	for i := range particles {
		x := rng.Float32()*20 - 10
		y := rng.Float32()*20 - 10
		particles[i].Pos = linmath.Vec4{x, y, 0, 100}
	}
	return particles
}

// Sphere tessellates an ellipsoid with radius scale into stacks*slices quads.
// Every quad has its own four vertices.
func Sphere(stacks, slices uint32, scale float32) Mesh {
	dims := linmath.Vec3{scale, scale, scale}

	deltaRho := math.Pi / float64(stacks)
	deltaTheta := 2 * math.Pi / float64(slices)
	deltaT := dims[1] / float32(stacks)
	deltaS := dims[0] / float32(slices)

	mesh := Mesh{
		Vertices: make([]Vertex, 0, 4*stacks*slices),
		Indices:  make([]uint32, 0, 6*stacks*slices),
	}

	point := func(theta, rho float64) linmath.Vec3 {
		return linmath.Vec3{
			dims[0] * float32(-math.Sin(theta)*math.Sin(rho)),
			dims[1] * float32(math.Cos(theta)*math.Sin(rho)),
			dims[2] * float32(math.Cos(rho)),
		}
	}

	t := dims[1]
	var ind uint32
	for i := uint32(0); i < stacks; i++ {
		rho := float64(i) * deltaRho
		var s float32

		for j := uint32(0); j < slices; j++ {
			theta := float64(j) * deltaTheta
			s += deltaS

			var verts [4]linmath.Vec3
			var coords [4]linmath.Vec2

			verts[0] = point(theta, rho)
			coords[0] = linmath.Vec2{s, t}
			verts[1] = point(theta, rho+deltaRho)
			coords[1] = linmath.Vec2{s, t - deltaT}

			theta = float64(j+1) * deltaTheta
			if j+1 == slices {
				theta = 0
			}
			s = 0

			verts[2] = point(theta, rho)
			coords[2] = linmath.Vec2{s, t}
			verts[3] = point(theta, rho+deltaRho)
			coords[3] = linmath.Vec2{s, t - deltaT}

			for k := range verts {
				v := Vertex{Pos: verts[k], UV: linmath.Vec2{coords[k][0] * 0.2, coords[k][1] * 0.2}}
				v.Normal = unit(verts[k])
				mesh.Vertices = append(mesh.Vertices, v)
			}

			mesh.Indices = append(mesh.Indices,
				ind+0, ind+1, ind+2,
				ind+1, ind+3, ind+2,
			)
			ind += 4
		}
		t -= deltaT
	}

	return mesh
}

// unit returns v scaled to length one. A zero vector is returned as is
// instead of the NaNs linmath would produce.
func unit(v linmath.Vec3) linmath.Vec3 {
	if v.Len() == 0 {
		return v
	}
	var n linmath.Vec3
	n.Norm(&v)
	return n
}
