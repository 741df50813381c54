package geometry

import (
	"fmt"
	"io"

	"github.com/mokiat/go-data-front/decoder/obj"
	"github.com/spf13/afero"
	"github.com/xlab/linmath"
)

// LoadOBJFile reads a Wavefront OBJ model from path on fs. See LoadOBJ.
func LoadOBJFile(fs afero.Fs, path string, scale float32) (Mesh, error) {
	f, err := fs.Open(path)
	if err != nil {
		return Mesh{}, fmt.Errorf("opening mesh: %w", err)
	}
	defer f.Close()

	return LoadOBJ(f, scale)
}

// LoadOBJ decodes a Wavefront OBJ model into a triangle list. Polygons are
// split into fans, positions are multiplied by scale and every triangle gets
// a flat normal.
func LoadOBJ(r io.Reader, scale float32) (Mesh, error) {
	decoder := obj.NewDecoder(obj.DefaultLimits())
	model, err := decoder.Decode(r)
	if err != nil {
		return Mesh{}, fmt.Errorf("decoding obj model: %w", err)
	}

	var mesh Mesh
	for _, object := range model.Objects {
		for _, objMesh := range object.Meshes {
			for _, face := range objMesh.Faces {
				if len(face.References) < 3 {
					continue
				}

				positions := make([]linmath.Vec3, 0, len(face.References))
				for _, ref := range face.References {
					v := model.GetVertexFromReference(ref)
					positions = append(positions, linmath.Vec3{
						float32(v.X) * scale,
						float32(v.Y) * scale,
						float32(v.Z) * scale,
					})
				}

				for i := 1; i+1 < len(positions); i++ {
					addTriangle(&mesh, positions[0], positions[i], positions[i+1])
				}
			}
		}
	}

	if len(mesh.Indices) == 0 {
		return Mesh{}, fmt.Errorf("obj model has no faces")
	}
	return mesh, nil
}

func addTriangle(m *Mesh, a, b, c linmath.Vec3) {
	var ab, ac, n linmath.Vec3
	ab.Sub(&b, &a)
	ac.Sub(&c, &a)
	n.MultCross(&ab, &ac)
	n = unit(n)

	base := uint32(len(m.Vertices))
	for _, p := range []linmath.Vec3{a, b, c} {
		m.Vertices = append(m.Vertices, Vertex{Pos: p, Normal: n})
	}
	m.Indices = append(m.Indices, base, base+1, base+2)
}
