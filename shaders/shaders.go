// Package shaders holds the GLSL sources of the benchmark and their compiled
// SPIR-V.
package shaders

import (
	"embed"
	"encoding/binary"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

//go:generate ./compile.sh

// compiled embeds the SPIR-V shaders. Run `go generate` in order to compile
// them again before building.
//
//go:embed all:spirv
var compiled embed.FS

// Embedded returns the compiled shaders built into the binary. Load them with
// an empty dir.
func Embedded() afero.Fs {
	sub, err := fs.Sub(compiled, "spirv")
	if err != nil {
		panic(fmt.Sprintf("embedded shaders: %s", err))
	}
	return afero.FromIOFS{FS: sub}
}

// Source picks where shaders are loaded from: the embedded ones when dir is
// empty, otherwise dir on fsys.
func Source(fsys afero.Fs, dir string) (afero.Fs, string) {
	if dir == "" {
		return Embedded(), ""
	}
	return fsys, dir
}

// Names of the compiled shaders without the .spv extension.
const (
	Compute       = "comp"
	Vertex        = "vert"
	Fragment      = "frag"
	phongSuffix   = "_phong"
	spirvExt      = ".spv"
	spirvMagic    = 0x07230203
	spirvWordSize = 4
)

// Graphics returns the vertex and fragment shader names for the lighting
// setting.
func Graphics(lighting bool) (vert, frag string) {
	if lighting {
		return Vertex + phongSuffix, Fragment + phongSuffix
	}
	return Vertex, Fragment
}

// Load reads the compiled shader name from dir and checks that it looks like
// SPIR-V.
func Load(fsys afero.Fs, dir, name string) ([]byte, error) {
	path := filepath.Join(dir, name+spirvExt)
	code, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading shader %s: %w", name, err)
	}

	if len(code) < spirvWordSize || len(code)%spirvWordSize != 0 {
		return nil, fmt.Errorf("shader %s: %d bytes is not a whole number of SPIR-V words", path, len(code))
	}
	if binary.LittleEndian.Uint32(code) != spirvMagic {
		return nil, fmt.Errorf("shader %s: missing SPIR-V magic number", path)
	}
	return code, nil
}

// Set is every shader a run needs.
type Set struct {
	Compute  []byte
	Vertex   []byte
	Fragment []byte
}

// LoadSet loads the compute shader and the graphics shaders for the lighting
// setting.
func LoadSet(fsys afero.Fs, dir string, lighting bool) (Set, error) {
	vert, frag := Graphics(lighting)

	var (
		s   Set
		err error
	)
	for _, sh := range []struct {
		dst  *[]byte
		name string
	}{
		{&s.Compute, Compute},
		{&s.Vertex, vert},
		{&s.Fragment, frag},
	} {
		if *sh.dst, err = Load(fsys, dir, sh.name); err != nil {
			return Set{}, err
		}
	}
	return s, nil
}
