package shaders

import (
	"encoding/binary"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spirv(words ...uint32) []byte {
	out := make([]byte, 0, 4*(len(words)+1))
	out = binary.LittleEndian.AppendUint32(out, spirvMagic)
	for _, w := range words {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	return out
}

func TestGraphics(t *testing.T) {
	vert, frag := Graphics(false)
	assert.Equal(t, "vert", vert)
	assert.Equal(t, "frag", frag)

	vert, frag = Graphics(true)
	assert.Equal(t, "vert_phong", vert)
	assert.Equal(t, "frag_phong", frag)
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "sh/comp.spv", spirv(1, 2), 0o644))
	require.NoError(t, afero.WriteFile(fs, "sh/odd.spv", []byte{3, 2, 0x23, 7, 1}, 0o644))
	require.NoError(t, afero.WriteFile(fs, "sh/text.spv", []byte("void main() {}  "), 0o644))

	code, err := Load(fs, "sh", Compute)
	require.NoError(t, err)
	assert.Len(t, code, 12)

	for _, name := range []string{"odd", "text", "missing"} {
		_, err := Load(fs, "sh", name)
		assert.Error(t, err, name)
	}
}

func TestLoadSet(t *testing.T) {
	fs := afero.NewMemMapFs()
	for i, name := range []string{"comp", "vert_phong", "frag_phong"} {
		require.NoError(t, afero.WriteFile(fs, "sh/"+name+".spv", spirv(uint32(i)), 0o644))
	}

	set, err := LoadSet(fs, "sh", true)
	require.NoError(t, err)
	assert.Equal(t, spirv(1), set.Vertex)
	assert.Equal(t, spirv(2), set.Fragment)

	_, err = LoadSet(fs, "sh", false)
	assert.Error(t, err, "unlit shaders were never compiled")
}

func TestLoadSetFromIOFS(t *testing.T) {
	files := fstest.MapFS{}
	for i, name := range []string{"comp", "vert", "frag"} {
		files[name+".spv"] = &fstest.MapFile{Data: spirv(uint32(i))}
	}

	set, err := LoadSet(afero.FromIOFS{FS: files}, "", false)
	require.NoError(t, err)
	assert.Equal(t, spirv(0), set.Compute)
	assert.Equal(t, spirv(2), set.Fragment)
}

func TestEmbedded(t *testing.T) {
	shaders := Embedded()
	assert.Error(t, shaders.Mkdir("x", 0o755), "embedded shaders are read only")

	// Depending on whether `go generate` ran, every shader is either valid
	// SPIR-V or missing.
	for _, name := range []string{Compute, Vertex, Fragment, Vertex + phongSuffix, Fragment + phongSuffix} {
		code, err := Load(shaders, "", name)
		if err != nil {
			assert.ErrorIs(t, err, fs.ErrNotExist, name)
			continue
		}
		assert.Equal(t, uint32(spirvMagic), binary.LittleEndian.Uint32(code), name)
	}
}

func TestSource(t *testing.T) {
	disk := afero.NewMemMapFs()

	got, dir := Source(disk, "build/shaders")
	assert.Equal(t, disk, got)
	assert.Equal(t, "build/shaders", dir)

	got, dir = Source(disk, "")
	assert.IsType(t, afero.FromIOFS{}, got)
	assert.Empty(t, dir)
}
