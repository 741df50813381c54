package report

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vulkan-async-compute/config"
)

var params = Params{
	Vendor:    config.VendorAMD,
	Mode:      config.ModeDouble,
	Particles: 2000,
	Stacks:    20,
	Slices:    20,
	Scale:     0.02,
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "AMD_S2_P2000_ST20_SL20_SC0.02", params.Prefix())
	assert.Equal(t, "AMD_S2_P2000_ST20_SL20_SC0.02_TN3.csv", params.FileName(3))

	p := ParamsFrom(config.Default())
	assert.Equal(t, "NVIDIA_S0_P2000_ST20_SL20_SC0.02_TN0.csv", p.FileName(0))
}

func TestNextRun(t *testing.T) {
	tests := []struct {
		name     string
		existing []int
		want     int
	}{
		{name: "empty", want: 0},
		{name: "two runs", existing: []int{0, 1}, want: 2},
		{name: "gap", existing: []int{0, 2}, want: 1},
		{name: "first missing", existing: []int{1}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			for _, run := range tt.existing {
				require.NoError(t, afero.WriteFile(fs, filepath.Join("out", params.FileName(run)), nil, 0o644))
			}
			// Other configurations do not count.
			other := params
			other.Particles = 10
			require.NoError(t, afero.WriteFile(fs, filepath.Join("out", other.FileName(tt.want)), nil, 0o644))

			run, err := NextRun(fs, "out", params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, run)
		})
	}
}

func TestWriter(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, run := range []int{0, 1} {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("out", params.FileName(run)), []byte("old"), 0o644))
	}

	w, err := Create(fs, "out", params)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", params.FileName(2)), w.Path())

	require.NoError(t, w.Write(FrameRecord{
		Frame:          1,
		WallClockDelta: 16500 * time.Microsecond,
		ComputeStart:   100,
		ComputeEnd:     4100,
		ComputeMillis:  0.004,
		GraphicsStart:  200,
		GraphicsEnd:    3200,
		GraphicsMillis: 0.003,
		Async:          true,
	}))
	require.NoError(t, w.Write(FrameRecord{Frame: 2, WallClockDelta: time.Millisecond}))
	assert.Equal(t, 2, w.Rows())
	require.NoError(t, w.Close())

	data, err := afero.ReadFile(fs, w.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, HeaderLines+2)

	assert.Equal(t, "Simulation Type,DOUBLE BUFFERING _ ASYNC", lines[0])
	assert.Equal(t, "Particles,2000,Stack Count,20,Slice Count,20,Mesh Scale,0.02", lines[1])
	assert.Equal(t, strings.Join(Columns, ","), lines[2])
	assert.Equal(t, "1,16.5,100,4100,0.004,200,3200,0.003,YES", lines[3])
	assert.Equal(t, "2,1,0,0,0,0,0,0,NO", lines[4])

	// Earlier runs are untouched.
	old, err := afero.ReadFile(fs, filepath.Join("out", params.FileName(1)))
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))
}

func TestCreateOnReadOnlyFs(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	_, err := Create(fs, "out", params)
	assert.Error(t, err)
}
