package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 2000, cfg.ParticleCount)
	assert.Equal(t, 20, cfg.Stacks)
	assert.Equal(t, 20, cfg.Slices)
	assert.InDelta(t, 0.02, cfg.Scale, 1e-9)
	assert.InDelta(t, 120.0, cfg.TotalTimeSeconds, 1e-9)
	assert.Equal(t, ModeCompute, cfg.Mode)
	assert.Equal(t, VendorNVIDIA, cfg.Vendor)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFlags(t *testing.T) {
	fs := parse(t, "-t", "-a", "-p", "500", "-s", "10", "-m", "1.5", "-l", "--max-frames", "30")

	cfg, err := Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, ModeTransfer, cfg.Mode)
	assert.Equal(t, VendorAMD, cfg.Vendor)
	assert.Equal(t, 500, cfg.ParticleCount)
	assert.Equal(t, 10, cfg.Stacks)
	assert.Equal(t, 10, cfg.Slices)
	assert.InDelta(t, 90.0, cfg.TotalTimeSeconds, 1e-9)
	assert.True(t, cfg.Lighting)
	assert.Equal(t, 30, cfg.MaxFrames)
}

func TestLoadConflictingFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "two modes", args: []string{"-c", "-d"}},
		{name: "mode and shortcut", args: []string{"--mode", "double", "-t"}},
		{name: "two vendors", args: []string{"-a", "-n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("", parse(t, tt.args...))
			assert.Error(t, err)
		})
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("ACB_PARTICLE_COUNT", "42")
	t.Setenv("ACB_MODE", "double")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.ParticleCount)
	assert.Equal(t, ModeDouble, cfg.Mode)

	// Flags win over the environment.
	cfg, err = Load("", parse(t, "-p", "7"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.ParticleCount)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	content := "particle_count: 64\nvendor: amd\nlog:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.ParticleCount)
	assert.Equal(t, VendorAMD, cfg.Vendor)
	assert.Equal(t, "debug", cfg.Log.Level)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader("yaml", []byte("mode: t\nstacks: 8\nslices: 6\n"))
	require.NoError(t, err)
	assert.Equal(t, ModeTransfer, cfg.Mode)
	assert.Equal(t, 8, cfg.Stacks)
	assert.Equal(t, 6, cfg.Slices)

	_, err = LoadFromReader("yaml", []byte("mode: sideways\n"))
	assert.Error(t, err)

	_, err = LoadFromReader("yaml", []byte("particle_count: 0\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "particles", modify: func(c *Config) { c.ParticleCount = -1 }},
		{name: "stacks", modify: func(c *Config) { c.Stacks = 2 }},
		{name: "slices", modify: func(c *Config) { c.Slices = 0 }},
		{name: "scale", modify: func(c *Config) { c.Scale = 0 }},
		{name: "time", modify: func(c *Config) { c.TotalTimeSeconds = 0 }},
		{name: "frames", modify: func(c *Config) { c.MaxFrames = -5 }},
		{name: "mode", modify: func(c *Config) { c.Mode = Mode(9) }},
		{name: "vendor", modify: func(c *Config) { c.Vendor = Vendor(3) }},
		{name: "window", modify: func(c *Config) { c.Width = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestModes(t *testing.T) {
	assert.Equal(t, "NORMAL COMPUTE", ModeCompute.Title())
	assert.Equal(t, "TRANSFER BUFFERS _ ASYNC", ModeTransfer.Title())
	assert.Equal(t, "DOUBLE BUFFERING _ ASYNC", ModeDouble.Title())

	for i, m := range Modes {
		assert.Equal(t, i, m.Index())
		parsed, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
}

func TestVendors(t *testing.T) {
	assert.Equal(t, uint32(0x1002), VendorAMD.PCIID())
	assert.Equal(t, uint32(0x10DE), VendorNVIDIA.PCIID())

	v, err := ParseVendor("Nvidia")
	require.NoError(t, err)
	assert.Equal(t, VendorNVIDIA, v)

	_, err = ParseVendor("intel")
	assert.Error(t, err)
}
