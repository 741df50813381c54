package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps configuration keys onto the flags setting them directly.
var flagKeys = map[string]string{
	"particle_count":     "particles",
	"scale":              "scale",
	"total_time_seconds": "seconds",
	"lighting":           "lighting",
	"max_frames":         "max-frames",
	"output_dir":         "output",
	"shader_dir":         "shaders",
	"mesh_path":          "mesh",
	"dedicated_transfer": "dedicated-transfer",
	"metrics_addr":       "metrics-addr",
	"debug":              "debug",
	"log.level":          "log-level",
	"log.format":         "log-format",
}

// RegisterFlags adds the run flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.IntP("particles", "p", 2000, "number of particles")
	fs.IntP("stacks", "s", 20, "stack and slice count of the particle sphere")
	fs.Float64P("scale", "x", 0.02, "particle mesh scale")
	fs.Float64P("minutes", "m", 0, "run time in minutes")
	fs.Float64("seconds", 120, "run time in seconds")
	fs.BoolP("lighting", "l", false, "enable phong lighting")

	fs.BoolP("compute", "c", false, "run the compute-only strategy")
	fs.BoolP("transfer", "t", false, "run the transfer-async strategy")
	fs.BoolP("double", "d", false, "run the double-buffered strategy")
	fs.String("mode", "", "strategy: compute, transfer or double")

	fs.BoolP("amd", "a", false, "pick an AMD GPU")
	fs.BoolP("nvidia", "n", false, "pick an NVIDIA GPU")
	fs.String("vendor", "", "GPU vendor: amd or nvidia")

	fs.Int("max-frames", 0, "stop after this many frames, 0 for no limit")
	fs.StringP("output", "o", ".", "directory reports are written to")
	fs.String("shaders", "", "directory holding compiled SPIR-V shaders, empty for the built-in ones")
	fs.String("mesh", "", "OBJ file drawn for every particle instead of a sphere")
	fs.Bool("dedicated-transfer", false, "copy on a dedicated transfer queue when one exists")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	fs.Bool("debug", false, "enable Vulkan validation layers")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "console", "log format: console or json")
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, name := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}

	if fs.Changed("stacks") {
		n, err := fs.GetInt("stacks")
		if err != nil {
			return err
		}
		v.Set("stacks", n)
		v.Set("slices", n)
	}

	if fs.Changed("minutes") {
		m, err := fs.GetFloat64("minutes")
		if err != nil {
			return err
		}
		v.Set("total_time_seconds", m*60)
	}

	mode, err := pick(fs, "mode", map[string]string{
		"compute":  ModeCompute.String(),
		"transfer": ModeTransfer.String(),
		"double":   ModeDouble.String(),
	})
	if err != nil {
		return err
	}
	if mode != "" {
		v.Set("mode", mode)
	}

	vendor, err := pick(fs, "vendor", map[string]string{
		"amd":    VendorAMD.String(),
		"nvidia": VendorNVIDIA.String(),
	})
	if err != nil {
		return err
	}
	if vendor != "" {
		v.Set("vendor", vendor)
	}

	return nil
}

// pick resolves a value chosen either by the string flag named key or by one
// of the boolean shortcut flags in choices. Choosing more than one fails.
func pick(fs *pflag.FlagSet, key string, choices map[string]string) (string, error) {
	var picked []string
	if fs.Changed(key) {
		s, err := fs.GetString(key)
		if err != nil {
			return "", err
		}
		picked = append(picked, s)
	}

	for name, value := range choices {
		if !fs.Changed(name) {
			continue
		}
		on, err := fs.GetBool(name)
		if err != nil {
			return "", err
		}
		if on {
			picked = append(picked, value)
		}
	}

	switch len(picked) {
	case 0:
		return "", nil
	case 1:
		return picked[0], nil
	default:
		return "", fmt.Errorf("more than one %s selected: %v", key, picked)
	}
}
