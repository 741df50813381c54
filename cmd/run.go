package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vulkan-async-compute/config"
	"vulkan-async-compute/geometry"
	"vulkan-async-compute/logger"
	"vulkan-async-compute/metrics"
	"vulkan-async-compute/report"
	"vulkan-async-compute/scheduler"
	"vulkan-async-compute/shaders"
	"vulkan-async-compute/strategy"
	"vulkan-async-compute/vulkan"
)

const title = "Async Compute Benchmark"

// shutdownTimeout bounds how long the metrics server may take to stop.
const shutdownTimeout = 5 * time.Second

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the benchmark",
	Long: `Run opens a window on the selected GPU and runs one strategy until the time
or frame limit is reached or the window is closed. Every frame is appended to
a new report in the output directory.

Configuration is read from defaults, the --config file, ACB_ environment
variables and finally the flags below.`,
	Args: cobra.NoArgs,
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(runCmd)
	config.RegisterFlags(runCmd.Flags())
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	sum, path, err := benchmark(cmd.Context(), cfg, log)
	if err != nil {
		log.Error("benchmark failed", zap.Error(err))
		return err
	}

	printSummary(cmd.OutOrStdout(), cfg, sum, path)
	return nil
}

// benchmark runs one configured benchmark and returns its summary and the
// path of the report written.
func benchmark(
	ctx context.Context,
	cfg *config.Config,
	log *zap.Logger,
) (sum scheduler.Summary, path string, err error) {
	dev, err := vulkan.Open(vulkan.Options{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Title:    fmt.Sprintf("%s: %s", title, cfg.Mode.Title()),
		VendorID: cfg.Vendor.PCIID(),
		Debug:    cfg.Debug,
		Log:      log.Named("vulkan"),
	})
	if err != nil {
		return sum, "", err
	}
	defer dev.Close()

	shaderFs, shaderDir := shaders.Source(appFs, cfg.ShaderDir)
	set, err := shaders.LoadSet(shaderFs, shaderDir, cfg.Lighting)
	if err != nil {
		return sum, "", err
	}

	renderer, err := vulkan.NewRenderer(dev, vulkan.RendererOptions{
		Vertex:   set.Vertex,
		Fragment: set.Fragment,
		Lighting: cfg.Lighting,
	})
	if err != nil {
		return sum, "", err
	}
	defer renderer.Destroy()

	rc, err := strategy.NewRenderContext(dev, renderer, log.Named("strategy"))
	if err != nil {
		return sum, "", err
	}

	assets, err := loadAssets(appFs, cfg, set, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		return sum, "", err
	}

	s, err := strategy.New(cfg.Mode, strategy.Options{DedicatedTransfer: cfg.DedicatedTransfer})
	if err != nil {
		return sum, "", err
	}
	if err := s.CreateBuffers(rc, assets); err != nil {
		return sum, "", err
	}
	defer func() {
		if idleErr := dev.WaitIdle(); idleErr != nil {
			log.Warn("device did not go idle before teardown", zap.Error(idleErr))
		}
		s.Teardown(rc)
	}()

	w, err := report.Create(appFs, cfg.OutputDir, report.ParamsFrom(cfg))
	if err != nil {
		return sum, "", err
	}
	defer func() {
		if closeErr := w.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	log.Info("writing report", zap.String("path", w.Path()))

	frames, stop, err := startMetrics(cfg.MetricsAddr, log)
	if err != nil {
		return sum, "", err
	}
	defer stop()

	sched := scheduler.New(rc, s, w, frames, scheduler.Options{
		TotalTime: time.Duration(cfg.TotalTimeSeconds * float64(time.Second)),
		MaxFrames: cfg.MaxFrames,
	})

	sum, err = sched.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return sum, w.Path(), err
}

// loadAssets seeds the particles and builds the mesh drawn for each of them,
// a sphere unless a model file is configured.
func loadAssets(fs afero.Fs, cfg *config.Config, set shaders.Set, rng *rand.Rand) (strategy.Assets, error) {
	mesh := geometry.Sphere(uint32(cfg.Stacks), uint32(cfg.Slices), float32(cfg.Scale))
	if cfg.MeshPath != "" {
		var err error
		mesh, err = geometry.LoadOBJFile(fs, cfg.MeshPath, float32(cfg.Scale))
		if err != nil {
			return strategy.Assets{}, err
		}
	}

	return strategy.Assets{
		Particles:     geometry.SeedParticles(cfg.ParticleCount, rng),
		Mesh:          mesh,
		ComputeShader: set.Compute,
	}, nil
}

// startMetrics serves Prometheus metrics on addr. Without an address nothing
// is served and the returned collectors are nil.
func startMetrics(addr string, log *zap.Logger) (*metrics.Frames, func(), error) {
	if addr == "" {
		return nil, func() {}, nil
	}

	reg := prometheus.NewRegistry()
	frames := metrics.New(reg)
	srv, err := metrics.Serve(addr, reg, log.Named("metrics"))
	if err != nil {
		return nil, nil, err
	}

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("stopping metrics server", zap.Error(err))
		}
	}
	return frames, stop, nil
}

func printSummary(w io.Writer, cfg *config.Config, sum scheduler.Summary, path string) {
	heading := color.New(color.FgHiCyan, color.Bold)
	value := color.New(color.FgGreen)

	ratio := 0.0
	if sum.Frames > 0 {
		ratio = float64(sum.AsyncFrames) / float64(sum.Frames)
	}

	heading.Fprintf(w, "%s on %s\n", cfg.Mode.Title(), cfg.Vendor)
	fmt.Fprintf(w, "  Frames:      %s\n", value.Sprint(sum.Frames))
	fmt.Fprintf(w, "  Async:       %s (%.1f%%)\n", value.Sprint(sum.AsyncFrames), ratio*100)
	fmt.Fprintf(w, "  Frame time:  %s\n", value.Sprint(sum.MeanFrameTime()))
	fmt.Fprintf(w, "  Elapsed:     %s\n", value.Sprint(sum.Elapsed.Round(time.Millisecond)))
	fmt.Fprintf(w, "  Report:      %s\n", path)
}
