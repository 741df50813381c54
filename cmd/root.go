// Package cmd implements the command line of the benchmark.
package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	// configPath is the optional configuration file.
	configPath string

	// appFs is where shaders are read from and reports written to.
	appFs = afero.NewOsFs()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "async-compute",
	Short: "Benchmark asynchronous compute on Vulkan",
	Long: `async-compute measures how well compute and graphics work overlap on a GPU.

A particle simulation runs in a compute shader while every particle is drawn as
an instanced mesh. Three strategies coordinate the two queues and every frame
is recorded with its GPU timestamps in a CSV report:

  compute  : compute-only baseline, dispatches after presentation went idle
  transfer : compute writes a storage buffer which is copied to a draw buffer
  double   : compute and graphics alternate between two particle buffers`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it. A
// cancelled ctx ends a running benchmark after the current frame.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "configuration file (yaml, json or toml)")

	binName := BinName()
	rootCmd.Example = `  # Run the double-buffered strategy on an AMD GPU for two minutes
  ` + binName + ` run -d -a -m 2

  # Compute-only baseline with 20000 particles, stopping after 5000 frames
  ` + binName + ` run --mode compute -p 20000 --max-frames 5000

  # Summarize every report in the current directory
  ` + binName + ` collate`
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}
