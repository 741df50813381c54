package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vulkan-async-compute/collate"
)

var (
	collateDir   string
	collateQuiet bool
)

// collateCmd represents the collate command
var collateCmd = &cobra.Command{
	Use:   "collate",
	Short: "Summarize benchmark reports",
	Long: `Collate groups the reports in a directory by benchmark configuration and
writes per run statistics together with the mean of every group to
` + collate.TablesFile + `. The tables are also printed unless --quiet is set.`,
	Args: cobra.NoArgs,
	RunE: runCollate,
}

func init() {
	rootCmd.AddCommand(collateCmd)

	collateCmd.Flags().StringVarP(&collateDir, "dir", "o", ".", "directory holding the reports")
	collateCmd.Flags().BoolVarP(&collateQuiet, "quiet", "q", false, "do not print the tables")
}

func runCollate(cmd *cobra.Command, args []string) error {
	groups, err := collate.Collect(cmd.Context(), appFs, collateDir)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return fmt.Errorf("no reports found in %s", collateDir)
	}

	path, err := collate.SaveTables(appFs, collateDir, groups)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !collateQuiet {
		if err := collate.Render(out, groups); err != nil {
			return err
		}
	}

	runs := 0
	for _, g := range groups {
		runs += len(g.Runs)
	}
	color.New(color.FgGreen).Fprintf(out, "collated %d runs in %d groups into %s\n",
		runs, len(groups), path)
	return nil
}
