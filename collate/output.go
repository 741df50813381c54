package collate

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
)

// TableColumns heads the rows of every collated table.
var TableColumns = []string{
	"Run",
	"Total Frames",
	"Mean FrameTime", "STDev", "Variance",
	"Mean Compute Time", "STDev", "Variance",
	"Mean Graphics Time", "STDev", "Variance",
	"Mean Difference", "STDev", "Variance",
	"Async Ratio",
}

// MeanRow names the row combining every run of a group.
const MeanRow = "mean"

func (r Run) fields(name string) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	return []string{
		name,
		strconv.FormatFloat(r.Frames, 'f', -1, 64),
		f(r.FrameTime.Mean), f(r.FrameTime.StdDev), f(r.FrameTime.Variance),
		f(r.ComputeTime.Mean), f(r.ComputeTime.StdDev), f(r.ComputeTime.Variance),
		f(r.GraphicsTime.Mean), f(r.GraphicsTime.StdDev), f(r.GraphicsTime.Variance),
		f(r.Difference.Mean), f(r.Difference.StdDev), f(r.Difference.Variance),
		f(r.AsyncRatio()),
	}
}

// WriteTables writes one table per group as CSV: the vendor, the two header
// lines of the reports, the column names, a row per run and the mean row.
// Tables are separated by an empty line.
func WriteTables(w io.Writer, groups []Group) error {
	out := csv.NewWriter(w)
	for i, g := range groups {
		if i > 0 {
			if err := out.Write([]string{""}); err != nil {
				return err
			}
		}

		mean := g.Mean()
		rows := [][]string{{g.Vendor}, mean.Title, mean.Parameters, TableColumns}
		for _, r := range g.Runs {
			rows = append(rows, r.fields(r.File))
		}
		rows = append(rows, mean.fields(MeanRow))

		for _, row := range rows {
			if err := out.Write(row); err != nil {
				return fmt.Errorf("writing table %s: %w", g.Prefix, err)
			}
		}
	}
	out.Flush()
	return out.Error()
}

// SaveTables writes the tables of groups to TablesFile in dir.
func SaveTables(fs afero.Fs, dir string, groups []Group) (string, error) {
	path := filepath.Join(dir, TablesFile)
	f, err := fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}

	if err := WriteTables(f, groups); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", path, err)
	}
	return path, nil
}

// Render prints the groups as terminal tables.
func Render(w io.Writer, groups []Group) error {
	heading := color.New(color.FgHiCyan, color.Bold)

	for _, g := range groups {
		mean := g.Mean()
		heading.Fprintf(w, "%s  %s\n", g.Prefix, strings.Join(mean.Title[min(1, len(mean.Title)):], " "))

		table := tablewriter.NewWriter(w)
		if err := table.Append(TableColumns); err != nil {
			return err
		}
		for _, r := range g.Runs {
			if err := table.Append(r.fields(r.File)); err != nil {
				return err
			}
		}
		if err := table.Append(mean.fields(MeanRow)); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("rendering table %s: %w", g.Prefix, err)
		}
		fmt.Fprintln(w)
	}
	return nil
}
