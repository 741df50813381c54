// Package collate aggregates the reports of many runs into summary tables.
package collate

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"vulkan-async-compute/overlap"
	"vulkan-async-compute/report"
)

// TablesFile is the name of the collated output. Files starting with its
// first letter are never read as runs.
const TablesFile = "tables.csv"

// maxParallel bounds how many reports are parsed at once.
const maxParallel = 8

// Stats summarises a series of samples.
type Stats struct {
	Mean     float64
	StdDev   float64
	Variance float64
}

// Describe computes the mean and the sample variance of xs.
func Describe(xs []float64) Stats {
	if len(xs) == 0 {
		return Stats{}
	}

	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return Stats{Mean: mean}
	}

	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	variance := sq / float64(len(xs)-1)
	return Stats{Mean: mean, StdDev: math.Sqrt(variance), Variance: variance}
}

// Run is the summary of a single report.
type Run struct {
	File string

	// Title and Parameters are the first two header lines of the report.
	Title      []string
	Parameters []string

	// Frames and AsyncFrames are counts for a single report and means for
	// the combined runs of a group.
	Frames       float64
	AsyncFrames  float64
	FrameTime    Stats
	ComputeTime  Stats
	GraphicsTime Stats

	// Difference is how long compute and graphics ran together per frame
	// in timestamp ticks, negative when they did not.
	Difference Stats
}

// AsyncRatio is the share of frames where compute and graphics overlapped.
func (r Run) AsyncRatio() float64 {
	if r.Frames == 0 {
		return 0
	}
	return r.AsyncFrames / r.Frames
}

// ParseRun reads one report.
func ParseRun(name string, in io.Reader) (Run, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	run := Run{File: name}
	var frameTimes, computeTimes, graphicsTimes, diffs []float64

	for line := 0; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Run{}, fmt.Errorf("reading %s: %w", name, err)
		}

		switch {
		case line == 0:
			run.Title = rec
			continue
		case line == 1:
			run.Parameters = rec
			continue
		case line < report.HeaderLines:
			continue
		}

		fr, err := parseRow(rec)
		if err != nil {
			return Run{}, fmt.Errorf("%s line %d: %w", name, line+1, err)
		}

		run.Frames = float64(fr.Frame)
		if fr.Async {
			run.AsyncFrames++
		}
		frameTimes = append(frameTimes, fr.frameMillis)
		computeTimes = append(computeTimes, fr.ComputeMillis)
		graphicsTimes = append(graphicsTimes, fr.GraphicsMillis)
		diffs = append(diffs, float64(overlap.Difference(
			overlap.Interval{Start: fr.ComputeStart, End: fr.ComputeEnd},
			overlap.Interval{Start: fr.GraphicsStart, End: fr.GraphicsEnd},
		)))
	}

	if len(frameTimes) == 0 {
		return Run{}, fmt.Errorf("%s has no frames", name)
	}

	run.FrameTime = Describe(frameTimes)
	run.ComputeTime = Describe(computeTimes)
	run.GraphicsTime = Describe(graphicsTimes)
	run.Difference = Describe(diffs)
	return run, nil
}

type row struct {
	report.FrameRecord
	frameMillis float64
}

func parseRow(rec []string) (row, error) {
	if len(rec) < len(report.Columns) {
		return row{}, fmt.Errorf("expected %d fields, got %d", len(report.Columns), len(rec))
	}

	var (
		r   row
		err error
	)
	ints := []struct {
		dst *uint64
		src string
	}{
		{&r.ComputeStart, rec[2]},
		{&r.ComputeEnd, rec[3]},
		{&r.GraphicsStart, rec[5]},
		{&r.GraphicsEnd, rec[6]},
	}
	for _, i := range ints {
		if *i.dst, err = strconv.ParseUint(strings.TrimSpace(i.src), 10, 64); err != nil {
			return row{}, err
		}
	}

	floats := []struct {
		dst *float64
		src string
	}{
		{&r.frameMillis, rec[1]},
		{&r.ComputeMillis, rec[4]},
		{&r.GraphicsMillis, rec[7]},
	}
	for _, f := range floats {
		if *f.dst, err = strconv.ParseFloat(strings.TrimSpace(f.src), 64); err != nil {
			return row{}, err
		}
	}

	if r.Frame, err = strconv.Atoi(strings.TrimSpace(rec[0])); err != nil {
		return row{}, err
	}
	r.Async = strings.TrimSpace(rec[8]) == "YES"
	return r, nil
}

// Group is every run of one configuration.
type Group struct {
	// Prefix is the report name up to the run number.
	Prefix string
	Vendor string
	Runs   []Run
}

// Mean combines the runs of g: means are averaged and the standard deviation
// is taken from the mean variance.
func (g Group) Mean() Run {
	out := Run{File: g.Prefix}
	if len(g.Runs) == 0 {
		return out
	}
	out.Title = g.Runs[0].Title
	out.Parameters = g.Runs[0].Parameters

	combine := func(get func(Run) Stats) Stats {
		var mean, variance float64
		for _, r := range g.Runs {
			s := get(r)
			mean += s.Mean
			variance += s.Variance
		}
		n := float64(len(g.Runs))
		mean, variance = mean/n, variance/n
		return Stats{Mean: mean, StdDev: math.Sqrt(variance), Variance: variance}
	}

	var frames, async float64
	for _, r := range g.Runs {
		frames += r.Frames
		async += r.AsyncFrames
	}
	n := float64(len(g.Runs))
	out.Frames = frames / n
	out.AsyncFrames = async / n
	out.FrameTime = combine(func(r Run) Stats { return r.FrameTime })
	out.ComputeTime = combine(func(r Run) Stats { return r.ComputeTime })
	out.GraphicsTime = combine(func(r Run) Stats { return r.GraphicsTime })
	out.Difference = combine(func(r Run) Stats { return r.Difference })
	return out
}

// prefixOf returns the report name before its run number, or false when name
// is not a report.
func prefixOf(name string) (string, bool) {
	if !strings.HasSuffix(name, ".csv") || strings.HasPrefix(name, TablesFile[:1]) {
		return "", false
	}
	i := strings.LastIndex(name, "_TN")
	if i <= 0 {
		return "", false
	}
	return name[:i], true
}

// Collect parses every report in dir concurrently and groups the runs by
// configuration. Groups and their runs are sorted by name.
func Collect(ctx context.Context, fs afero.Fs, dir string) ([]Group, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := prefixOf(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	runs := make([]Run, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := fs.Open(filepath.Join(dir, name))
			if err != nil {
				return fmt.Errorf("opening %s: %w", name, err)
			}
			defer f.Close()

			runs[i], err = ParseRun(name, f)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var groups []Group
	index := make(map[string]int)
	for _, r := range runs {
		prefix, _ := prefixOf(r.File)
		i, ok := index[prefix]
		if !ok {
			i = len(groups)
			index[prefix] = i
			groups = append(groups, Group{
				Prefix: prefix,
				Vendor: strings.SplitN(prefix, "_", 2)[0],
			})
		}
		groups[i].Runs = append(groups[i].Runs, r)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Prefix < groups[j].Prefix })
	return groups, nil
}
