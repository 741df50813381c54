// Package report writes the per frame CSV results of a benchmark run.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"vulkan-async-compute/config"
)

// Columns is the header row of every report.
var Columns = []string{
	"Frame",
	"Frame Time (ms)",
	"Compute Timestamp Start",
	"Compute Timestamp End",
	"Compute Time",
	"Graphics Timestamp Start",
	"Graphics Timestamp End",
	"Graphics Time",
	"async?",
}

// HeaderLines is the number of lines before the first frame row.
const HeaderLines = 3

// maxRuns bounds the search for an unused run number.
const maxRuns = 1 << 16

// Params identifies a benchmark configuration in file names and headers.
type Params struct {
	Vendor    config.Vendor
	Mode      config.Mode
	Particles int
	Stacks    int
	Slices    int
	Scale     float64
}

// ParamsFrom extracts the report parameters of cfg.
func ParamsFrom(cfg *config.Config) Params {
	return Params{
		Vendor:    cfg.Vendor,
		Mode:      cfg.Mode,
		Particles: cfg.ParticleCount,
		Stacks:    cfg.Stacks,
		Slices:    cfg.Slices,
		Scale:     cfg.Scale,
	}
}

// Prefix is the part of the file name shared by every run of p.
func (p Params) Prefix() string {
	return fmt.Sprintf("%s_S%d_P%d_ST%d_SL%d_SC%s",
		p.Vendor, p.Mode.Index(), p.Particles, p.Stacks, p.Slices, formatFloat(p.Scale))
}

// FileName is the name of the report for run number run.
func (p Params) FileName(run int) string {
	return fmt.Sprintf("%s_TN%d.csv", p.Prefix(), run)
}

// NextRun returns the smallest run number whose report does not exist in dir.
func NextRun(fs afero.Fs, dir string, p Params) (int, error) {
	for run := 0; run < maxRuns; run++ {
		exists, err := afero.Exists(fs, filepath.Join(dir, p.FileName(run)))
		if err != nil {
			return 0, fmt.Errorf("checking for earlier runs: %w", err)
		}
		if !exists {
			return run, nil
		}
	}
	return 0, fmt.Errorf("no free run number for %s", p.Prefix())
}

// FrameRecord is the measurement of one frame.
type FrameRecord struct {
	Frame          int
	WallClockDelta time.Duration

	ComputeStart  uint64
	ComputeEnd    uint64
	ComputeMillis float64

	GraphicsStart  uint64
	GraphicsEnd    uint64
	GraphicsMillis float64

	Async bool
}

// Fields formats r as a report row.
func (r FrameRecord) Fields() []string {
	async := "NO"
	if r.Async {
		async = "YES"
	}
	return []string{
		strconv.Itoa(r.Frame),
		formatFloat(float64(r.WallClockDelta) / float64(time.Millisecond)),
		strconv.FormatUint(r.ComputeStart, 10),
		strconv.FormatUint(r.ComputeEnd, 10),
		formatFloat(r.ComputeMillis),
		strconv.FormatUint(r.GraphicsStart, 10),
		strconv.FormatUint(r.GraphicsEnd, 10),
		formatFloat(r.GraphicsMillis),
		async,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}

// Writer appends frame rows to a report file.
type Writer struct {
	file afero.File
	csv  *csv.Writer
	path string
	rows int
}

// Create opens a new report for p in dir under the smallest unused run
// number and writes its header. Existing reports are never overwritten.
func Create(fs afero.Fs, dir string, p Params) (*Writer, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}

	run, err := NextRun(fs, dir, p)
	if err != nil {
		return nil, err
	}

	for ; run < maxRuns; run++ {
		path := filepath.Join(dir, p.FileName(run))
		f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating report: %w", err)
		}

		w := &Writer{file: f, csv: csv.NewWriter(f), path: path}
		if err := w.header(p); err != nil {
			f.Close()
			return nil, err
		}
		return w, nil
	}
	return nil, fmt.Errorf("no free run number for %s", p.Prefix())
}

func (w *Writer) header(p Params) error {
	lines := [][]string{
		{"Simulation Type", p.Mode.Title()},
		{
			"Particles", strconv.Itoa(p.Particles),
			"Stack Count", strconv.Itoa(p.Stacks),
			"Slice Count", strconv.Itoa(p.Slices),
			"Mesh Scale", formatFloat(p.Scale),
		},
		Columns,
	}
	if err := w.csv.WriteAll(lines); err != nil {
		return fmt.Errorf("writing report header: %w", err)
	}
	return nil
}

// Path returns the file the report is written to.
func (w *Writer) Path() string {
	return w.path
}

// Rows returns the number of frame rows written so far.
func (w *Writer) Rows() int {
	return w.rows
}

// Write appends r. Rows are buffered until Flush or Close.
func (w *Writer) Write(r FrameRecord) error {
	if err := w.csv.Write(r.Fields()); err != nil {
		return fmt.Errorf("writing frame %d: %w", r.Frame, err)
	}
	w.rows++
	return nil
}

// Flush writes buffered rows to the file.
func (w *Writer) Flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flushing report: %w", err)
	}
	return nil
}

// Close flushes and closes the report.
func (w *Writer) Close() error {
	flushErr := w.Flush()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing report: %w", err)
	}
	return flushErr
}
