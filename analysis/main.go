// Command analysis renders the controller's telemetry CSV into PNG plots:
// tracking error, sliding-variable norm against the dead-zone, and the
// per-group parameter traces. It is an offline tool; the control loop never
// depends on it.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var linePalette = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
}

func plotColor(i int) color.Color {
	return linePalette[i%len(linePalette)]
}

type telemetryLog struct {
	columns map[string]int
	rows    [][]float64
}

func loadTelemetry(path string) (*telemetryLog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	tl := &telemetryLog{columns: make(map[string]int, len(header))}
	for i, name := range header {
		tl.columns[name] = i
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	for _, rec := range records {
		row := make([]float64, len(rec))
		for i, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("bad value %q in column %s: %w", field, header[i], err)
			}
			row[i] = v
		}
		tl.rows = append(tl.rows, row)
	}
	if len(tl.rows) == 0 {
		return nil, fmt.Errorf("telemetry log %s has no data rows", path)
	}
	return tl, nil
}

// series extracts (t, column) pairs for plotting.
func (tl *telemetryLog) series(column string) (plotter.XYs, error) {
	ti, ok := tl.columns["t"]
	if !ok {
		return nil, fmt.Errorf("telemetry log missing t column")
	}
	ci, ok := tl.columns[column]
	if !ok {
		return nil, fmt.Errorf("telemetry log missing column %q", column)
	}
	xys := make(plotter.XYs, len(tl.rows))
	for i, row := range tl.rows {
		xys[i].X = row[ti]
		xys[i].Y = row[ci]
	}
	return xys, nil
}

func plotColumns(tl *telemetryLog, title, yLabel, outPath string, columns []string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())

	for i, col := range columns {
		xys, err := tl.series(col)
		if err != nil {
			return err
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("line for %s: %w", col, err)
		}
		line.LineStyle.Color = plotColor(i)
		p.Add(line)
		p.Legend.Add(col, line)
	}

	if err := p.Save(8*vg.Inch, 4*vg.Inch, outPath); err != nil {
		return fmt.Errorf("save %s: %w", outPath, err)
	}
	return nil
}

func main() {
	var (
		inPath = flag.String("in", "telemetry.csv", "Telemetry CSV written by the controller")
		outDir = flag.String("out", "analysis_out", "Output directory for PNG plots")
	)
	flag.Parse()

	tl, err := loadTelemetry(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: cannot create %s: %v\n", *outDir, err)
		os.Exit(1)
	}

	plots := []struct {
		file, title, yLabel string
		columns             []string
	}{
		{"tracking_error.png", "Tracking error", "error (m, rad)", []string{"err_x", "err_y", "err_theta"}},
		{"sliding_norm.png", "Sliding variable norm", "||s||", []string{"s_norm"}},
		{"force.png", "Commanded force and torque", "F (N), tau (Nm)", []string{"f_x", "f_y", "f_theta"}},
		{"params_inertial.png", "Inertial parameter estimates", "value", []string{"o_0", "o_1", "o_2", "o_3"}},
		{"params_moment_arm.png", "Moment arm estimate", "m", []string{"g_0", "g_1"}},
		{"params_viscous.png", "Viscous parameter estimates", "value", []string{"d_0", "d_1", "d_2", "d_3"}},
		{"params_coulomb.png", "Coulomb parameter estimates", "value", []string{"c_0", "c_1", "c_2", "c_3"}},
	}

	for _, pl := range plots {
		out := filepath.Join(*outDir, pl.file)
		if err := plotColumns(tl, pl.title, pl.yLabel, out, pl.columns); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", out)
	}
}
