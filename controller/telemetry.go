package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// telemetryColumns is the fixed CSV schema consumed by the analysis tool.
var telemetryColumns = []string{
	"t",
	"q_x", "q_y", "q_theta",
	"dq_x", "dq_y", "dq_theta",
	"qdes_x", "qdes_y", "qdes_theta",
	"err_x", "err_y", "err_theta",
	"s_x", "s_y", "s_theta", "s_norm",
	"f_x", "f_y", "f_theta",
	"tau_x", "tau_y", "tau_theta",
	"o_0", "o_1", "o_2", "o_3",
	"g_0", "g_1",
	"d_0", "d_1", "d_2", "d_3",
	"c_0", "c_1", "c_2", "c_3",
	"active",
}

// telemetryRecorder appends one row per control cycle to a CSV file for
// offline analysis. It is optional; a nil recorder is a no-op.
type telemetryRecorder struct {
	f *os.File
	w *csv.Writer
}

func newTelemetryRecorder(path string) (*telemetryRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create telemetry file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(telemetryColumns); err != nil {
		f.Close()
		return nil, fmt.Errorf("write telemetry header: %w", err)
	}
	return &telemetryRecorder{f: f, w: w}, nil
}

// Row writes one cycle's values. The slice must match telemetryColumns with
// the trailing active flag passed separately.
func (tr *telemetryRecorder) Row(values []float64, active bool) error {
	if tr == nil {
		return nil
	}
	rec := make([]string, 0, len(values)+1)
	for _, v := range values {
		rec = append(rec, strconv.FormatFloat(v, 'g', 10, 64))
	}
	if active {
		rec = append(rec, "1")
	} else {
		rec = append(rec, "0")
	}
	return tr.w.Write(rec)
}

func (tr *telemetryRecorder) Close() error {
	if tr == nil {
		return nil
	}
	tr.w.Flush()
	if err := tr.w.Error(); err != nil {
		tr.f.Close()
		return err
	}
	return tr.f.Close()
}
