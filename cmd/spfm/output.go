package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cwbudde/algo-spfm/config"
	"github.com/cwbudde/algo-spfm/internal/textio"
	"github.com/cwbudde/algo-spfm/spfm/core"
	"github.com/cwbudde/algo-spfm/spfm/estimate"
	"github.com/cwbudde/algo-spfm/spfm/pipeline"
)

// runInfo is the sidecar describing one run.
type runInfo struct {
	RunID    string         `json:"run_id"`
	Version  string         `json:"version"`
	Command  []string       `json:"command"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Inputs   []string       `json:"inputs"`
	Samples  int            `json:"samples"`
	Voxels   int            `json:"voxels"`
	Failed   int            `json:"failed"`
	Config   *config.Config `json:"config"`
}

// voxelReport is one entry of the diagnostics file.
type voxelReport struct {
	Voxel       int               `json:"voxel"`
	Status      string            `json:"status"`
	Error       string            `json:"error,omitempty"`
	DurationMS  float64           `json:"duration_ms"`
	Diagnostics *core.Diagnostics `json:"diagnostics,omitempty"`
}

// writeOutputs writes the .1D maps, the JSON reports and the resolved
// configuration for prefix. Failed voxels are written as zeros.
func writeOutputs(prefix string, op estimate.Model, records []pipeline.Record, run runInfo) error {
	if err := os.MkdirAll(filepath.Dir(prefix), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	n := op.Samples()
	_, cols := op.Dims()
	rows := n * op.Echoes()

	activity := make([][]float64, len(records))
	coef := make([][]float64, len(records))
	fitted := make([][]float64, len(records))
	lambda := make([][]float64, len(records))
	noise := make([][]float64, len(records))
	reports := make([]voxelReport, len(records))
	for v, r := range records {
		res := r.Result
		activity[v] = orZeros(res.Activity, n)
		coef[v] = orZeros(res.Coef, cols)
		fitted[v] = orZeros(res.Fitted, rows)
		lambda[v] = []float64{res.Lambda}
		noise[v] = []float64{res.Noise}

		reports[v] = voxelReport{
			Voxel:      v,
			Status:     r.Status(),
			DurationMS: float64(r.Duration.Microseconds()) / 1000,
		}
		if r.Err != nil {
			reports[v].Error = r.Err.Error()
		} else {
			d := res.Diagnostics
			reports[v].Diagnostics = &d
		}
	}

	files := map[string][][]float64{
		"_lambda.1D": lambda,
		"_MAD.1D":    noise,
	}
	if op.Echoes() > 1 {
		files["_DR2.1D"] = activity
		for e := range op.Echoes() {
			perEcho := make([][]float64, len(fitted))
			for v, f := range fitted {
				perEcho[v] = f[e*n : (e+1)*n]
			}
			files[fmt.Sprintf("_fitted_E%02d.1D", e+1)] = perEcho
		}
	} else {
		files["_beta.1D"] = activity
		files["_fitted.1D"] = fitted
	}
	if run.Config.Block {
		files["_innovation.1D"] = coef
	}

	for suffix, data := range files {
		if err := textio.WriteColumnsFile(prefix+suffix, data); err != nil {
			return err
		}
	}
	if err := writeJSON(prefix+"_diagnostics.json", reports); err != nil {
		return err
	}
	if err := run.Config.SaveToFile(prefix + "_config.yaml"); err != nil {
		return err
	}
	return writeJSON(prefix+"_sidecar.json", run)
}

func orZeros(x []float64, n int) []float64 {
	if x == nil {
		return make([]float64, n)
	}
	return x
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
