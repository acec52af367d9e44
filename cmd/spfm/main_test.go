package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-spfm/config"
	"github.com/cwbudde/algo-spfm/internal/testutil"
	"github.com/cwbudde/algo-spfm/internal/textio"
	"github.com/cwbudde/algo-spfm/spfm/core"
	"github.com/cwbudde/algo-spfm/spfm/hrf"
	"github.com/cwbudde/algo-spfm/spfm/pipeline"
)

// writeMatrix writes cols (one per voxel) at full precision.
func writeMatrix(t *testing.T, path string, cols [][]float64) {
	t.Helper()
	var b strings.Builder
	b.WriteString("# synthetic voxels\n")
	for i := range cols[0] {
		for j, c := range cols {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strconv.FormatFloat(c[i], 'g', -1, 64))
		}
		b.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
}

func spikeSeries(t *testing.T, n int, x []float64) []float64 {
	t.Helper()
	kernel, err := hrf.SPM(2, hrf.WithLength(30))
	require.NoError(t, err)
	op, err := hrf.Build(kernel, n)
	require.NoError(t, err)
	y := make([]float64, n)
	op.Apply(y, x)
	return y
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "spfm version "+Version)
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	const n = 200
	truth := testutil.Spikes(n, []int{40, 100, 160}, []float64{3, -2, 4})
	input := filepath.Join(dir, "data.1D")
	writeMatrix(t, input, [][]float64{spikeSeries(t, n, truth), make([]float64, n)})

	prefix := filepath.Join(dir, "out", "sub01")
	_, err := execute(t, "run", "-i", input, "-o", prefix,
		"--tr", "2", "--hrf-length", "30", "--criterion", "bic", "-j", "2", "--log-level", "error")
	require.NoError(t, err)

	beta, err := textio.ReadMatrixFile(prefix + "_beta.1D")
	require.NoError(t, err)
	require.Len(t, beta, n)
	require.Len(t, beta[0], 2)
	cols := textio.Columns(beta)
	testutil.RequireSliceNearlyEqual(t, cols[0], truth, 1e-6)
	testutil.RequireSliceNearlyEqual(t, cols[1], make([]float64, n), 0)

	for _, suffix := range []string{"_fitted.1D", "_lambda.1D", "_MAD.1D"} {
		_, err := os.Stat(prefix + suffix)
		assert.NoError(t, err, suffix)
	}
	_, err = os.Stat(prefix + "_innovation.1D")
	assert.True(t, os.IsNotExist(err))

	lambda, err := textio.ReadMatrixFile(prefix + "_lambda.1D")
	require.NoError(t, err)
	require.Len(t, lambda, 1)
	assert.Len(t, lambda[0], 2)

	var reports []voxelReport
	readJSON(t, prefix+"_diagnostics.json", &reports)
	require.Len(t, reports, 2)
	assert.Equal(t, pipeline.StatusOK, reports[0].Status)
	require.NotNil(t, reports[0].Diagnostics)
	assert.Equal(t, "lars", reports[0].Diagnostics.Solver)
	assert.Equal(t, pipeline.StatusSelection, reports[1].Status)
	assert.NotEmpty(t, reports[1].Error)

	var run runInfo
	readJSON(t, prefix+"_sidecar.json", &run)
	_, err = uuid.Parse(run.RunID)
	assert.NoError(t, err)
	assert.Equal(t, Version, run.Version)
	assert.Equal(t, 2, run.Voxels)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, n, run.Samples)
	require.NotNil(t, run.Config)
	assert.Equal(t, 2.0, run.Config.TR)
	assert.Equal(t, 2, run.Config.Jobs)

	saved, err := config.LoadFromFile(prefix + "_config.yaml")
	require.NoError(t, err)
	assert.Equal(t, run.Config.Criterion, saved.Criterion)
	assert.Equal(t, 30.0, saved.HRFLength)
	assert.Equal(t, 2, saved.Jobs)
}

func TestRunFFTMatchesDense(t *testing.T) {
	dir := t.TempDir()
	const n = 150
	truth := testutil.Spikes(n, []int{30, 90}, []float64{4, -3})
	input := filepath.Join(dir, "data.1D")
	writeMatrix(t, input, [][]float64{spikeSeries(t, n, truth)})

	betas := make([][]float64, 0, 2)
	for _, mode := range []string{"dense", "fft"} {
		prefix := filepath.Join(dir, mode)
		_, err := execute(t, "run", "-i", input, "-o", prefix, "--fft="+strconv.FormatBool(mode == "fft"),
			"--tr", "2", "--hrf-length", "30", "--criterion", "bic", "--log-level", "error")
		require.NoError(t, err, mode)

		beta, err := textio.ReadMatrixFile(prefix + "_beta.1D")
		require.NoError(t, err)
		betas = append(betas, textio.Columns(beta)[0])
	}
	testutil.RequireSliceNearlyEqual(t, betas[0], truth, 1e-6)
	testutil.RequireSliceNearlyEqual(t, betas[1], betas[0], 1e-6)

	_, err := execute(t, "run", "-i", input, "-o", filepath.Join(dir, "x"),
		"--fft", "--block", "--log-level", "error")
	assert.True(t, errors.Is(err, core.ErrConfiguration))
}

func TestRunEchoCountCheckedBeforeLoading(t *testing.T) {
	dir := t.TempDir()
	const n = 80
	input := filepath.Join(dir, "data.1D")
	writeMatrix(t, input, [][]float64{spikeSeries(t, n, testutil.Spikes(n, []int{40}, []float64{3}))})

	prefix := filepath.Join(dir, "out", "te")
	_, err := execute(t, "run", "-i", input, "-o", prefix,
		"--te", "14,38,62", "--tr", "2", "--hrf-length", "30", "--log-level", "error")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfiguration))
	assert.Contains(t, err.Error(), "3 echo times")

	_, err = os.Stat(filepath.Dir(prefix))
	assert.True(t, os.IsNotExist(err), "nothing is written")
}

func TestRunMultiEchoBlock(t *testing.T) {
	dir := t.TempDir()
	const n = 120
	base := spikeSeries(t, n, testutil.Spikes(n, []int{30, 80}, []float64{2, -3}))
	noise := testutil.GaussianNoise(3, 0.05, n)

	var inputs []string
	for e, te := range []float64{15, 30, 45} {
		y := make([]float64, n)
		for i := range y {
			y[i] = -te / 1000 * base[i]
		}
		path := filepath.Join(dir, "echo"+strconv.Itoa(e+1)+".1D")
		writeMatrix(t, path, [][]float64{testutil.Add(y, noise)})
		inputs = append(inputs, "-i", path)
	}

	prefix := filepath.Join(dir, "me")
	args := append([]string{"run", "-o", prefix, "--tr", "2", "--hrf-length", "30",
		"--te", "15,30,45", "--block", "--criterion", "factor", "--log-level", "error"}, inputs...)
	_, err := execute(t, args...)
	require.NoError(t, err)

	for _, suffix := range []string{"_DR2.1D", "_innovation.1D", "_fitted_E01.1D", "_fitted_E02.1D", "_fitted_E03.1D"} {
		m, err := textio.ReadMatrixFile(prefix + suffix)
		require.NoError(t, err, suffix)
		assert.Len(t, m, n, suffix)
	}
	_, err = os.Stat(prefix + "_beta.1D")
	assert.True(t, os.IsNotExist(err))
}

func TestRunConfigFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	const n = 100
	input := filepath.Join(dir, "data.1D")
	writeMatrix(t, input, [][]float64{spikeSeries(t, n, testutil.Spikes(n, []int{50}, []float64{5}))})

	cfgPath := filepath.Join(dir, "spfm.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("tr: 2\nhrf_length: 30\ncriterion: aic\njobs: 3\nlog_level: error\n"), 0644))

	prefix := filepath.Join(dir, "cfg")
	_, err := execute(t, "run", "-c", cfgPath, "-i", input, "-o", prefix, "--criterion", "knee", "--debias=false")
	require.NoError(t, err)

	var run runInfo
	readJSON(t, prefix+"_sidecar.json", &run)
	assert.Equal(t, "knee", run.Config.Criterion)
	assert.False(t, run.Config.Debias)
	assert.Equal(t, 3, run.Config.Jobs)
	assert.Equal(t, 30.0, run.Config.HRFLength)
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "data.1D")
	writeMatrix(t, input, [][]float64{make([]float64, 40)})
	other := filepath.Join(dir, "short.1D")
	writeMatrix(t, other, [][]float64{make([]float64, 30)})

	tests := []struct {
		name string
		args []string
	}{
		{"missing input", []string{"run", "-o", filepath.Join(dir, "x")}},
		{"unknown criterion", []string{"run", "-i", input, "-o", filepath.Join(dir, "x"), "--criterion", "gcv"}},
		{"missing file", []string{"run", "-i", filepath.Join(dir, "nope.1D"), "-o", filepath.Join(dir, "x")}},
		{"echo count mismatch", []string{"run", "-i", input, "-i", input, "-o", filepath.Join(dir, "x")}},
		{"single input with echo times", []string{"run", "-i", input, "--te", "14,38,62", "-o", filepath.Join(dir, "x")}},
		{"echo shape mismatch", []string{"run", "-i", input, "-i", other, "--te", "15,30", "-o", filepath.Join(dir, "x")}},
		{"all voxels failed", []string{"run", "-i", input, "-o", filepath.Join(dir, "x"), "--log-level", "error"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}
