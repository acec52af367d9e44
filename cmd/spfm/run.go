package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cwbudde/algo-spfm/config"
	"github.com/cwbudde/algo-spfm/internal/textio"
	"github.com/cwbudde/algo-spfm/spfm/core"
	"github.com/cwbudde/algo-spfm/spfm/estimate"
	"github.com/cwbudde/algo-spfm/spfm/pipeline"
)

type runOptions struct {
	inputs      []string
	output      string
	configPath  string
	metricsAddr string

	// flags holds the values bound to the configuration flags. Only flags
	// set on the command line override the loaded configuration.
	flags *config.Config
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{flags: config.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Estimate activity for every voxel of the input files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSPFM(ctx, cmd, opts)
		},
	}

	f := cmd.Flags()
	v := opts.flags
	f.StringArrayVarP(&opts.inputs, "input", "i", nil, "Input .1D file, repeat once per echo")
	f.StringVarP(&opts.output, "output", "o", "", "Output prefix (directory and file stem)")
	f.StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address while running")

	f.Float64Var(&v.TR, "tr", v.TR, "Repetition time in seconds")
	f.Float64SliceVar(&v.TE, "te", v.TE, "Echo times (ms or s), one per input")
	f.StringVar(&v.HRF, "hrf", v.HRF, "HRF model (spm, glover) or a .1D/.txt kernel file")
	f.Float64Var(&v.HRFLength, "hrf-length", v.HRFLength, "HRF duration in seconds (0 = model default)")
	f.BoolVar(&v.FFT, "fft", v.FFT, "Apply the HRF by FFT convolution (single-echo spike model)")
	f.BoolVar(&v.Block, "block", v.Block, "Estimate innovation signals (block model)")
	f.IntVar(&v.BlockLength, "block-length", v.BlockLength, "Block length in samples for the block model")
	f.BoolVar(&v.Debias, "debias", v.Debias, "Refit amplitudes on the selected support")
	f.StringVar(&v.Criterion, "criterion", v.Criterion, "Selection criterion (bic, aic, factor, knee, factor_lambda, mad, mad_update, ut, lut, pcg, eigval)")
	f.Float64Var(&v.Factor, "factor", v.Factor, "Factor of the factor and factor_lambda criteria")
	f.Float64Var(&v.PCG, "pcg", v.PCG, "Fraction of lambda max for the pcg criterion")
	f.Float64Var(&v.Noise, "noise", v.Noise, "External noise level (0 = estimate from data)")
	f.IntVar(&v.LambdaEcho, "lambda-echo", v.LambdaEcho, "Echo used for the noise estimate (-1 = last)")
	f.Float64Var(&v.MaxIterFactor, "max-iter-factor", v.MaxIterFactor, "LARS step budget as a fraction of the series length")
	f.IntVar(&v.MaxIterFISTA, "max-iter-fista", v.MaxIterFISTA, "Maximum FISTA iterations")
	f.IntVar(&v.MinIterFISTA, "min-iter-fista", v.MinIterFISTA, "Minimum FISTA iterations")
	f.Float64Var(&v.Tolerance, "tolerance", v.Tolerance, "FISTA convergence tolerance")
	f.Float64Var(&v.Group, "group", v.Group, "Weight of the group-norm penalty in [0, 1]")
	f.IntVar(&v.GroupSize, "group-size", v.GroupSize, "Length of consecutive coefficient groups")
	f.IntVar(&v.NLambdas, "n-lambdas", v.NLambdas, "Number of lambdas on the FISTA path")
	f.Float64Var(&v.LambdaRatio, "lambda-ratio", v.LambdaRatio, "Smallest path lambda relative to lambda max")
	f.Uint64Var(&v.Seed, "seed", v.Seed, "Seed of the eigval noise realization")
	f.IntVarP(&v.Jobs, "jobs", "j", v.Jobs, "Number of parallel workers")
	f.StringVar(&v.LogLevel, "log-level", v.LogLevel, "Log level (debug, info, warn, error)")

	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// resolveConfig starts from the defaults or the config file and applies the
// flags set on the command line.
func resolveConfig(flags *pflag.FlagSet, opts *runOptions) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := config.LoadFromFile(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	var keys []string
	flags.Visit(func(f *pflag.Flag) {
		if key := strings.ReplaceAll(f.Name, "-", "_"); config.IsKey(key) {
			keys = append(keys, key)
		}
	})
	if err := cfg.Merge(opts.flags, keys...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadEchoes reads one matrix per echo and stacks the echoes of each voxel.
func loadEchoes(paths []string) (voxels [][]float64, samples int, err error) {
	for e, p := range paths {
		rows, err := textio.ReadMatrixFile(p)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
		}
		cols := textio.Columns(rows)
		if e == 0 {
			samples = len(rows)
			voxels = make([][]float64, len(cols))
			for v := range voxels {
				voxels[v] = make([]float64, 0, samples*len(paths))
			}
		}
		if len(rows) != samples || len(cols) != len(voxels) {
			return nil, 0, core.Configf("%s is %dx%d, first echo is %dx%d",
				p, len(rows), len(cols), samples, len(voxels))
		}
		for v, c := range cols {
			voxels[v] = append(voxels[v], c...)
		}
	}
	return voxels, samples, nil
}

func runSPFM(ctx context.Context, cmd *cobra.Command, opts *runOptions) error {
	started := time.Now()

	cfg, err := resolveConfig(cmd.Flags(), opts)
	if err != nil {
		return err
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if echoes := cfg.Acquisition().Echoes(); echoes != len(opts.inputs) {
		return core.Configf("%d input files need %d echo times, got %d",
			len(opts.inputs), len(opts.inputs), echoes)
	}

	voxels, samples, err := loadEchoes(opts.inputs)
	if err != nil {
		return err
	}
	logger.Info("Loaded input",
		slog.Int("echoes", len(opts.inputs)),
		slog.Int("samples", samples),
		slog.Int("voxels", len(voxels)))

	op, err := cfg.Model(samples)
	if err != nil {
		return err
	}
	est, err := estimate.New(op, cfg.Estimate())
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics, err := pipeline.NewMetrics(reg)
	if err != nil {
		return err
	}
	if opts.metricsAddr != "" {
		shutdown, err := serveMetrics(opts.metricsAddr, reg, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	records := make([]pipeline.Record, len(voxels))
	summary, err := pipeline.Run(ctx, pipeline.Config{
		Workers: cfg.Jobs,
		Logger:  logger,
		Metrics: metrics,
	}, est, voxels, func(r pipeline.Record) error {
		records[r.Voxel] = r
		return nil
	})
	if err != nil {
		return err
	}

	run := runInfo{
		RunID:    uuid.New().String(),
		Version:  Version,
		Command:  os.Args,
		Started:  started,
		Finished: time.Now(),
		Inputs:   opts.inputs,
		Samples:  samples,
		Voxels:   len(voxels),
		Failed:   summary.Failed,
		Config:   cfg,
	}
	if err := writeOutputs(opts.output, op, records, run); err != nil {
		return err
	}

	logger.Info("Run complete",
		slog.String("run_id", run.RunID),
		slog.String("output", opts.output),
		slog.Int("processed", summary.Processed),
		slog.Int("failed", summary.Failed),
		slog.Duration("elapsed", run.Finished.Sub(started)))
	if summary.Failed > 0 && summary.Failed == summary.Processed {
		return fmt.Errorf("all %d voxels failed", summary.Failed)
	}
	return nil
}

// serveMetrics exposes reg on addr until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server stopped", slog.Any("error", err))
		}
	}()
	logger.Info("Serving metrics", slog.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
