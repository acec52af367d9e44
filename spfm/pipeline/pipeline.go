package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwbudde/algo-spfm/spfm/estimate"
)

// Estimator solves one voxel. *estimate.Estimator satisfies it.
type Estimator interface {
	Estimate(y []float64) (estimate.Result, error)
}

// Config controls the worker pool.
type Config struct {
	Workers int          // number of worker goroutines (>=1)
	Logger  *slog.Logger // nil uses slog.Default()
	Metrics *Metrics     // optional
}

// Record is the outcome of one voxel.
type Record struct {
	Voxel    int
	Result   estimate.Result
	Err      error
	Duration time.Duration
}

// Status returns the metrics label of the record.
func (r Record) Status() string {
	switch {
	case r.Err != nil:
		return status(r.Err)
	case r.Result.Diagnostics.DebiasFallback:
		return StatusDebiasFallback
	default:
		return StatusOK
	}
}

// Summary counts the records handed to the visitor.
type Summary struct {
	Processed int
	Failed    int
}

// Run estimates every voxel series and calls visit once per voxel, from a
// single goroutine, in completion order. It returns ctx.Err() when cancelled
// and otherwise the first visitor error.
func Run(
	ctx context.Context,
	cfg Config,
	est Estimator,
	voxels [][]float64,
	visit func(Record) error,
) (Summary, error) {
	if est == nil {
		return Summary{}, fmt.Errorf("pipeline: nil estimator")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int, cfg.Workers*2)
	results := make(chan Record, cfg.Workers*2)

	// Workers
	var wg sync.WaitGroup
	wg.Add(cfg.Workers)
	for w := 0; w < cfg.Workers; w++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case v, ok := <-jobs:
					if !ok {
						return
					}
					start := time.Now()
					res, err := est.Estimate(voxels[v])
					r := Record{Voxel: v, Result: res, Err: err, Duration: time.Since(start)}

					select {
					case results <- r:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	// Collector
	var (
		sum  Summary
		verr error
		cwg  sync.WaitGroup
	)
	cwg.Add(1)
	go func() {
		defer cwg.Done()
		for r := range results {
			if verr != nil {
				continue
			}
			sum.Processed++
			cfg.Metrics.observe(r)
			if r.Err != nil {
				sum.Failed++
				logger.Warn("Voxel failed", slog.Int("voxel", r.Voxel), slog.String("error", r.Err.Error()))
			} else {
				logger.Debug("Voxel estimated",
					slog.Int("voxel", r.Voxel),
					slog.Float64("lambda", r.Result.Lambda),
					slog.Int("support", r.Result.Diagnostics.Support),
					slog.Bool("converged", r.Result.Diagnostics.Converged))
			}
			if visit == nil {
				continue
			}
			if err := visit(r); err != nil {
				verr = err
				cancel()
			}
		}
	}()

	// Feed work
feed:
	for v := range voxels {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- v:
		}
	}

	close(jobs)
	wg.Wait()
	close(results)
	cwg.Wait()

	if verr != nil {
		return sum, verr
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	logger.Info("Pipeline finished",
		slog.Int("voxels", sum.Processed),
		slog.Int("failed", sum.Failed),
		slog.Int("workers", cfg.Workers))
	return sum, nil
}
