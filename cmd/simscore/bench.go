package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/example/go-simscore/internal/bench"
	"github.com/example/go-simscore/internal/nn"
	"github.com/example/go-simscore/internal/runtime/tensor"
	"github.com/example/go-simscore/internal/similarity"
	"github.com/spf13/cobra"
)

type benchOptions struct {
	batch, len1, len2 int64
	runs              int
	format            string
	minRate           float64
	fromConfig        bool
	flags             functionFlags
}

func newBenchCmd() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark scoring throughput on random inputs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if opts.runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if opts.format != "table" && opts.format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}
			if opts.batch < 1 || opts.len1 < 1 || opts.len2 < 1 {
				return fmt.Errorf("--batch, --len-1 and --len-2 must be positive")
			}

			fn, err := resolveFunction(cmd, cfg, &scoreOptions{fromConfig: opts.fromConfig, flags: opts.flags})
			if err != nil {
				return err
			}

			results, err := runBench(fn, opts, cfg.Runtime.Seed)
			if err != nil {
				return err
			}

			durations := make([]time.Duration, len(results))
			for i, r := range results {
				durations[i] = r.Duration
			}
			stats := bench.ComputeStats(durations)

			switch opts.format {
			case "json":
				bench.FormatJSON(results, stats, os.Stdout)
			default:
				bench.FormatTable(results, stats, os.Stdout)
			}

			return bench.CheckRateThreshold(bench.MeanRate(results), opts.minRate)
		},
	}

	cmd.Flags().Int64Var(&opts.batch, "batch", 8, "Batch size")
	cmd.Flags().Int64Var(&opts.len1, "len-1", 64, "Sequence length of tensor_1")
	cmd.Flags().Int64Var(&opts.len2, "len-2", 64, "Sequence length of tensor_2")
	cmd.Flags().IntVar(&opts.runs, "runs", 5, "Number of timed runs")
	cmd.Flags().StringVar(&opts.format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&opts.minRate, "min-rate", 0, "Fail if mean pairs/s falls below this value (0 disables)")
	cmd.Flags().BoolVar(&opts.fromConfig, "from-config", false, "Build the function from configuration instead of loading paths.checkpoint")
	opts.flags.register(cmd)

	return cmd
}

// runBench scores random inputs sized to the function's configured dims.
func runBench(fn similarity.Function, opts benchOptions, seed uint64) ([]bench.RunResult, error) {
	dim1, dim2, err := inputDims(fn)
	if err != nil {
		return nil, err
	}

	src := rand.NewPCG(seed, seed+1)

	t1, err := randomInput(src, opts.batch, opts.len1, dim1)
	if err != nil {
		return nil, err
	}

	t2, err := randomInput(src, opts.batch, opts.len2, dim2)
	if err != nil {
		return nil, err
	}

	pairs := opts.batch * opts.len1 * opts.len2
	results := make([]bench.RunResult, 0, opts.runs)

	for i := range opts.runs {
		start := time.Now()
		if _, err := fn.Score(t1, t2); err != nil {
			return nil, err
		}
		elapsed := time.Since(start)

		results = append(results, bench.RunResult{
			Index:    i,
			Cold:     i == 0,
			Duration: elapsed,
			Pairs:    pairs,
			Rate:     bench.PairsPerSecond(pairs, elapsed),
		})
	}

	return results, nil
}

// inputDims reads tensor_1_dim and tensor_2_dim from the function config;
// parameter-free functions default to 64.
func inputDims(fn similarity.Function) (int64, int64, error) {
	cfg := fn.Config()

	d1, ok1 := cfg["tensor_1_dim"].(int)
	d2, ok2 := cfg["tensor_2_dim"].(int)

	switch {
	case ok1 && ok2:
		return int64(d1), int64(d2), nil
	case !ok1 && !ok2:
		return 64, 64, nil
	default:
		return 0, 0, fmt.Errorf("function config %v has only one input dim", cfg)
	}
}

func randomInput(src rand.Source, batch, length, dim int64) (*tensor.Tensor, error) {
	t, err := tensor.Zeros([]int64{batch, length, dim})
	if err != nil {
		return nil, err
	}

	nn.UniformFill(t, -1, 1, src)

	return t, nil
}
