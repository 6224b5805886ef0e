package main

import (
	"fmt"
	"log/slog"

	"github.com/example/go-simscore/internal/config"
	"github.com/example/go-simscore/internal/params"
	"github.com/example/go-simscore/internal/similarity"
	"github.com/spf13/cobra"
)

// functionFlags overrides keys of the configured similarity section.
type functionFlags struct {
	typ         string
	dim1, dim2  int
	combination string
	activation  string
}

func (f *functionFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.typ, "type", similarity.DefaultType, "Similarity function type")
	fs.IntVar(&f.dim1, "tensor-1-dim", 0, "Feature size of tensor_1")
	fs.IntVar(&f.dim2, "tensor-2-dim", 0, "Feature size of tensor_2")
	fs.StringVar(&f.combination, "combination", "x,y", "Combination string (e.g. x,y,x*y)")
	fs.StringVar(&f.activation, "activation", "linear", "Activation applied by the linear function")
}

// apply layers explicitly set flags over the configured similarity section.
func (f *functionFlags) apply(cmd *cobra.Command, cfg config.Config) map[string]any {
	values := cfg.SimilarityParams()
	fs := cmd.Flags()

	set := func(flag, key string, v any) {
		if fs.Changed(flag) {
			values[key] = v
		}
	}

	set("type", "type", f.typ)
	set("tensor-1-dim", "tensor_1_dim", f.dim1)
	set("tensor-2-dim", "tensor_2_dim", f.dim2)
	set("combination", "combination", f.combination)
	set("activation", "activation", f.activation)

	return values
}

func buildOptions(cfg config.Config) []similarity.Option {
	if cfg.Runtime.Seed == 0 {
		return nil
	}

	return []similarity.Option{similarity.WithSeed(cfg.Runtime.Seed)}
}

func buildFunction(values map[string]any, cfg config.Config) (similarity.Function, error) {
	fn, err := similarity.FromParams(params.New(values), buildOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("build similarity function: %w", err)
	}

	slog.Info("similarity function ready", "config", fn.Config())

	return fn, nil
}
