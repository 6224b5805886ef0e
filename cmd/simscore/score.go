package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/example/go-simscore/internal/config"
	"github.com/example/go-simscore/internal/runtime/ops"
	"github.com/example/go-simscore/internal/runtime/tensor"
	"github.com/example/go-simscore/internal/safetensors"
	"github.com/example/go-simscore/internal/similarity"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
)

type scoreOptions struct {
	input      string
	output     string
	name1      string
	name2      string
	outName    string
	maskName   string
	attend     bool
	fromConfig bool
	flags      functionFlags
}

func newScoreCmd() *cobra.Command {
	var opts scoreOptions

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score tensor_1 against tensor_2 from a safetensors file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			fn, err := resolveFunction(cmd, cfg, &opts)
			if err != nil {
				return err
			}

			return runScore(fn, opts)
		},
	}

	cmd.Flags().StringVar(&opts.input, "input", "", "Input .safetensors file holding both tensors")
	cmd.Flags().StringVar(&opts.output, "output", "similarity.safetensors", "Output .safetensors file")
	cmd.Flags().StringVar(&opts.name1, "tensor-1", "tensor_1", "Name of the first input tensor")
	cmd.Flags().StringVar(&opts.name2, "tensor-2", "tensor_2", "Name of the second input tensor")
	cmd.Flags().StringVar(&opts.outName, "output-name", "similarity", "Name of the output tensor")
	cmd.Flags().BoolVar(&opts.attend, "attend", false, "Also write softmax attention weights and tensor_2 pooled by them")
	cmd.Flags().StringVar(&opts.maskName, "mask", "", "Name of a [batch, len_2] mask tensor applied with --attend")
	cmd.Flags().BoolVar(&opts.fromConfig, "from-config", false, "Build the function from configuration instead of loading paths.checkpoint")
	opts.flags.register(cmd)
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func resolveFunction(cmd *cobra.Command, cfg config.Config, opts *scoreOptions) (similarity.Function, error) {
	if opts.fromConfig {
		return buildFunction(opts.flags.apply(cmd, cfg), cfg)
	}

	fn, err := similarity.LoadFunction(cfg.Paths.Checkpoint, buildOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint (use --from-config for parameter-free functions): %w", err)
	}

	return fn, nil
}

func runScore(fn similarity.Function, opts scoreOptions) error {
	store, err := safetensors.OpenStore(opts.input, safetensors.StoreOptions{})
	if err != nil {
		return err
	}
	defer store.Close()

	t1, err := loadInput(store, opts.name1)
	if err != nil {
		return err
	}

	t2, err := loadInput(store, opts.name2)
	if err != nil {
		return err
	}

	start := time.Now()

	sim, err := fn.Score(t1, t2)
	if err != nil {
		return err
	}

	slog.Info("scored",
		"tensor_1", t1.Shape(),
		"tensor_2", t2.Shape(),
		"similarity", sim.Shape(),
		"workers", tensor.Workers(),
		"elapsed", time.Since(start),
	)

	meta, err := outputMetadata(fn)
	if err != nil {
		return err
	}

	outputs := []safetensors.Tensor{{
		Name:  opts.outName,
		Shape: sim.Shape(),
		Data:  sim.Data(),
	}}

	if opts.attend {
		attended, err := attendOutputs(store, fn, t1, t2, opts.maskName)
		if err != nil {
			return err
		}

		outputs = append(outputs, attended...)
	}

	if err := safetensors.WriteFile(opts.output, outputs, meta); err != nil {
		return err
	}

	lo, hi := tensor.MinMax(sim)
	_, err = fmt.Fprintf(os.Stdout, "wrote %s %v min=%g max=%g\n", opts.output, sim.Shape(), lo, hi)

	return err
}

func attendOutputs(store *safetensors.Store, fn similarity.Function, t1, t2 *tensor.Tensor, maskName string) ([]safetensors.Tensor, error) {
	var mask *tensor.Tensor

	if maskName != "" {
		st, err := store.Tensor(maskName)
		if err != nil {
			return nil, err
		}

		mask, err = tensor.New(st.Data, st.Shape)
		if err != nil {
			return nil, err
		}
	}

	weights, pooled, err := ops.Attend(fn, t1, t2, mask)
	if err != nil {
		return nil, err
	}

	return []safetensors.Tensor{
		{Name: "attention", Shape: weights.Shape(), Data: weights.Data()},
		{Name: "attended", Shape: pooled.Shape(), Data: pooled.Data()},
	}, nil
}

func loadInput(store *safetensors.Store, name string) (*tensor.Tensor, error) {
	st, err := safetensors.LoadRank3(store, name)
	if err != nil {
		return nil, err
	}

	return tensor.New(st.Data, st.Shape)
}

func outputMetadata(fn similarity.Function) (map[string]string, error) {
	cfg := fn.Config()
	meta := make(map[string]string, len(cfg))

	for k, v := range cfg {
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("similarity config %q: %w", k, err)
		}

		meta["similarity."+k] = s
	}

	return meta, nil
}
