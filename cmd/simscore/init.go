package main

import (
	"fmt"
	"os"

	"github.com/example/go-simscore/internal/similarity"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var (
		flags functionFlags
		out   string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a similarity function and write its checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if out == "" {
				out = cfg.Paths.Checkpoint
			}

			fn, err := buildFunction(flags.apply(cmd, cfg), cfg)
			if err != nil {
				return err
			}

			if err := similarity.SaveParameters(out, fn); err != nil {
				return err
			}

			_, err = fmt.Fprintf(os.Stdout, "wrote %s (%s, %d tensors)\n", out, fn.Config()["type"], len(fn.Parameters()))
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "Checkpoint output path (defaults to paths.checkpoint)")

	return cmd
}
