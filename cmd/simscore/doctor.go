package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/example/go-simscore/internal/doctor"
	"github.com/example/go-simscore/internal/runtime/tensor"
	"github.com/example/go-simscore/internal/similarity"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	var checkpoints []string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and checkpoint checks",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			paths := checkpoints
			if len(paths) == 0 {
				if _, statErr := os.Stat(cfg.Paths.Checkpoint); statErr == nil {
					paths = []string{cfg.Paths.Checkpoint}
				} else {
					_, _ = fmt.Fprintf(os.Stdout, "%s checkpoint: skipped (no file at %s)\n", doctor.PassMark, cfg.Paths.Checkpoint)
				}
			}

			result := doctor.Run(doctor.Config{
				Workers:         tensor.Workers(),
				Checkpoints:     paths,
				CheckCheckpoint: describeCheckpoint,
			}, os.Stdout)

			if result.Failed() {
				return errors.New("doctor checks failed")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&checkpoints, "checkpoint", nil, "Checkpoint files to verify (defaults to paths.checkpoint)")

	return cmd
}

func describeCheckpoint(path string) (string, error) {
	fn, err := similarity.LoadFunction(path)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%v (%d tensors)", fn.Config()["type"], len(fn.Parameters())), nil
}
