package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/example/go-simscore/internal/runtime/tensor"
	"github.com/example/go-simscore/internal/safetensors"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.safetensors>",
		Short: "List tensors and metadata in a safetensors file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return inspectFile(args[0], os.Stdout)
		},
	}
}

func inspectFile(path string, w io.Writer) error {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{})
	if err != nil {
		return err
	}
	defer store.Close()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tSHAPE\tMIN\tMAX")

	for _, name := range store.Names() {
		st, err := store.Tensor(name)
		if err != nil {
			return err
		}

		t, err := tensor.New(st.Data, st.Shape)
		if err != nil {
			return fmt.Errorf("tensor %q: %w", name, err)
		}

		lo, hi := tensor.MinMax(t)
		_, _ = fmt.Fprintf(tw, "%s\t%v\t%g\t%g\n", name, st.Shape, lo, hi)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	meta := store.Metadata()
	if len(meta) == 0 {
		return nil
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	_, _ = fmt.Fprintln(w, "metadata:")
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", k, meta[k])
	}

	return nil
}
