package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/example/go-simscore/internal/nn"
	"github.com/example/go-simscore/internal/similarity"
	"github.com/spf13/cobra"
)

func newFunctionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List registered similarity functions and activations",
		RunE: func(_ *cobra.Command, _ []string) error {
			return listFunctions(os.Stdout)
		},
	}
}

func listFunctions(w io.Writer) error {
	_, err := fmt.Fprintf(w, "functions:   %s\nactivations: %s\n",
		strings.Join(similarity.Names(), ", "),
		strings.Join(nn.ActivationNames(), ", "),
	)

	return err
}
