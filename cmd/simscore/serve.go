package main

import (
	"os/signal"
	"syscall"

	"github.com/example/go-simscore/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var opts scoreOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the similarity function over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			fn, err := resolveFunction(cmd, cfg, &opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return server.New(cfg.Server, fn).Start(ctx)
		},
	}

	cmd.Flags().BoolVar(&opts.fromConfig, "from-config", false, "Build the function from configuration instead of loading paths.checkpoint")
	opts.flags.register(cmd)

	return cmd
}

func newHealthCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.ListenAddr
			}
			if err := server.ProbeHTTP(addr); err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write([]byte("ok\n"))
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP server address to probe")

	return cmd
}
