package main

import (
	"github.com/spf13/cobra"

	"assistant/internal/bootstrap"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger, closeLog, err := opts.logger(cfg, "")
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			res, err := bootstrap.BuildServer(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := res.Close(); err != nil {
					logger.Warn("close contact store", "err", err)
				}
			}()
			logger.Info("starting chat API", "provider", cfg.Provider.Name, "model", res.Model, "tools", res.ToolNames)
			return res.Server.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address override")
	return cmd
}
