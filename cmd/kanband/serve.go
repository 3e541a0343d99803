package main

import (
	"github.com/spf13/cobra"

	"github.com/kanbanhq/kanban/internal/config"
	"github.com/kanbanhq/kanban/internal/log"
	"github.com/kanbanhq/kanban/internal/server"
)

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, configErr(err)
	}
	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
	return cfg, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := server.Run(ctx, cfg, version); err != nil {
				return runtimeErr(err)
			}
			if ctx.Err() != nil {
				// Clean shutdown after SIGINT/SIGTERM.
				return &exitError{code: 130}
			}
			return nil
		},
	}
}
