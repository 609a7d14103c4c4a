package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"streamedge/internal/serve"
)

func init() {
	service := serve.NewCommand()

	command := &cobra.Command{
		Use:   "serve",
		Short: "serve streamedge server",
		Long:  `serve streamedge edge proxy`,
		Run:   service.Run,
	}

	configs := []Config{
		service.Config,
		service.ServerConfig,
	}

	cobra.OnInitialize(func() {
		for _, cfg := range configs {
			cfg.Set()
		}
		service.Preflight()
	})

	for _, cfg := range configs {
		if err := cfg.Init(command); err != nil {
			log.Panic().Err(err).Msg("unable to run serve command")
		}
	}

	rootCmd.AddCommand(command)
}
