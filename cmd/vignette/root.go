package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vignette/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		logging    logFlags
	)

	cmd := &cobra.Command{
		Use:           "vignette",
		Short:         "Vignette stores original images and serves preset derivatives",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warnings, err := setupLogging(logging, cfg.LogLevel)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				fmt.Fprintln(os.Stderr, w)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&logging.level, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logging.format, "log-format", "", "log format (text, json)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newInfoCmd(cfg, &jsonOutput),
		newUploadCmd(cfg, &jsonOutput),
		newShowCmd(cfg, &jsonOutput),
		newListCmd(cfg, &jsonOutput),
		newDeleteCmd(cfg, &jsonOutput),
		newRenderCmd(cfg, &jsonOutput),
		newURLCmd(cfg, &jsonOutput),
		newRegenerateCmd(cfg, &jsonOutput),
		newPresetsCmd(cfg, &jsonOutput),
		newGCCmd(cfg, &jsonOutput),
		newMigrateCmd(cfg, &jsonOutput),
		newConfigCmd(cfg),
		newTokenCmd(),
	)

	return cmd
}
