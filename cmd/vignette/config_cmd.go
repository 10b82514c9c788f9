package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vignette/internal/config"
)

func newConfigCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration",
	}

	cmd.AddCommand(
		newConfigGetCmd(cfg),
		newConfigListCmd(cfg),
		newConfigSetCmd(),
	)
	return cmd
}

func newConfigGetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.IsAllowedKey(key) {
				return fmt.Errorf("unknown key: %s (allowed: %v)", key, config.AllowedKeys())
			}
			value, err := cfg.Get(key)
			if err != nil {
				return err
			}
			return writePlain("%s\n", value)
		},
	}
}

func newConfigListCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every settable key with its effective value",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, key := range config.AllowedKeys() {
				value, err := cfg.Get(key)
				if err != nil {
					return err
				}
				if err := writePlain("%s = %s\n", key, value); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pathFn := config.ProjectPath
			if global {
				pathFn = config.GlobalPath
			}
			path, err := pathFn()
			if err != nil {
				return err
			}
			if err := config.SetKey(path, args[0], args[1]); err != nil {
				return err
			}
			return writePlain("%s updated in %s\n", args[0], path)
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "write to global config (~/.vignette.toml)")
	return cmd
}
