package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vignette/internal/api"
	"vignette/internal/app"
	"vignette/internal/config"
	"vignette/internal/models"
	"vignette/internal/presets"
)

func newPresetsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Inspect the preset registry",
	}

	cmd.AddCommand(
		newPresetsListCmd(cfg, jsonOutput),
		newPresetsShowCmd(cfg, jsonOutput),
		newPresetsExportCmd(cfg),
	)
	return cmd
}

func newPresetsListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List presets known to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ListPresets(commandContext(cmd))
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				for _, p := range resp {
					if err := writePlain("%s\n", formatPresetLine(p)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newPresetsShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show one preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				p, err := client.GetPreset(commandContext(cmd), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(p)
				}
				_ = writePlain("name: %s\n", p.Name)
				_ = writePlain("size: %dx%d\n", p.Width, p.Height)
				_ = writePlain("fit: %s\n", p.Fit)
				_ = writePlain("format: %s\n", p.Format)
				if p.Quality > 0 {
					_ = writePlain("quality: %d\n", p.Quality)
				}
				if p.Holder != "" {
					_ = writePlain("placeholder: %s\n", p.Holder)
				}
				return writePlain("fingerprint: %s\n", p.Fingerprint)
			})
		},
	}
}

// newPresetsExportCmd writes the presets the local configuration resolves to
// as a presets file. It does not need a running server.
func newPresetsExportCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the configured presets as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, holders, err := app.LoadPresets(cfg)
			if err != nil {
				return err
			}
			return exportFormatter.Write(os.Stdout, presetsFile(reg, holders))
		},
	}
}

func presetsFile(reg *presets.Registry, holders map[string]string) presets.File {
	out := presets.File{Presets: map[string]models.PresetSpec{}}
	for _, spec := range reg.All() {
		out.Presets[spec.Name] = spec
	}
	if len(holders) > 0 {
		out.Placeholders = holders
	}
	return out
}

func formatPresetLine(p api.PresetResponse) string {
	return fmt.Sprintf("%-16s %5dx%-5d %-8s %-5s %s", p.Name, p.Width, p.Height, p.Fit, p.Format, shortFingerprint(p.Fingerprint))
}
