package main

import (
	"strings"

	"github.com/spf13/cobra"

	"vignette/internal/api"
	"vignette/internal/config"
)

type infoOutput struct {
	api.InfoResponse
	DBPath string `json:"db_path"`
	APIURL string `json:"api_url"`
}

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show server, storage and preset info",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetInfo(commandContext(cmd))
				if err != nil {
					return err
				}
				out := infoOutput{InfoResponse: resp, DBPath: cfg.DBPath, APIURL: cfg.APIURL}

				if *jsonOutput {
					return writeJSON(out)
				}

				_ = writePlain("api_url: %s\n", out.APIURL)
				_ = writePlain("db_path: %s\n", out.DBPath)
				_ = writePlain("schema_version: %d\n", out.SchemaVersion)
				_ = writePlain("storage: %s\n", out.Storage)
				_ = writePlain("cache: %s\n", out.Cache)
				_ = writePlain("missing_policy: %s\n", out.MissingPolicy)
				_ = writePlain("images: %d\n", out.ImageCount)
				return writePlain("presets: %s\n", strings.Join(out.Presets, ", "))
			})
		},
	}
}
