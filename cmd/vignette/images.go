package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"vignette/internal/api"
	"vignette/internal/config"
)

func newUploadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		filename  string
		mediaType string
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an original image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if filename == "" {
				filename = filepath.Base(args[0])
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.UploadImage(commandContext(cmd), f, filename, mediaType)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s\n", resp.ID)
			})
		},
	}

	cmd.Flags().StringVar(&filename, "filename", "", "filename to record (defaults to the file's base name)")
	cmd.Flags().StringVar(&mediaType, "media-type", "", "declared media type")
	return cmd
}

func newShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an image and its derivatives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetImage(commandContext(cmd), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeImageDetail(resp)
			})
		},
	}
}

func newListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List images, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 || offset < 0 {
				return fmt.Errorf("limit and offset must be >= 0")
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ListImages(commandContext(cmd), limit, offset)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeImageList(resp.Images)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of images")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of images to skip")
	return cmd
}

func newDeleteCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete images and all their derivatives",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				deleted := make([]api.DeleteResponse, 0, len(args))
				for _, id := range args {
					resp, err := client.DeleteImage(commandContext(cmd), id)
					if err != nil {
						return err
					}
					deleted = append(deleted, resp)
				}
				if *jsonOutput {
					return writeJSON(deleted)
				}
				for _, resp := range deleted {
					if err := writePlain("deleted %s\n", resp.ID); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
