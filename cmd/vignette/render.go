package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"vignette/internal/api"
	"vignette/internal/config"
)

// noImageArg renders the placeholder of a preset for an owner without image.
const noImageArg = "-"

func newRenderCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "render <id|-> <preset>",
		Short: "Fetch the derivative of an image for a preset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var w io.Writer = os.Stdout
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			} else if *jsonOutput {
				return fmt.Errorf("--json requires --output")
			}

			return withClient(cfg, func(client *api.Client) error {
				res, err := client.RenderPreset(commandContext(cmd), args[0], args[1], w)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(res)
				}
				if res.Location != "" {
					fmt.Fprintf(os.Stderr, "placeholder: %s\n", res.Location)
				} else if w != os.Stdout {
					fmt.Fprintf(os.Stderr, "wrote %d bytes (%s, %s) to %s\n", res.Bytes, res.Kind, res.MediaType, output)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write bytes to this file instead of stdout")
	return cmd
}

func newURLCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "url <id|-> <preset>",
		Short: "Print the stable URL of a derivative",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.PresetURL(commandContext(cmd), args[0], args[1])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s\n", resp.URL)
			})
		},
	}
}

func newRegenerateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <id> <preset>",
		Short: "Discard and rebuild the derivative of an image for a preset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == noImageArg {
				return fmt.Errorf("regenerate requires an image id")
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Regenerate(commandContext(cmd), args[0], args[1])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				if resp.Derivative == nil {
					return writePlain("%s %s: %s\n", args[0], resp.Preset, resp.Kind)
				}
				d := resp.Derivative
				return writePlain("%s %s: %dx%d %s %s\n", d.ImageID, d.Preset, d.Width, d.Height, d.MediaType, shortFingerprint(d.Fingerprint))
			})
		},
	}
}
