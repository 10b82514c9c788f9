package main

import (
	"github.com/spf13/cobra"

	"vignette/internal/api"
	"vignette/internal/config"
)

func newGCCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		apply     bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Collect stale derivatives, orphaned blobs and unfinished deletes",
		Long:  "Runs a dry run by default. Pass --apply to delete what the dry run reports.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GC(commandContext(cmd), apply, batchSize)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeGCSummary(resp)
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete instead of reporting")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "maximum items handled per category")
	return cmd
}

func writeGCSummary(resp api.GCResponse) error {
	mode := "applied"
	if resp.DryRun {
		mode = "dry run"
	}
	_ = writePlain("mode: %s\n", mode)
	_ = writePlain("pending_deletes: %d (resumed %d)\n", resp.PendingDeletes, resp.ResumedDeletes)
	_ = writePlain("stale_derivatives: %d (deleted %d, %d bytes)\n", resp.Stale.Candidates, resp.Stale.Deleted, resp.Stale.ReclaimedBytes)
	_ = writePlain("orphan_blobs: %d (deleted %d)\n", resp.OrphanCandidates, resp.OrphansDeleted)

	failed := append(append([]string{}, resp.FailedDeletes...), resp.Stale.FailedKeys...)
	failed = append(failed, resp.FailedKeys...)
	for _, key := range failed {
		if err := writePlain("failed: %s\n", key); err != nil {
			return err
		}
	}
	return nil
}
