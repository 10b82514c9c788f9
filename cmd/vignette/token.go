package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vignette/internal/auth"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API and admin tokens",
	}
	cmd.AddCommand(newTokenHashCmd())
	return cmd
}

func newTokenHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash [token]",
		Short: "Print the bcrypt hash of a token for VIGNETTE_API_TOKEN or VIGNETTE_ADMIN_TOKEN",
		Long:  "Reads the token from stdin when no argument is given, which keeps it out of shell history.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read token: %w", err)
				}
				token = strings.TrimRight(line, "\r\n")
			}
			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}
			return writePlain("%s\n", hash)
		},
	}
}
