package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// MeCmd shows which role the configured token acts as.
func MeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the identity bound to your token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			client, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			me, err := client.Me(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				data, _ := json.MarshalIndent(me, "", "  ")
				fmt.Fprintln(out, string(data))
				return nil
			}
			fmt.Fprintf(out, "Subject: %s\n", me.Subject)
			fmt.Fprintf(out, "Role: %s\n", me.Role)
			return nil
		},
	}
}
