package admin

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docuhub/internal/domain"
	"github.com/cloo-solutions/docuhub/internal/service"
)

func TokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
		Long:  "Generate API tokens for the DOCUHUB_API_TOKENS setting",
	}

	cmd.AddCommand(TokenNewCmd())
	return cmd
}

func TokenNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a new API token",
		Long:  "Generate a random API token bound to a role and print its DOCUHUB_API_TOKENS entry",
		RunE:  runTokenNew,
	}

	cmd.Flags().StringP("role", "r", "", "Role the token acts as: lawyer, student, enterprise or banker (required)")
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("role")

	return cmd
}

func runTokenNew(cmd *cobra.Command, args []string) error {
	roleName, _ := cmd.Flags().GetString("role")
	output, _ := cmd.Flags().GetString("output")

	role, err := domain.ParseRole(roleName)
	if err != nil {
		return err
	}

	token, err := service.GenerateAPIToken()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	entry := fmt.Sprintf("%s:%s", token, role)

	out := cmd.OutOrStdout()
	if output == "json" {
		data := map[string]string{
			"token": token,
			"role":  role.String(),
			"entry": entry,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Fprintln(out, string(jsonBytes))
		return nil
	}

	fmt.Fprintf(out, "Token: %s\n", token)
	fmt.Fprintf(out, "Role: %s\n", role)
	fmt.Fprintf(out, "Add to DOCUHUB_API_TOKENS: %s\n", entry)
	fmt.Fprintln(out, "\nSave this token now. Only its hash is kept in memory by the server.")
	return nil
}
