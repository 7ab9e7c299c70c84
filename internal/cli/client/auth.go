package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// AuthCmd creates the auth parent command
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication credentials",
		Long:  "Login, logout, and check authentication status for the docuhub CLI",
	}

	cmd.AddCommand(AuthLoginCmd())
	cmd.AddCommand(AuthLogoutCmd())
	cmd.AddCommand(AuthStatusCmd())

	return cmd
}

func AuthLoginCmd() *cobra.Command {
	var apiToken string
	var apiURL string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login with an API token",
		Long:  "Store the API token and URL in the global config (~/.config/docuhub/config.json)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(cmd.InOrStdin(), cmd.OutOrStdout(), apiToken, apiURL)
		},
	}

	cmd.Flags().StringVar(&apiToken, "token", "", "API token (dhk_...)")
	cmd.Flags().StringVar(&apiURL, "url", defaultAPIURL, "API URL")

	return cmd
}

func AuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout and clear credentials",
		Long:  "Remove stored credentials from the global config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return fmt.Errorf("failed to logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Successfully logged out")
			return nil
		},
	}
}

func AuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  "Display where the active credentials come from",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			flagToken, _ := cmd.Flags().GetString("api-token")
			flagURL, _ := cmd.Flags().GetString("api-url")

			creds, err := ResolveCredentials(flagToken, flagURL)
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), creds, outputJSON)
		},
	}
}

func runAuthLogin(in io.Reader, out io.Writer, apiToken, apiURL string) error {
	if apiToken == "" {
		fmt.Fprint(out, "Enter API token: ")
		input, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && input == "" {
			return fmt.Errorf("failed to read API token: %w", err)
		}
		apiToken = strings.TrimSpace(input)
	}

	if !IsValidAPIToken(apiToken) {
		return fmt.Errorf("invalid API token format (expected: dhk_ + 64 hex characters)")
	}

	if err := SaveGlobalConfig(&GlobalConfig{APIToken: apiToken, APIURL: apiURL}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintln(out, "Successfully logged in")
	return nil
}

func writeStatus(out io.Writer, creds Credentials, outputJSON bool) error {
	authenticated := creds.TokenSource != SourceNone

	if outputJSON {
		status := map[string]interface{}{
			"authenticated": authenticated,
			"source":        string(creds.TokenSource),
			"api_url":       creds.URL,
		}
		if authenticated {
			status["api_token"] = maskAPIToken(creds.Token)
		}
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if !authenticated {
		fmt.Fprintln(out, "Not authenticated")
		fmt.Fprintln(out, "Run 'docuhub auth login' to authenticate")
		return nil
	}

	fmt.Fprintf(out, "Authenticated: yes\n")
	fmt.Fprintf(out, "Source: %s\n", creds.TokenSource)
	fmt.Fprintf(out, "API Token: %s\n", maskAPIToken(creds.Token))
	fmt.Fprintf(out, "API URL: %s\n", creds.URL)
	return nil
}

func maskAPIToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:7] + "..." + token[len(token)-4:]
}
