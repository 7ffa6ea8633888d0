package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/watzon/cadence/internal/auth"
)

var tokenTTL string

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue an API token",
	Long: `Issue a bearer token for the HTTP API, signed with server.auth.secret.

Examples:
  cadence token ops
  cadence token agent-runner --ttl 30d`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenTTL, "ttl", "", "Token lifetime, e.g. 12h, 30d (default: server.auth.ttl)")

	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	tokens, err := auth.NewTokenService(cfg.Server.Auth)
	if err != nil {
		return fmt.Errorf("%w: set server.auth.secret or CADENCE_SERVER_AUTH_SECRET", err)
	}

	ttl := cfg.Server.Auth.TTL
	if tokenTTL != "" {
		ttl, err = parseDuration(tokenTTL)
		if err != nil {
			return fmt.Errorf("invalid ttl: %w", err)
		}
	}

	token, expiresAt, err := tokens.Issue(args[0], ttl)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Subject: %s\n", args[0])
	fmt.Fprintf(out, "Expires: %s\n", expiresAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Token (store securely - shown only once):")
	fmt.Fprintf(out, "  %s\n", token)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Use with the API:")
	fmt.Fprintf(out, "  curl -H \"Authorization: Bearer %s\" http://%s/api/tasks\n", token, cfg.Server.Address())
	return nil
}
