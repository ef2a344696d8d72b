package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pqcall/internal/domain"
	"pqcall/internal/token"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue, revoke, and clean up secure tokens",
	}
	cmd.AddCommand(tokenIssueCmd(), tokenRevokeCmd(), tokenCleanupCmd())
	return cmd
}

func tokenIssueCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token and print its QR payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return fmt.Errorf("user required (--user)")
			}
			tok, err := wire.Tokens.Issue(cmd.Context(), domain.UserID(user))
			if err != nil {
				return err
			}
			fmt.Println(token.FormatQR(tok))
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "user the token resolves to")
	return cmd
}

func tokenRevokeCmd() *cobra.Command {
	var (
		payload string
		reason  string
		grace   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a token by its QR payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := token.ParseQR(payload)
			if err != nil {
				return err
			}
			if err := wire.Tokens.Revoke(cmd.Context(), tok, reason, grace); err != nil {
				return err
			}
			fmt.Println("revoked")
			return nil
		},
	}
	cmd.Flags().StringVar(&payload, "qr", "", "QR payload of the token")
	cmd.Flags().StringVar(&reason, "reason", "", "why the token is revoked")
	cmd.Flags().DurationVar(&grace, "grace", 0, "grace period during which the token still resolves")
	_ = cmd.MarkFlagRequired("qr")
	return cmd
}

func tokenCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Purge expired and retained-revoked tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := wire.Tokens.Cleanup(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("removed %d token(s)\n", removed)
			return nil
		},
	}
}
