package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/disbursement/internal/auth"
)

var (
	tokenSubject     string
	tokenPermissions []string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development operator token",
	Long:  `Sign an operator token with security.jwt_private_key. Production tokens come from the identity provider.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		issuer, err := auth.NewTokenIssuer(cfg.Security)
		if err != nil {
			return err
		}

		token, expiresAt, err := issuer.Issue(tokenSubject, tokenPermissions)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "sub", "", "operator id recorded as the actor")
	tokenCmd.Flags().StringSliceVar(&tokenPermissions, "perm", []string{auth.PermViewBatches}, "granted permissions, repeatable")
	_ = tokenCmd.MarkFlagRequired("sub")
	rootCmd.AddCommand(tokenCmd)
}
