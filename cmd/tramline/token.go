package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tramline/tramline/internal/auth"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token for the admin endpoints",
		Example: `  JWT_SIGNING_KEY=... tramline token --subject ops@example.com --scope catalog:reload --scope cache:admin`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			for _, s := range scopes {
				if !knownScope(s) {
					return fmt.Errorf("unknown scope %q", s)
				}
			}

			tokens := auth.NewTokenService(auth.TokenConfig{
				SigningKey: cfg.Auth.SigningKey,
				Issuer:     cfg.Auth.Issuer,
				Audience:   cfg.Auth.Audience,
			})
			if !tokens.Enabled() {
				return errors.New("JWT_SIGNING_KEY is not set")
			}

			token, expiresAt, err := tokens.Issue(subject, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "operator identity")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeStatus}, "granted scope (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenExpiry, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func knownScope(s string) bool {
	switch s {
	case auth.ScopeCatalogReload, auth.ScopeCacheAdmin, auth.ScopeStatus:
		return true
	}
	return false
}
