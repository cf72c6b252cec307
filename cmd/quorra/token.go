package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/quorra/internal/auth"
	"github.com/capitalize-ai/quorra/internal/model"
)

func newTokenCmd(opts *options) *cobra.Command {
	var (
		user  model.User
		ttl   time.Duration
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user.ID == "" {
				return errors.New("--user is required")
			}
			tok, err := auth.Issue(opts.cfg.JWTSecret, user, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			if quiet {
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export QUORRA_TOKEN=%s\n", tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&user.ID, "user", opts.cfg.DevUserID, "user id (token subject)")
	cmd.Flags().StringVar(&user.Email, "email", "", "user email")
	cmd.Flags().StringVar(&user.DisplayName, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", opts.cfg.JWTExpiration, "token lifetime")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the token")
	return cmd
}
