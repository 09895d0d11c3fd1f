// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package main

import (
	"context"

	"github.com/spf13/cobra"
)

// accountMailer is the part of auth.Service the user commands use.
type accountMailer interface {
	ForgotPassword(ctx context.Context, email string) error
	ResendVerificationEmail(ctx context.Context, email string) error
}

// NewUserCmd creates the user command group for support tasks.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Support operations on customer accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "forgot-password EMAIL",
		Short: "Send a password reset email",
		Long: `Issue a password reset token and email it, exactly as the public
forgot-password flow does. Unknown addresses are not reported.`,
		Args: cobra.ExactArgs(1),
		RunE: withAccountMailer(func(cmd *cobra.Command, svc accountMailer, email string) error {
			if err := svc.ForgotPassword(cmd.Context(), email); err != nil {
				return err
			}
			cmd.Println("If the account exists, a password reset email has been sent")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "resend-verification EMAIL",
		Short: "Resend the email verification link",
		Args:  cobra.ExactArgs(1),
		RunE: withAccountMailer(func(cmd *cobra.Command, svc accountMailer, email string) error {
			if err := svc.ResendVerificationEmail(cmd.Context(), email); err != nil {
				return err
			}
			cmd.Printf("Verification email sent to %s\n", email)
			return nil
		}),
	})

	return cmd
}

func withAccountMailer(fn func(cmd *cobra.Command, svc accountMailer, email string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		svc, err := a.service(nil)
		if err != nil {
			return err
		}
		return fn(cmd, svc, args[0])
	}
}
