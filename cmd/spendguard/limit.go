package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newLimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "limit",
		Short: "Show or change the monthly limit",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Show the limit and this month's spending",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := loadApp(cmd, os.Stderr)
				if err != nil {
					return err
				}
				be, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer be.Close()

				b, err := be.store.Budget(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "limit:         $%s\n", b.Limit.StringFixed(2))
				fmt.Fprintf(out, "essential:     $%s\n", b.EssentialSpent.StringFixed(2))
				fmt.Fprintf(out, "non-essential: $%s\n", b.NonEssentialSpent.StringFixed(2))
				fmt.Fprintf(out, "remaining:     $%s\n", b.Remaining().StringFixed(2))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set AMOUNT",
			Short: "Set the monthly limit",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				limit, err := decimal.NewFromString(args[0])
				if err != nil {
					return fmt.Errorf("limit %q: %w", args[0], err)
				}
				if limit.IsNegative() {
					return errors.New("limit must not be negative")
				}
				a, err := loadApp(cmd, os.Stderr)
				if err != nil {
					return err
				}
				be, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer be.Close()

				if err := be.store.SetLimit(cmd.Context(), limit); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "limit set to $%s\n", limit.StringFixed(2))
				return nil
			},
		},
	)
	return cmd
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset this month's spending to zero",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, os.Stderr)
			if err != nil {
				return err
			}
			be, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			if err := be.store.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "spending reset")
			return nil
		},
	}
}
