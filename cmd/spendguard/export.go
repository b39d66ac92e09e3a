package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Spok95/spendguard/internal/domain/spending"
	"github.com/Spok95/spendguard/internal/infra/db"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [FILE.xlsx]",
		Short: "Export this month's purchases to Excel",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, os.Stderr)
			if err != nil {
				return err
			}
			if a.cfg.Store.Driver != driverPostgres {
				return errNeedPostgres
			}
			be, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			m, err := be.ledger.Month(cmd.Context())
			if err != nil {
				return err
			}
			path := spending.ExportFileName(m.MonthStart)
			if len(args) == 1 {
				path = args[0]
			}
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := spending.WriteXLSX(f, m); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, os.Stderr)
			if err != nil {
				return err
			}
			if err := db.Migrate(a.cfg.Postgres.DSN, a.log); err != nil {
				return err
			}
			a.log.Info("migrations applied")
			return nil
		},
	}
}
