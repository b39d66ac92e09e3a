package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Spok95/spendguard/internal/messaging"
	"github.com/Spok95/spendguard/internal/scanner"
)

type scanResult struct {
	CheckoutControl bool                     `json:"checkoutControl"`
	Order           *messaging.OrderSnapshot `json:"order,omitempty"`
	Error           string                   `json:"error,omitempty"`
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan FILE.html",
		Short: "Read the order total and items from a saved checkout page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, os.Stderr)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			doc, err := scanner.ParseHTML(f)
			if err != nil {
				return err
			}
			res := scan(doc, a.scannerConfig())

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if res.Error != "" {
				return fmt.Errorf("scan %s: %s", args[0], res.Error)
			}
			return nil
		},
	}
}

func scan(doc scanner.Document, cfg scanner.Config) scanResult {
	var res scanResult
	if _, err := scanner.Locate(doc, cfg.CheckoutSelectors); err == nil {
		res.CheckoutControl = true
	}
	order, err := scanner.Snapshot(doc, cfg)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Order = &order
	return res
}
