// Command icmctl is the operator CLI for expected sheets, reconciliation and extraction jobs.
package main

import (
	"fmt"
	"os"

	"github.com/sahilchouksey/icm-reconcile/config"
	"github.com/sahilchouksey/icm-reconcile/database"
	applog "github.com/sahilchouksey/icm-reconcile/utils/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	outputFormat string
	perSheet     int

	// openDB connects to the application database; tests swap it for SQLite
	openDB = func() (*gorm.DB, func(), error) {
		if err := config.LoadENV(); err != nil {
			applog.Debugw(".env not loaded", "error", err)
		}
		store, err := database.StartGORM()
		if err != nil {
			return nil, nil, err
		}
		return store.GetDB(), func() { _ = store.Close() }, nil
	}
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "icmctl",
		Short:         "Inspect ICM sheet expectations, uploads and extraction jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch outputFormat {
			case "json", "yaml":
				return nil
			default:
				return fmt.Errorf("--output must be json or yaml, got %q", outputFormat)
			}
		},
	}

	root.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "output format: json or yaml")
	root.PersistentFlags().IntVar(&perSheet, "per-sheet", 0, "candidates per sheet for exams without their own size (default ICM_CANDIDATES_PER_SHEET)")

	root.AddCommand(
		newExpectedCmd(),
		newCompareCmd(),
		newOutstandingCmd(),
		newDecodeCmd(),
		newSeedCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
