// Command dashctl is the operator CLI for the dashboard API: connectivity
// checks, CRM lookups, password hashes, dashboard dumps and archived snapshots.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "dashctl",
	Short:         "Operator tools for the sales dashboard API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr at the configured level")

	checkCmd.Flags().StringVar(&probeEmail, "email", "", "email to resolve through the CRM")
	hashPasswordCmd.Flags().IntVar(&bcryptCost, "cost", 0, "bcrypt cost (0 uses the configured cost)")
	dashboardCmd.Flags().StringVar(&fiscalYear, "fiscal-year", "current", "fiscal year: current or previous")
	dashboardCmd.Flags().StringVar(&orderStatus, "order-status", "active", "client orders: active or all")
	snapshotCmd.PersistentFlags().StringVar(&snapshotDate, "date", "", "snapshot day as YYYY-MM-DD in UTC (default today)")

	snapshotCmd.AddCommand(snapshotShowCmd, snapshotDeleteCmd)
	rootCmd.AddCommand(checkCmd, lookupCmd, hashPasswordCmd, dashboardCmd, snapshotCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
