package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"statscrape/internal/shared/config"
)

var importProtocol string

func init() {
	poolImportCmd.Flags().StringVar(&importProtocol, "protocol", "http", "Protocol of the imported relays (http or socks5).")
	poolCmd.AddCommand(poolScrapeCmd, poolListCmd, poolImportCmd)
	rootCmd.AddCommand(poolCmd)
}

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Maintains the relay pool.",
}

var poolScrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Runs one scrape and validate cycle over the configured relay sources.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.Pool.Load(); err != nil {
			return err
		}
		before := len(a.Pool.AllRelays())
		a.Pool.RunScrapeCycle(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "relays: %d (+%d), healthy: %d\n",
			len(a.Pool.AllRelays()), len(a.Pool.AllRelays())-before, len(a.Pool.HealthyRelays()))
		return nil
	},
}

var poolListCmd = &cobra.Command{
	Use:   "list",
	Short: "Prints every relay in the pool.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.Pool.Load(); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSOURCE\tVERIFIED\tLATENCY\tOK\tFAIL\tNEXT CHECK")
		for _, r := range a.Pool.AllRelays() {
			verified := r.VerifiedProtocol
			if verified == "" {
				verified = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				r.ID, r.Source, verified, r.Latency.Round(time.Millisecond),
				r.SuccessCount, r.FailureCount, r.NextChecked.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

var poolImportCmd = &cobra.Command{
	Use:   "import FILE [--protocol http|socks5]",
	Short: "Imports host:port relays from a file and validates them.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := config.LoadRelays(args[0])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.Pool.Load(); err != nil {
			return err
		}
		added, err := a.Pool.ImportRelays(entries, importProtocol)
		if err != nil {
			return err
		}
		a.Pool.Wait()
		fmt.Fprintf(cmd.OutOrStdout(), "imported: %d, healthy: %d\n", added, len(a.Pool.HealthyRelays()))
		return nil
	},
}
