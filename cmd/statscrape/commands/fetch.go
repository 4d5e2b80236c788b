package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"statscrape/internal/extract"
	"statscrape/internal/shared/scrapeerr"
)

var (
	fetchXPaths   []string
	fetchLists    []string
	fetchAssert   string
	fetchPages    string
	fetchOverride string
	fetchJoin     string
)

func init() {
	fetchCmd.Flags().StringArrayVar(&fetchXPaths, "xpath", nil, "Expression to print the first value of (repeatable).")
	fetchCmd.Flags().StringArrayVar(&fetchLists, "list", nil, "Expression to print every non-blank value of (repeatable).")
	fetchCmd.Flags().StringVar(&fetchAssert, "assert", "", "Expression that must match or the page is rejected.")
	fetchCmd.Flags().StringVar(&fetchPages, "pages", "", "Print the last page number, with this expression as the pagination base.")
	fetchCmd.Flags().StringVar(&fetchOverride, "override", "", "URL to fetch instead of the target.")
	fetchCmd.Flags().StringVar(&fetchJoin, "join", "", "Join all values of each --xpath with this separator.")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch URL [--xpath EXPR]... [--list EXPR]... [--assert EXPR] [--pages BASE]",
	Short: "Fetches one page and prints extracted values.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if a.NeedsPool() {
			if err := a.Pool.Load(); err != nil {
				return fmt.Errorf("failed to load relay pool: %w", err)
			}
		}

		p, err := extract.LoadWithOverride(cmd.Context(), a.Fetcher, args[0], fetchOverride)
		if err != nil {
			return describe(err)
		}
		if fetchAssert != "" {
			if err := p.AssertFound(fetchAssert); err != nil {
				return describe(err)
			}
		}

		out := cmd.OutOrStdout()
		sel := extract.Default()
		if cmd.Flags().Changed("join") {
			sel = extract.Join(fetchJoin)
		}
		for _, expr := range fetchXPaths {
			value, ok, err := p.SingleText(expr, sel)
			if err != nil {
				return describe(err)
			}
			if !ok {
				fmt.Fprintf(out, "%s\t<none>\n", expr)
				continue
			}
			fmt.Fprintf(out, "%s\t%s\n", expr, value)
		}
		for _, expr := range fetchLists {
			values, err := p.ListText(expr, true)
			if err != nil {
				return describe(err)
			}
			for i, v := range values {
				fmt.Fprintf(out, "%s[%d]\t%s\n", expr, i, v)
			}
		}
		if cmd.Flags().Changed("pages") {
			last, err := p.LastPageNumber(fetchPages)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(out, "last_page\t%d\n", last)
		}
		return nil
	},
}

// describe prefixes classified errors with their kind and status.
func describe(err error) error {
	if kind := scrapeerr.KindOf(err); kind != 0 {
		return fmt.Errorf("%s (%d): %w", kind, scrapeerr.StatusOf(err), err)
	}
	return err
}
