package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize what has been archived",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := resolveCatalog(cmd)
			if err != nil {
				return err
			}
			stats, err := catalog.Stats(cmd.Context())
			if err != nil {
				return err
			}
			rows := [][]string{
				{"comics", strconv.Itoa(stats.Comics)},
				{"tags", strconv.Itoa(stats.Tags)},
				{"tag links", strconv.Itoa(stats.Links)},
				{"first date", orDash(stats.FirstDate)},
				{"last date", orDash(stats.LastDate)},
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
