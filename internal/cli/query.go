package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"PaperTriage/internal/usecase"
)

func newSearchCommand(rt *runtime) *cobra.Command {
	var (
		states []string
		cat    []string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "search [QUERY...]",
		Short: "Rank stored papers against a keyword query",
		Long: `Rank stored papers against a keyword query. Without a query the
filtered papers are listed newest first, unscored.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := parseStates(splitFlags(states))
			if err != nil {
				return err
			}
			results, err := rt.app.Pipeline().Search(cmd.Context(), usecase.SearchRequest{
				Query:      strings.Join(args, " "),
				States:     st,
				Categories: splitFlags(cat),
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().StringSliceVar(&states, "state", nil, "triage states to include")
	cmd.Flags().StringSliceVar(&cat, "cat", nil, "categories to include")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	return cmd
}

func newStatsCommand(rt *runtime) *cobra.Command {
	var (
		states []string
		cat    []string
		query  string
		month  string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count papers by category, state, tag and day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := parseStates(splitFlags(states))
			if err != nil {
				return err
			}
			stats, err := rt.app.Pipeline().Stats(cmd.Context(), usecase.StatsRequest{
				States:     st,
				Categories: splitFlags(cat),
				Query:      query,
				Month:      month,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}

	cmd.Flags().StringSliceVar(&states, "state", nil, "triage states to include")
	cmd.Flags().StringSliceVar(&cat, "cat", nil, "categories to include")
	cmd.Flags().StringVar(&query, "query", "", "count only papers matching this keyword query")
	cmd.Flags().StringVar(&month, "month", "", "day histogram for a YYYY-MM month instead of the last 31 days")
	return cmd
}

func newProvidersCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List language model providers and their availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), rt.app.Providers())
		},
	}
}
