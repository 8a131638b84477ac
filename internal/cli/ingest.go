package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/usecase"
)

func newIngestCommand(rt *runtime) *cobra.Command {
	var (
		req usecase.IngestRequest
		cat []string
		ids []string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch recent papers and merge them into the store",
		Long: `Fetch the recent window of one or more categories, or specific papers by id.

Examples:
  papertriage ingest --cat cs.CV,cs.LG --days 2
  papertriage ingest --id 2501.01234 --id 2501.04321
  papertriage ingest --refresh              # ignore cached ETags`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				report domain.IngestReport
				err    error
			)
			if len(ids) > 0 {
				report, err = rt.app.Pipeline().IngestByIDs(cmd.Context(), splitFlags(ids))
			} else {
				req.Categories = splitFlags(cat)
				report, err = rt.app.Pipeline().Ingest(cmd.Context(), req)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&req.Source, "source", "", "catalog source (arxiv or oai)")
	cmd.Flags().StringSliceVar(&cat, "cat", nil, "categories, comma separated")
	cmd.Flags().IntVar(&req.Days, "days", 0, "window size in days")
	cmd.Flags().IntVar(&req.MaxResults, "max-results", 0, "maximum entries to request")
	cmd.Flags().BoolVar(&req.Refresh, "refresh", false, "drop cached ETags for this query first")
	cmd.Flags().StringSliceVar(&ids, "id", nil, "fetch specific catalog ids")
	return cmd
}

func newHarvestCommand(rt *runtime) *cobra.Command {
	var (
		req usecase.HarvestRequest
		cat []string
	)

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest categories through OAI-PMH",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Categories = splitFlags(cat)
			report, err := rt.app.Pipeline().Harvest(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringSliceVar(&cat, "cat", nil, "categories, comma separated")
	cmd.Flags().IntVar(&req.Days, "days", 0, "window size in days when no checkpoint applies")
	cmd.Flags().BoolVar(&req.UseCheckpoint, "checkpoint", true, "resume from the stored datestamp")
	return cmd
}

func newWatchCommand(rt *runtime) *cobra.Command {
	var (
		req usecase.IngestRequest
		cat []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest on the configured interval and serve metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Categories = splitFlags(cat)
			if err := rt.app.Watch(cmd.Context(), req); err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Source, "source", "", "catalog source (arxiv or oai)")
	cmd.Flags().StringSliceVar(&cat, "cat", nil, "categories, comma separated")
	cmd.Flags().IntVar(&req.Days, "days", 0, "window size in days")
	return cmd
}
