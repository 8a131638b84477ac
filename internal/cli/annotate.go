package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/usecase"
)

func newScoreCommand(rt *runtime) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "score ID",
		Short: "Score one paper on the five-axis rubric",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rt.app.Pipeline().ScoreOne(cmd.Context(), args[0], provider)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "language model provider (default from config)")
	return cmd
}

func newSuggestCommand(rt *runtime) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "suggest ID",
		Short: "Suggest tags for one paper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rt.app.Pipeline().SuggestOne(cmd.Context(), args[0], provider)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "language model provider (default from config)")
	return cmd
}

func newBatchCommand(rt *runtime, op domain.Operation) *cobra.Command {
	var (
		req     usecase.BatchRequest
		states  []string
		cat     []string
		delayMS int
	)

	cmd := &cobra.Command{
		Use:   string(op) + "-batch",
		Short: fmt.Sprintf("Run %s over many papers, one at a time", op),
		Long: fmt.Sprintf(`Run %s sequentially over the candidate set. Interrupt to stop after
the paper in flight; remaining papers are reported as skipped.`, op),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := parseStates(splitFlags(states))
			if err != nil {
				return err
			}
			req.Operation = op
			req.States = st
			req.Categories = splitFlags(cat)
			req.Delay = time.Duration(rt.delayMS(cmd, delayMS)) * time.Millisecond
			req.Progress = func(done, total int) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %d/%d\n", op, done, total)
			}

			summary, err := rt.app.Pipeline().RunBatch(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}

	cmd.Flags().StringVar(&req.Provider, "provider", "", "language model provider (default from config)")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "maximum papers (default from config)")
	cmd.Flags().BoolVar(&req.OnlyMissing, "only-missing", true, "skip papers that already have this annotation")
	cmd.Flags().StringVar(&req.Query, "query", "", "rank candidates by this keyword query")
	cmd.Flags().StringSliceVar(&states, "state", nil, "triage states to include (default all)")
	cmd.Flags().StringSliceVar(&cat, "cat", nil, "categories to include")
	cmd.Flags().IntVar(&delayMS, "delay-ms", -1, "pause between papers (default from config)")
	return cmd
}

func (rt *runtime) delayMS(cmd *cobra.Command, flag int) int {
	if cmd.Flags().Changed("delay-ms") && flag >= 0 {
		return flag
	}
	return rt.app.Config().Batch.DelayMS
}

func newTriageCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "triage ID STATE",
		Short: "Move a paper to triage, shortlist, archived or hidden",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := parseStates(args[1:])
			if err != nil {
				return err
			}
			if err := rt.app.Pipeline().SetState(cmd.Context(), args[0], states[0]); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"catalog_id": args[0], "state": string(states[0])})
		},
	}
}

func newSetRubricCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "set-rubric ID NOVELTY EVIDENCE CLARITY REUSABILITY FIT",
		Short: "Store a manual rubric; values are clamped to 1..5",
		Args:  cobra.ExactArgs(6),
		RunE: func(cmd *cobra.Command, args []string) error {
			var axes [5]int
			for i, raw := range args[1:] {
				v, err := strconv.Atoi(raw)
				if err != nil {
					return fmt.Errorf("axis %d: %w", i+1, err)
				}
				axes[i] = v
			}
			rubric, err := rt.app.Pipeline().SetRubric(cmd.Context(), args[0], domain.Rubric{
				Novelty:     axes[0],
				Evidence:    axes[1],
				Clarity:     axes[2],
				Reusability: axes[3],
				Fit:         axes[4],
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"catalog_id": args[0], "rubric": rubric})
		},
	}
}

func newTagCommand(rt *runtime) *cobra.Command {
	var add, remove []string

	cmd := &cobra.Command{
		Use:   "tag ID",
		Short: "Add or remove reader tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := rt.app.Pipeline().EditTags(cmd.Context(), args[0], add, remove)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"catalog_id": args[0], "tags": tags})
		},
	}
	cmd.Flags().StringSliceVar(&add, "add", nil, "tags to add")
	cmd.Flags().StringSliceVar(&remove, "remove", nil, "tags to remove")
	return cmd
}
