// Package cli is the command-line surface over the use cases.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"PaperTriage/internal/app"
	"PaperTriage/internal/config"
	"PaperTriage/internal/domain"
	"PaperTriage/internal/logging"
)

// Factory builds the application for one command invocation.
type Factory func(ctx context.Context, configPath, logLevel string) (*app.Application, error)

// DefaultFactory loads configuration from disk and environment.
func DefaultFactory(ctx context.Context, configPath, logLevel string) (*app.Application, error) {
	cfg := config.LoadFrom(configPath)
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return app.New(ctx, cfg, logging.New(cfg.Logging.Level, cfg.Logging.Format))
}

type runtime struct {
	factory    Factory
	configPath string
	logLevel   string
	app        *app.Application
}

// NewRootCommand assembles the command tree.
func NewRootCommand(factory Factory) *cobra.Command {
	rt := &runtime{factory: factory}

	root := &cobra.Command{
		Use:   "papertriage",
		Short: "Ingest, rank and score research papers",
		Long: `papertriage pulls recent papers from the arXiv catalog, keeps one record
per paper, ranks them against keyword queries and annotates them with a
five-axis rubric and suggested tags.

Example usage:
  papertriage ingest --cat cs.CV --days 2
  papertriage search "diffusion segmentation" --limit 10
  papertriage score-batch --only-missing --limit 20`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.factory(cmd.Context(), rt.configPath, rt.logLevel)
			if err != nil {
				return fmt.Errorf("init: %w", err)
			}
			rt.app = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt.app != nil {
				rt.app.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", "", "YAML config file (default $PAPERTRIAGE_CONFIG)")
	root.PersistentFlags().StringVar(&rt.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newIngestCommand(rt),
		newHarvestCommand(rt),
		newSearchCommand(rt),
		newStatsCommand(rt),
		newScoreCommand(rt),
		newSuggestCommand(rt),
		newBatchCommand(rt, domain.OpScore),
		newBatchCommand(rt, domain.OpSuggest),
		newTriageCommand(rt),
		newSetRubricCommand(rt),
		newTagCommand(rt),
		newProvidersCommand(rt),
		newWatchCommand(rt),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseStates(values []string) ([]domain.TriageState, error) {
	states := make([]domain.TriageState, 0, len(values))
	for _, v := range values {
		s := domain.TriageState(strings.ToLower(strings.TrimSpace(v)))
		if !s.Valid() {
			return nil, fmt.Errorf("unknown triage state %q", v)
		}
		states = append(states, s)
	}
	return states, nil
}

func splitFlags(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, config.SplitList(v)...)
	}
	return out
}
