package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"site-sync/feature/sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the match command
	matchAutoMerge bool
	matchYes       bool
	matchDryRun    bool
	matchTier      string
	matchReport    string
)

// matchCmd pairs store sites with unlinked maintenance sites.
var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match store sites with unlinked maintenance sites",
	Long: `Scores every store site without a maintenance id against the maintenance
sites without a monitoring key, using names, postcodes and coordinates.

Pairs at or above --tier are merged with --auto-merge. Ambiguous pairs and
store sites without a candidate are recorded as conflicts for review.

Examples:
  # Report candidates only
  match

  # Merge HIGH confidence pairs
  match --auto-merge --tier HIGH --yes`,
	RunE: runMatch,
}

func init() {
	matchCmd.Flags().BoolVar(&matchAutoMerge, "auto-merge", false, "Merge pairs at or above --tier")
	matchCmd.Flags().BoolVar(&matchYes, "yes", false, "Auto-confirm writes (non-interactive)")
	matchCmd.Flags().BoolVar(&matchDryRun, "dry-run", false, "Score only, never write")
	matchCmd.Flags().StringVar(&matchTier, "tier", "", "Lowest tier merged automatically (HIGH, MEDIUM, LOW), defaults to SYNC_AUTO_MERGE_TIER")
	matchCmd.Flags().StringVar(&matchReport, "report", "", "Write the match report to this file (.json or .yaml)")

	RootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, platforms{maintenance: true})
	if err != nil {
		return err
	}
	defer app.Close()

	confirmed := false
	if matchAutoMerge && !matchDryRun {
		if confirmed = confirmWrites(matchYes); !confirmed {
			app.logger.Warn("Not confirmed, no site will be merged.")
		}
	}

	rep, err := app.sync.Match(ctx, sync.MatchOptions{
		AutoMerge: matchAutoMerge,
		MinTier:   matchTier,
		DryRun:    matchDryRun,
		Confirmed: confirmed,
	})
	if rep != nil {
		app.logger.Info("Match report",
			zap.String("run_id", rep.RunID),
			zap.Int("matches", len(rep.Matches)),
			zap.Int("unmatched", len(rep.Unmatched)),
			zap.Int("conflicts", len(rep.Conflicts)),
		)
		for _, m := range rep.Matches {
			app.logger.Info("Candidate",
				zap.String("key", m.KeyA),
				zap.String("maintenance_id", m.KeyB),
				zap.String("tier", m.Confidence),
				zap.Float64("similarity", m.Similarity),
				zap.Bool("merged", m.Merged),
			)
		}
		if matchReport != "" {
			if err := writeReport(rep, matchReport); err != nil {
				return err
			}
		}
	}
	return err
}
