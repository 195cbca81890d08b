package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"slices"
	"syscall"

	"site-sync/feature/sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the sync command
	syncPhases string
	syncDryRun bool
	syncYes    bool
	syncReport string
)

// syncCmd runs the reconciliation phases once.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile sites between monitoring, store and maintenance",
	Long: `Runs the reconciliation phases and prints the run report.

Phases run in order: monitoring_to_store (1a), maintenance_to_store (1b)
and store_to_maintenance (2). Nothing is written without confirmation.

Examples:
  # Plan every phase without writing
  sync --dry-run

  # Import the monitoring layout into the store
  sync --phase 1a --yes

  # Full run, report saved as yaml
  sync --yes --report run.yaml`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncPhases, "phase", "all", "Phases to run: all, 1a, 1b, 2 or a comma separated list")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Plan only, never write")
	syncCmd.Flags().BoolVar(&syncYes, "yes", false, "Auto-confirm writes (non-interactive)")
	syncCmd.Flags().StringVar(&syncReport, "report", "", "Write the run report to this file (.json or .yaml)")

	RootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	phases, err := sync.ParsePhases(syncPhases)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, platforms{
		monitoring:  slices.Contains(phases, sync.PhaseMonitoring),
		maintenance: slices.Contains(phases, sync.PhaseMaintenance) || slices.Contains(phases, sync.PhasePush),
	})
	if err != nil {
		return err
	}
	defer app.Close()

	confirmed := false
	if !syncDryRun {
		if confirmed = confirmWrites(syncYes); !confirmed {
			app.logger.Warn("Not confirmed, running as dry-run. No changes will be made.")
		}
	}

	app.logger.Info("Starting sync run", zap.Strings("phases", phaseNames(phases)), zap.Bool("dry_run", syncDryRun || !confirmed))
	rep, runErr := app.sync.Run(ctx, sync.RunOptions{Phases: phases, DryRun: syncDryRun, Confirmed: confirmed})
	if rep != nil {
		printReport(app.logger, rep)
		if syncReport != "" {
			if err := writeReport(rep, syncReport); err != nil {
				return err
			}
			app.logger.Info("Report written", zap.String("path", syncReport))
		}
	}
	if runErr != nil {
		return runErr
	}
	if rep.Failed() {
		return fmt.Errorf("run %s finished with failures", rep.RunID)
	}
	return nil
}

func phaseNames(phases []sync.Phase) []string {
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = string(p)
	}
	return names
}
